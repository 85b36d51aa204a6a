package dualqueue

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	name     string
	setup    func() error
	teardown func()
	capacity int
}

func defaultOptions() options {
	return options{
		name:     "gpu",
		capacity: 64,
	}
}

// WithName sets the name reported in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithThreadSetup registers fn to run on the execution goroutine after it
// locked its OS thread and before any operation runs. A typical use is
// making a GL context current.
func WithThreadSetup(fn func() error) Option {
	return func(o *options) {
		o.setup = fn
	}
}

// WithThreadTeardown registers fn to run on the execution goroutine after
// the final drain, before the goroutine exits.
func WithThreadTeardown(fn func()) Option {
	return func(o *options) {
		o.teardown = fn
	}
}

// WithInitialCapacity sets the initial capacity of both queues.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}
