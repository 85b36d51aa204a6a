package dualqueue

import "fmt"

// Sync is a one-shot operation that carries its own completion signal.
// The submitting goroutine calls Wait after Submit; everything fn wrote
// happens-before Wait returns.
type Sync struct {
	fn   func() error
	err  error
	done chan struct{}
}

// NewSync creates a waitable operation running fn.
func NewSync(fn func() error) *Sync {
	return &Sync{fn: fn, done: make(chan struct{})}
}

// Execute runs fn and signals completion. A panic in fn is reported as
// the Wait error.
func (s *Sync) Execute() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.err = fmt.Errorf("dualqueue: operation panicked: %v", r)
		}
	}()
	if s.fn != nil {
		s.err = s.fn()
	}
}

// fail completes s with err without running fn.
func (s *Sync) fail(err error) {
	s.err = err
	close(s.done)
}

// Wait blocks until Execute has finished and returns the result of fn.
func (s *Sync) Wait() error {
	<-s.done
	return s.err
}

// Done returns a channel closed once Execute has finished.
func (s *Sync) Done() <-chan struct{} { return s.done }
