package gpuexec

import "time"

// Config is the renderer configuration a backend factory receives.
type Config struct {
	// Preference is the order backends are tried in.
	Preference []BackendKind

	// FramesInFlight is the number of frame slots of the explicit
	// backend, between 1 and MaxFramesInFlight.
	FramesInFlight int

	// FenceTimeout bounds the wait for a frame slot to complete on the GPU.
	FenceTimeout time.Duration

	// PoolCapacity is the initial slot count of every operation pool of
	// the immediate backend.
	PoolCapacity int
}

// MaxFramesInFlight bounds Config.FramesInFlight.
const MaxFramesInFlight = 3

// DefaultConfig returns the configuration NewRenderer starts from:
// explicit backend preferred, two frames in flight, five second fence
// timeout, 32 slots per pool.
func DefaultConfig() Config {
	return Config{
		Preference:     []BackendKind{BackendExplicit, BackendImmediate},
		FramesInFlight: 2,
		FenceTimeout:   5 * time.Second,
		PoolCapacity:   32,
	}
}

// Option configures renderer selection and construction.
//
// Example:
//
//	// Prefer OpenGL, fall back to the explicit backend.
//	r := gpuexec.NewRenderer(ctx,
//	    gpuexec.WithPreference(gpuexec.BackendImmediate, gpuexec.BackendExplicit))
type Option func(*Config)

// WithPreference sets the order backends are tried in. Kinds left out
// are never tried.
func WithPreference(kinds ...BackendKind) Option {
	return func(c *Config) {
		c.Preference = append([]BackendKind(nil), kinds...)
	}
}

// WithFramesInFlight sets the number of explicit-backend frame slots.
// Values are clamped to [1, MaxFramesInFlight].
func WithFramesInFlight(n int) Option {
	return func(c *Config) {
		c.FramesInFlight = min(max(n, 1), MaxFramesInFlight)
	}
}

// WithFenceTimeout sets the frame completion timeout. Non-positive values
// keep the default.
func WithFenceTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.FenceTimeout = d
		}
	}
}

// WithPoolCapacity sets the initial operation pool capacity.
func WithPoolCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PoolCapacity = n
		}
	}
}

// NewConfig applies opts to DefaultConfig.
func NewConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
