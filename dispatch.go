package gpuexec

import (
	"errors"
	"fmt"
)

// NewRenderer returns a renderer for ctx built by the first backend in
// the preference order that can serve it, or nil when none can. A nil
// result is the normal outcome on hardware without a supported API.
func NewRenderer(ctx Context, opts ...Option) Renderer {
	r, err := SelectRenderer(ctx, opts...)
	if err != nil {
		Logger().Info("gpuexec: no renderer available", "err", err)
		return nil
	}
	return r
}

// SelectRenderer is NewRenderer with the reason for failure. The error
// wraps ErrNoRenderer and the last backend failure.
func SelectRenderer(ctx Context, opts ...Option) (Renderer, error) {
	cfg := NewConfig(opts...)
	if ctx == nil || !ctx.IsValid() {
		return nil, fmt.Errorf("%w: %w", ErrNoRenderer, ErrInvalidContext)
	}

	var lastErr error
	for _, kind := range cfg.Preference {
		factory, ok := lookupFactory(kind)
		if !ok {
			lastErr = fmt.Errorf("%v backend not registered: %w", kind, ErrCapabilityAbsent)
			continue
		}
		r, err := factory(ctx, cfg)
		if err != nil {
			lastErr = fmt.Errorf("%v backend: %w", kind, err)
			level := "unavailable"
			if !errors.Is(err, ErrCapabilityAbsent) {
				level = "failed"
			}
			Logger().Warn("gpuexec: backend "+level+", trying next", "backend", kind, "err", err)
			continue
		}
		if r == nil {
			continue
		}
		Logger().Info("gpuexec: backend selected", "backend", kind)
		return r, nil
	}

	if lastErr == nil {
		return nil, ErrNoRenderer
	}
	return nil, fmt.Errorf("%w: %w", ErrNoRenderer, lastErr)
}
