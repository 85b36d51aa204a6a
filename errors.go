package gpuexec

import "errors"

// Sentinel errors returned by renderers and the backend dispatcher.
var (
	// ErrNoRenderer is returned by SelectRenderer when no registered
	// backend could serve the context.
	ErrNoRenderer = errors.New("gpuexec: no renderer available")

	// ErrCapabilityAbsent is returned by a backend factory when the
	// context has no usable capability handle for that backend.
	ErrCapabilityAbsent = errors.New("gpuexec: backend capability absent")

	// ErrInvalidContext is returned when the host context reports itself
	// invalid.
	ErrInvalidContext = errors.New("gpuexec: invalid context")

	// ErrNotInitialized is returned by factories called before Initialize.
	ErrNotInitialized = errors.New("gpuexec: renderer not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("gpuexec: renderer already initialized")

	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("gpuexec: renderer closed")

	// ErrDestroyed is returned when using a resource after Destroy.
	ErrDestroyed = errors.New("gpuexec: resource destroyed")

	// ErrForeignResource is returned when a resource created by another
	// renderer or backend is passed in.
	ErrForeignResource = errors.New("gpuexec: resource belongs to another renderer")

	// ErrInvalidDescriptor is returned for malformed descriptors.
	ErrInvalidDescriptor = errors.New("gpuexec: invalid descriptor")

	// ErrFrameTimeout is returned when a frame did not complete on the GPU
	// within the configured timeout.
	ErrFrameTimeout = errors.New("gpuexec: timed out waiting for frame")

	// ErrNoActivePass is returned by CommandBuffer.Draw before BeginPass.
	ErrNoActivePass = errors.New("gpuexec: no active render pass")
)
