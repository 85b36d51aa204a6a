package gpuexec

// Context is the host windowing layer a renderer is bound to. The
// renderer borrows it for its whole lifetime and never closes it.
type Context interface {
	// IsValid reports whether the context can still be rendered to.
	IsValid() bool

	// CapabilityHandle returns the backend-specific handle for kind, or
	// nil when the context cannot serve that backend. The explicit backend
	// expects a device provider (see backend/wgpu), the immediate backend
	// a GL context (see backend/opengl).
	CapabilityHandle(kind BackendKind) any

	// FramebufferSize returns the current surface size in pixels.
	FramebufferSize() (width, height int)

	// OnSurfaceResize registers the single resize subscriber, replacing
	// any previous one. fn runs on the context's own goroutine.
	OnSurfaceResize(fn func(width, height int))
}
