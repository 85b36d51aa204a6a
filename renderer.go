package gpuexec

// Renderer creates resources and executes frames on one backend.
//
// Exactly one renderer exists per Context. Construction never blocks.
// Initialize must run once, on the goroutine that created the context,
// before any factory method. Close blocks until the GPU is idle and all
// deferred destructions ran.
type Renderer interface {
	Kind() BackendKind
	Initialize(opts InitOptions) error

	NewBuffer(desc BufferDescriptor) (Buffer, error)
	NewShader(desc ShaderDescriptor) (Shader, error)
	NewPipeline(desc PipelineDescriptor) (Pipeline, error)
	NewDescriptorSet(desc DescriptorSetDescriptor) (DescriptorSet, error)
	NewRenderTarget(desc RenderTargetDescriptor) (RenderTarget, error)
	NewFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)

	// MainFramebuffer returns the framebuffer of the context surface.
	// Its size follows surface resize notifications.
	MainFramebuffer() Framebuffer

	// Submit executes the passes of one frame in order.
	Submit(passes ...PassSubmission) error

	// Present shows the main framebuffer and waits until the backend
	// finished presenting.
	Present() error

	// SurfaceSize returns the last known surface size.
	SurfaceSize() (width, height int)

	Close() error
}

// InitOptions is the initial fixed-function state of a renderer.
type InitOptions struct {
	Culling CullingOptions
	Depth   DepthOptions
}

// CullingOptions is the default face culling state.
type CullingOptions struct {
	Enabled   bool
	Face      CullFace
	FrontFace Winding
}

// DepthOptions is the default depth test state.
type DepthOptions struct {
	TestEnabled  bool
	WriteEnabled bool
	Compare      CompareFunc
	RangeNear    float64
	RangeFar     float64
}

// DefaultInitOptions enables back-face culling with counter-clockwise
// front faces and a less-than depth test over [0, 1].
func DefaultInitOptions() InitOptions {
	return InitOptions{
		Culling: CullingOptions{Enabled: true, Face: CullBack, FrontFace: WindingCCW},
		Depth: DepthOptions{
			TestEnabled:  true,
			WriteEnabled: true,
			Compare:      CompareLess,
			RangeNear:    0,
			RangeFar:     1,
		},
	}
}

// ResolveCull returns the effective cull face for a pipeline requesting c.
func (o InitOptions) ResolveCull(c CullFace) CullFace {
	if c != CullDefault {
		return c
	}
	if !o.Culling.Enabled {
		return CullNone
	}
	if o.Culling.Face == CullDefault {
		return CullBack
	}
	return o.Culling.Face
}
