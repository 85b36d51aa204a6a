package gpuexec

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferUsage tells the backend how a buffer is bound.
type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = iota + 1
	BufferUsageIndex
	BufferUsageUniform
)

// String returns the usage name.
func (u BufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageUniform:
		return "uniform"
	default:
		return fmt.Sprintf("BufferUsage(%d)", uint8(u))
	}
}

// IndexWidth is the element size of an index buffer.
type IndexWidth uint8

const (
	IndexWidthNone IndexWidth = iota
	Index8
	Index16
	Index32
)

// Bytes returns the element size in bytes, 0 for IndexWidthNone.
func (w IndexWidth) Bytes() int {
	switch w {
	case Index8:
		return 1
	case Index16:
		return 2
	case Index32:
		return 4
	default:
		return 0
	}
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label string
	Usage BufferUsage

	// Size is the initial size in bytes. When zero, len(Contents) is used.
	Size int

	// IndexWidth is required for BufferUsageIndex and ignored otherwise.
	IndexWidth IndexWidth

	// Contents is uploaded at creation when non-empty.
	Contents []byte
}

// Validate checks the descriptor.
func (d *BufferDescriptor) Validate() error {
	switch d.Usage {
	case BufferUsageVertex, BufferUsageUniform:
	case BufferUsageIndex:
		if d.IndexWidth.Bytes() == 0 {
			return fmt.Errorf("%w: index buffer %q has no index width", ErrInvalidDescriptor, d.Label)
		}
	default:
		return fmt.Errorf("%w: buffer %q has usage %v", ErrInvalidDescriptor, d.Label, d.Usage)
	}
	if d.Size < 0 {
		return fmt.Errorf("%w: buffer %q has negative size", ErrInvalidDescriptor, d.Label)
	}
	if d.Size == 0 && len(d.Contents) == 0 {
		return fmt.Errorf("%w: buffer %q is empty", ErrInvalidDescriptor, d.Label)
	}
	if len(d.Contents) > d.InitialSize() {
		return fmt.Errorf("%w: buffer %q contents exceed size", ErrInvalidDescriptor, d.Label)
	}
	return nil
}

// InitialSize returns the size the buffer is created with.
func (d *BufferDescriptor) InitialSize() int {
	if d.Size == 0 {
		return len(d.Contents)
	}
	return d.Size
}

// ShaderStage is a programmable pipeline stage. Values may be combined.
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageVertex | ShaderStageFragment:
		return "vertex|fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

// ShaderLanguage is the encoding of ShaderDescriptor.Code.
type ShaderLanguage uint8

const (
	// ShaderLanguageSPIRV is a SPIR-V binary in little-endian words.
	ShaderLanguageSPIRV ShaderLanguage = iota + 1
	// ShaderLanguageWGSL is WGSL source text.
	ShaderLanguageWGSL
	// ShaderLanguageGLSL is GLSL source text.
	ShaderLanguageGLSL
)

// String returns the language name.
func (l ShaderLanguage) String() string {
	switch l {
	case ShaderLanguageSPIRV:
		return "spirv"
	case ShaderLanguageWGSL:
		return "wgsl"
	case ShaderLanguageGLSL:
		return "glsl"
	default:
		return fmt.Sprintf("ShaderLanguage(%d)", uint8(l))
	}
}

// ShaderDescriptor describes one shader stage.
type ShaderDescriptor struct {
	Label    string
	Stage    ShaderStage
	Language ShaderLanguage
	Code     []byte

	// EntryPoint defaults to "vs_main" or "fs_main" for SPIR-V and WGSL.
	// GLSL always uses main.
	EntryPoint string
}

// Entry returns the entry point, applying the stage default.
func (d *ShaderDescriptor) Entry() string {
	if d.EntryPoint != "" {
		return d.EntryPoint
	}
	if d.Stage == ShaderStageFragment {
		return "fs_main"
	}
	return "vs_main"
}

// Validate checks the descriptor.
func (d *ShaderDescriptor) Validate() error {
	if d.Stage != ShaderStageVertex && d.Stage != ShaderStageFragment {
		return fmt.Errorf("%w: shader %q has stage %v", ErrInvalidDescriptor, d.Label, d.Stage)
	}
	if len(d.Code) == 0 {
		return fmt.Errorf("%w: shader %q has no code", ErrInvalidDescriptor, d.Label)
	}
	return nil
}

// CullFace selects which triangle faces are discarded.
type CullFace uint8

const (
	// CullDefault inherits the renderer's InitOptions.
	CullDefault CullFace = iota
	CullNone
	CullBack
	CullFront
)

// Winding is the vertex order of front-facing triangles.
type Winding uint8

const (
	WindingCCW Winding = iota
	WindingCW
)

// CompareFunc is a depth comparison.
type CompareFunc uint8

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareGreater
	CompareEqual
	CompareAlways
)

// PushConstantLayout sizes the per-draw constant ranges of a pipeline.
type PushConstantLayout struct {
	VertexSize   int
	FragmentSize int
}

// BindingLayout declares a uniform buffer binding in descriptor sets of
// a pipeline.
type BindingLayout struct {
	Binding uint32
	Stages  ShaderStage

	// Name is the uniform block name. The immediate backend binds the
	// block to Binding by name; when empty the shader must declare the
	// binding itself.
	Name string
}

// PipelineDescriptor describes a render pipeline.
type PipelineDescriptor struct {
	Label    string
	Vertex   Shader
	Fragment Shader

	VertexLayouts []gputypes.VertexBufferLayout
	Bindings      []BindingLayout
	PushConstants PushConstantLayout

	ColorFormat gputypes.TextureFormat
	// DepthFormat is TextureFormatUndefined for pipelines without depth.
	DepthFormat gputypes.TextureFormat

	// Topology defaults to a triangle list when zero.
	Topology gputypes.PrimitiveTopology
	Cull     CullFace
	Blend    *gputypes.BlendState
}

// Validate checks the descriptor.
func (d *PipelineDescriptor) Validate() error {
	if d.Vertex == nil || d.Fragment == nil {
		return fmt.Errorf("%w: pipeline %q needs vertex and fragment shaders", ErrInvalidDescriptor, d.Label)
	}
	if d.PushConstants.VertexSize < 0 || d.PushConstants.FragmentSize < 0 {
		return fmt.Errorf("%w: pipeline %q has negative push constant size", ErrInvalidDescriptor, d.Label)
	}
	return nil
}

// BufferBinding binds a uniform buffer range.
type BufferBinding struct {
	Binding uint32
	Buffer  Buffer
	Offset  int
	// Size 0 binds the rest of the buffer.
	Size int
}

// DescriptorSetDescriptor describes a set of uniform buffer bindings for
// a pipeline.
type DescriptorSetDescriptor struct {
	Label    string
	Pipeline Pipeline
	Buffers  []BufferBinding
}

// RenderTargetDescriptor describes an attachment image.
type RenderTargetDescriptor struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
}

// Validate checks the descriptor.
func (d *RenderTargetDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: render target %q is %dx%d", ErrInvalidDescriptor, d.Label, d.Width, d.Height)
	}
	return nil
}

// FramebufferDescriptor groups render targets used by a pass.
type FramebufferDescriptor struct {
	Label        string
	Color        []RenderTarget
	DepthStencil RenderTarget
}

// Validate checks the descriptor. All attachments must share a size.
func (d *FramebufferDescriptor) Validate() error {
	if len(d.Color) == 0 && d.DepthStencil == nil {
		return fmt.Errorf("%w: framebuffer %q has no attachments", ErrInvalidDescriptor, d.Label)
	}
	w, h := -1, -1
	check := func(rt RenderTarget) error {
		if rt == nil {
			return fmt.Errorf("%w: framebuffer %q has a nil attachment", ErrInvalidDescriptor, d.Label)
		}
		if w < 0 {
			w, h = rt.Width(), rt.Height()
			return nil
		}
		if rt.Width() != w || rt.Height() != h {
			return fmt.Errorf("%w: framebuffer %q attachments differ in size", ErrInvalidDescriptor, d.Label)
		}
		return nil
	}
	for _, rt := range d.Color {
		if err := check(rt); err != nil {
			return err
		}
	}
	if d.DepthStencil != nil {
		if err := check(d.DepthStencil); err != nil {
			return err
		}
	}
	return nil
}
