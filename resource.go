package gpuexec

import "github.com/gogpu/gputypes"

// Resource is implemented by every object a Renderer creates.
//
// Destroy is idempotent. The backend handle is not released immediately:
// the immediate backend queues the release behind earlier work, the
// explicit backend waits until every frame that could use it retired.
type Resource interface {
	Backend() BackendKind
	Label() string
	Destroy()
}

// Buffer is GPU memory holding vertices, indices or uniforms.
type Buffer interface {
	Resource
	Usage() BufferUsage
	IndexWidth() IndexWidth

	// Size returns the current size in bytes.
	Size() int

	// Write uploads data at offset. A write past the end grows the
	// buffer; existing contents before offset are preserved.
	Write(offset int, data []byte) error
}

// Shader is a compiled shader stage.
type Shader interface {
	Resource
	Stage() ShaderStage
}

// Pipeline is a linked program plus fixed-function state.
type Pipeline interface {
	Resource
}

// DescriptorSet is a group of uniform buffer bindings.
type DescriptorSet interface {
	Resource
}

// RenderTarget is an image a pass renders into.
type RenderTarget interface {
	Resource
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

// Framebuffer groups the attachments of a pass.
type Framebuffer interface {
	Resource
	Size() (width, height int)
}
