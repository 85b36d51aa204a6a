package opengl

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
)

// renderTarget is a renderbuffer.
type renderTarget struct {
	r      *Renderer
	label  string
	width  int
	height int
	format gputypes.TextureFormat
	store  uint32 // internal format

	mu        sync.Mutex
	destroyed bool

	// Owned by the GL goroutine.
	name uint32
}

var _ gpuexec.RenderTarget = (*renderTarget)(nil)

// NewRenderTarget queues creation of a renderbuffer. An undefined format
// selects RGBA8.
func (r *Renderer) NewRenderTarget(desc gpuexec.RenderTargetDescriptor) (gpuexec.RenderTarget, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	store, ok := glInternalFormat(format)
	if !ok {
		return nil, fmt.Errorf("%w: render target %q has unsupported format %v",
			gpuexec.ErrInvalidDescriptor, desc.Label, format)
	}

	t := &renderTarget{
		r:      r,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: format,
		store:  store,
	}
	if err := r.enqueue(func() { t.create(r.gl) }); err != nil {
		return nil, fmt.Errorf("opengl: render target %q: %w", desc.Label, err)
	}
	return t, nil
}

func (t *renderTarget) create(gl GL) {
	t.name = gl.GenRenderbuffer()
	gl.BindRenderbuffer(glRenderbuffer, t.name)
	gl.RenderbufferStorage(glRenderbuffer, t.store, int32(t.width), int32(t.height)) //nolint:gosec // validated positive
	gl.BindRenderbuffer(glRenderbuffer, 0)
}

func (t *renderTarget) Backend() gpuexec.BackendKind   { return gpuexec.BackendImmediate }
func (t *renderTarget) Label() string                  { return t.label }
func (t *renderTarget) Width() int                     { return t.width }
func (t *renderTarget) Height() int                    { return t.height }
func (t *renderTarget) Format() gputypes.TextureFormat { return t.format }

func (t *renderTarget) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.mu.Unlock()
	t.r.release(t)
}

func (t *renderTarget) release(gl GL) {
	if t.name != 0 {
		gl.DeleteRenderbuffer(t.name)
		t.name = 0
	}
}

func (t *renderTarget) attachment() uint32 {
	switch t.format {
	case gputypes.TextureFormatDepth24PlusStencil8:
		return glDepthStencilAttachment
	default:
		return glDepthAttachment
	}
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return true
	}
	return false
}

func glInternalFormat(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return glRGBA8, true
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return glSRGB8Alpha8, true
	case gputypes.TextureFormatRGBA16Float:
		return glRGBA16F, true
	case gputypes.TextureFormatDepth16Unorm:
		return glDepthComponent16, true
	case gputypes.TextureFormatDepth24Plus:
		return glDepthComponent24, true
	case gputypes.TextureFormatDepth24PlusStencil8:
		return glDepth24Stencil8, true
	case gputypes.TextureFormatDepth32Float:
		return glDepthComponent32F, true
	}
	return 0, false
}

func (r *Renderer) ownTarget(rt gpuexec.RenderTarget) (*renderTarget, error) {
	t, ok := rt.(*renderTarget)
	if !ok || t.r != r {
		return nil, fmt.Errorf("%w: render target %T", gpuexec.ErrForeignResource, rt)
	}
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: render target %q", gpuexec.ErrDestroyed, t.label)
	}
	return t, nil
}

// passTarget is what a pass renders into.
type passTarget interface {
	gpuexec.Framebuffer
	// fbo, colors and hasDepth are read on the GL goroutine.
	fbo() uint32
	colors() int
	hasDepth() bool
}

// framebuffer is a framebuffer object over render targets.
type framebuffer struct {
	r      *Renderer
	label  string
	width  int
	height int
	color  []*renderTarget
	depth  *renderTarget

	mu        sync.Mutex
	destroyed bool

	// Set once by NewFramebuffer, read on the GL goroutine.
	name uint32
}

var _ gpuexec.Framebuffer = (*framebuffer)(nil)

// NewFramebuffer builds the framebuffer object on the GL goroutine and
// waits for the completeness check.
func (r *Renderer) NewFramebuffer(desc gpuexec.FramebufferDescriptor) (gpuexec.Framebuffer, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	fb := &framebuffer{r: r, label: desc.Label}
	for _, rt := range desc.Color {
		t, err := r.ownTarget(rt)
		if err != nil {
			return nil, err
		}
		if isDepthFormat(t.format) {
			return nil, fmt.Errorf("%w: framebuffer %q color attachment %q has depth format",
				gpuexec.ErrInvalidDescriptor, desc.Label, t.label)
		}
		fb.color = append(fb.color, t)
		fb.width, fb.height = t.width, t.height
	}
	if desc.DepthStencil != nil {
		t, err := r.ownTarget(desc.DepthStencil)
		if err != nil {
			return nil, err
		}
		if !isDepthFormat(t.format) {
			return nil, fmt.Errorf("%w: framebuffer %q depth attachment %q has color format",
				gpuexec.ErrInvalidDescriptor, desc.Label, t.label)
		}
		fb.depth = t
		fb.width, fb.height = t.width, t.height
	}

	if err := r.sched.Do(func() error { return fb.create(r.gl) }); err != nil {
		return nil, fmt.Errorf("opengl: framebuffer %q: %w", desc.Label, r.mapErr(err))
	}
	return fb, nil
}

func (fb *framebuffer) create(gl GL) error {
	name := gl.GenFramebuffer()
	gl.BindFramebuffer(glFramebuffer, name)
	defer gl.BindFramebuffer(glFramebuffer, 0)

	buffers := make([]uint32, len(fb.color))
	for i, t := range fb.color {
		attachment := uint32(glColorAttachment0 + i) //nolint:gosec // few attachments
		gl.FramebufferRenderbuffer(glFramebuffer, attachment, glRenderbuffer, t.name)
		buffers[i] = attachment
	}
	if fb.depth != nil {
		gl.FramebufferRenderbuffer(glFramebuffer, fb.depth.attachment(), glRenderbuffer, fb.depth.name)
	}
	if len(buffers) > 0 {
		gl.DrawBuffers(buffers)
	}
	if status := gl.CheckFramebufferStatus(glFramebuffer); status != glFramebufferComplete {
		gl.DeleteFramebuffer(name)
		return fmt.Errorf("incomplete framebuffer: status 0x%04X", status)
	}
	fb.name = name
	return nil
}

func (fb *framebuffer) Backend() gpuexec.BackendKind { return gpuexec.BackendImmediate }
func (fb *framebuffer) Label() string                { return fb.label }
func (fb *framebuffer) Size() (int, int)             { return fb.width, fb.height }
func (fb *framebuffer) fbo() uint32                  { return fb.name }
func (fb *framebuffer) colors() int                  { return len(fb.color) }
func (fb *framebuffer) hasDepth() bool               { return fb.depth != nil }

// Destroy queues deletion of the framebuffer object. The render targets
// are owned by the caller.
func (fb *framebuffer) Destroy() {
	fb.mu.Lock()
	if fb.destroyed {
		fb.mu.Unlock()
		return
	}
	fb.destroyed = true
	fb.mu.Unlock()
	fb.r.release(fb)
}

func (fb *framebuffer) release(gl GL) {
	if fb.name != 0 {
		gl.DeleteFramebuffer(fb.name)
		fb.name = 0
	}
}

func (fb *framebuffer) isDestroyed() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.destroyed
}

// mainFramebuffer is the default framebuffer of the context, GL name 0.
type mainFramebuffer struct {
	r *Renderer
}

var _ gpuexec.Framebuffer = (*mainFramebuffer)(nil)

func (m *mainFramebuffer) Backend() gpuexec.BackendKind { return gpuexec.BackendImmediate }
func (m *mainFramebuffer) Label() string                { return "main" }
func (m *mainFramebuffer) Size() (int, int)             { return m.r.SurfaceSize() }
func (m *mainFramebuffer) fbo() uint32                  { return 0 }
func (m *mainFramebuffer) colors() int                  { return 1 }
func (m *mainFramebuffer) hasDepth() bool               { return true }

// Destroy is a no-op; the context owns the default framebuffer.
func (m *mainFramebuffer) Destroy() {}

// passTarget resolves the framebuffer of a pass. nil selects the main
// framebuffer.
func (r *Renderer) passTarget(fb gpuexec.Framebuffer) (passTarget, error) {
	switch f := fb.(type) {
	case nil:
		return r.main, nil
	case *mainFramebuffer:
		if f.r == r {
			return f, nil
		}
	case *framebuffer:
		if f.r == r {
			if f.isDestroyed() {
				return nil, fmt.Errorf("%w: framebuffer %q", gpuexec.ErrDestroyed, f.label)
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: framebuffer %T", gpuexec.ErrForeignResource, fb)
}
