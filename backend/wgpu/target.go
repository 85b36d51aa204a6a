package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// mainDepthFormat is the depth/stencil format of the main framebuffer.
const mainDepthFormat = gputypes.TextureFormatDepth24PlusStencil8

// renderTarget is a HAL texture plus its default view.
type renderTarget struct {
	r      *Renderer
	label  string
	width  int
	height int
	format gputypes.TextureFormat

	mu        sync.Mutex
	tex       hal.Texture
	view      hal.TextureView
	destroyed bool
}

var _ gpuexec.RenderTarget = (*renderTarget)(nil)

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth16Unorm:
		return true
	}
	return false
}

func (r *Renderer) createTarget(label string, w, h int, format gputypes.TextureFormat) (hal.Texture, hal.TextureView, error) {
	usage := gputypes.TextureUsageRenderAttachment
	if !isDepthFormat(format) {
		usage |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding
	}
	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(w), //nolint:gosec // validated positive
			Height:             uint32(h), //nolint:gosec // validated positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create texture %q: %w", label, err)
	}
	view, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		r.device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("wgpu: create view %q: %w", label, err)
	}
	return tex, view, nil
}

// NewRenderTarget creates a render target attachment.
func (r *Renderer) NewRenderTarget(desc gpuexec.RenderTargetDescriptor) (gpuexec.RenderTarget, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = r.format
	}
	tex, view, err := r.createTarget(desc.Label, desc.Width, desc.Height, format)
	if err != nil {
		return nil, err
	}
	return &renderTarget{
		r:      r,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: format,
		tex:    tex,
		view:   view,
	}, nil
}

func (t *renderTarget) Backend() gpuexec.BackendKind   { return gpuexec.BackendExplicit }
func (t *renderTarget) Label() string                  { return t.label }
func (t *renderTarget) Width() int                     { return t.width }
func (t *renderTarget) Height() int                    { return t.height }
func (t *renderTarget) Format() gputypes.TextureFormat { return t.format }

func (t *renderTarget) handle() (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return nil, fmt.Errorf("%w: render target %q", gpuexec.ErrDestroyed, t.label)
	}
	return t.view, nil
}

// Destroy defers releasing the texture until frames using it retired.
func (t *renderTarget) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	tex, view := t.tex, t.view
	t.tex, t.view = nil, nil
	t.mu.Unlock()

	device := t.r.device
	t.r.destroyLater("render target "+t.label, func() {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
	})
}

// framebuffer groups render targets of one size.
type framebuffer struct {
	label  string
	color  []*renderTarget
	depth  *renderTarget
	width  int
	height int

	mu        sync.Mutex
	destroyed bool
}

var _ gpuexec.Framebuffer = (*framebuffer)(nil)

// NewFramebuffer groups attachments created by this renderer.
func (r *Renderer) NewFramebuffer(desc gpuexec.FramebufferDescriptor) (gpuexec.Framebuffer, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	fb := &framebuffer{label: desc.Label}
	for _, c := range desc.Color {
		rt, err := r.ownTarget(c)
		if err != nil {
			return nil, err
		}
		fb.color = append(fb.color, rt)
		fb.width, fb.height = rt.width, rt.height
	}
	if desc.DepthStencil != nil {
		rt, err := r.ownTarget(desc.DepthStencil)
		if err != nil {
			return nil, err
		}
		if !isDepthFormat(rt.format) {
			return nil, fmt.Errorf("%w: framebuffer %q depth attachment has color format", gpuexec.ErrInvalidDescriptor, desc.Label)
		}
		fb.depth = rt
		fb.width, fb.height = rt.width, rt.height
	}
	return fb, nil
}

func (r *Renderer) ownTarget(t gpuexec.RenderTarget) (*renderTarget, error) {
	rt, ok := t.(*renderTarget)
	if !ok || rt.r != r {
		return nil, fmt.Errorf("%w: render target %q", gpuexec.ErrForeignResource, t.Label())
	}
	return rt, nil
}

func (f *framebuffer) Backend() gpuexec.BackendKind { return gpuexec.BackendExplicit }
func (f *framebuffer) Label() string                { return f.label }
func (f *framebuffer) Size() (int, int)             { return f.width, f.height }

// Destroy marks the framebuffer unusable. The attachments stay owned by
// the caller.
func (f *framebuffer) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
}

// attachments returns the color and depth views for a pass.
func (f *framebuffer) attachments() ([]hal.TextureView, hal.TextureView, error) {
	f.mu.Lock()
	destroyed := f.destroyed
	f.mu.Unlock()
	if destroyed {
		return nil, nil, fmt.Errorf("%w: framebuffer %q", gpuexec.ErrDestroyed, f.label)
	}
	colors := make([]hal.TextureView, 0, len(f.color))
	for _, c := range f.color {
		v, err := c.handle()
		if err != nil {
			return nil, nil, err
		}
		colors = append(colors, v)
	}
	var depth hal.TextureView
	if f.depth != nil {
		v, err := f.depth.handle()
		if err != nil {
			return nil, nil, err
		}
		depth = v
	}
	return colors, depth, nil
}

// mainFramebuffer renders into renderer-owned textures of surface size.
// Resizing recreates them; the previous textures go through the ledger.
type mainFramebuffer struct {
	r *Renderer

	mu         sync.Mutex
	width      int
	height     int
	colorTex   hal.Texture
	colorView  hal.TextureView
	depthTex   hal.Texture
	depthView  hal.TextureView
	generation uint64
}

var _ gpuexec.Framebuffer = (*mainFramebuffer)(nil)

func (r *Renderer) newMainFramebuffer(w, h int) (*mainFramebuffer, error) {
	m := &mainFramebuffer{r: r}
	if err := m.resize(w, h); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mainFramebuffer) Backend() gpuexec.BackendKind { return gpuexec.BackendExplicit }
func (m *mainFramebuffer) Label() string                { return "main" }

func (m *mainFramebuffer) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

// Destroy is a no-op: the renderer owns the main framebuffer.
func (m *mainFramebuffer) Destroy() {}

// resize recreates the attachments. Non-positive sizes are clamped to 1
// so minimized windows keep a valid framebuffer.
func (m *mainFramebuffer) resize(w, h int) error {
	w, h = max(w, 1), max(h, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colorTex != nil && w == m.width && h == m.height {
		return nil
	}

	colorTex, colorView, err := m.r.createTarget("main_color", w, h, m.r.format)
	if err != nil {
		return err
	}
	depthTex, depthView, err := m.r.createTarget("main_depth", w, h, mainDepthFormat)
	if err != nil {
		m.r.device.DestroyTextureView(colorView)
		m.r.device.DestroyTexture(colorTex)
		return err
	}

	m.retireLocked()
	m.colorTex, m.colorView = colorTex, colorView
	m.depthTex, m.depthView = depthTex, depthView
	m.width, m.height = w, h
	m.generation++
	return nil
}

func (m *mainFramebuffer) retireLocked() {
	if m.colorTex == nil {
		return
	}
	device := m.r.device
	colorTex, colorView := m.colorTex, m.colorView
	depthTex, depthView := m.depthTex, m.depthView
	m.r.destroyLater("main framebuffer", func() {
		device.DestroyTextureView(depthView)
		device.DestroyTexture(depthTex)
		device.DestroyTextureView(colorView)
		device.DestroyTexture(colorTex)
	})
	m.colorTex, m.colorView, m.depthTex, m.depthView = nil, nil, nil, nil
}

// release hands the attachments to the ledger. Called by Close.
func (m *mainFramebuffer) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retireLocked()
}

func (m *mainFramebuffer) texture() (hal.Texture, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colorTex, m.width, m.height
}

func (m *mainFramebuffer) attachments() ([]hal.TextureView, hal.TextureView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colorView == nil {
		return nil, nil, fmt.Errorf("%w: main framebuffer", gpuexec.ErrDestroyed)
	}
	return []hal.TextureView{m.colorView}, m.depthView, nil
}
