package gpuexec

import "github.com/gogpu/gputypes"

// LoadAction is what a pass does with an attachment's previous contents.
type LoadAction uint8

const (
	LoadActionClear LoadAction = iota
	LoadActionLoad
)

// RenderPassDescriptor describes how a pass treats its attachments.
type RenderPassDescriptor struct {
	Label     string
	ColorLoad LoadAction
	DepthLoad LoadAction
}

// ClearPurpose tells which attachment a ClearValue applies to.
type ClearPurpose uint8

const (
	ClearColor ClearPurpose = iota
	ClearDepthStencil
)

// ClearValue is the value an attachment is cleared to.
type ClearValue struct {
	Purpose ClearPurpose
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// ColorClear returns a color ClearValue.
func ColorClear(r, g, b, a float64) ClearValue {
	return ClearValue{Purpose: ClearColor, Color: gputypes.Color{R: r, G: g, B: b, A: a}}
}

// DepthStencilClear returns a depth/stencil ClearValue.
func DepthStencilClear(depth float32, stencil uint32) ClearValue {
	return ClearValue{Purpose: ClearDepthStencil, Depth: depth, Stencil: stencil}
}

// IndexRange selects the elements a draw consumes: indices for indexed
// draws, vertices otherwise.
type IndexRange struct {
	Offset int
	Count  int
}

// DrawInfo is one draw call.
type DrawInfo struct {
	Pipeline      Pipeline
	VertexBuffers []Buffer
	IndexBuffer   Buffer // optional
	DescriptorSet DescriptorSet
	Range         IndexRange

	// Instances defaults to 1.
	Instances int

	VertexPushConstants   []byte
	FragmentPushConstants []byte
}

// InstanceCount returns Instances with the default applied.
func (d *DrawInfo) InstanceCount() int {
	if d.Instances <= 0 {
		return 1
	}
	return d.Instances
}

// PassSubmission is one render pass of a frame.
type PassSubmission struct {
	Pass        RenderPassDescriptor
	Framebuffer Framebuffer
	ClearValues []ClearValue
	Draws       []DrawInfo
}

// ColorClearValue returns the first color clear value, or transparent black.
func (p *PassSubmission) ColorClearValue() gputypes.Color {
	for _, cv := range p.ClearValues {
		if cv.Purpose == ClearColor {
			return cv.Color
		}
	}
	return gputypes.Color{}
}

// DepthStencilClearValue returns the depth/stencil clear value, or
// depth 1 and stencil 0.
func (p *PassSubmission) DepthStencilClearValue() (float32, uint32) {
	for _, cv := range p.ClearValues {
		if cv.Purpose == ClearDepthStencil {
			return cv.Depth, cv.Stencil
		}
	}
	return 1, 0
}

// CommandBuffer records passes for Renderer.Submit. It keeps its slices
// across Reset so steady-state frames do not allocate.
//
// A CommandBuffer is not safe for concurrent use.
type CommandBuffer struct {
	passes []PassSubmission
}

// BeginPass starts a new pass. Later Draw calls append to it.
func (c *CommandBuffer) BeginPass(pass RenderPassDescriptor, fb Framebuffer, clears ...ClearValue) {
	n := len(c.passes)
	if n < cap(c.passes) {
		c.passes = c.passes[:n+1]
		p := &c.passes[n]
		p.Pass = pass
		p.Framebuffer = fb
		p.ClearValues = append(p.ClearValues[:0], clears...)
		p.Draws = p.Draws[:0]
		return
	}
	c.passes = append(c.passes, PassSubmission{
		Pass:        pass,
		Framebuffer: fb,
		ClearValues: append([]ClearValue(nil), clears...),
	})
}

// Draw appends d to the current pass.
func (c *CommandBuffer) Draw(d DrawInfo) error {
	if len(c.passes) == 0 {
		return ErrNoActivePass
	}
	p := &c.passes[len(c.passes)-1]
	p.Draws = append(p.Draws, d)
	return nil
}

// Passes returns the recorded passes. The slice is reused after Reset.
func (c *CommandBuffer) Passes() []PassSubmission {
	return c.passes
}

// Len returns the number of recorded passes.
func (c *CommandBuffer) Len() int { return len(c.passes) }

// Reset drops recorded passes, keeping allocated storage. References to
// resources are cleared.
func (c *CommandBuffer) Reset() {
	for i := range c.passes {
		p := &c.passes[i]
		p.Framebuffer = nil
		clear(p.Draws)
		p.Draws = p.Draws[:0]
		p.ClearValues = p.ClearValues[:0]
	}
	c.passes = c.passes[:0]
}
