package opengl

import (
	"fmt"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
)

// maxVertexBuffers bounds the vertex buffers of one draw.
const maxVertexBuffers = 8

// frameOp executes one submitted frame. It holds resolved resources and
// a private copy of every push constant byte, so the caller may reuse
// its command buffer as soon as Submit returns.
type frameOp struct {
	r      *Renderer
	passes []framePass
	consts []byte
}

type framePass struct {
	target  passTarget
	desc    gpuexec.RenderPassDescriptor
	color   gputypes.Color
	depth   float32
	stencil uint32
	draws   []frameDraw
}

type frameDraw struct {
	pipeline  *pipeline
	set       *descriptorSet
	vertex    [maxVertexBuffers]*buffer
	nvertex   int
	index     *buffer
	rng       gpuexec.IndexRange
	instances int
	vconst    span
	fconst    span
}

// span is a range of frameOp.consts.
type span struct{ off, n int }

// Submit validates passes and queues them as one operation. Resources
// are checked here so errors reach the caller; the GL calls run later on
// the GL goroutine in submission order.
func (r *Renderer) Submit(passes ...gpuexec.PassSubmission) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	op := r.frames.Acquire().(*frameOp)
	if err := op.load(passes); err != nil {
		r.frames.Give(op)
		return err
	}
	if err := r.sched.Submit(op, r.frames); err != nil {
		r.frames.Give(op)
		return fmt.Errorf("opengl: submit: %w", r.mapErr(err))
	}
	r.frameCount.Add(1)
	return nil
}

// load resolves and copies passes into op.
func (op *frameOp) load(passes []gpuexec.PassSubmission) error {
	r := op.r
	for i := range passes {
		ps := &passes[i]
		target, err := r.passTarget(ps.Framebuffer)
		if err != nil {
			return err
		}
		fp := op.nextPass()
		fp.target = target
		fp.desc = ps.Pass
		fp.color = ps.ColorClearValue()
		fp.depth, fp.stencil = ps.DepthStencilClearValue()

		for j := range ps.Draws {
			d := &ps.Draws[j]
			fd, err := op.resolveDraw(d)
			if err != nil {
				return fmt.Errorf("pass %d draw %d: %w", i, j, err)
			}
			fp.draws = append(fp.draws, fd)
		}
	}
	return nil
}

func (op *frameOp) nextPass() *framePass {
	n := len(op.passes)
	if n < cap(op.passes) {
		op.passes = op.passes[:n+1]
	} else {
		op.passes = append(op.passes, framePass{})
	}
	fp := &op.passes[n]
	fp.draws = fp.draws[:0]
	return fp
}

func (op *frameOp) resolveDraw(d *gpuexec.DrawInfo) (frameDraw, error) {
	r := op.r
	var fd frameDraw
	if d.Pipeline == nil {
		return fd, fmt.Errorf("%w: draw without pipeline", gpuexec.ErrInvalidDescriptor)
	}
	p, err := r.ownPipeline(d.Pipeline)
	if err != nil {
		return fd, err
	}
	fd.pipeline = p

	if d.DescriptorSet != nil {
		set, err := r.ownDescriptorSet(d.DescriptorSet)
		if err != nil {
			return fd, err
		}
		if set.pipeline != p {
			return fd, fmt.Errorf("%w: descriptor set %q belongs to pipeline %q",
				gpuexec.ErrInvalidDescriptor, set.label, set.pipeline.label)
		}
		fd.set = set
	}

	if len(d.VertexBuffers) > maxVertexBuffers {
		return fd, fmt.Errorf("%w: %d vertex buffers, at most %d",
			gpuexec.ErrInvalidDescriptor, len(d.VertexBuffers), maxVertexBuffers)
	}
	for i, vb := range d.VertexBuffers {
		b, err := r.ownBuffer(vb)
		if err != nil {
			return fd, err
		}
		fd.vertex[i] = b
	}
	fd.nvertex = len(d.VertexBuffers)

	if d.IndexBuffer != nil {
		b, err := r.ownBuffer(d.IndexBuffer)
		if err != nil {
			return fd, err
		}
		if b.usage != gpuexec.BufferUsageIndex {
			return fd, fmt.Errorf("%w: buffer %q is not an index buffer", gpuexec.ErrInvalidDescriptor, b.label)
		}
		fd.index = b
	}

	if len(d.VertexPushConstants) > p.push.VertexSize || len(d.FragmentPushConstants) > p.push.FragmentSize {
		return fd, fmt.Errorf("%w: push constants exceed the layout of pipeline %q", gpuexec.ErrInvalidDescriptor, p.label)
	}
	fd.vconst = op.copyConsts(d.VertexPushConstants)
	fd.fconst = op.copyConsts(d.FragmentPushConstants)
	fd.rng = d.Range
	fd.instances = d.InstanceCount()
	return fd, nil
}

func (op *frameOp) copyConsts(b []byte) span {
	s := span{off: len(op.consts), n: len(b)}
	op.consts = append(op.consts, b...)
	return s
}

// Execute runs the frame on the GL goroutine.
func (op *frameOp) Execute() {
	gl := op.r.gl
	for i := range op.passes {
		fp := &op.passes[i]
		op.beginPass(gl, fp)
		for j := range fp.draws {
			op.draw(gl, &fp.draws[j])
		}
	}
	gl.BindVertexArray(0)
}

func (op *frameOp) beginPass(gl GL, fp *framePass) {
	gl.BindFramebuffer(glFramebuffer, fp.target.fbo())
	w, h := fp.target.Size()
	gl.Viewport(0, 0, int32(w), int32(h)) //nolint:gosec // surface sizes fit

	var mask uint32
	if fp.desc.ColorLoad == gpuexec.LoadActionClear && fp.target.colors() > 0 {
		c := fp.color
		gl.ClearColor(float32(c.R), float32(c.G), float32(c.B), float32(c.A))
		mask |= glColorBufferBit
	}
	if fp.desc.DepthLoad == gpuexec.LoadActionClear && fp.target.hasDepth() {
		gl.DepthMask(true)
		gl.ClearDepth(float64(fp.depth))
		gl.ClearStencil(int32(fp.stencil)) //nolint:gosec // 8-bit stencil
		mask |= glDepthBufferBit | glStencilBufferBit
	}
	if mask != 0 {
		gl.Clear(mask)
	}
}

func (op *frameOp) draw(gl GL, fd *frameDraw) {
	p := fd.pipeline
	if p.program == 0 {
		gpuexec.Logger().Warn("opengl: skipping draw with released pipeline", "pipeline", p.label)
		return
	}
	p.apply(gl)
	if fd.set != nil {
		fd.set.bind(gl)
	}
	op.r.uploadPushConstants(gl, 0, PushConstantBindingVertex, op.consts[fd.vconst.off:fd.vconst.off+fd.vconst.n])
	op.r.uploadPushConstants(gl, 1, PushConstantBindingFragment, op.consts[fd.fconst.off:fd.fconst.off+fd.fconst.n])
	p.bindVertexBuffers(gl, fd.vertex[:fd.nvertex])

	instances := int32(fd.instances) //nolint:gosec // instance counts fit
	count := int32(fd.rng.Count)     //nolint:gosec // element counts fit
	if fd.index == nil {
		gl.DrawArraysInstanced(p.mode, int32(fd.rng.Offset), count, instances) //nolint:gosec // element offsets fit
		return
	}
	gl.BindBuffer(glElementArrayBuffer, fd.index.name)
	offset := fd.rng.Offset * fd.index.width.Bytes()
	gl.DrawElementsInstanced(p.mode, count, glIndexType(fd.index.width), offset, instances)
}

// uploadPushConstants writes data into renderer uniform buffer i and binds
// it at binding. Runs on the GL goroutine.
func (r *Renderer) uploadPushConstants(gl GL, i int, binding uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if r.pushUBO[i] == 0 {
		r.pushUBO[i] = gl.GenBuffer()
	}
	gl.BindBuffer(glUniformBuffer, r.pushUBO[i])
	if len(data) > r.pushSize[i] {
		gl.BufferData(glUniformBuffer, len(data), data, glDynamicDraw)
		r.pushSize[i] = len(data)
	} else {
		gl.BufferSubData(glUniformBuffer, 0, data)
	}
	gl.BindBufferRange(glUniformBuffer, binding, r.pushUBO[i], 0, len(data))
}

// Reset drops resource references and keeps the slices.
func (op *frameOp) Reset() {
	for i := range op.passes {
		fp := &op.passes[i]
		fp.target = nil
		clear(fp.draws)
		fp.draws = fp.draws[:0]
	}
	op.passes = op.passes[:0]
	op.consts = op.consts[:0]
}
