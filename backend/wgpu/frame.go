package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Completion polling backs off from pollMinDelay to pollMaxDelay.
const (
	pollMinDelay = 50 * time.Microsecond
	pollMaxDelay = time.Millisecond
)

// frameSlot is one frame in flight. index is the queue submission index
// of the last frame submitted into the slot, 0 before the first.
type frameSlot struct {
	index uint64
	cmd   hal.CommandBuffer
}

// waitSlot blocks until the queue reports the last submission into slot
// i as completed, or until the fence timeout. Caller holds frameMu.
func (r *Renderer) waitSlot(i int) error {
	f := &r.frames[i]
	if f.index == 0 || r.queue.PollCompleted() >= f.index {
		return nil
	}
	deadline := time.Now().Add(r.cfg.FenceTimeout)
	for delay := pollMinDelay; ; delay = min(delay*2, pollMaxDelay) {
		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("%w: frame slot %d submission %d after %v",
				gpuexec.ErrFrameTimeout, i, f.index, r.cfg.FenceTimeout)
		}
		time.Sleep(min(delay, left))
		if r.queue.PollCompleted() >= f.index {
			return nil
		}
	}
}

// freeCommandBuffers releases command buffers of all slots. The caller
// waited for every slot first.
func (r *Renderer) freeCommandBuffers() {
	for i := range r.frames {
		if r.frames[i].cmd != nil {
			r.device.FreeCommandBuffer(r.frames[i].cmd)
			r.frames[i].cmd = nil
		}
	}
}

// Submit records the passes into one command buffer and submits it.
//
// The frame slot being reused is waited on first; its command buffer is
// freed and the destructions bound to it run. Destructions requested
// since the previous Submit are bound to this frame after it was queued.
func (r *Renderer) Submit(passes ...gpuexec.PassSubmission) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	if err := r.checkReady(); err != nil {
		return err
	}

	slot := int(r.frameCount % uint64(len(r.frames)))
	if err := r.waitSlot(slot); err != nil {
		return err
	}
	f := &r.frames[slot]
	if f.cmd != nil {
		r.device.FreeCommandBuffer(f.cmd)
		f.cmd = nil
	}
	if n := r.ledger.RetireFrame(slot); n > 0 {
		gpuexec.Logger().Debug("wgpu: retired deferred destructions", "slot", slot, "count", n)
	}

	cmd, err := r.record(passes)
	if err != nil {
		return err
	}
	index, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		r.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("wgpu: submit frame %d: %w", r.frameCount, err)
	}
	f.cmd = cmd
	f.index = index
	r.ledger.CommitFrame(slot)
	r.frameCount++
	return nil
}

// record encodes passes. On error the encoding is discarded.
func (r *Renderer) record(passes []gpuexec.PassSubmission) (hal.CommandBuffer, error) {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "gpuexec_frame_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("gpuexec_frame"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	for i := range passes {
		if err := r.recordPass(encoder, &passes[i]); err != nil {
			encoder.DiscardEncoding()
			return nil, fmt.Errorf("wgpu: pass %d %q: %w", i, passes[i].Pass.Label, err)
		}
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return cmd, nil
}

func (r *Renderer) framebufferViews(fb gpuexec.Framebuffer) ([]hal.TextureView, hal.TextureView, error) {
	switch f := fb.(type) {
	case *framebuffer:
		for _, c := range f.color {
			if c.r != r {
				return nil, nil, fmt.Errorf("%w: framebuffer %q", gpuexec.ErrForeignResource, f.label)
			}
		}
		return f.attachments()
	case *mainFramebuffer:
		if f.r != r {
			return nil, nil, fmt.Errorf("%w: main framebuffer", gpuexec.ErrForeignResource)
		}
		return f.attachments()
	case nil:
		return r.main.attachments()
	default:
		return nil, nil, fmt.Errorf("%w: framebuffer %q", gpuexec.ErrForeignResource, fb.Label())
	}
}

func loadOp(a gpuexec.LoadAction) gputypes.LoadOp {
	if a == gpuexec.LoadActionLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func (r *Renderer) recordPass(encoder hal.CommandEncoder, p *gpuexec.PassSubmission) error {
	colors, depth, err := r.framebufferViews(p.Framebuffer)
	if err != nil {
		return err
	}

	desc := &hal.RenderPassDescriptor{Label: p.Pass.Label}
	clearColor := p.ColorClearValue()
	for _, v := range colors {
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v,
			LoadOp:     loadOp(p.Pass.ColorLoad),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearColor,
		})
	}
	if depth != nil {
		d, s := p.DepthStencilClearValue()
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              depth,
			DepthLoadOp:       loadOp(p.Pass.DepthLoad),
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   d,
			StencilLoadOp:     loadOp(p.Pass.DepthLoad),
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: s,
		}
	}

	rp := encoder.BeginRenderPass(desc)
	for i := range p.Draws {
		if err := r.recordDraw(rp, &p.Draws[i]); err != nil {
			rp.End()
			return fmt.Errorf("draw %d: %w", i, err)
		}
	}
	rp.End()
	return nil
}

func (r *Renderer) recordDraw(rp hal.RenderPassEncoder, d *gpuexec.DrawInfo) error {
	if d.Pipeline == nil {
		return fmt.Errorf("%w: draw without pipeline", gpuexec.ErrInvalidDescriptor)
	}
	p, err := r.ownPipeline(d.Pipeline)
	if err != nil {
		return err
	}
	handle, pushLayout, err := p.current()
	if err != nil {
		return err
	}
	rp.SetPipeline(handle)

	if d.DescriptorSet != nil {
		ds, err := r.ownDescriptorSet(d.DescriptorSet)
		if err != nil {
			return err
		}
		if ds.pipeline != p {
			return fmt.Errorf("%w: descriptor set %q was created for pipeline %q", gpuexec.ErrInvalidDescriptor, ds.label, ds.pipeline.label)
		}
		group, err := ds.current()
		if err != nil {
			return err
		}
		rp.SetBindGroup(uint32(p.setGroup), group, nil) //nolint:gosec // small index
	}

	if p.pushGroup >= 0 {
		group, err := r.pushConstantGroup(p, pushLayout, d.VertexPushConstants, d.FragmentPushConstants)
		if err != nil {
			return err
		}
		rp.SetBindGroup(uint32(p.pushGroup), group, nil) //nolint:gosec // small index
	}

	for slot, vb := range d.VertexBuffers {
		b, err := r.ownBuffer(vb)
		if err != nil {
			return err
		}
		h, err := b.current()
		if err != nil {
			return err
		}
		rp.SetVertexBuffer(uint32(slot), h, 0) //nolint:gosec // small index
	}

	instances := uint32(d.InstanceCount())  //nolint:gosec // positive
	first := uint32(max(d.Range.Offset, 0)) //nolint:gosec // clamped
	count := uint32(max(d.Range.Count, 0))  //nolint:gosec // clamped
	if d.IndexBuffer == nil {
		rp.Draw(count, instances, first, 0)
		return nil
	}
	ib, err := r.ownBuffer(d.IndexBuffer)
	if err != nil {
		return err
	}
	if ib.width == gpuexec.IndexWidthNone {
		return fmt.Errorf("%w: buffer %q is not an index buffer", gpuexec.ErrInvalidDescriptor, ib.label)
	}
	h, err := ib.current()
	if err != nil {
		return err
	}
	rp.SetIndexBuffer(h, ib.indexFormat(), 0)
	rp.DrawIndexed(count, instances, first, 0, 0)
	return nil
}

// pushConstantGroup uploads per-draw constants into a fresh uniform
// buffer and returns a bind group over it, laid out by layout. Both are
// released once the frame they are submitted in retired.
func (r *Renderer) pushConstantGroup(p *pipeline, layout hal.BindGroupLayout, vertex, fragment []byte) (hal.BindGroup, error) {
	if len(vertex) > p.push.VertexSize || len(fragment) > p.push.FragmentSize {
		return nil, fmt.Errorf("%w: push constants exceed layout of pipeline %q", gpuexec.ErrInvalidDescriptor, p.label)
	}
	vsize := alignUniform(p.push.VertexSize)
	fsize := alignUniform(p.push.FragmentSize)
	fragOffset := (vsize + pushOffsetAlign - 1) &^ (pushOffsetAlign - 1)
	total := vsize
	if fsize > 0 {
		total = fragOffset + fsize
	}

	buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.label + "_push",
		Size:  uint64(total), //nolint:gosec // positive
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create push constant buffer: %w", err)
	}
	data := make([]byte, total)
	copy(data, vertex)
	if fsize > 0 {
		copy(data[fragOffset:], fragment)
	}
	if err := r.queue.WriteBuffer(buf, 0, data); err != nil {
		r.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: write push constants %q: %w", p.label, err)
	}

	var entries []gputypes.BindGroupEntry
	if vsize > 0 {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  pushBindingVertex,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: uint64(vsize)}, //nolint:gosec // positive
		})
	}
	if fsize > 0 {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  pushBindingFragment,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: uint64(fragOffset), Size: uint64(fsize)}, //nolint:gosec // positive
		})
	}

	group, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_push_group",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		r.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: create push constant bind group: %w", err)
	}

	device := r.device
	r.destroyLater("push constants "+p.label, func() {
		device.DestroyBindGroup(group)
		device.DestroyBuffer(buf)
	})
	return group, nil
}

func alignUniform(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + uniformAlign - 1) &^ (uniformAlign - 1)
}
