package opengl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
)

// vertexAttrib is a resolved vertex attribute.
type vertexAttrib struct {
	location   uint32
	size       int32
	kind       uint32
	normalized bool
	integer    bool
	offset     int
}

type vertexLayout struct {
	stride   int32
	instance bool
	attribs  []vertexAttrib
}

type pipeline struct {
	r     *Renderer
	label string

	layouts  []vertexLayout
	bindings []gpuexec.BindingLayout
	push     gpuexec.PushConstantLayout
	mode     uint32
	cull     gpuexec.CullFace
	winding  gpuexec.Winding
	depth    bool
	compare  gpuexec.CompareFunc
	write    bool
	blend    *gputypes.BlendState

	mu        sync.Mutex
	destroyed bool

	// Set once by NewPipeline, read on the GL goroutine.
	program uint32
	vao     uint32
}

var _ gpuexec.Pipeline = (*pipeline)(nil)

// NewPipeline links the shaders on the GL goroutine and waits for the
// result. Uniform blocks named in desc.Bindings and the push constant
// blocks are bound to their binding points at link time.
func (r *Renderer) NewPipeline(desc gpuexec.PipelineDescriptor) (gpuexec.Pipeline, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	vs, err := r.ownShader(desc.Vertex, gpuexec.ShaderStageVertex)
	if err != nil {
		return nil, err
	}
	fs, err := r.ownShader(desc.Fragment, gpuexec.ShaderStageFragment)
	if err != nil {
		return nil, err
	}
	mode, err := glTopology(desc.Topology)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline %q: %w", gpuexec.ErrInvalidDescriptor, desc.Label, err)
	}
	layouts, err := vertexLayouts(desc.VertexLayouts)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline %q: %w", gpuexec.ErrInvalidDescriptor, desc.Label, err)
	}

	p := &pipeline{
		r:        r,
		label:    desc.Label,
		layouts:  layouts,
		bindings: append([]gpuexec.BindingLayout(nil), desc.Bindings...),
		push:     desc.PushConstants,
		mode:     mode,
		cull:     r.opts.ResolveCull(desc.Cull),
		winding:  r.opts.Culling.FrontFace,
		depth:    desc.DepthFormat != gputypes.TextureFormatUndefined && r.opts.Depth.TestEnabled,
		compare:  r.opts.Depth.Compare,
		write:    r.opts.Depth.WriteEnabled,
	}
	if desc.Blend != nil {
		blend := *desc.Blend
		p.blend = &blend
	}

	err = r.sched.Do(func() error { return p.link(r.gl, vs, fs) })
	if err != nil {
		return nil, fmt.Errorf("opengl: pipeline %q: %w", desc.Label, r.mapErr(err))
	}
	return p, nil
}

func (p *pipeline) link(gl GL, vs, fs *shader) error {
	program := gl.CreateProgram()
	gl.AttachShader(program, vs.name)
	gl.AttachShader(program, fs.name)
	gl.LinkProgram(program)
	if ok, log := gl.ProgramStatus(program); !ok {
		gl.DeleteProgram(program)
		return fmt.Errorf("link program: %s", strings.TrimSpace(log))
	}

	bind := func(name string, binding uint32) {
		block := gl.GetUniformBlockIndex(program, name)
		if block == glInvalidIndex {
			gpuexec.Logger().Debug("opengl: uniform block not active", "pipeline", p.label, "block", name)
			return
		}
		gl.UniformBlockBinding(program, block, binding)
	}
	for _, b := range p.bindings {
		if b.Name != "" {
			bind(b.Name, b.Binding)
		}
	}
	if p.push.VertexSize > 0 {
		bind(vertexPushBlock, PushConstantBindingVertex)
	}
	if p.push.FragmentSize > 0 {
		bind(fragmentPushBlock, PushConstantBindingFragment)
	}

	p.program = program
	p.vao = gl.GenVertexArray()
	return nil
}

func (p *pipeline) Backend() gpuexec.BackendKind { return gpuexec.BackendImmediate }
func (p *pipeline) Label() string                { return p.label }

// Destroy queues deletion of the program and its vertex array.
func (p *pipeline) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()
	p.r.release(p)
}

func (p *pipeline) release(gl GL) {
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		gl.DeleteVertexArray(p.vao)
		p.program, p.vao = 0, 0
	}
}

func (p *pipeline) declares(binding uint32) bool {
	for _, b := range p.bindings {
		if b.Binding == binding {
			return true
		}
	}
	return false
}

// apply binds the program and sets the fixed-function state. Runs on the
// GL goroutine.
func (p *pipeline) apply(gl GL) {
	gl.UseProgram(p.program)
	gl.BindVertexArray(p.vao)

	if p.cull == gpuexec.CullNone {
		gl.Disable(glCullFaceCap)
	} else {
		gl.Enable(glCullFaceCap)
		gl.CullFace(glCullMode(p.cull))
	}
	gl.FrontFace(glWinding(p.winding))

	if p.depth {
		gl.Enable(glDepthTest)
		gl.DepthFunc(glCompare(p.compare))
		gl.DepthMask(p.write)
	} else {
		gl.Disable(glDepthTest)
		gl.DepthMask(false)
	}

	if p.blend == nil {
		gl.Disable(glBlend)
		return
	}
	gl.Enable(glBlend)
	gl.BlendFuncSeparate(
		glBlendFactor(p.blend.Color.SrcFactor), glBlendFactor(p.blend.Color.DstFactor),
		glBlendFactor(p.blend.Alpha.SrcFactor), glBlendFactor(p.blend.Alpha.DstFactor))
	gl.BlendEquationSeparate(glBlendOp(p.blend.Color.Operation), glBlendOp(p.blend.Alpha.Operation))
}

// bindVertexBuffers points the attributes of layout i at vbs[i].
func (p *pipeline) bindVertexBuffers(gl GL, vbs []*buffer) {
	for i, l := range p.layouts {
		if i >= len(vbs) {
			break
		}
		gl.BindBuffer(glArrayBuffer, vbs[i].name)
		for _, a := range l.attribs {
			gl.EnableVertexAttribArray(a.location)
			if a.integer {
				gl.VertexAttribIPointer(a.location, a.size, a.kind, l.stride, a.offset)
			} else {
				gl.VertexAttribPointer(a.location, a.size, a.kind, a.normalized, l.stride, a.offset)
			}
			divisor := uint32(0)
			if l.instance {
				divisor = 1
			}
			gl.VertexAttribDivisor(a.location, divisor)
		}
	}
}

func (r *Renderer) ownPipeline(pl gpuexec.Pipeline) (*pipeline, error) {
	p, ok := pl.(*pipeline)
	if !ok || p.r != r {
		return nil, fmt.Errorf("%w: pipeline %T", gpuexec.ErrForeignResource, pl)
	}
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: pipeline %q", gpuexec.ErrDestroyed, p.label)
	}
	return p, nil
}

func vertexLayouts(in []gputypes.VertexBufferLayout) ([]vertexLayout, error) {
	out := make([]vertexLayout, 0, len(in))
	for _, l := range in {
		vl := vertexLayout{
			stride:   int32(l.ArrayStride), //nolint:gosec // strides are small
			instance: l.StepMode == gputypes.VertexStepModeInstance,
		}
		for _, a := range l.Attributes {
			va, ok := glVertexFormat(a.Format)
			if !ok {
				return nil, fmt.Errorf("unsupported vertex format %v at location %d", a.Format, a.ShaderLocation)
			}
			va.location = a.ShaderLocation
			va.offset = int(a.Offset) //nolint:gosec // offsets are small
			vl.attribs = append(vl.attribs, va)
		}
		out = append(out, vl)
	}
	return out, nil
}

func glVertexFormat(f gputypes.VertexFormat) (vertexAttrib, bool) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return vertexAttrib{size: 1, kind: glFloat}, true
	case gputypes.VertexFormatFloat32x2:
		return vertexAttrib{size: 2, kind: glFloat}, true
	case gputypes.VertexFormatFloat32x3:
		return vertexAttrib{size: 3, kind: glFloat}, true
	case gputypes.VertexFormatFloat32x4:
		return vertexAttrib{size: 4, kind: glFloat}, true
	case gputypes.VertexFormatUint32:
		return vertexAttrib{size: 1, kind: glUnsignedInt, integer: true}, true
	case gputypes.VertexFormatUint32x2:
		return vertexAttrib{size: 2, kind: glUnsignedInt, integer: true}, true
	case gputypes.VertexFormatUint32x4:
		return vertexAttrib{size: 4, kind: glUnsignedInt, integer: true}, true
	case gputypes.VertexFormatSint32:
		return vertexAttrib{size: 1, kind: glInt, integer: true}, true
	case gputypes.VertexFormatUnorm8x4:
		return vertexAttrib{size: 4, kind: glUnsignedByte, normalized: true}, true
	case gputypes.VertexFormatUint8x4:
		return vertexAttrib{size: 4, kind: glUnsignedByte, integer: true}, true
	default:
		return vertexAttrib{}, false
	}
}

func glTopology(t gputypes.PrimitiveTopology) (uint32, error) {
	switch t {
	case gputypes.PrimitiveTopologyTriangleList:
		return glTriangles, nil
	case gputypes.PrimitiveTopologyTriangleStrip:
		return glTriangleStrip, nil
	case gputypes.PrimitiveTopologyLineList:
		return glLines, nil
	case gputypes.PrimitiveTopologyLineStrip:
		return glLineStrip, nil
	case gputypes.PrimitiveTopologyPointList:
		return glPoints, nil
	default:
		return 0, fmt.Errorf("unsupported topology %v", t)
	}
}

func glCullMode(c gpuexec.CullFace) uint32 {
	if c == gpuexec.CullFront {
		return glFront
	}
	return glBack
}

func glWinding(w gpuexec.Winding) uint32 {
	if w == gpuexec.WindingCW {
		return glCW
	}
	return glCCW
}

func glCompare(c gpuexec.CompareFunc) uint32 {
	switch c {
	case gpuexec.CompareLessEqual:
		return glLEqual
	case gpuexec.CompareGreater:
		return glGreater
	case gpuexec.CompareEqual:
		return glEqual
	case gpuexec.CompareAlways:
		return glAlways
	default:
		return glLess
	}
}

func glBlendFactor(f gputypes.BlendFactor) uint32 {
	switch f {
	case gputypes.BlendFactorZero:
		return glZero
	case gputypes.BlendFactorSrc:
		return glSrcColor
	case gputypes.BlendFactorOneMinusSrc:
		return glOneMinusSrcColor
	case gputypes.BlendFactorSrcAlpha:
		return glSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return glOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return glDstColor
	case gputypes.BlendFactorOneMinusDst:
		return glOneMinusDstColor
	case gputypes.BlendFactorDstAlpha:
		return glDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return glOneMinusDstAlpha
	default:
		return glOne
	}
}

func glBlendOp(op gputypes.BlendOperation) uint32 {
	switch op {
	case gputypes.BlendOperationSubtract:
		return glFuncSubtract
	case gputypes.BlendOperationReverseSubtract:
		return glFuncReverseSubtract
	case gputypes.BlendOperationMin:
		return glMin
	case gputypes.BlendOperationMax:
		return glMax
	default:
		return glFuncAdd
	}
}

// descriptorSet is a validated list of uniform buffer ranges.
type descriptorSet struct {
	r        *Renderer
	label    string
	pipeline *pipeline
	entries  []setEntry

	mu        sync.Mutex
	destroyed bool
}

type setEntry struct {
	binding uint32
	buf     *buffer
	offset  int
	size    int // 0 binds the rest of the buffer
}

var _ gpuexec.DescriptorSet = (*descriptorSet)(nil)

// NewDescriptorSet validates the bindings against desc.Pipeline. Buffers
// are bound by binding point at draw time.
func (r *Renderer) NewDescriptorSet(desc gpuexec.DescriptorSetDescriptor) (gpuexec.DescriptorSet, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if desc.Pipeline == nil {
		return nil, fmt.Errorf("%w: descriptor set %q has no pipeline", gpuexec.ErrInvalidDescriptor, desc.Label)
	}
	p, err := r.ownPipeline(desc.Pipeline)
	if err != nil {
		return nil, err
	}
	if len(p.bindings) == 0 {
		return nil, fmt.Errorf("%w: pipeline %q declares no bindings", gpuexec.ErrInvalidDescriptor, p.label)
	}

	set := &descriptorSet{r: r, label: desc.Label, pipeline: p}
	for _, bb := range desc.Buffers {
		if !p.declares(bb.Binding) {
			return nil, fmt.Errorf("%w: descriptor set %q binding %d not declared by pipeline %q",
				gpuexec.ErrInvalidDescriptor, desc.Label, bb.Binding, p.label)
		}
		if bb.Buffer == nil {
			return nil, fmt.Errorf("%w: descriptor set %q binding %d has no buffer", gpuexec.ErrInvalidDescriptor, desc.Label, bb.Binding)
		}
		b, err := r.ownBuffer(bb.Buffer)
		if err != nil {
			return nil, err
		}
		if b.usage != gpuexec.BufferUsageUniform {
			return nil, fmt.Errorf("%w: buffer %q bound to descriptor set %q is not a uniform buffer",
				gpuexec.ErrInvalidDescriptor, b.label, desc.Label)
		}
		if bb.Offset < 0 || bb.Size < 0 || bb.Offset >= b.Size() {
			return nil, fmt.Errorf("%w: descriptor set %q binding %d has an empty range", gpuexec.ErrInvalidDescriptor, desc.Label, bb.Binding)
		}
		set.entries = append(set.entries, setEntry{binding: bb.Binding, buf: b, offset: bb.Offset, size: bb.Size})
	}
	return set, nil
}

func (s *descriptorSet) Backend() gpuexec.BackendKind { return gpuexec.BackendImmediate }
func (s *descriptorSet) Label() string                { return s.label }

// Destroy marks the set unusable. It owns no GL objects.
func (s *descriptorSet) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// bind attaches every entry to its uniform binding point. Runs on the GL
// goroutine.
func (s *descriptorSet) bind(gl GL) {
	for _, e := range s.entries {
		if e.size == 0 && e.offset == 0 {
			gl.BindBufferBase(glUniformBuffer, e.binding, e.buf.name)
			continue
		}
		size := e.size
		if size == 0 {
			size = e.buf.capacity - e.offset
		}
		gl.BindBufferRange(glUniformBuffer, e.binding, e.buf.name, e.offset, size)
	}
}

func (r *Renderer) ownDescriptorSet(ds gpuexec.DescriptorSet) (*descriptorSet, error) {
	s, ok := ds.(*descriptorSet)
	if !ok || s.r != r {
		return nil, fmt.Errorf("%w: descriptor set %T", gpuexec.ErrForeignResource, ds)
	}
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: descriptor set %q", gpuexec.ErrDestroyed, s.label)
	}
	return s, nil
}
