package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Push constants are emulated with a per-draw uniform buffer bound at the
// group after the descriptor set group.
const (
	pushBindingVertex   = 0
	pushBindingFragment = 1

	// pushOffsetAlign aligns the fragment constants in the per-draw buffer
	// to the default minUniformBufferOffsetAlignment.
	pushOffsetAlign = 256

	uniformAlign = 16
)

type pipeline struct {
	r     *Renderer
	label string

	bindings  []gpuexec.BindingLayout
	push      gpuexec.PushConstantLayout
	setGroup  int // -1 without descriptor set bindings
	pushGroup int // -1 without push constants

	mu         sync.Mutex
	handle     hal.RenderPipeline
	layout     hal.PipelineLayout
	setLayout  hal.BindGroupLayout
	pushLayout hal.BindGroupLayout
	destroyed  bool
}

var _ gpuexec.Pipeline = (*pipeline)(nil)

// NewPipeline creates a render pipeline. CullDefault and the depth state
// come from the InitOptions passed to Initialize.
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
	vsModule, err := vs.handle()
	if err != nil {
		return nil, err
	}
	fsModule, err := fs.handle()
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		r:         r,
		label:     desc.Label,
		bindings:  append([]gpuexec.BindingLayout(nil), desc.Bindings...),
		push:      desc.PushConstants,
		setGroup:  -1,
		pushGroup: -1,
	}
	if err := p.createLayouts(); err != nil {
		return nil, err
	}

	colorFormat := desc.ColorFormat
	if colorFormat == gputypes.TextureFormatUndefined {
		colorFormat = r.format
	}
	topology := desc.Topology
	if topology == 0 {
		topology = gputypes.PrimitiveTopologyTriangleList
	}

	pd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vsModule,
			EntryPoint: vs.entry,
			Buffers:    desc.VertexLayouts,
		},
		Fragment: &hal.FragmentState{
			Module:     fsModule,
			EntryPoint: fs.entry,
			Targets: []gputypes.ColorTargetState{{
				Format:    colorFormat,
				Blend:     desc.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  topology,
			CullMode:  cullMode(r.opts.ResolveCull(desc.Cull)),
			FrontFace: frontFace(r.opts.Culling.FrontFace),
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		pd.DepthStencil = depthState(desc.DepthFormat, r.opts.Depth)
	}

	handle, err := r.device.CreateRenderPipeline(pd)
	if err != nil {
		p.destroyLayouts()
		return nil, fmt.Errorf("wgpu: create render pipeline %q: %w", desc.Label, err)
	}
	p.handle = handle
	return p, nil
}

func (p *pipeline) createLayouts() error {
	device := p.r.device
	var groups []hal.BindGroupLayout
	if len(p.bindings) > 0 {
		entries := make([]gputypes.BindGroupLayoutEntry, 0, len(p.bindings))
		for _, b := range p.bindings {
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    b.Binding,
				Visibility: shaderStages(b.Stages),
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			})
		}
		layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   p.label + "_set_layout",
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("wgpu: create bind group layout %q: %w", p.label, err)
		}
		p.setLayout = layout
		p.setGroup = len(groups)
		groups = append(groups, layout)
	}

	if p.push.VertexSize > 0 || p.push.FragmentSize > 0 {
		var entries []gputypes.BindGroupLayoutEntry
		if p.push.VertexSize > 0 {
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    pushBindingVertex,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			})
		}
		if p.push.FragmentSize > 0 {
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    pushBindingFragment,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			})
		}
		layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   p.label + "_push_layout",
			Entries: entries,
		})
		if err != nil {
			p.destroyLayouts()
			return fmt.Errorf("wgpu: create push constant layout %q: %w", p.label, err)
		}
		p.pushLayout = layout
		p.pushGroup = len(groups)
		groups = append(groups, layout)
	}

	layout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label + "_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		p.destroyLayouts()
		return fmt.Errorf("wgpu: create pipeline layout %q: %w", p.label, err)
	}
	p.layout = layout
	return nil
}

// destroyLayouts releases layouts immediately. Only used before the
// pipeline was handed out.
func (p *pipeline) destroyLayouts() {
	device := p.r.device
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.pushLayout != nil {
		device.DestroyBindGroupLayout(p.pushLayout)
		p.pushLayout = nil
	}
	if p.setLayout != nil {
		device.DestroyBindGroupLayout(p.setLayout)
		p.setLayout = nil
	}
}

func (p *pipeline) Backend() gpuexec.BackendKind { return gpuexec.BackendExplicit }
func (p *pipeline) Label() string                { return p.label }

// current returns the pipeline and its push constant layout from the same
// critical section, or ErrDestroyed. The layout is nil without push
// constants.
func (p *pipeline) current() (hal.RenderPipeline, hal.BindGroupLayout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return nil, nil, fmt.Errorf("%w: pipeline %q", gpuexec.ErrDestroyed, p.label)
	}
	return p.handle, p.pushLayout, nil
}

// Destroy defers releasing the pipeline and its layouts.
func (p *pipeline) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	handle, layout, setLayout, pushLayout := p.handle, p.layout, p.setLayout, p.pushLayout
	p.handle, p.layout, p.setLayout, p.pushLayout = nil, nil, nil, nil
	p.mu.Unlock()

	device := p.r.device
	p.r.destroyLater("pipeline "+p.label, func() {
		device.DestroyRenderPipeline(handle)
		device.DestroyPipelineLayout(layout)
		if pushLayout != nil {
			device.DestroyBindGroupLayout(pushLayout)
		}
		if setLayout != nil {
			device.DestroyBindGroupLayout(setLayout)
		}
	})
}

func (r *Renderer) ownPipeline(pl gpuexec.Pipeline) (*pipeline, error) {
	p, ok := pl.(*pipeline)
	if !ok || p.r != r {
		return nil, fmt.Errorf("%w: pipeline %q", gpuexec.ErrForeignResource, pl.Label())
	}
	return p, nil
}

func shaderStages(s gpuexec.ShaderStage) gputypes.ShaderStage {
	var out gputypes.ShaderStage
	if s&gpuexec.ShaderStageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&gpuexec.ShaderStageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if out == 0 {
		out = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	}
	return out
}

func cullMode(c gpuexec.CullFace) gputypes.CullMode {
	switch c {
	case gpuexec.CullBack:
		return gputypes.CullModeBack
	case gpuexec.CullFront:
		return gputypes.CullModeFront
	default:
		return gputypes.CullModeNone
	}
}

func frontFace(w gpuexec.Winding) gputypes.FrontFace {
	if w == gpuexec.WindingCW {
		return gputypes.FrontFaceCW
	}
	return gputypes.FrontFaceCCW
}

func compareFunction(c gpuexec.CompareFunc) gputypes.CompareFunction {
	switch c {
	case gpuexec.CompareLessEqual:
		return gputypes.CompareFunctionLessEqual
	case gpuexec.CompareGreater:
		return gputypes.CompareFunctionGreater
	case gpuexec.CompareEqual:
		return gputypes.CompareFunctionEqual
	case gpuexec.CompareAlways:
		return gputypes.CompareFunctionAlways
	default:
		return gputypes.CompareFunctionLess
	}
}

func depthState(format gputypes.TextureFormat, d gpuexec.DepthOptions) *hal.DepthStencilState {
	compare := gputypes.CompareFunctionAlways
	if d.TestEnabled {
		compare = compareFunction(d.Compare)
	}
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: d.WriteEnabled,
		DepthCompare:      compare,
		StencilFront:      keep,
		StencilBack:       keep,
		StencilReadMask:   0xFF,
		StencilWriteMask:  0xFF,
	}
}

// descriptorSet is a bind group for the descriptor set group of a pipeline.
type descriptorSet struct {
	r        *Renderer
	label    string
	pipeline *pipeline

	mu        sync.Mutex
	group     hal.BindGroup
	destroyed bool
}

var _ gpuexec.DescriptorSet = (*descriptorSet)(nil)

// NewDescriptorSet binds uniform buffers for desc.Pipeline. The set
// captures the buffers' current device handles.
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
	if p.setGroup < 0 {
		return nil, fmt.Errorf("%w: pipeline %q declares no bindings", gpuexec.ErrInvalidDescriptor, p.label)
	}

	p.mu.Lock()
	layout, destroyed := p.setLayout, p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: pipeline %q", gpuexec.ErrDestroyed, p.label)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Buffers))
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
		handle, err := b.current()
		if err != nil {
			return nil, err
		}
		size := bb.Size
		if size == 0 {
			size = b.Size() - bb.Offset
		}
		if bb.Offset < 0 || size <= 0 {
			return nil, fmt.Errorf("%w: descriptor set %q binding %d has an empty range", gpuexec.ErrInvalidDescriptor, desc.Label, bb.Binding)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: bb.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: handle.NativeHandle(),
				Offset: uint64(bb.Offset), //nolint:gosec // checked above
				Size:   uint64(size),      //nolint:gosec // checked above
			},
		})
	}

	group, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group %q: %w", desc.Label, err)
	}
	return &descriptorSet{r: r, label: desc.Label, pipeline: p, group: group}, nil
}

func (p *pipeline) declares(binding uint32) bool {
	for _, b := range p.bindings {
		if b.Binding == binding {
			return true
		}
	}
	return false
}

func (s *descriptorSet) Backend() gpuexec.BackendKind { return gpuexec.BackendExplicit }
func (s *descriptorSet) Label() string                { return s.label }

func (s *descriptorSet) current() (hal.BindGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, fmt.Errorf("%w: descriptor set %q", gpuexec.ErrDestroyed, s.label)
	}
	return s.group, nil
}

// Destroy defers releasing the bind group.
func (s *descriptorSet) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	group := s.group
	s.group = nil
	s.mu.Unlock()

	device := s.r.device
	s.r.destroyLater("descriptor set "+s.label, func() { device.DestroyBindGroup(group) })
}

func (r *Renderer) ownDescriptorSet(ds gpuexec.DescriptorSet) (*descriptorSet, error) {
	s, ok := ds.(*descriptorSet)
	if !ok || s.r != r {
		return nil, fmt.Errorf("%w: descriptor set %q", gpuexec.ErrForeignResource, ds.Label())
	}
	return s, nil
}
