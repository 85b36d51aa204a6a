package wgpu

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var errWriteRejected = errors.New("write rejected")

// testDevice wraps a noop device and counts destructions.
type testDevice struct {
	hal.Device

	mu                sync.Mutex
	destroyedBuffers  int
	destroyedTextures int
	destroyedGroups   int
}

func (d *testDevice) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	d.destroyedBuffers++
	d.mu.Unlock()
	d.Device.DestroyBuffer(b)
}

func (d *testDevice) DestroyTexture(t hal.Texture) {
	d.mu.Lock()
	d.destroyedTextures++
	d.mu.Unlock()
	d.Device.DestroyTexture(t)
}

func (d *testDevice) DestroyBindGroup(g hal.BindGroup) {
	d.mu.Lock()
	d.destroyedGroups++
	d.mu.Unlock()
	d.Device.DestroyBindGroup(g)
}

func (d *testDevice) counts() (buffers, textures, groups int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyedBuffers, d.destroyedTextures, d.destroyedGroups
}

// testQueue wraps a noop queue. Submissions complete immediately unless
// the GPU is held, and buffer writes can be made to fail.
type testQueue struct {
	hal.Queue

	mu        sync.Mutex
	hold      bool
	rejectAll bool
	submits   int
	submitted uint64
	completed uint64
}

func (q *testQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	index, err := q.Queue.Submit(cmds)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submits++
	q.submitted = index
	if !q.hold {
		q.completed = index
	}
	return index, nil
}

func (q *testQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

func (q *testQueue) WriteBuffer(b hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	reject := q.rejectAll
	q.mu.Unlock()
	if reject {
		return errWriteRejected
	}
	return q.Queue.WriteBuffer(b, offset, data)
}

// setHold stops or resumes completion. Resuming completes every
// submission made while held.
func (q *testQueue) setHold(hold bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hold = hold
	if !hold {
		q.completed = q.submitted
	}
}

func (q *testQueue) rejectWrites(reject bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rejectAll = reject
}

func (q *testQueue) submitCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}

// testContext is a gpuexec.Context over a capability handle.
type testContext struct {
	handle any
	valid  bool

	mu     sync.Mutex
	width  int
	height int
	resize func(w, h int)
}

func (c *testContext) IsValid() bool { return c.valid }

func (c *testContext) CapabilityHandle(kind gpuexec.BackendKind) any {
	if kind != gpuexec.BackendExplicit {
		return nil
	}
	return c.handle
}

func (c *testContext) FramebufferSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *testContext) OnSurfaceResize(fn func(w, h int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resize = fn
}

func (c *testContext) fireResize(w, h int) {
	c.mu.Lock()
	c.width, c.height = w, h
	fn := c.resize
	c.mu.Unlock()
	if fn != nil {
		fn(w, h)
	}
}

type testPresenter struct {
	mu       sync.Mutex
	presents int
	width    int
	height   int
}

func (p *testPresenter) Present(tex hal.Texture, w, h int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presents++
	p.width, p.height = w, h
	return nil
}

// testRig bundles a renderer with its fake device.
type testRig struct {
	r       *Renderer
	ctx     *testContext
	device  *testDevice
	queue   *testQueue
	present *testPresenter
}

// newTestRig opens a noop device and creates an initialized renderer.
func newTestRig(t *testing.T, opts ...gpuexec.Option) *testRig {
	t.Helper()
	rig := newUninitializedRig(t, opts...)
	if err := rig.r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = rig.r.Close() })
	return rig
}

func newUninitializedRig(t *testing.T, opts ...gpuexec.Option) *testRig {
	t.Helper()
	dh, err := OpenNoopDevice()
	if err != nil {
		t.Fatalf("OpenNoopDevice() error = %v", err)
	}
	t.Cleanup(dh.Release)

	device := &testDevice{Device: dh.HalDevice().(hal.Device)}
	queue := &testQueue{Queue: dh.HalQueue().(hal.Queue)}
	present := &testPresenter{}
	handle := NewDeviceHandle(device, queue, gputypes.TextureFormatBGRA8Unorm).WithPresenter(present)
	ctx := &testContext{handle: handle, valid: true, width: 64, height: 32}

	r, err := New(ctx, gpuexec.NewConfig(opts...))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testRig{r: r, ctx: ctx, device: device, queue: queue, present: present}
}

// minimalSPIRV returns a SPIR-V header without instructions.
func minimalSPIRV() []byte {
	words := []uint32{spirvMagic, 0x00010000, 0, 1, 0}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// newTestPipeline creates a pipeline with the given push constant layout
// and bindings.
func newTestPipeline(t *testing.T, r *Renderer, push gpuexec.PushConstantLayout, bindings ...gpuexec.BindingLayout) gpuexec.Pipeline {
	t.Helper()
	vs, err := r.NewShader(gpuexec.ShaderDescriptor{
		Label: "vs", Stage: gpuexec.ShaderStageVertex, Language: gpuexec.ShaderLanguageSPIRV, Code: minimalSPIRV(),
	})
	if err != nil {
		t.Fatalf("NewShader(vs) error = %v", err)
	}
	fs, err := r.NewShader(gpuexec.ShaderDescriptor{
		Label: "fs", Stage: gpuexec.ShaderStageFragment, Language: gpuexec.ShaderLanguageSPIRV, Code: minimalSPIRV(),
	})
	if err != nil {
		t.Fatalf("NewShader(fs) error = %v", err)
	}
	p, err := r.NewPipeline(gpuexec.PipelineDescriptor{
		Label:         "test",
		Vertex:        vs,
		Fragment:      fs,
		Bindings:      bindings,
		PushConstants: push,
		DepthFormat:   mainDepthFormat,
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func newTestBuffer(t *testing.T, r *Renderer, usage gpuexec.BufferUsage, size int) gpuexec.Buffer {
	t.Helper()
	b, err := r.NewBuffer(gpuexec.BufferDescriptor{Label: "buf", Usage: usage, Size: size, IndexWidth: gpuexec.Index16})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}
