package opengl

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gpuexec"
)

// fakeGL records calls and tracks live object names.
type fakeGL struct {
	mu         sync.Mutex
	next       uint32
	calls      []string
	live       map[uint32]string
	sources    map[uint32]string
	attached   map[uint32][]uint32
	incomplete bool
	inactive   map[string]bool
	lastData   map[uint32][]byte // by target
}

var _ GL = (*fakeGL)(nil)

func newFakeGL() *fakeGL {
	return &fakeGL{
		live:     make(map[uint32]string),
		sources:  make(map[uint32]string),
		attached: make(map[uint32][]uint32),
		inactive: make(map[string]bool),
		lastData: make(map[uint32][]byte),
	}
}

func (f *fakeGL) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGL) gen(kind string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.live[f.next] = kind
	f.record("Gen%s %d", kind, f.next)
	return f.next
}

func (f *fakeGL) del(kind string, name uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != 0 {
		delete(f.live, name)
	}
	f.record("Delete%s %d", kind, name)
}

func (f *fakeGL) call(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(format, args...)
}

// log returns a copy of the recorded calls.
func (f *fakeGL) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// has reports whether a call starting with prefix was recorded.
func (f *fakeGL) has(prefix string) bool {
	return f.index(prefix) >= 0
}

// index returns the position of the first call starting with prefix.
func (f *fakeGL) index(prefix string) int {
	for i, c := range f.log() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (f *fakeGL) count(prefix string) int {
	n := 0
	for _, c := range f.log() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// liveCount returns the number of live objects of kind.
func (f *fakeGL) liveCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.live {
		if k == kind {
			n++
		}
	}
	return n
}

func (f *fakeGL) GenBuffer() uint32      { return f.gen("Buffer") }
func (f *fakeGL) DeleteBuffer(b uint32)  { f.del("Buffer", b) }
func (f *fakeGL) BindBuffer(t, b uint32) { f.call("BindBuffer 0x%X %d", t, b) }

func (f *fakeGL) BufferSubData(t uint32, offset int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastData[t] = slices.Clone(data)
	f.record("BufferSubData 0x%X %d %d", t, offset, len(data))
}

func (f *fakeGL) BufferData(t uint32, size int, data []byte, usage uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data != nil {
		f.lastData[t] = slices.Clone(data)
	}
	f.record("BufferData 0x%X %d", t, size)
}

// uploaded returns the last bytes written through target.
func (f *fakeGL) uploaded(target uint32) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastData[target]
}

func (f *fakeGL) CopyBufferSubData(rt, wt uint32, ro, wo, size int) {
	f.call("CopyBufferSubData %d %d %d", ro, wo, size)
}

func (f *fakeGL) BindBufferBase(t, index, b uint32) {
	f.call("BindBufferBase 0x%X %d %d", t, index, b)
}

func (f *fakeGL) BindBufferRange(t, index, b uint32, offset, size int) {
	f.call("BindBufferRange 0x%X %d %d %d %d", t, index, b, offset, size)
}

func (f *fakeGL) CreateShader(kind uint32) uint32 { return f.gen("Shader") }
func (f *fakeGL) DeleteShader(s uint32)           { f.del("Shader", s) }
func (f *fakeGL) CompileShader(s uint32)          { f.call("CompileShader %d", s) }

func (f *fakeGL) ShaderSource(s uint32, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[s] = source
	f.record("ShaderSource %d", s)
}

func (f *fakeGL) ShaderStatus(s uint32) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(f.sources[s], "#error") {
		return false, "0:1: error: forced failure\n"
	}
	return true, ""
}

func (f *fakeGL) CreateProgram() uint32  { return f.gen("Program") }
func (f *fakeGL) DeleteProgram(p uint32) { f.del("Program", p) }
func (f *fakeGL) LinkProgram(p uint32)   { f.call("LinkProgram %d", p) }
func (f *fakeGL) UseProgram(p uint32)    { f.call("UseProgram %d", p) }

func (f *fakeGL) AttachShader(p, s uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[p] = append(f.attached[p], s)
	f.record("AttachShader %d %d", p, s)
}

func (f *fakeGL) ProgramStatus(p uint32) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.attached[p] {
		if f.live[s] != "Shader" {
			return false, "link error: shader not compiled"
		}
	}
	return true, ""
}

func (f *fakeGL) GetUniformBlockIndex(p uint32, name string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inactive[name] {
		return glInvalidIndex
	}
	return uint32(len(name))
}

func (f *fakeGL) UniformBlockBinding(p, block, binding uint32) {
	f.call("UniformBlockBinding %d %d %d", p, block, binding)
}

func (f *fakeGL) GenVertexArray() uint32           { return f.gen("VertexArray") }
func (f *fakeGL) DeleteVertexArray(v uint32)       { f.del("VertexArray", v) }
func (f *fakeGL) BindVertexArray(v uint32)         { f.call("BindVertexArray %d", v) }
func (f *fakeGL) EnableVertexAttribArray(i uint32) { f.call("EnableVertexAttribArray %d", i) }
func (f *fakeGL) VertexAttribDivisor(i, d uint32)  { f.call("VertexAttribDivisor %d %d", i, d) }

func (f *fakeGL) VertexAttribPointer(i uint32, size int32, kind uint32, norm bool, stride int32, offset int) {
	f.call("VertexAttribPointer %d %d 0x%X %v %d %d", i, size, kind, norm, stride, offset)
}

func (f *fakeGL) VertexAttribIPointer(i uint32, size int32, kind uint32, stride int32, offset int) {
	f.call("VertexAttribIPointer %d %d 0x%X %d %d", i, size, kind, stride, offset)
}

func (f *fakeGL) GenFramebuffer() uint32     { return f.gen("Framebuffer") }
func (f *fakeGL) DeleteFramebuffer(b uint32) { f.del("Framebuffer", b) }
func (f *fakeGL) BindFramebuffer(t, b uint32) {
	f.call("BindFramebuffer %d", b)
}

func (f *fakeGL) FramebufferRenderbuffer(t, attachment, rbt, rb uint32) {
	f.call("FramebufferRenderbuffer 0x%X %d", attachment, rb)
}

func (f *fakeGL) CheckFramebufferStatus(t uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incomplete {
		return 0x8CD6
	}
	return glFramebufferComplete
}

func (f *fakeGL) DrawBuffers(b []uint32) { f.call("DrawBuffers %d", len(b)) }

func (f *fakeGL) GenRenderbuffer() uint32      { return f.gen("Renderbuffer") }
func (f *fakeGL) DeleteRenderbuffer(b uint32)  { f.del("Renderbuffer", b) }
func (f *fakeGL) BindRenderbuffer(t, b uint32) { f.call("BindRenderbuffer %d", b) }

func (f *fakeGL) RenderbufferStorage(t, format uint32, w, h int32) {
	f.call("RenderbufferStorage 0x%X %d %d", format, w, h)
}

func (f *fakeGL) Viewport(x, y, w, h int32)     { f.call("Viewport %d %d", w, h) }
func (f *fakeGL) ClearColor(r, g, b, a float32) { f.call("ClearColor %g %g %g %g", r, g, b, a) }
func (f *fakeGL) ClearDepth(d float64)          { f.call("ClearDepth %g", d) }
func (f *fakeGL) ClearStencil(s int32)          { f.call("ClearStencil %d", s) }
func (f *fakeGL) Clear(mask uint32)             { f.call("Clear 0x%X", mask) }

func (f *fakeGL) Enable(c uint32)           { f.call("Enable 0x%X", c) }
func (f *fakeGL) Disable(c uint32)          { f.call("Disable 0x%X", c) }
func (f *fakeGL) CullFace(m uint32)         { f.call("CullFace 0x%X", m) }
func (f *fakeGL) FrontFace(m uint32)        { f.call("FrontFace 0x%X", m) }
func (f *fakeGL) DepthFunc(fn uint32)       { f.call("DepthFunc 0x%X", fn) }
func (f *fakeGL) DepthMask(w bool)          { f.call("DepthMask %v", w) }
func (f *fakeGL) DepthRange(n, far float64) { f.call("DepthRange %g %g", n, far) }

func (f *fakeGL) BlendFuncSeparate(sc, dc, sa, da uint32) {
	f.call("BlendFuncSeparate 0x%X 0x%X 0x%X 0x%X", sc, dc, sa, da)
}

func (f *fakeGL) BlendEquationSeparate(c, a uint32) {
	f.call("BlendEquationSeparate 0x%X 0x%X", c, a)
}

func (f *fakeGL) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	f.call("DrawArraysInstanced 0x%X %d %d %d", mode, first, count, instances)
}

func (f *fakeGL) DrawElementsInstanced(mode uint32, count int32, kind uint32, offset int, instances int32) {
	f.call("DrawElementsInstanced 0x%X %d 0x%X %d %d", mode, count, kind, offset, instances)
}

func (f *fakeGL) Finish() { f.call("Finish") }

// fakeGLContext is a GL capability handle with its own function table.
type fakeGLContext struct {
	gl         *fakeGL
	currentErr error
	swapErr    error
	current    atomic.Int32
	swaps      atomic.Int32
}

func (c *fakeGLContext) MakeCurrent() error {
	if c.currentErr != nil {
		return c.currentErr
	}
	c.current.Add(1)
	return nil
}

func (c *fakeGLContext) SwapBuffers() error {
	if c.swapErr != nil {
		return c.swapErr
	}
	c.swaps.Add(1)
	c.gl.call("SwapBuffers")
	return nil
}

func (c *fakeGLContext) FunctionTable() GL { return c.gl }

// loaderGLContext has no function table and needs the registered loader.
type loaderGLContext struct {
	swaps atomic.Int32
}

func (c *loaderGLContext) MakeCurrent() error { return nil }

func (c *loaderGLContext) SwapBuffers() error {
	c.swaps.Add(1)
	return nil
}

// testContext is a gpuexec.Context serving the immediate backend.
type testContext struct {
	handle any
	valid  bool

	mu     sync.Mutex
	width  int
	height int
	resize func(int, int)
}

func (c *testContext) IsValid() bool { return c.valid }

func (c *testContext) CapabilityHandle(kind gpuexec.BackendKind) any {
	if kind != gpuexec.BackendImmediate {
		return nil
	}
	return c.handle
}

func (c *testContext) FramebufferSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *testContext) OnSurfaceResize(fn func(int, int)) {
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

type testRig struct {
	r     *Renderer
	gl    *fakeGL
	glctx *fakeGLContext
	ctx   *testContext
}

func newUninitializedRig(t *testing.T) *testRig {
	t.Helper()
	gl := newFakeGL()
	glctx := &fakeGLContext{gl: gl}
	ctx := &testContext{handle: glctx, valid: true, width: 64, height: 32}
	r, err := New(ctx, gpuexec.DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return &testRig{r: r, gl: gl, glctx: glctx, ctx: ctx}
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := newUninitializedRig(t)
	if err := rig.r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return rig
}

// sync waits until every operation submitted so far has run.
func (rig *testRig) sync(t *testing.T) {
	t.Helper()
	if err := rig.r.sched.Do(func() error { return nil }); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

const (
	testVertexGLSL   = "#version 330 core\nvoid main() { gl_Position = vec4(0.0); }\n"
	testFragmentGLSL = "#version 330 core\nout vec4 c;\nvoid main() { c = vec4(1.0); }\n"
)

func newTestShaders(t *testing.T, r *Renderer) (gpuexec.Shader, gpuexec.Shader) {
	t.Helper()
	vs, err := r.NewShader(gpuexec.ShaderDescriptor{
		Label: "vs", Stage: gpuexec.ShaderStageVertex,
		Language: gpuexec.ShaderLanguageGLSL, Code: []byte(testVertexGLSL),
	})
	if err != nil {
		t.Fatalf("NewShader(vertex) error = %v", err)
	}
	fs, err := r.NewShader(gpuexec.ShaderDescriptor{
		Label: "fs", Stage: gpuexec.ShaderStageFragment,
		Language: gpuexec.ShaderLanguageGLSL, Code: []byte(testFragmentGLSL),
	})
	if err != nil {
		t.Fatalf("NewShader(fragment) error = %v", err)
	}
	return vs, fs
}

func newTestPipeline(t *testing.T, r *Renderer, push gpuexec.PushConstantLayout, bindings ...gpuexec.BindingLayout) gpuexec.Pipeline {
	t.Helper()
	vs, fs := newTestShaders(t, r)
	p, err := r.NewPipeline(gpuexec.PipelineDescriptor{
		Label:         "test",
		Vertex:        vs,
		Fragment:      fs,
		Bindings:      bindings,
		PushConstants: push,
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func newTestBuffer(t *testing.T, r *Renderer, usage gpuexec.BufferUsage, size int) gpuexec.Buffer {
	t.Helper()
	desc := gpuexec.BufferDescriptor{Label: "test", Usage: usage, Size: size}
	if usage == gpuexec.BufferUsageIndex {
		desc.IndexWidth = gpuexec.Index16
	}
	b, err := r.NewBuffer(desc)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}

var errTest = errors.New("test failure")
