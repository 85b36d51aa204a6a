package opengl

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gpuexec"
)

func TestNewRejectsContexts(t *testing.T) {
	tests := []struct {
		name string
		ctx  gpuexec.Context
		want error
	}{
		{"nil", nil, gpuexec.ErrInvalidContext},
		{"invalid", &testContext{valid: false, handle: &fakeGLContext{gl: newFakeGL()}}, gpuexec.ErrInvalidContext},
		{"no handle", &testContext{valid: true}, gpuexec.ErrCapabilityAbsent},
		{"wrong handle", &testContext{valid: true, handle: "not a context"}, gpuexec.ErrCapabilityAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.ctx, gpuexec.DefaultConfig())
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
			if r != nil {
				t.Error("New() returned a renderer on error")
			}
		})
	}
}

func TestFactoriesBeforeInitialize(t *testing.T) {
	rig := newUninitializedRig(t)
	if _, err := rig.r.NewBuffer(gpuexec.BufferDescriptor{Usage: gpuexec.BufferUsageVertex, Size: 4}); !errors.Is(err, gpuexec.ErrNotInitialized) {
		t.Errorf("NewBuffer() error = %v, want ErrNotInitialized", err)
	}
	if err := rig.r.Submit(); !errors.Is(err, gpuexec.ErrNotInitialized) {
		t.Errorf("Submit() error = %v, want ErrNotInitialized", err)
	}
	if rig.r.MainFramebuffer() != nil {
		t.Error("MainFramebuffer() before Initialize should be nil")
	}
	if len(rig.gl.log()) != 0 {
		t.Errorf("GL called before Initialize: %v", rig.gl.log())
	}
}

func TestInitializeAppliesOptions(t *testing.T) {
	rig := newUninitializedRig(t)
	opts := gpuexec.DefaultInitOptions()
	opts.Culling.FrontFace = gpuexec.WindingCW
	opts.Depth.Compare = gpuexec.CompareLessEqual
	if err := rig.r.Initialize(opts); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := rig.glctx.current.Load(); got != 1 {
		t.Errorf("MakeCurrent calls = %d, want 1", got)
	}
	for _, want := range []string{"Enable 0xB44", "CullFace 0x405", "FrontFace 0x900", "Enable 0xB71", "DepthFunc 0x203", "DepthMask true", "DepthRange 0 1"} {
		if !rig.gl.has(want) {
			t.Errorf("missing %q in %v", want, rig.gl.log())
		}
	}
	if err := rig.r.Initialize(opts); !errors.Is(err, gpuexec.ErrAlreadyInitialized) {
		t.Errorf("second Initialize() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestInitializeMakeCurrentFailure(t *testing.T) {
	rig := newUninitializedRig(t)
	rig.glctx.currentErr = errTest
	err := rig.r.Initialize(gpuexec.DefaultInitOptions())
	if !errors.Is(err, errTest) {
		t.Fatalf("Initialize() error = %v, want %v", err, errTest)
	}
	if _, err := rig.r.NewBuffer(gpuexec.BufferDescriptor{Usage: gpuexec.BufferUsageVertex, Size: 4}); !errors.Is(err, gpuexec.ErrClosed) {
		t.Errorf("NewBuffer() after failed Initialize error = %v, want ErrClosed", err)
	}
}

func TestOperationsRunInSubmissionOrder(t *testing.T) {
	rig := newTestRig(t)
	b := newTestBuffer(t, rig.r, gpuexec.BufferUsageVertex, 16)
	if err := b.Write(0, make([]byte, 8)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	b.Destroy()
	rig.sync(t)

	gen := rig.gl.index("GenBuffer")
	sub := rig.gl.index("BufferSubData")
	del := rig.gl.index("DeleteBuffer")
	if gen < 0 || sub < 0 || del < 0 || gen >= sub || sub >= del {
		t.Fatalf("order gen=%d sub=%d del=%d in %v", gen, sub, del, rig.gl.log())
	}
	if n := rig.gl.liveCount("Buffer"); n != 0 {
		t.Errorf("live buffers = %d, want 0", n)
	}
}

func TestDestroyAfterSubmitRunsAfterFrame(t *testing.T) {
	rig := newTestRig(t)
	p := newTestPipeline(t, rig.r, gpuexec.PushConstantLayout{})
	vb := newTestBuffer(t, rig.r, gpuexec.BufferUsageVertex, 64)

	var cb gpuexec.CommandBuffer
	cb.BeginPass(gpuexec.RenderPassDescriptor{}, nil, gpuexec.ColorClear(0, 0, 0, 1))
	if err := cb.Draw(gpuexec.DrawInfo{Pipeline: p, VertexBuffers: []gpuexec.Buffer{vb}, Range: gpuexec.IndexRange{Count: 3}}); err != nil {
		t.Fatal(err)
	}
	if err := rig.r.Submit(cb.Passes()...); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	vb.Destroy()
	p.Destroy()
	rig.sync(t)

	draw := rig.gl.index("DrawArraysInstanced")
	if draw < 0 {
		t.Fatalf("no draw in %v", rig.gl.log())
	}
	if del := rig.gl.index("DeleteBuffer"); del < draw {
		t.Errorf("buffer deleted at %d before draw at %d", del, draw)
	}
	if del := rig.gl.index("DeleteProgram"); del < draw {
		t.Errorf("program deleted at %d before draw at %d", del, draw)
	}
}

func TestSubmitCopiesCommandBuffer(t *testing.T) {
	rig := newTestRig(t)
	p := newTestPipeline(t, rig.r, gpuexec.PushConstantLayout{VertexSize: 16})

	// Hold the GL goroutine so the frame is still queued when the
	// command buffer is reused.
	release := make(chan struct{})
	started := make(chan struct{})
	if err := rig.r.enqueue(func() { close(started); <-release }); err != nil {
		t.Fatal(err)
	}
	<-started

	consts := make([]byte, 16)
	consts[0] = 7
	var cb gpuexec.CommandBuffer
	cb.BeginPass(gpuexec.RenderPassDescriptor{}, nil)
	if err := cb.Draw(gpuexec.DrawInfo{Pipeline: p, Range: gpuexec.IndexRange{Count: 3}, VertexPushConstants: consts}); err != nil {
		t.Fatal(err)
	}
	if err := rig.r.Submit(cb.Passes()...); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	cb.Reset()
	consts[0] = 9
	close(release)
	rig.sync(t)

	if !rig.gl.has("BufferData 0x8A11 16") {
		t.Errorf("push constants not uploaded: %v", rig.gl.log())
	}
	if got := rig.gl.uploaded(glUniformBuffer); len(got) != 16 || got[0] != 7 {
		t.Errorf("uploaded push constants = %v, want the bytes at Submit time", got)
	}
	if !rig.gl.has("BindBufferRange 0x8A11 14") {
		t.Errorf("vertex push constants not bound at 14: %v", rig.gl.log())
	}
	if !rig.gl.has("DrawArraysInstanced 0x4 0 3 1") {
		t.Errorf("draw missing: %v", rig.gl.log())
	}
}

func TestSubmitClearsOnLoadAction(t *testing.T) {
	rig := newTestRig(t)
	err := rig.r.Submit(
		gpuexec.PassSubmission{Pass: gpuexec.RenderPassDescriptor{}, ClearValues: []gpuexec.ClearValue{gpuexec.ColorClear(1, 0, 0, 1)}},
		gpuexec.PassSubmission{Pass: gpuexec.RenderPassDescriptor{ColorLoad: gpuexec.LoadActionLoad, DepthLoad: gpuexec.LoadActionLoad}},
	)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	rig.sync(t)
	if got := rig.gl.count("Clear 0x"); got != 1 {
		t.Errorf("Clear calls = %d, want 1: %v", got, rig.gl.log())
	}
	if !rig.gl.has("ClearColor 1 0 0 1") {
		t.Errorf("clear color missing: %v", rig.gl.log())
	}
	if !rig.gl.has("Viewport 64 32") {
		t.Errorf("viewport not sized from surface: %v", rig.gl.log())
	}
}

func TestPresentWaitsForSwap(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if got := rig.glctx.swaps.Load(); got != 1 {
		t.Errorf("swaps after Present = %d, want 1", got)
	}
	rig.glctx.swapErr = errTest
	if err := rig.r.Present(); !errors.Is(err, errTest) {
		t.Errorf("Present() error = %v, want %v", err, errTest)
	}
}

func TestResizeUpdatesMainFramebuffer(t *testing.T) {
	rig := newTestRig(t)
	rig.ctx.fireResize(200, 100)
	w, h := rig.r.MainFramebuffer().Size()
	if w != 200 || h != 100 {
		t.Errorf("main framebuffer = %dx%d, want 200x100", w, h)
	}
	if err := rig.r.Submit(gpuexec.PassSubmission{}); err != nil {
		t.Fatal(err)
	}
	rig.sync(t)
	if !rig.gl.has("Viewport 200 100") {
		t.Errorf("viewport not resized: %v", rig.gl.log())
	}
}

func TestCloseDrainsAndReleases(t *testing.T) {
	rig := newTestRig(t)
	b := newTestBuffer(t, rig.r, gpuexec.BufferUsageVertex, 16)
	for range 10 {
		if err := b.Write(0, make([]byte, 16)); err != nil {
			t.Fatal(err)
		}
	}
	b.Destroy()
	if err := rig.r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := rig.gl.count("BufferSubData"); got != 10 {
		t.Errorf("uploads run = %d, want 10", got)
	}
	if !rig.gl.has("Finish") {
		t.Error("Close did not finish the context")
	}
	if n := rig.gl.liveCount("Buffer"); n != 0 {
		t.Errorf("live buffers after Close = %d", n)
	}
	if err := rig.r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := rig.r.Submit(); !errors.Is(err, gpuexec.ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
	if err := b.Write(0, []byte{1}); !errors.Is(err, gpuexec.ErrDestroyed) {
		t.Errorf("Write() after Destroy error = %v, want ErrDestroyed", err)
	}
}

func TestConcurrentWriters(t *testing.T) {
	rig := newTestRig(t)
	b := newTestBuffer(t, rig.r, gpuexec.BufferUsageVertex, 16)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				if err := b.Write((i*50+j)*4, []byte{1, 2, 3, 4}); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	rig.sync(t)

	if got := rig.gl.count("BufferSubData"); got != 400 {
		t.Errorf("uploads = %d, want 400", got)
	}
	if got := b.Size(); got != 1600 {
		t.Errorf("Size() = %d, want 1600", got)
	}
	stats := rig.r.Stats()
	if stats.Uploads.CheckedOut != 0 {
		t.Errorf("upload ops still checked out: %d", stats.Uploads.CheckedOut)
	}
}

func TestLoaderSingleOwner(t *testing.T) {
	fake := newFakeGL()
	RegisterLoader(func() (GL, error) { return fake, nil })
	t.Cleanup(func() { RegisterLoader(nil) })

	ctx1 := &testContext{handle: &loaderGLContext{}, valid: true, width: 8, height: 8}
	r1, err := New(ctx1, gpuexec.DefaultConfig())
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	ctx2 := &testContext{handle: &loaderGLContext{}, valid: true, width: 8, height: 8}
	if _, err := New(ctx2, gpuexec.DefaultConfig()); !errors.Is(err, ErrLoaderInUse) {
		t.Fatalf("second New() error = %v, want ErrLoaderInUse", err)
	}

	if err := r1.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := r1.Close(); err != nil {
		t.Fatal(err)
	}
	r2, err := New(ctx2, gpuexec.DefaultConfig())
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	_ = r2.Close()
}

func TestNoLoader(t *testing.T) {
	RegisterLoader(nil)
	ctx := &testContext{handle: &loaderGLContext{}, valid: true}
	if _, err := New(ctx, gpuexec.DefaultConfig()); !errors.Is(err, ErrNoLoader) {
		t.Errorf("New() error = %v, want ErrNoLoader", err)
	}
}

func TestRegistersImmediateBackend(t *testing.T) {
	if !gpuexec.IsRegistered(gpuexec.BackendImmediate) {
		t.Fatal("immediate backend not registered")
	}
	gl := newFakeGL()
	ctx := &testContext{handle: &fakeGLContext{gl: gl}, valid: true, width: 4, height: 4}
	r, err := gpuexec.SelectRenderer(ctx, gpuexec.WithPreference(gpuexec.BackendImmediate))
	if err != nil {
		t.Fatalf("SelectRenderer() error = %v", err)
	}
	defer r.Close()
	if r.Kind() != gpuexec.BackendImmediate {
		t.Errorf("Kind() = %v", r.Kind())
	}
	if !strings.Contains(r.Kind().String(), "immediate") {
		t.Errorf("Kind().String() = %q", r.Kind().String())
	}
}
