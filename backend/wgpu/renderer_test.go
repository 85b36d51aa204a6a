package wgpu

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
)

func TestNewRejectsContexts(t *testing.T) {
	if _, err := New(nil, gpuexec.DefaultConfig()); !errors.Is(err, gpuexec.ErrInvalidContext) {
		t.Errorf("New(nil) error = %v, want ErrInvalidContext", err)
	}
	if _, err := New(&testContext{valid: false}, gpuexec.DefaultConfig()); !errors.Is(err, gpuexec.ErrInvalidContext) {
		t.Errorf("New(invalid) error = %v, want ErrInvalidContext", err)
	}
	if _, err := New(&testContext{valid: true}, gpuexec.DefaultConfig()); !errors.Is(err, gpuexec.ErrCapabilityAbsent) {
		t.Errorf("New(no handle) error = %v, want ErrCapabilityAbsent", err)
	}
	if _, err := New(&testContext{valid: true, handle: "not a device"}, gpuexec.DefaultConfig()); !errors.Is(err, gpuexec.ErrCapabilityAbsent) {
		t.Errorf("New(foreign handle) error = %v, want ErrCapabilityAbsent", err)
	}
}

func TestFactoriesBeforeInitialize(t *testing.T) {
	rig := newUninitializedRig(t)
	r := rig.r
	defer r.Close()

	if _, err := r.NewBuffer(gpuexec.BufferDescriptor{Usage: gpuexec.BufferUsageVertex, Size: 4}); !errors.Is(err, gpuexec.ErrNotInitialized) {
		t.Errorf("NewBuffer() error = %v, want ErrNotInitialized", err)
	}
	if err := r.Submit(); !errors.Is(err, gpuexec.ErrNotInitialized) {
		t.Errorf("Submit() error = %v, want ErrNotInitialized", err)
	}
	if r.MainFramebuffer() != nil {
		t.Error("MainFramebuffer() before Initialize should be nil")
	}
}

func TestInitializeTwice(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.Initialize(gpuexec.DefaultInitOptions()); !errors.Is(err, gpuexec.ErrAlreadyInitialized) {
		t.Errorf("second Initialize() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestSubmitRecordsSubmissionIndex(t *testing.T) {
	rig := newTestRig(t, gpuexec.WithFramesInFlight(2))
	r := rig.r

	for i := range 5 {
		if err := r.Submit(); err != nil {
			t.Fatalf("Submit() frame %d error = %v", i, err)
		}
	}
	if got := r.Stats().Frames; got != 5 {
		t.Errorf("Frames = %d, want 5", got)
	}
	// Slot 0 carries frames 0, 2 and 4, submitted as indices 1, 3 and 5.
	if got := r.frames[0].index; got != 5 {
		t.Errorf("slot 0 submission index = %d, want 5", got)
	}
	if got := r.frames[1].index; got != 4 {
		t.Errorf("slot 1 submission index = %d, want 4", got)
	}
	if got := rig.queue.submitCount(); got != 5 {
		t.Errorf("queue submits = %d, want 5", got)
	}
}

// A destroyed buffer survives until the frame slot that was in flight when
// it was destroyed comes around again.
func TestDestroyDeferredUntilFrameRetires(t *testing.T) {
	rig := newTestRig(t, gpuexec.WithFramesInFlight(2))
	r := rig.r

	buf := newTestBuffer(t, r, gpuexec.BufferUsageVertex, 64)
	if err := r.Submit(); err != nil { // frame 0, slot 0
		t.Fatal(err)
	}
	buf.Destroy()
	buf.Destroy()

	if s := r.Stats(); s.PendingDeletions != 1 {
		t.Fatalf("PendingDeletions = %d, want 1", s.PendingDeletions)
	}
	if n, _, _ := rig.device.counts(); n != 0 {
		t.Fatalf("buffer destroyed before any frame retired: %d", n)
	}

	if err := r.Submit(); err != nil { // frame 1, slot 1: binds the entry
		t.Fatal(err)
	}
	if s := r.Stats(); s.PendingDeletions != 0 || s.InFlightDeletions != 1 {
		t.Fatalf("after commit: pending=%d inflight=%d, want 0 and 1", s.PendingDeletions, s.InFlightDeletions)
	}

	if err := r.Submit(); err != nil { // frame 2, slot 0
		t.Fatal(err)
	}
	if n, _, _ := rig.device.counts(); n != 0 {
		t.Fatalf("buffer destroyed when an unrelated slot retired: %d", n)
	}

	if err := r.Submit(); err != nil { // frame 3, slot 1: retires frame 1
		t.Fatal(err)
	}
	if n, _, _ := rig.device.counts(); n != 1 {
		t.Errorf("destroyed buffers = %d, want 1", n)
	}
	if s := r.Stats(); s.InFlightDeletions != 0 || s.Destroyed != 1 {
		t.Errorf("after retire: inflight=%d destroyed=%d, want 0 and 1", s.InFlightDeletions, s.Destroyed)
	}
}

func TestSubmitTimesOutOnStuckFrame(t *testing.T) {
	rig := newTestRig(t, gpuexec.WithFramesInFlight(1), gpuexec.WithFenceTimeout(time.Millisecond))
	r := rig.r

	rig.queue.setHold(true)
	if err := r.Submit(); err != nil {
		t.Fatal(err)
	}
	buf := newTestBuffer(t, r, gpuexec.BufferUsageVertex, 16)
	buf.Destroy()

	if err := r.Submit(); !errors.Is(err, gpuexec.ErrFrameTimeout) {
		t.Fatalf("Submit() error = %v, want ErrFrameTimeout", err)
	}
	if n, _, _ := rig.device.counts(); n != 0 {
		t.Errorf("buffer destroyed while its frame was still running")
	}

	rig.queue.setHold(false)
	if err := r.Submit(); err != nil {
		t.Fatalf("Submit() after GPU caught up error = %v", err)
	}
}

func TestCloseRunsAllDeferredDestructions(t *testing.T) {
	rig := newUninitializedRig(t)
	r := rig.r
	if err := r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		t.Fatal(err)
	}

	a := newTestBuffer(t, r, gpuexec.BufferUsageVertex, 16)
	b := newTestBuffer(t, r, gpuexec.BufferUsageVertex, 16)
	a.Destroy()
	if err := r.Submit(); err != nil {
		t.Fatal(err)
	}
	b.Destroy()

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n, _, _ := rig.device.counts(); n != 2 {
		t.Errorf("destroyed buffers after Close = %d, want 2", n)
	}
	s := r.Stats()
	if s.PendingDeletions != 0 || s.InFlightDeletions != 0 {
		t.Errorf("ledger not empty after Close: %+v", s)
	}

	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := r.Submit(); !errors.Is(err, gpuexec.ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
	if _, err := r.NewBuffer(gpuexec.BufferDescriptor{Usage: gpuexec.BufferUsageVertex, Size: 4}); !errors.Is(err, gpuexec.ErrClosed) {
		t.Errorf("NewBuffer() after Close error = %v, want ErrClosed", err)
	}
}

func TestDestroyAfterCloseRunsImmediately(t *testing.T) {
	rig := newUninitializedRig(t)
	r := rig.r
	if err := r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		t.Fatal(err)
	}
	buf := newTestBuffer(t, r, gpuexec.BufferUsageVertex, 16)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	before, _, _ := rig.device.counts()
	buf.Destroy()
	after, _, _ := rig.device.counts()
	if after != before+1 {
		t.Errorf("Destroy after Close did not release the buffer")
	}
}

func TestResizeRecreatesMainFramebuffer(t *testing.T) {
	rig := newTestRig(t)
	r := rig.r

	if w, h := r.MainFramebuffer().Size(); w != 64 || h != 32 {
		t.Fatalf("main framebuffer = %dx%d, want 64x32", w, h)
	}
	rig.ctx.fireResize(128, 96)
	if w, h := r.SurfaceSize(); w != 128 || h != 96 {
		t.Errorf("SurfaceSize() = %dx%d, want 128x96", w, h)
	}
	if w, h := r.MainFramebuffer().Size(); w != 128 || h != 96 {
		t.Errorf("main framebuffer after resize = %dx%d, want 128x96", w, h)
	}
	// The old attachments wait for the ledger.
	if s := r.Stats(); s.PendingDeletions != 1 {
		t.Errorf("PendingDeletions after resize = %d, want 1", s.PendingDeletions)
	}

	rig.ctx.fireResize(0, 0)
	if w, h := r.MainFramebuffer().Size(); w != 1 || h != 1 {
		t.Errorf("main framebuffer after minimize = %dx%d, want 1x1", w, h)
	}
}

func TestPresentForwardsMainTexture(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.r.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := rig.r.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if rig.present.presents != 1 || rig.present.width != 64 || rig.present.height != 32 {
		t.Errorf("presenter got %d presents of %dx%d", rig.present.presents, rig.present.width, rig.present.height)
	}
}

func TestInitRegistersExplicitBackend(t *testing.T) {
	if !gpuexec.IsRegistered(gpuexec.BackendExplicit) {
		t.Fatal("explicit backend not registered")
	}
}

func TestDeviceHandleAdapterInfo(t *testing.T) {
	dh, err := OpenNoopDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dh.Release()
	info := dh.AdapterInfo()
	if info.Name != "Noop Adapter" || dh.AdapterName() != info.Name {
		t.Errorf("AdapterInfo().Name = %q, AdapterName() = %q, want %q", info.Name, dh.AdapterName(), "Noop Adapter")
	}
	if info.Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("AdapterInfo().Type = %v, want %v", info.Type, gpucontext.AdapterTypeUnknown)
	}

	wrapped := NewDeviceHandle(dh.device, dh.queue, gputypes.TextureFormatUndefined)
	if got := wrapped.AdapterInfo(); got.Name != "" || got.Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("wrapped AdapterInfo() = %+v, want unnamed and unknown", got)
	}
}

func TestAdapterType(t *testing.T) {
	tests := []struct {
		in   gputypes.DeviceType
		want gpucontext.AdapterType
	}{
		{gputypes.DeviceTypeDiscreteGPU, gpucontext.AdapterTypeDiscrete},
		{gputypes.DeviceTypeIntegratedGPU, gpucontext.AdapterTypeIntegrated},
		{gputypes.DeviceTypeCPU, gpucontext.AdapterTypeSoftware},
		{gputypes.DeviceTypeVirtualGPU, gpucontext.AdapterTypeUnknown},
		{gputypes.DeviceTypeOther, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		if got := adapterType(tt.in); got != tt.want {
			t.Errorf("adapterType(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
