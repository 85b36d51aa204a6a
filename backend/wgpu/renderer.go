package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gpuexec/internal/ledger"
	"github.com/gogpu/gpuexec/internal/spvcache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// renderer states.
const (
	stateCreated int32 = iota
	stateReady
	stateClosed
)

// Renderer is the explicit-backend gpuexec.Renderer.
//
// Thread safety: factory methods and resource methods are safe for
// concurrent use. Submit, Present and Close serialize on the frame lock.
type Renderer struct {
	ctx       gpuexec.Context
	cfg       gpuexec.Config
	device    hal.Device
	queue     hal.Queue
	format    gputypes.TextureFormat
	presenter Presenter
	ledger    *ledger.Ledger
	spirv     *spvcache.Cache

	state atomic.Int32
	opts  gpuexec.InitOptions

	// frameMu serializes frame submission, resize and teardown.
	frameMu    sync.Mutex
	frames     []frameSlot
	frameCount uint64
	main       *mainFramebuffer

	// lifeMu orders deferred destructions against teardown.
	lifeMu   sync.RWMutex
	released bool

	sizeMu        sync.Mutex
	surfaceWidth  int
	surfaceHeight int
}

var _ gpuexec.Renderer = (*Renderer)(nil)

// New creates an explicit renderer for ctx. It fails with an error
// wrapping gpuexec.ErrCapabilityAbsent when ctx has no HAL device.
func New(ctx gpuexec.Context, cfg gpuexec.Config) (*Renderer, error) {
	if ctx == nil || !ctx.IsValid() {
		return nil, gpuexec.ErrInvalidContext
	}
	device, queue, format, presenter, err := resolveHandle(ctx.CapabilityHandle(gpuexec.BackendExplicit))
	if err != nil {
		return nil, err
	}
	slots := min(max(cfg.FramesInFlight, 1), gpuexec.MaxFramesInFlight)
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = 5 * time.Second
	}
	r := &Renderer{
		ctx:       ctx,
		cfg:       cfg,
		device:    device,
		queue:     queue,
		format:    format,
		presenter: presenter,
		ledger:    ledger.New(slots),
		spirv:     spvcache.New(0),
		frames:    make([]frameSlot, slots),
	}
	r.surfaceWidth, r.surfaceHeight = ctx.FramebufferSize()
	return r, nil
}

// Kind returns gpuexec.BackendExplicit.
func (r *Renderer) Kind() gpuexec.BackendKind { return gpuexec.BackendExplicit }

// Device returns the HAL device.
func (r *Renderer) Device() hal.Device { return r.device }

// Initialize creates the main framebuffer and subscribes to surface resizes.
func (r *Renderer) Initialize(opts gpuexec.InitOptions) error {
	if err := r.initialize(opts); err != nil {
		return err
	}
	r.ctx.OnSurfaceResize(r.onResize)
	return nil
}

func (r *Renderer) initialize(opts gpuexec.InitOptions) error {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()

	switch r.state.Load() {
	case stateReady:
		return gpuexec.ErrAlreadyInitialized
	case stateClosed:
		return gpuexec.ErrClosed
	}
	r.opts = opts

	w, h := r.SurfaceSize()
	main, err := r.newMainFramebuffer(w, h)
	if err != nil {
		return err
	}
	r.main = main

	r.state.Store(stateReady)
	gpuexec.Logger().Info("wgpu: renderer initialized",
		"frames_in_flight", len(r.frames), "width", w, "height", h)
	return nil
}

// SurfaceSize returns the last known surface size.
func (r *Renderer) SurfaceSize() (int, int) {
	r.sizeMu.Lock()
	defer r.sizeMu.Unlock()
	return r.surfaceWidth, r.surfaceHeight
}

// MainFramebuffer returns the surface framebuffer, or nil before Initialize.
func (r *Renderer) MainFramebuffer() gpuexec.Framebuffer {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	if r.main == nil {
		return nil
	}
	return r.main
}

// onResize recreates the main framebuffer at the new size.
func (r *Renderer) onResize(width, height int) {
	r.sizeMu.Lock()
	r.surfaceWidth, r.surfaceHeight = width, height
	r.sizeMu.Unlock()

	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	if r.state.Load() != stateReady || r.main == nil {
		return
	}
	if err := r.main.resize(width, height); err != nil {
		gpuexec.Logger().Warn("wgpu: resize main framebuffer", "width", width, "height", height, "err", err)
	}
}

// Present hands the main framebuffer to the presenter and returns once
// it finished.
func (r *Renderer) Present() error {
	if err := r.checkReady(); err != nil {
		return err
	}
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	if r.presenter == nil || r.main == nil {
		return nil
	}
	tex, w, h := r.main.texture()
	if err := r.presenter.Present(tex, w, h); err != nil {
		return fmt.Errorf("wgpu: present: %w", err)
	}
	return nil
}

// Close waits until every submitted frame completed, then releases all
// deferred and renderer-owned resources. Close is idempotent.
func (r *Renderer) Close() error {
	if r.state.Load() == stateReady {
		r.ctx.OnSurfaceResize(func(int, int) {})
	}
	r.frameMu.Lock()
	defer r.frameMu.Unlock()

	prev := r.state.Swap(stateClosed)
	if prev == stateClosed {
		return nil
	}

	var waitErr error
	if prev == stateReady {
		if waitErr = r.waitIdle(); waitErr != nil {
			if err := r.device.WaitIdle(); err != nil {
				gpuexec.Logger().Error("wgpu: device wait idle on close", "err", err)
			}
		}
		r.freeCommandBuffers()
		if r.main != nil {
			r.main.release()
		}
	}

	r.lifeMu.Lock()
	r.released = true
	n := r.ledger.RetireAll()
	r.lifeMu.Unlock()

	gpuexec.Logger().Info("wgpu: renderer closed",
		"frames", r.frameCount, "released", n, "shader_cache", r.spirv.Stats())
	return waitErr
}

// waitIdle waits for the last submission of every slot. Caller holds frameMu.
func (r *Renderer) waitIdle() error {
	var firstErr error
	for i := range r.frames {
		if err := r.waitSlot(i); err != nil {
			gpuexec.Logger().Error("wgpu: wait for frame slot on close", "slot", i, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Renderer) checkReady() error {
	switch r.state.Load() {
	case stateCreated:
		return gpuexec.ErrNotInitialized
	case stateClosed:
		return gpuexec.ErrClosed
	}
	return nil
}

// destroyLater routes a HAL destroy call through the ledger. After Close
// the device is idle and fn runs immediately.
func (r *Renderer) destroyLater(label string, fn func()) {
	r.lifeMu.RLock()
	if !r.released {
		r.ledger.MarkForDeletion(ledger.Entry{Label: label, Destroy: fn})
		r.lifeMu.RUnlock()
		return
	}
	r.lifeMu.RUnlock()
	fn()
}

// Stats returns frame and deferred destruction counters.
func (r *Renderer) Stats() Stats {
	r.frameMu.Lock()
	frames := r.frameCount
	r.frameMu.Unlock()
	ls := r.ledger.Stats()
	return Stats{
		Frames:            frames,
		PendingDeletions:  ls.Pending,
		InFlightDeletions: ls.InFlight,
		Destroyed:         ls.Destroyed,
		ShaderCache:       r.spirv.Stats(),
	}
}

// Stats holds explicit renderer counters.
type Stats struct {
	Frames            uint64
	PendingDeletions  int    // Destroyed by the client, not yet bound to a frame.
	InFlightDeletions int    // Bound to a frame that has not retired.
	Destroyed         uint64 // Handles released on the device.
	ShaderCache       spvcache.Stats
}
