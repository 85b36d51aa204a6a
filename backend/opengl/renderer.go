package opengl

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gpuexec/internal/dualqueue"
	"github.com/gogpu/gpuexec/internal/oppool"
)

// Push constants are uploaded to two uniform buffers bound at these
// uniform block binding points. Shaders declare the blocks as
// VertexPushConstants and FragmentPushConstants.
const (
	PushConstantBindingVertex   = 14
	PushConstantBindingFragment = 15

	vertexPushBlock   = "VertexPushConstants"
	fragmentPushBlock = "FragmentPushConstants"
)

// renderer states.
const (
	stateCreated int32 = iota
	stateReady
	stateClosed
)

// Renderer is the immediate-backend gpuexec.Renderer. Every GL call runs
// on one scheduler goroutine that owns the context; the public methods
// only enqueue work, except the ones documented to wait.
//
// Thread safety: all methods are safe for concurrent use.
type Renderer struct {
	ctx        gpuexec.Context
	cfg        gpuexec.Config
	glctx      GLContext
	table      GL
	loader     Loader
	sched      *dualqueue.Scheduler
	uploads    *oppool.Pool
	deletes    *oppool.Pool
	frames     *oppool.Pool
	main       *mainFramebuffer
	frameCount atomic.Uint64

	state  atomic.Int32
	initMu sync.Mutex
	opts   gpuexec.InitOptions

	sizeMu        sync.Mutex
	surfaceWidth  int
	surfaceHeight int

	// Owned by the GL goroutine.
	gl       GL
	pushUBO  [2]uint32
	pushSize [2]int
}

var _ gpuexec.Renderer = (*Renderer)(nil)

// New creates an immediate renderer for ctx. It claims the registered
// function loader unless the context supplies its own function table;
// a loader held by another renderer yields ErrLoaderInUse.
func New(ctx gpuexec.Context, cfg gpuexec.Config) (*Renderer, error) {
	if ctx == nil || !ctx.IsValid() {
		return nil, gpuexec.ErrInvalidContext
	}
	glctx, err := resolveContext(ctx.CapabilityHandle(gpuexec.BackendImmediate))
	if err != nil {
		return nil, err
	}

	r := &Renderer{ctx: ctx, cfg: cfg, glctx: glctx}
	if ft, ok := glctx.(FunctionTabler); ok && ft.FunctionTable() != nil {
		r.table = ft.FunctionTable()
	} else {
		l, err := acquireLoader(r)
		if err != nil {
			return nil, fmt.Errorf("opengl: %w", err)
		}
		r.loader = l
	}

	capacity := max(cfg.PoolCapacity, 1)
	r.uploads = oppool.NewPool("gl upload", capacity, func() oppool.Operation { return &uploadOp{} })
	r.deletes = oppool.NewPool("gl delete", capacity, func() oppool.Operation { return &deleteOp{} })
	r.frames = oppool.NewPool("gl frame", max(capacity/8, 2), func() oppool.Operation { return &frameOp{r: r} })
	r.sched = dualqueue.New(
		dualqueue.WithName("gl"),
		dualqueue.WithInitialCapacity(capacity),
		dualqueue.WithThreadSetup(r.threadSetup),
	)
	r.surfaceWidth, r.surfaceHeight = ctx.FramebufferSize()
	r.main = &mainFramebuffer{r: r}
	return r, nil
}

// Kind returns gpuexec.BackendImmediate.
func (r *Renderer) Kind() gpuexec.BackendKind { return gpuexec.BackendImmediate }

// threadSetup runs on the GL goroutine before any operation.
func (r *Renderer) threadSetup() error {
	if err := r.glctx.MakeCurrent(); err != nil {
		return fmt.Errorf("make context current: %w", err)
	}
	gl := r.table
	if gl == nil {
		var err error
		if gl, err = r.loader(); err != nil {
			return fmt.Errorf("load GL functions: %w", err)
		}
	}
	r.gl = gl
	r.applyInitialState()
	return nil
}

// applyInitialState sets the fixed-function defaults from InitOptions.
func (r *Renderer) applyInitialState() {
	gl, o := r.gl, r.opts
	if o.Culling.Enabled {
		gl.Enable(glCullFaceCap)
		gl.CullFace(glCullMode(o.ResolveCull(gpuexec.CullDefault)))
	} else {
		gl.Disable(glCullFaceCap)
	}
	gl.FrontFace(glWinding(o.Culling.FrontFace))
	if o.Depth.TestEnabled {
		gl.Enable(glDepthTest)
		gl.DepthFunc(glCompare(o.Depth.Compare))
	} else {
		gl.Disable(glDepthTest)
	}
	gl.DepthMask(o.Depth.WriteEnabled)
	near, far := o.Depth.RangeNear, o.Depth.RangeFar
	if near == 0 && far == 0 {
		far = 1
	}
	gl.DepthRange(near, far)
}

// Initialize starts the GL goroutine, makes the context current on it and
// applies opts. It returns once the context is ready.
func (r *Renderer) Initialize(opts gpuexec.InitOptions) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	switch r.state.Load() {
	case stateReady:
		return gpuexec.ErrAlreadyInitialized
	case stateClosed:
		return gpuexec.ErrClosed
	}
	r.opts = opts
	if err := r.sched.Start(); err != nil {
		r.state.Store(stateClosed)
		releaseLoader(r)
		return fmt.Errorf("opengl: initialize: %w", err)
	}
	r.state.Store(stateReady)
	r.ctx.OnSurfaceResize(r.onResize)

	w, h := r.SurfaceSize()
	gpuexec.Logger().Info("opengl: renderer initialized", "width", w, "height", h)
	return nil
}

// SurfaceSize returns the last known surface size.
func (r *Renderer) SurfaceSize() (int, int) {
	r.sizeMu.Lock()
	defer r.sizeMu.Unlock()
	return r.surfaceWidth, r.surfaceHeight
}

func (r *Renderer) onResize(width, height int) {
	r.sizeMu.Lock()
	r.surfaceWidth, r.surfaceHeight = width, height
	r.sizeMu.Unlock()
}

// MainFramebuffer returns the default framebuffer, or nil before
// Initialize.
func (r *Renderer) MainFramebuffer() gpuexec.Framebuffer {
	if r.state.Load() == stateCreated {
		return nil
	}
	return r.main
}

// Present swaps the surface on the GL goroutine and waits for it.
func (r *Renderer) Present() error {
	if err := r.checkReady(); err != nil {
		return err
	}
	err := r.sched.Do(func() error {
		return r.glctx.SwapBuffers()
	})
	if err != nil {
		return fmt.Errorf("opengl: present: %w", r.mapErr(err))
	}
	return nil
}

// Close runs every operation already submitted, releases renderer-owned
// GL objects and stops the GL goroutine. Close is idempotent.
func (r *Renderer) Close() error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	prev := r.state.Swap(stateClosed)
	switch prev {
	case stateClosed:
		return nil
	case stateCreated:
		r.sched.Stop()
		releaseLoader(r)
		return nil
	}

	r.ctx.OnSurfaceResize(func(int, int) {})
	err := r.sched.Submit(dualqueue.Func(r.releaseOwned), nil)
	r.sched.Stop()
	releaseLoader(r)

	gpuexec.Logger().Info("opengl: renderer closed",
		"frames", r.frameCount.Load(),
		"scheduler", r.sched.Stats(),
		"uploads", r.uploads.Stats(),
		"deletes", r.deletes.Stats(),
		"frame_ops", r.frames.Stats())
	return err
}

// releaseOwned deletes renderer-owned objects. Runs on the GL goroutine.
func (r *Renderer) releaseOwned() {
	for i, ubo := range r.pushUBO {
		if ubo != 0 {
			r.gl.DeleteBuffer(ubo)
			r.pushUBO[i], r.pushSize[i] = 0, 0
		}
	}
	r.gl.Finish()
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

// mapErr turns scheduler shutdown into ErrClosed.
func (r *Renderer) mapErr(err error) error {
	if errors.Is(err, dualqueue.ErrStopped) {
		return gpuexec.ErrClosed
	}
	return err
}

// enqueue submits a one-shot operation.
func (r *Renderer) enqueue(fn func()) error {
	return r.mapErr(r.sched.Submit(dualqueue.Func(fn), nil))
}

// release queues the deletion of res behind all earlier operations.
func (r *Renderer) release(res glResource) {
	op := r.deletes.Acquire().(*deleteOp)
	op.r, op.res = r, res
	if err := r.sched.Submit(op, r.deletes); err != nil {
		r.deletes.Give(op)
		gpuexec.Logger().Debug("opengl: destroy after close ignored", "err", err)
	}
}

// Stats returns scheduler and pool counters.
func (r *Renderer) Stats() Stats {
	return Stats{
		Frames:    r.frameCount.Load(),
		Scheduler: r.sched.Stats(),
		Uploads:   r.uploads.Stats(),
		Deletes:   r.deletes.Stats(),
		FrameOps:  r.frames.Stats(),
	}
}

// Stats holds immediate renderer counters.
type Stats struct {
	Frames    uint64
	Scheduler dualqueue.Stats
	Uploads   oppool.Stats
	Deletes   oppool.Stats
	FrameOps  oppool.Stats
}
