// Command gpuexec-demo drives the explicit backend headlessly, on the HAL
// no-op device by default or on a Vulkan adapter with -device vulkan. It
// uploads vertex data from concurrent writers, records frames with push
// constants and destroys buffers while their frames are in flight, then
// prints renderer counters.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gpuexec/backend/wgpu"
	"github.com/gogpu/gputypes"
)

const shaderWGSL = `
struct Push {
    offset: vec4<f32>,
}

@group(0) @binding(0) var<uniform> push: Push;

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos + push.offset.xy, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.2, 1.0);
}
`

// headlessContext hands an opened device to the explicit backend and
// reports a fixed surface size.
type headlessContext struct {
	handle        *wgpu.DeviceHandle
	width, height int
}

func (c *headlessContext) IsValid() bool { return true }

func (c *headlessContext) CapabilityHandle(kind gpuexec.BackendKind) any {
	if kind == gpuexec.BackendExplicit {
		return c.handle
	}
	return nil
}

func (c *headlessContext) FramebufferSize() (int, int)    { return c.width, c.height }
func (c *headlessContext) OnSurfaceResize(func(int, int)) {}

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to submit")
		inFlight = flag.Int("frames-in-flight", 2, "explicit backend frame slots")
		writers  = flag.Int("writers", 4, "concurrent vertex writers per frame")
		quads    = flag.Int("quads", 64, "quads per writer")
		device   = flag.String("device", "noop", "HAL device: noop or vulkan")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	gpuexec.SetLogger(newLogger(*verbose))

	var (
		handle *wgpu.DeviceHandle
		err    error
	)
	switch *device {
	case "noop":
		handle, err = wgpu.OpenNoopDevice()
	case "vulkan":
		handle, err = wgpu.OpenDevice()
	default:
		log.Fatalf("unknown device %q", *device)
	}
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer handle.Release()

	ctx := &headlessContext{handle: handle, width: 800, height: 600}
	r, err := gpuexec.SelectRenderer(ctx,
		gpuexec.WithPreference(gpuexec.BackendExplicit),
		gpuexec.WithFramesInFlight(*inFlight),
		gpuexec.WithFenceTimeout(2*time.Second))
	if err != nil {
		log.Fatalf("select renderer: %v", err)
	}
	if err := r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
		log.Fatalf("initialize: %v", err)
	}

	start := time.Now()
	if err := run(r, *frames, *writers, *quads); err != nil {
		_ = r.Close()
		log.Fatalf("run: %v", err)
	}
	if err := r.Close(); err != nil {
		log.Fatalf("close: %v", err)
	}

	fmt.Printf("%d frames on the %v backend in %v\n", *frames, r.Kind(), time.Since(start).Round(time.Millisecond))
	if er, ok := r.(*wgpu.Renderer); ok {
		s := er.Stats()
		fmt.Printf("destroyed %d deferred resources, %d pending\n", s.Destroyed, s.PendingDeletions)
		fmt.Printf("shader cache: %d hits, %d misses\n", s.ShaderCache.Hits, s.ShaderCache.Misses)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) { //nolint:gosec // fd fits int
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(r gpuexec.Renderer, frames, writers, quads int) error {
	shader := func(stage gpuexec.ShaderStage) (gpuexec.Shader, error) {
		return r.NewShader(gpuexec.ShaderDescriptor{
			Label:    stage.String(),
			Stage:    stage,
			Language: gpuexec.ShaderLanguageWGSL,
			Code:     []byte(shaderWGSL),
		})
	}
	vs, err := shader(gpuexec.ShaderStageVertex)
	if err != nil {
		return err
	}
	defer vs.Destroy()
	fs, err := shader(gpuexec.ShaderStageFragment)
	if err != nil {
		return err
	}
	defer fs.Destroy()

	pipeline, err := r.NewPipeline(gpuexec.PipelineDescriptor{
		Label:    "quads",
		Vertex:   vs,
		Fragment: fs,
		VertexLayouts: []gputypes.VertexBufferLayout{{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		}},
		PushConstants: gpuexec.PushConstantLayout{VertexSize: 16},
		DepthFormat:   gputypes.TextureFormatDepth24PlusStencil8,
	})
	if err != nil {
		return err
	}
	defer pipeline.Destroy()

	const quadBytes = 6 * 8
	var cb gpuexec.CommandBuffer
	push := make([]byte, 16)
	for frame := range frames {
		vb, err := r.NewBuffer(gpuexec.BufferDescriptor{
			Label: fmt.Sprintf("frame-%d", frame),
			Usage: gpuexec.BufferUsageVertex,
			Size:  quadBytes,
		})
		if err != nil {
			return err
		}

		var g errgroup.Group
		for w := range writers {
			g.Go(func() error {
				base := w * quads * quadBytes
				for q := range quads {
					if err := vb.Write(base+q*quadBytes, quad(frame, w, q)); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			vb.Destroy()
			return err
		}

		angle := float64(frame) * 0.05
		binary.LittleEndian.PutUint32(push[0:], math.Float32bits(float32(0.1*math.Cos(angle))))
		binary.LittleEndian.PutUint32(push[4:], math.Float32bits(float32(0.1*math.Sin(angle))))

		cb.Reset()
		cb.BeginPass(gpuexec.RenderPassDescriptor{Label: "main"}, r.MainFramebuffer(),
			gpuexec.ColorClear(0.05, 0.05, 0.1, 1), gpuexec.DepthStencilClear(1, 0))
		if err := cb.Draw(gpuexec.DrawInfo{
			Pipeline:            pipeline,
			VertexBuffers:       []gpuexec.Buffer{vb},
			Range:               gpuexec.IndexRange{Count: vb.Size() / 8},
			VertexPushConstants: push,
		}); err != nil {
			vb.Destroy()
			return err
		}
		if err := r.Submit(cb.Passes()...); err != nil {
			vb.Destroy()
			return err
		}
		// The frame may still be executing; the buffer is released once
		// its slot retires.
		vb.Destroy()

		if err := r.Present(); err != nil {
			return err
		}
	}
	return nil
}

// quad returns two triangles for quad q of writer w.
func quad(frame, w, q int) []byte {
	x := float32(q%16)/8 - 1
	y := float32(w*4+q/16)/8 - 1
	s := float32(0.05 + 0.01*float64(frame%5))
	verts := [12]float32{x, y, x + s, y, x, y + s, x + s, y, x + s, y + s, x, y + s}
	out := make([]byte, 0, len(verts)*4)
	for _, v := range verts {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
