// Package gpuexec is a GPU command execution core that runs the same
// client work on an immediate-mode API (OpenGL) or on an explicit,
// frame-pipelined API (Vulkan through gogpu/wgpu HAL).
//
// # Overview
//
// Client code asks for a [Renderer] bound to a host [Context], creates
// resources through it and submits one [PassSubmission] per render pass
// each frame. The renderer hides how the work reaches the GPU:
//
//   - The immediate backend (backend/opengl) owns one goroutine locked to
//     the OS thread that holds the GL context. Every GL call is an
//     operation queued on a dual-queue scheduler and recycled through
//     operation pools.
//   - The explicit backend (backend/wgpu) records HAL command buffers,
//     pipelines several frames through per-slot submission indices and defers
//     resource destruction until the frames that used them retired.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpuexec"
//	    _ "github.com/gogpu/gpuexec/backend/opengl"
//	    _ "github.com/gogpu/gpuexec/backend/wgpu"
//	)
//
//	r := gpuexec.NewRenderer(hostContext)
//	if r == nil {
//	    // No backend works on this machine.
//	}
//	if err := r.Initialize(gpuexec.DefaultInitOptions()); err != nil {
//	    return err
//	}
//	defer r.Close()
//
// # Backend Selection
//
// Backends register themselves in init. [NewRenderer] tries them in the
// configured preference order, explicit first by default, and returns nil
// when none can serve the context. See [WithPreference].
//
// # Logging
//
// gpuexec is silent by default. Call [SetLogger] to route diagnostics to a
// [log/slog] logger.
package gpuexec
