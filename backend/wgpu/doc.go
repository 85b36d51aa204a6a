// Package wgpu is the explicit backend of gpuexec, built on the gogpu/wgpu
// hardware abstraction layer.
//
// # Frame Pipelining
//
// The renderer keeps between one and three frame slots. Each slot records
// the queue submission index and the command buffer of the frame last
// submitted through it. A frame in slot s:
//
//  1. polls the queue until the previous frame submitted in s completed,
//  2. frees that frame's command buffer and retires the deferred
//     destructions bound to s,
//  3. records every pass into a fresh command buffer,
//  4. submits it, stores the returned submission index and binds pending
//     deferred destructions to s.
//
// # Resource Lifetime
//
// Destroying a buffer, shader, pipeline or render target never calls the
// HAL destroy function directly. The handle is parked in a frame-slot
// ledger and released once a frame submitted after the destroy call has
// completed on the GPU. Close waits for every slot before releasing
// what is left.
//
// # Capability Handle
//
// The host context must return, for gpuexec.BackendExplicit, a value with
// HalDevice() any and HalQueue() any methods returning hal.Device and
// hal.Queue. [DeviceHandle] is such a value and also satisfies
// gpucontext.DeviceProvider.
//
// Register the backend with a blank import:
//
//	import _ "github.com/gogpu/gpuexec/backend/wgpu"
package wgpu
