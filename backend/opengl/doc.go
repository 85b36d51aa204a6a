// Package opengl is the immediate backend of gpuexec, targeting the
// OpenGL 3.3 core profile.
//
// # Execution Model
//
// OpenGL requires every call to come from the thread that owns the
// context. The renderer runs one scheduler goroutine, locked to its OS
// thread, that makes the context current and then executes operations in
// submission order:
//
//	NewBuffer, Write, Submit, Destroy ──▶ scheduler ──▶ GL calls
//
// Uploads, frames and deletions are pooled operations and never block the
// caller. Shader compilation, program linking, framebuffer completeness
// checks and Present wait for the GL goroutine so their errors are
// returned directly.
//
// Because deletions travel through the same queue, destroying a resource
// right after submitting a frame that uses it is safe: the delete runs
// after the frame.
//
// # Function Loading
//
// GL functions are resolved by a [Loader] registered with
// [RegisterLoader]. The gogl subpackage registers a go-gl loader:
//
//	import (
//	    _ "github.com/gogpu/gpuexec/backend/opengl"
//	    _ "github.com/gogpu/gpuexec/backend/opengl/gogl"
//	)
//
// go-gl keeps its function pointers in package state, so only one
// renderer may hold the loader at a time. A context whose capability
// handle implements [FunctionTabler] supplies its own table instead.
//
// # Shaders
//
// Only GLSL is accepted. Push constants are uniform blocks named
// VertexPushConstants and FragmentPushConstants, bound at
// [PushConstantBindingVertex] and [PushConstantBindingFragment].
package opengl
