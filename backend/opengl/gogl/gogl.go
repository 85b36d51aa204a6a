// Package gogl registers a go-gl based OpenGL 3.3 core loader with the
// immediate backend. Import it for its side effect:
//
//	import _ "github.com/gogpu/gpuexec/backend/opengl/gogl"
//
// go-gl needs cgo and resolves function pointers into package state, so
// the loader is shared process-wide.
package gogl

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"

	"github.com/gogpu/gpuexec/backend/opengl"
)

func init() {
	opengl.RegisterLoader(Load)
}

// Load resolves the GL 3.3 core functions for the current context.
func Load() (opengl.GL, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gogl: %w", err)
	}
	return functions{}, nil
}

// functions forwards to go-gl.
type functions struct{}

var _ opengl.GL = functions{}

func (functions) GenBuffer() uint32 {
	var b uint32
	gl.GenBuffers(1, &b)
	return b
}

func (functions) DeleteBuffer(b uint32)  { gl.DeleteBuffers(1, &b) }
func (functions) BindBuffer(t, b uint32) { gl.BindBuffer(t, b) }

func (functions) BufferData(t uint32, size int, data []byte, usage uint32) {
	if len(data) == 0 {
		gl.BufferData(t, size, nil, usage)
		return
	}
	gl.BufferData(t, size, gl.Ptr(data), usage)
}

func (functions) BufferSubData(t uint32, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BufferSubData(t, offset, len(data), gl.Ptr(data))
}

func (functions) CopyBufferSubData(rt, wt uint32, ro, wo, size int) {
	gl.CopyBufferSubData(rt, wt, ro, wo, size)
}

func (functions) BindBufferBase(t, index, b uint32) { gl.BindBufferBase(t, index, b) }

func (functions) BindBufferRange(t, index, b uint32, offset, size int) {
	gl.BindBufferRange(t, index, b, offset, size)
}

func (functions) CreateShader(kind uint32) uint32 { return gl.CreateShader(kind) }
func (functions) CompileShader(s uint32)          { gl.CompileShader(s) }
func (functions) DeleteShader(s uint32)           { gl.DeleteShader(s) }

func (functions) ShaderSource(s uint32, source string) {
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(s, 1, csources, nil)
	free()
}

func (functions) ShaderStatus(s uint32) (bool, string) {
	var status int32
	gl.GetShaderiv(s, gl.COMPILE_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var n int32
	gl.GetShaderiv(s, gl.INFO_LOG_LENGTH, &n)
	log := strings.Repeat("\x00", int(n+1))
	gl.GetShaderInfoLog(s, n, nil, gl.Str(log))
	return false, strings.TrimRight(log, "\x00")
}

func (functions) CreateProgram() uint32    { return gl.CreateProgram() }
func (functions) AttachShader(p, s uint32) { gl.AttachShader(p, s) }
func (functions) LinkProgram(p uint32)     { gl.LinkProgram(p) }
func (functions) DeleteProgram(p uint32)   { gl.DeleteProgram(p) }
func (functions) UseProgram(p uint32)      { gl.UseProgram(p) }

func (functions) ProgramStatus(p uint32) (bool, string) {
	var status int32
	gl.GetProgramiv(p, gl.LINK_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var n int32
	gl.GetProgramiv(p, gl.INFO_LOG_LENGTH, &n)
	log := strings.Repeat("\x00", int(n+1))
	gl.GetProgramInfoLog(p, n, nil, gl.Str(log))
	return false, strings.TrimRight(log, "\x00")
}

func (functions) GetUniformBlockIndex(p uint32, name string) uint32 {
	return gl.GetUniformBlockIndex(p, gl.Str(name+"\x00"))
}

func (functions) UniformBlockBinding(p, block, binding uint32) {
	gl.UniformBlockBinding(p, block, binding)
}

func (functions) GenVertexArray() uint32 {
	var v uint32
	gl.GenVertexArrays(1, &v)
	return v
}

func (functions) DeleteVertexArray(v uint32)       { gl.DeleteVertexArrays(1, &v) }
func (functions) BindVertexArray(v uint32)         { gl.BindVertexArray(v) }
func (functions) EnableVertexAttribArray(i uint32) { gl.EnableVertexAttribArray(i) }
func (functions) VertexAttribDivisor(i, d uint32)  { gl.VertexAttribDivisor(i, d) }

func (functions) VertexAttribPointer(i uint32, size int32, kind uint32, normalized bool, stride int32, offset int) {
	gl.VertexAttribPointerWithOffset(i, size, kind, normalized, stride, uintptr(offset))
}

func (functions) VertexAttribIPointer(i uint32, size int32, kind uint32, stride int32, offset int) {
	gl.VertexAttribIPointerWithOffset(i, size, kind, stride, uintptr(offset))
}

func (functions) GenFramebuffer() uint32 {
	var fb uint32
	gl.GenFramebuffers(1, &fb)
	return fb
}

func (functions) DeleteFramebuffer(fb uint32)            { gl.DeleteFramebuffers(1, &fb) }
func (functions) BindFramebuffer(t, fb uint32)           { gl.BindFramebuffer(t, fb) }
func (functions) CheckFramebufferStatus(t uint32) uint32 { return gl.CheckFramebufferStatus(t) }

func (functions) FramebufferRenderbuffer(t, attachment, rbt, rb uint32) {
	gl.FramebufferRenderbuffer(t, attachment, rbt, rb)
}

func (functions) DrawBuffers(b []uint32) {
	if len(b) == 0 {
		return
	}
	gl.DrawBuffers(int32(len(b)), &b[0]) //nolint:gosec // few attachments
}

func (functions) GenRenderbuffer() uint32 {
	var rb uint32
	gl.GenRenderbuffers(1, &rb)
	return rb
}

func (functions) DeleteRenderbuffer(rb uint32)  { gl.DeleteRenderbuffers(1, &rb) }
func (functions) BindRenderbuffer(t, rb uint32) { gl.BindRenderbuffer(t, rb) }

func (functions) RenderbufferStorage(t, format uint32, w, h int32) {
	gl.RenderbufferStorage(t, format, w, h)
}

func (functions) Viewport(x, y, w, h int32)     { gl.Viewport(x, y, w, h) }
func (functions) ClearColor(r, g, b, a float32) { gl.ClearColor(r, g, b, a) }
func (functions) ClearDepth(d float64)          { gl.ClearDepth(d) }
func (functions) ClearStencil(s int32)          { gl.ClearStencil(s) }
func (functions) Clear(mask uint32)             { gl.Clear(mask) }

func (functions) Enable(c uint32)              { gl.Enable(c) }
func (functions) Disable(c uint32)             { gl.Disable(c) }
func (functions) CullFace(m uint32)            { gl.CullFace(m) }
func (functions) FrontFace(m uint32)           { gl.FrontFace(m) }
func (functions) DepthFunc(fn uint32)          { gl.DepthFunc(fn) }
func (functions) DepthMask(write bool)         { gl.DepthMask(write) }
func (functions) DepthRange(near, far float64) { gl.DepthRange(near, far) }

func (functions) BlendFuncSeparate(sc, dc, sa, da uint32) { gl.BlendFuncSeparate(sc, dc, sa, da) }
func (functions) BlendEquationSeparate(c, a uint32)       { gl.BlendEquationSeparate(c, a) }

func (functions) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	gl.DrawArraysInstanced(mode, first, count, instances)
}

func (functions) DrawElementsInstanced(mode uint32, count int32, kind uint32, offset int, instances int32) {
	gl.DrawElementsInstanced(mode, count, kind, gl.PtrOffset(offset), instances)
}

func (functions) Finish() { gl.Finish() }
