package opengl

// GL is the subset of the OpenGL 3.3 core profile the immediate backend
// calls. Every method must be called on the goroutine that owns the
// context. Object names are uint32 as in the C API; byte slices replace
// pointer-and-size pairs.
//
// The gogl subpackage implements GL on top of go-gl; tests use a
// recording fake.
type GL interface {
	GenBuffer() uint32
	DeleteBuffer(buffer uint32)
	BindBuffer(target, buffer uint32)
	BufferData(target uint32, size int, data []byte, usage uint32)
	BufferSubData(target uint32, offset int, data []byte)
	CopyBufferSubData(readTarget, writeTarget uint32, readOffset, writeOffset, size int)
	BindBufferBase(target, index, buffer uint32)
	BindBufferRange(target, index, buffer uint32, offset, size int)

	CreateShader(kind uint32) uint32
	ShaderSource(shader uint32, source string)
	CompileShader(shader uint32)
	// ShaderStatus returns the compile status and the info log.
	ShaderStatus(shader uint32) (bool, string)
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	LinkProgram(program uint32)
	// ProgramStatus returns the link status and the info log.
	ProgramStatus(program uint32) (bool, string)
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	GetUniformBlockIndex(program uint32, name string) uint32
	UniformBlockBinding(program, block, binding uint32)

	GenVertexArray() uint32
	DeleteVertexArray(vao uint32)
	BindVertexArray(vao uint32)
	EnableVertexAttribArray(index uint32)
	VertexAttribPointer(index uint32, size int32, kind uint32, normalized bool, stride int32, offset int)
	VertexAttribIPointer(index uint32, size int32, kind uint32, stride int32, offset int)
	VertexAttribDivisor(index, divisor uint32)

	GenFramebuffer() uint32
	DeleteFramebuffer(fb uint32)
	BindFramebuffer(target, fb uint32)
	FramebufferRenderbuffer(target, attachment, rbTarget, rb uint32)
	CheckFramebufferStatus(target uint32) uint32
	DrawBuffers(buffers []uint32)

	GenRenderbuffer() uint32
	DeleteRenderbuffer(rb uint32)
	BindRenderbuffer(target, rb uint32)
	RenderbufferStorage(target, format uint32, width, height int32)

	Viewport(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	ClearDepth(depth float64)
	ClearStencil(s int32)
	Clear(mask uint32)

	Enable(capability uint32)
	Disable(capability uint32)
	CullFace(mode uint32)
	FrontFace(mode uint32)
	DepthFunc(fn uint32)
	DepthMask(write bool)
	DepthRange(near, far float64)
	BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha uint32)
	BlendEquationSeparate(modeRGB, modeAlpha uint32)

	DrawArraysInstanced(mode uint32, first, count, instances int32)
	DrawElementsInstanced(mode uint32, count int32, kind uint32, offset int, instances int32)

	Finish()
}

// OpenGL enum values used by the backend.
const (
	glFalse = 0

	glArrayBuffer        = 0x8892
	glElementArrayBuffer = 0x8893
	glUniformBuffer      = 0x8A11
	glCopyReadBuffer     = 0x8F36
	glCopyWriteBuffer    = 0x8F37
	glStaticDraw         = 0x88E4
	glDynamicDraw        = 0x88E8

	glVertexShader   = 0x8B31
	glFragmentShader = 0x8B30
	glInvalidIndex   = 0xFFFFFFFF

	glFramebuffer            = 0x8D40
	glRenderbuffer           = 0x8D41
	glFramebufferComplete    = 0x8CD5
	glColorAttachment0       = 0x8CE0
	glDepthAttachment        = 0x8D00
	glDepthStencilAttachment = 0x821A

	glRGBA8             = 0x8058
	glSRGB8Alpha8       = 0x8C43
	glRGBA16F           = 0x881A
	glDepthComponent16  = 0x81A5
	glDepthComponent24  = 0x81A6
	glDepthComponent32F = 0x8CAC
	glDepth24Stencil8   = 0x88F0

	glColorBufferBit   = 0x00004000
	glDepthBufferBit   = 0x00000100
	glStencilBufferBit = 0x00000400

	glCullFaceCap = 0x0B44
	glDepthTest   = 0x0B71
	glBlend       = 0x0BE2
	glFront       = 0x0404
	glBack        = 0x0405
	glCW          = 0x0900
	glCCW         = 0x0901

	glNever    = 0x0200
	glLess     = 0x0201
	glEqual    = 0x0202
	glLEqual   = 0x0203
	glGreater  = 0x0204
	glNotEqual = 0x0205
	glGEqual   = 0x0206
	glAlways   = 0x0207

	glZero                = 0
	glOne                 = 1
	glSrcColor            = 0x0300
	glOneMinusSrcColor    = 0x0301
	glSrcAlpha            = 0x0302
	glOneMinusSrcAlpha    = 0x0303
	glDstAlpha            = 0x0304
	glOneMinusDstAlpha    = 0x0305
	glDstColor            = 0x0306
	glOneMinusDstColor    = 0x0307
	glFuncAdd             = 0x8006
	glFuncSubtract        = 0x800A
	glFuncReverseSubtract = 0x800B
	glMin                 = 0x8007
	glMax                 = 0x8008

	glPoints        = 0x0000
	glLines         = 0x0001
	glLineStrip     = 0x0003
	glTriangles     = 0x0004
	glTriangleStrip = 0x0005

	glByte          = 0x1400
	glUnsignedByte  = 0x1401
	glShort         = 0x1402
	glUnsignedShort = 0x1403
	glInt           = 0x1404
	glUnsignedInt   = 0x1405
	glFloat         = 0x1406
	glHalfFloat     = 0x140B
)
