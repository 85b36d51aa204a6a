package opengl

// glResource is an object whose GL names are deleted on the GL goroutine.
type glResource interface {
	release(gl GL)
}

// uploadOp writes client bytes into a buffer. data is a private copy.
type uploadOp struct {
	buf    *buffer
	offset int
	data   []byte
}

func (op *uploadOp) Execute() {
	op.buf.upload(op.buf.r.gl, op.offset, op.data)
}

func (op *uploadOp) Reset() {
	op.buf = nil
	op.offset = 0
	op.data = op.data[:0]
}

// deleteOp releases a destroyed resource after every earlier operation ran.
type deleteOp struct {
	r   *Renderer
	res glResource
}

func (op *deleteOp) Execute() {
	op.res.release(op.r.gl)
}

func (op *deleteOp) Reset() {
	op.r, op.res = nil, nil
}
