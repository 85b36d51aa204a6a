package opengl

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
)

// buffer is a GL buffer object. Uploads go through the copy-write target
// so binding them never disturbs vertex array state.
type buffer struct {
	r     *Renderer
	label string
	usage gpuexec.BufferUsage
	width gpuexec.IndexWidth

	mu        sync.Mutex
	size      int
	destroyed bool

	// Owned by the GL goroutine.
	name     uint32
	capacity int
}

// NewBuffer queues creation of a buffer holding desc.Contents.
func (r *Renderer) NewBuffer(desc gpuexec.BufferDescriptor) (gpuexec.Buffer, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	b := &buffer{
		r:     r,
		label: desc.Label,
		usage: desc.Usage,
		width: desc.IndexWidth,
		size:  desc.InitialSize(),
	}
	data := make([]byte, b.size)
	copy(data, desc.Contents)
	if err := r.enqueue(func() { b.create(r.gl, data) }); err != nil {
		return nil, fmt.Errorf("opengl: buffer %q: %w", desc.Label, err)
	}
	return b, nil
}

func (b *buffer) Backend() gpuexec.BackendKind   { return gpuexec.BackendImmediate }
func (b *buffer) Label() string                  { return b.label }
func (b *buffer) Usage() gpuexec.BufferUsage     { return b.usage }
func (b *buffer) IndexWidth() gpuexec.IndexWidth { return b.width }

func (b *buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Write queues an upload of a private copy of data.
func (b *buffer) Write(offset int, data []byte) error {
	if offset < 0 {
		return fmt.Errorf("%w: buffer %q write at offset %d", gpuexec.ErrInvalidDescriptor, b.label, offset)
	}
	if len(data) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return gpuexec.ErrDestroyed
	}

	op := b.r.uploads.Acquire().(*uploadOp)
	op.buf, op.offset = b, offset
	op.data = append(op.data[:0], data...)
	if err := b.r.sched.Submit(op, b.r.uploads); err != nil {
		b.r.uploads.Give(op)
		return fmt.Errorf("opengl: buffer %q: %w", b.label, b.r.mapErr(err))
	}
	b.size = max(b.size, offset+len(data))
	return nil
}

// Destroy queues deletion behind every upload and frame already submitted.
func (b *buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.mu.Unlock()
	b.r.release(b)
}

func (b *buffer) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

func (b *buffer) create(gl GL, data []byte) {
	b.name = gl.GenBuffer()
	gl.BindBuffer(glCopyWriteBuffer, b.name)
	gl.BufferData(glCopyWriteBuffer, len(data), data, glDynamicDraw)
	b.capacity = len(data)
}

// upload writes data at offset, reallocating when it does not fit. The
// old store is copied into the new one so earlier contents survive.
func (b *buffer) upload(gl GL, offset int, data []byte) {
	end := offset + len(data)
	if end > b.capacity {
		grown := max(end, 2*b.capacity)
		name := gl.GenBuffer()
		gl.BindBuffer(glCopyWriteBuffer, name)
		gl.BufferData(glCopyWriteBuffer, grown, nil, glDynamicDraw)
		if b.capacity > 0 {
			gl.BindBuffer(glCopyReadBuffer, b.name)
			gl.CopyBufferSubData(glCopyReadBuffer, glCopyWriteBuffer, 0, 0, b.capacity)
		}
		if b.name != 0 {
			gl.DeleteBuffer(b.name)
		}
		b.name, b.capacity = name, grown
	}
	gl.BindBuffer(glCopyWriteBuffer, b.name)
	gl.BufferSubData(glCopyWriteBuffer, offset, data)
}

func (b *buffer) release(gl GL) {
	if b.name != 0 {
		gl.DeleteBuffer(b.name)
		b.name, b.capacity = 0, 0
	}
}

// glIndexType maps an index width to the GL element type.
func glIndexType(w gpuexec.IndexWidth) uint32 {
	switch w {
	case gpuexec.Index8:
		return glUnsignedByte
	case gpuexec.Index16:
		return glUnsignedShort
	default:
		return glUnsignedInt
	}
}

func (r *Renderer) ownBuffer(b gpuexec.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf.r != r {
		return nil, fmt.Errorf("%w: buffer %T", gpuexec.ErrForeignResource, b)
	}
	if buf.isDestroyed() {
		return nil, fmt.Errorf("buffer %q: %w", buf.label, gpuexec.ErrDestroyed)
	}
	return buf, nil
}
