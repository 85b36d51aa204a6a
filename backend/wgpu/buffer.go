package wgpu

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gogpu/gpuexec"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyAlign is the offset and size alignment of queue.WriteBuffer.
const copyAlign = 4

func alignDown(v int) int { return v &^ (copyAlign - 1) }
func alignUp(v int) int   { return (v + copyAlign - 1) &^ (copyAlign - 1) }

// buffer keeps a host copy of its contents in the client layout. Device
// writes are taken from the copy so unaligned client writes can be widened
// to the copy alignment, and so growth can re-upload everything.
//
// 8-bit index buffers are stored as 16-bit indices on the device.
type buffer struct {
	r     *Renderer
	label string
	usage gpuexec.BufferUsage
	width gpuexec.IndexWidth

	mu        sync.Mutex
	handle    hal.Buffer
	capacity  int // device bytes
	shadow    []byte
	destroyed bool
}

var _ gpuexec.Buffer = (*buffer)(nil)

// NewBuffer creates a buffer and uploads desc.Contents.
func (r *Renderer) NewBuffer(desc gpuexec.BufferDescriptor) (gpuexec.Buffer, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	b := &buffer{
		r:      r,
		label:  desc.Label,
		usage:  desc.Usage,
		shadow: make([]byte, desc.InitialSize()),
	}
	if desc.Usage == gpuexec.BufferUsageIndex {
		b.width = desc.IndexWidth
	}
	copy(b.shadow, desc.Contents)

	handle, capacity, err := b.allocate(b.deviceSize(len(b.shadow)))
	if err != nil {
		return nil, err
	}
	if err := r.queue.WriteBuffer(handle, 0, b.deviceBytes(b.shadow, 0, capacity)); err != nil {
		r.device.DestroyBuffer(handle)
		return nil, fmt.Errorf("wgpu: upload buffer %q: %w", b.label, err)
	}
	b.handle, b.capacity = handle, capacity
	return b, nil
}

func (b *buffer) Backend() gpuexec.BackendKind   { return gpuexec.BackendExplicit }
func (b *buffer) Label() string                  { return b.label }
func (b *buffer) Usage() gpuexec.BufferUsage     { return b.usage }
func (b *buffer) IndexWidth() gpuexec.IndexWidth { return b.width }

// Size returns the size in client bytes.
func (b *buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shadow)
}

// Write uploads data at offset, growing the buffer when needed. After
// growth, DescriptorSets created earlier still reference the old handle
// and must be recreated. A failed write leaves size and contents as they
// were.
func (b *buffer) Write(offset int, data []byte) error {
	if offset < 0 {
		return fmt.Errorf("%w: buffer %q write at negative offset", gpuexec.ErrInvalidDescriptor, b.label)
	}
	if len(data) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return fmt.Errorf("%w: buffer %q", gpuexec.ErrDestroyed, b.label)
	}

	end := offset + len(data)
	shadow := b.shadow
	if end > len(shadow) {
		// Appending only touches bytes past len(b.shadow).
		shadow = append(shadow, make([]byte, end-len(shadow))...)
	}
	var prev []byte
	if offset < len(b.shadow) {
		prev = bytes.Clone(b.shadow[offset:min(end, len(b.shadow))])
	}
	copy(shadow[offset:end], data)

	if err := b.uploadLocked(shadow, offset, end); err != nil {
		if prev != nil {
			copy(b.shadow[offset:], prev)
		}
		return err
	}
	b.shadow = shadow
	return nil
}

// uploadLocked writes the client range [lo, hi) of shadow to the device,
// growing the device buffer when shadow no longer fits.
func (b *buffer) uploadLocked(shadow []byte, lo, hi int) error {
	if need := b.deviceSize(len(shadow)); need > b.capacity {
		return b.growLocked(shadow, need)
	}
	dlo, dhi := b.deviceRange(lo, hi)
	dlo, dhi = alignDown(dlo), min(alignUp(dhi), b.capacity)
	if err := b.r.queue.WriteBuffer(b.handle, uint64(dlo), b.deviceBytes(shadow, dlo, dhi)); err != nil { //nolint:gosec // non-negative
		return fmt.Errorf("wgpu: write buffer %q: %w", b.label, err)
	}
	return nil
}

// growLocked replaces the device buffer with one of at least need bytes
// holding shadow. On error the current device buffer is kept.
func (b *buffer) growLocked(shadow []byte, need int) error {
	size := max(need, b.capacity*2)
	handle, capacity, err := b.allocate(size)
	if err != nil {
		return err
	}
	if err := b.r.queue.WriteBuffer(handle, 0, b.deviceBytes(shadow, 0, capacity)); err != nil {
		// Never referenced by a submission.
		b.r.device.DestroyBuffer(handle)
		return fmt.Errorf("wgpu: upload grown buffer %q: %w", b.label, err)
	}
	old := b.handle
	b.handle, b.capacity = handle, capacity

	device := b.r.device
	b.r.destroyLater("buffer "+b.label, func() { device.DestroyBuffer(old) })
	gpuexec.Logger().Debug("wgpu: buffer grown", "label", b.label, "capacity", capacity)
	return nil
}

func (b *buffer) allocate(size int) (hal.Buffer, int, error) {
	capacity := alignUp(max(size, copyAlign))
	handle, err := b.r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label,
		Size:  uint64(capacity), //nolint:gosec // positive
		Usage: halBufferUsage(b.usage),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("wgpu: create buffer %q: %w", b.label, err)
	}
	return handle, capacity, nil
}

func halBufferUsage(u gpuexec.BufferUsage) gputypes.BufferUsage {
	switch u {
	case gpuexec.BufferUsageIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	case gpuexec.BufferUsageUniform:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	}
}

// deviceSize converts a client size to device bytes.
func (b *buffer) deviceSize(n int) int {
	if b.width == gpuexec.Index8 {
		return n * 2
	}
	return n
}

// deviceRange converts the client byte range [lo, hi) to device bytes.
func (b *buffer) deviceRange(lo, hi int) (int, int) {
	return b.deviceSize(lo), b.deviceSize(hi)
}

// deviceBytes renders the device bytes [lo, hi) from the host copy
// shadow. Bytes past the client contents are zero.
func (b *buffer) deviceBytes(shadow []byte, lo, hi int) []byte {
	out := make([]byte, hi-lo)
	if b.width != gpuexec.Index8 {
		if lo < len(shadow) {
			copy(out, shadow[lo:min(hi, len(shadow))])
		}
		return out
	}
	// Little-endian uint16: the low byte holds the index.
	for i := lo; i < hi; i++ {
		if i%2 == 0 && i/2 < len(shadow) {
			out[i-lo] = shadow[i/2]
		}
	}
	return out
}

// indexFormat returns the device index format.
func (b *buffer) indexFormat() gputypes.IndexFormat {
	if b.width == gpuexec.Index32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// current returns the device buffer, or ErrDestroyed.
func (b *buffer) current() (hal.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, fmt.Errorf("%w: buffer %q", gpuexec.ErrDestroyed, b.label)
	}
	return b.handle, nil
}

// Destroy defers releasing the device buffer until frames using it retired.
func (b *buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	handle := b.handle
	b.handle = nil
	b.shadow = nil
	b.mu.Unlock()

	device := b.r.device
	b.r.destroyLater("buffer "+b.label, func() { device.DestroyBuffer(handle) })
}

func (r *Renderer) ownBuffer(buf gpuexec.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.r != r {
		return nil, fmt.Errorf("%w: buffer %q", gpuexec.ErrForeignResource, buf.Label())
	}
	return b, nil
}
