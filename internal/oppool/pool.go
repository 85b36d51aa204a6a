// Package oppool provides fixed-capacity recycling stores for operation
// descriptors consumed by the GPU execution goroutine.
//
// A Pool pre-allocates its slots at construction so the hot submission
// path does not allocate. When every slot is checked out, Acquire
// allocates a new slot instead of failing; the pool then keeps the extra
// slot for later reuse.
package oppool

import (
	"log/slog"
	"sync"
)

// Operation is one unit of deferred GPU work.
//
// Implementations used with a Pool must be pointer types: the pool tracks
// slot ownership by identity.
type Operation interface {
	Execute()
}

// Resetter is implemented by operations that hold client data. Reset is
// called when the slot is given back, so a free slot never retains
// payloads from its previous use.
type Resetter interface {
	Reset()
}

// slotState tracks whether a slot owned by the pool is free or checked out.
type slotState uint8

const (
	slotFree slotState = iota
	slotCheckedOut
)

// Pool is a recycling store of operation slots of a single shape.
//
// Thread safety: Pool is safe for concurrent use. Acquire is normally
// called by producers and Give by the execution goroutine after the
// operation completed.
type Pool struct {
	name  string
	newOp func() Operation

	mu          sync.Mutex
	free        []Operation
	slots       map[Operation]slotState
	capacity    int
	highWater   int
	checkedOut  int
	allocations int
	rejected    int
}

// NewPool creates a pool named name with capacity slots built by newOp.
// A capacity below 1 is treated as 1.
func NewPool(name string, capacity int, newOp func() Operation) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		name:     name,
		newOp:    newOp,
		free:     make([]Operation, 0, capacity),
		slots:    make(map[Operation]slotState, capacity),
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		op := newOp()
		p.slots[op] = slotFree
		p.free = append(p.free, op)
	}
	return p
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string { return p.name }

// Acquire returns a free slot, allocating a new one if none is available.
func (p *Pool) Acquire() Operation {
	p.mu.Lock()
	var op Operation
	grew := false
	if n := len(p.free); n > 0 {
		op = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		op = p.newOp()
		p.capacity++
		p.allocations++
		grew = true
	}
	p.slots[op] = slotCheckedOut
	p.checkedOut++
	if p.checkedOut > p.highWater {
		p.highWater = p.checkedOut
	}
	capacity := p.capacity
	p.mu.Unlock()

	if grew {
		slogger().Debug("oppool: pool grew", "pool", p.name, "capacity", capacity)
	}
	return op
}

// Give returns a checked-out slot to the free list.
//
// Giving a slot this pool does not own, or one that is already free, is a
// programming error. The call is logged and ignored; pool state is left
// unchanged.
func (p *Pool) Give(op Operation) {
	if op == nil {
		return
	}

	p.mu.Lock()
	state, owned := p.slots[op]
	if !owned || state != slotCheckedOut {
		p.rejected++
		p.mu.Unlock()
		slogger().Warn("oppool: ignoring give of slot not checked out from pool",
			"pool", p.name, "owned", owned)
		return
	}
	p.slots[op] = slotFree
	p.checkedOut--
	p.mu.Unlock()

	// Reset outside the lock: the slot is unreachable from the free list
	// until it is appended below.
	if r, ok := op.(Resetter); ok {
		r.Reset()
	}

	p.mu.Lock()
	p.free = append(p.free, op)
	p.mu.Unlock()
}

// Owns reports whether op is a slot of this pool.
func (p *Pool) Owns(op Operation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.slots[op]
	return ok
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:        p.name,
		Capacity:    p.capacity,
		Free:        len(p.free),
		CheckedOut:  p.checkedOut,
		HighWater:   p.highWater,
		Allocations: p.allocations,
		Rejected:    p.rejected,
	}
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Name        string
	Capacity    int // Slots owned by the pool, free or checked out.
	Free        int
	CheckedOut  int
	HighWater   int // Maximum simultaneous checkouts observed.
	Allocations int // Slots allocated after construction.
	Rejected    int // Give calls ignored as invalid.
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", s.Name),
		slog.Int("capacity", s.Capacity),
		slog.Int("free", s.Free),
		slog.Int("checked_out", s.CheckedOut),
		slog.Int("high_water", s.HighWater),
		slog.Int("allocations", s.Allocations),
	)
}
