// Package ledger defers the destruction of GPU resources until every frame
// that could reference them has retired.
//
// Explicit APIs forbid destroying a buffer, shader module or texture while
// a submitted command buffer may still use it. Instead of reference
// counting, resources are parked in frame slots:
//
//	MarkForDeletion ──▶ pending ──CommitFrame(s)──▶ slot s ──RetireFrame(s)──▶ Destroy
//
// pending holds entries marked while the next frame is being recorded.
// CommitFrame moves them into the slot of the frame that was just
// submitted, and RetireFrame runs them once that frame completed.
// Entries therefore never run before a frame submitted after they were
// marked has completed.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
)

// Entry is a deferred destruction.
type Entry struct {
	// Label identifies the resource in logs.
	Label string

	// Destroy releases the backend handle. It runs exactly once.
	Destroy func()
}

// Ledger tracks deferred destructions per frame slot.
//
// Thread safety: MarkForDeletion is safe to call from any goroutine.
// CommitFrame and RetireFrame are called by the frame submission path.
type Ledger struct {
	mu        sync.Mutex
	pending   []Entry
	slots     [][]Entry
	destroyed uint64
	panics    uint64
}

// New creates a ledger with frameSlots slots. A value below 1 is treated as 1.
func New(frameSlots int) *Ledger {
	if frameSlots < 1 {
		frameSlots = 1
	}
	return &Ledger{slots: make([][]Entry, frameSlots)}
}

// Slots returns the number of frame slots.
func (l *Ledger) Slots() int {
	return len(l.slots)
}

// MarkForDeletion schedules e for destruction after the next submitted
// frame retires. It never blocks on the GPU.
func (l *Ledger) MarkForDeletion(e Entry) {
	if e.Destroy == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, e)
	l.mu.Unlock()
}

// CommitFrame binds every pending entry to slot. Call it right after the
// frame recorded in slot was submitted.
func (l *Ledger) CommitFrame(slot int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.validSlot(slot) {
		return
	}
	if len(l.pending) == 0 {
		return
	}
	l.slots[slot] = append(l.slots[slot], l.pending...)
	clear(l.pending)
	l.pending = l.pending[:0]
}

// RetireFrame destroys every entry bound to slot. Call it once the frame
// last submitted in slot has completed on the GPU. It returns the number
// of entries destroyed.
func (l *Ledger) RetireFrame(slot int) int {
	l.mu.Lock()
	if !l.validSlot(slot) {
		l.mu.Unlock()
		return 0
	}
	entries := l.slots[slot]
	l.slots[slot] = nil
	l.mu.Unlock()

	return l.destroy(entries)
}

// RetireAll destroys every pending and slotted entry. Call it only after
// the whole device is idle, typically at renderer teardown.
func (l *Ledger) RetireAll() int {
	l.mu.Lock()
	var entries []Entry
	for i := range l.slots {
		entries = append(entries, l.slots[i]...)
		l.slots[i] = nil
	}
	entries = append(entries, l.pending...)
	l.pending = nil
	l.mu.Unlock()

	return l.destroy(entries)
}

// Pending returns the number of entries not yet committed to a slot.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// SlotLen returns the number of entries waiting on slot.
func (l *Ledger) SlotLen(slot int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot < 0 || slot >= len(l.slots) {
		return 0
	}
	return len(l.slots[slot])
}

// Stats returns ledger counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{
		Pending:   len(l.pending),
		Destroyed: l.destroyed,
		Panics:    l.panics,
	}
	for _, entries := range l.slots {
		s.InFlight += len(entries)
	}
	return s
}

// validSlot reports whether slot is in range. Caller holds mu.
func (l *Ledger) validSlot(slot int) bool {
	if slot >= 0 && slot < len(l.slots) {
		return true
	}
	slogger().Warn("ledger: frame slot out of range", "slot", slot, "slots", len(l.slots))
	return false
}

// destroy runs entries outside the lock, in the order they were marked.
func (l *Ledger) destroy(entries []Entry) int {
	var panics uint64
	for _, e := range entries {
		if !runDestroy(e) {
			panics++
		}
	}
	if len(entries) > 0 {
		slogger().Debug("ledger: destroyed entries", "count", len(entries))
	}

	l.mu.Lock()
	l.destroyed += uint64(len(entries))
	l.panics += panics
	l.mu.Unlock()
	return len(entries)
}

func runDestroy(e Entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			slogger().Error("ledger: destroy panicked", "label", e.Label, "panic", fmt.Sprint(r))
		}
	}()
	e.Destroy()
	return true
}

// Stats is a point-in-time view of a Ledger.
type Stats struct {
	Pending   int    // Marked, not yet committed to a frame.
	InFlight  int    // Committed, waiting for their frame to retire.
	Destroyed uint64 // Destroy closures run so far.
	Panics    uint64
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pending", s.Pending),
		slog.Int("in_flight", s.InFlight),
		slog.Uint64("destroyed", s.Destroyed),
	)
}
