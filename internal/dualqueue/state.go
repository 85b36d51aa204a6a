package dualqueue

import "log/slog"

// State is the lifecycle state of the execution goroutine.
type State int32

const (
	// StateCreated means Start has not been called yet.
	StateCreated State = iota
	// StateIdle means the goroutine is waiting for work.
	StateIdle
	// StateDraining means the goroutine is executing a swapped batch.
	StateDraining
	// StateShutdown is terminal.
	StateShutdown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateIdle:
		return "Idle"
	case StateDraining:
		return "Draining"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Stats holds scheduler counters.
type Stats struct {
	Cycles   uint64 // Completed drain cycles.
	Executed uint64 // Operations executed, including ones that panicked.
	Panics   uint64
	Pending  int // Operations waiting in the next queue.
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("cycles", s.Cycles),
		slog.Uint64("executed", s.Executed),
		slog.Uint64("panics", s.Panics),
		slog.Int("pending", s.Pending),
	)
}
