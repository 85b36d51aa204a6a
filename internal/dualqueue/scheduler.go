// Package dualqueue implements a single-consumer scheduler that executes
// GPU operations on one dedicated goroutine locked to an OS thread.
//
// Producers append to a "next" queue under a mutex. The execution
// goroutine swaps "next" with its drained "current" queue and runs every
// operation outside the lock, in submission order. Operations that came
// from an oppool.Pool are given back to it after they ran.
//
//	producers ──Submit──▶ next ──swap──▶ current ──Execute──▶ pool.Give
//
// This is the execution model immediate-mode APIs such as OpenGL
// require: every call must come from the thread that owns the context.
package dualqueue

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpuexec/internal/oppool"
)

var (
	// ErrStopped is returned by Submit and Start once Stop was called.
	ErrStopped = errors.New("dualqueue: scheduler stopped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("dualqueue: scheduler already started")

	// ErrNilOperation is returned when submitting a nil operation.
	ErrNilOperation = errors.New("dualqueue: nil operation")
)

// Operation is one unit of GPU work.
type Operation = oppool.Operation

// Recycler takes an executed operation back. *oppool.Pool implements it.
type Recycler interface {
	Give(oppool.Operation)
}

// Func adapts an ordinary function to an Operation.
type Func func()

// Execute calls f.
func (f Func) Execute() { f() }

// queued is an operation plus the pool it must be returned to.
// A nil pool marks a one-shot operation.
type queued struct {
	op   Operation
	pool Recycler
}

// Scheduler is the dual-queue execution engine.
//
// Thread safety: Submit, Do, Stats and State are safe for concurrent use.
// Stop must not be called from inside an operation.
type Scheduler struct {
	name     string
	setup    func() error
	teardown func()

	mu       sync.Mutex
	cond     *sync.Cond
	current  []queued
	next     []queued
	started  bool
	stopping bool

	state atomic.Int32
	done  chan struct{}

	cycles   atomic.Uint64
	executed atomic.Uint64
	panics   atomic.Uint64
}

// New creates a scheduler. The execution goroutine is not started until
// Start is called.
func New(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Scheduler{
		name:     o.name,
		setup:    o.setup,
		teardown: o.teardown,
		current:  make([]queued, 0, o.capacity),
		next:     make([]queued, 0, o.capacity),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.state.Store(int32(StateCreated))
	return s
}

// Name returns the scheduler name used in logs.
func (s *Scheduler) Name() string { return s.name }

// Start launches the execution goroutine and waits until its thread
// setup hook has run. If the hook fails, the goroutine exits, the
// scheduler is shut down, operations queued before Start are dropped as
// by Stop, and the hook error is returned.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	ready := make(chan error, 1)
	go s.run(ready)
	if err := <-ready; err != nil {
		<-s.done
		return fmt.Errorf("dualqueue: %s thread setup: %w", s.name, err)
	}
	slogger().Debug("dualqueue: started", "scheduler", s.name)
	return nil
}

// Submit appends op to the next queue and wakes the execution goroutine.
// pool may be nil for one-shot operations. Submit never waits for the
// operation to run.
func (s *Scheduler) Submit(op Operation, pool Recycler) error {
	if op == nil {
		return ErrNilOperation
	}
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrStopped
	}
	s.next = append(s.next, queued{op: op, pool: pool})
	s.mu.Unlock()
	s.cond.Signal()
	return nil
}

// Do runs fn on the execution goroutine and waits for it to finish.
// Side effects of fn are visible to the caller when Do returns.
func (s *Scheduler) Do(fn func() error) error {
	op := NewSync(fn)
	if err := s.Submit(op, nil); err != nil {
		return err
	}
	return op.Wait()
}

// Stop requests shutdown and blocks until every operation accepted so far
// has run and the execution goroutine has exited. Stop is idempotent.
//
// Stopping a scheduler that was never started runs nothing: queued
// operations are dropped and Do callers receive ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasStarted := s.started
	alreadyStopping := s.stopping
	s.stopping = true
	s.started = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if !wasStarted && !alreadyStopping {
		s.abandon("stopped before start")
		s.state.Store(int32(StateShutdown))
		close(s.done)
	}
	<-s.done
}

// Done returns a channel closed once the execution goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// State reports the current state of the execution goroutine.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Stats returns execution counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending := len(s.next)
	s.mu.Unlock()
	return Stats{
		Cycles:   s.cycles.Load(),
		Executed: s.executed.Load(),
		Panics:   s.panics.Load(),
		Pending:  pending,
	}
}

// run is the execution goroutine.
func (s *Scheduler) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	if s.setup != nil {
		if err := s.setup(); err != nil {
			s.mu.Lock()
			s.stopping = true
			s.mu.Unlock()
			s.abandon("thread setup failed")
			s.state.Store(int32(StateShutdown))
			ready <- err
			return
		}
	}
	ready <- nil

	for {
		s.mu.Lock()
		s.state.Store(int32(StateIdle))
		for len(s.next) == 0 && !s.stopping {
			s.cond.Wait()
		}
		s.current, s.next = s.next, s.current[:0]
		if len(s.current) == 0 && s.stopping {
			s.mu.Unlock()
			break
		}
		s.state.Store(int32(StateDraining))
		batch := s.current
		s.mu.Unlock()

		s.drain(batch)
	}

	if s.teardown != nil {
		s.teardown()
	}
	s.state.Store(int32(StateShutdown))
	slogger().Debug("dualqueue: stopped", "scheduler", s.name, "stats", s.Stats())
}

// abandon drops the next queue without running it. *Sync waiters are
// released with ErrStopped and pooled operations go back to their pools.
// Caller has set stopping and no execution goroutine is draining.
func (s *Scheduler) abandon(reason string) {
	s.mu.Lock()
	dropped := s.next
	s.next = nil
	s.mu.Unlock()
	if len(dropped) == 0 {
		return
	}

	waiters := 0
	for i := range dropped {
		q := dropped[i]
		dropped[i] = queued{}
		if op, ok := q.op.(*Sync); ok {
			op.fail(ErrStopped)
			waiters++
		}
		if q.pool != nil {
			q.pool.Give(q.op)
		}
	}
	slogger().Warn("dualqueue: dropped operations that never ran",
		"scheduler", s.name, "reason", reason, "count", len(dropped), "waiters", waiters)
}

// drain executes batch in order, returning pooled operations to their
// pools. Entries are cleared so the backing array holds no references
// once it becomes the next queue again.
func (s *Scheduler) drain(batch []queued) {
	for i := range batch {
		q := batch[i]
		batch[i] = queued{}
		s.execute(q.op)
		if q.pool != nil {
			q.pool.Give(q.op)
		}
	}
	s.executed.Add(uint64(len(batch)))
	s.cycles.Add(1)
}

func (s *Scheduler) execute(op Operation) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			slogger().Error("dualqueue: operation panicked",
				"scheduler", s.name, "op", fmt.Sprintf("%T", op), "panic", r)
		}
	}()
	op.Execute()
}
