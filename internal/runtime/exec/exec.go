// Package exec provides thread-pool style task executors and a registry of
// named executor instances. An Executor multiplexes any number of spawned
// tasks onto a fixed pool of worker goroutines; handles are cheap references
// to the same underlying pool.
package exec

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/drblury/reqflow/internal/runtime/ids"
	"github.com/drblury/reqflow/internal/runtime/metrics"
)

// ErrTaskPanicked is returned by Run and Await when the submitted task
// terminated by panicking instead of returning.
var ErrTaskPanicked = errors.New("reqflow: task panicked")

// ExecutorID uniquely names an Executor. It is a 128-bit time-sortable ULID.
type ExecutorID ulid.ULID

// NewExecutorID mints a fresh ExecutorID.
func NewExecutorID() ExecutorID { return ExecutorID(ids.NewULID()) }

// ParseExecutorID parses the 26-character ULID encoding of an ExecutorID.
func ParseExecutorID(s string) (ExecutorID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ExecutorID{}, fmt.Errorf("reqflow: invalid executor id %q: %w", s, err)
	}
	return ExecutorID(id), nil
}

func (id ExecutorID) String() string { return ulid.ULID(id).String() }

// IsZero reports whether the id is the zero value, which is never a valid
// registered id.
func (id ExecutorID) IsZero() bool { return id == ExecutorID{} }

// Task is a unit of work scheduled on an Executor.
type Task func()

// Builder configures an Executor prior to registration.
type Builder struct {
	id         ExecutorID
	poolSize   int
	stackSize  int
	catchPanic bool
}

// NewBuilder returns a Builder with the defaults: pool size equal to the
// logical CPU count and panic isolation enabled.
func NewBuilder(id ExecutorID) *Builder {
	return &Builder{
		id:         id,
		poolSize:   runtime.NumCPU(),
		catchPanic: true,
	}
}

// PoolSize sets the number of worker goroutines.
func (b *Builder) PoolSize(n int) *Builder {
	b.poolSize = n
	return b
}

// StackSize records a preferred stack size in bytes. Goroutine stacks are
// sized by the Go runtime; the value is retained for introspection.
func (b *Builder) StackSize(n int) *Builder {
	b.stackSize = n
	return b
}

// CatchPanic controls panic isolation. When enabled, a panic inside a
// scheduled task is converted into a per-task failure; consumers such as the
// ReqRep broker use the flag to decide whether a processor panic fails only
// the request that caused it.
func (b *Builder) CatchPanic(enabled bool) *Builder {
	b.catchPanic = enabled
	return b
}

// ID returns the ExecutorID the builder was created with.
func (b *Builder) ID() ExecutorID { return b.id }

func (b *Builder) validate() error {
	if b.id.IsZero() {
		return errors.New("reqflow: executor id is required")
	}
	if b.poolSize < 1 {
		return fmt.Errorf("reqflow: executor pool size must be >= 1: %d", b.poolSize)
	}
	if b.stackSize < 0 {
		return fmt.Errorf("reqflow: executor stack size must not be negative: %d", b.stackSize)
	}
	return nil
}

// Executor is a handle to a pool of worker goroutines driving spawned tasks.
// The pool runs for the life of the process; there is no stop.
type Executor struct {
	id         ExecutorID
	poolSize   int
	stackSize  int
	catchPanic bool
	logger     *slog.Logger
	metrics    metrics.ExecutorMetrics

	mu    sync.Mutex
	ready *sync.Cond
	queue []Task

	spawned   atomic.Uint64
	active    atomic.Int64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

func newExecutor(b *Builder, logger *slog.Logger, em metrics.ExecutorMetrics) *Executor {
	e := &Executor{
		id:         b.id,
		poolSize:   b.poolSize,
		stackSize:  b.stackSize,
		catchPanic: b.catchPanic,
		logger:     logger,
		metrics:    em,
	}
	e.ready = sync.NewCond(&e.mu)
	e.metrics.PoolSize.Set(float64(e.poolSize))
	for i := 0; i < e.poolSize; i++ {
		go e.worker()
	}
	return e
}

// ID returns the ExecutorID.
func (e *Executor) ID() ExecutorID { return e.id }

// PoolSize returns the number of worker goroutines.
func (e *Executor) PoolSize() int { return e.poolSize }

// StackSize returns the configured stack size hint, 0 meaning the platform
// default.
func (e *Executor) StackSize() int { return e.stackSize }

// CatchPanic reports whether panic isolation is enabled.
func (e *Executor) CatchPanic() bool { return e.catchPanic }

// SpawnedCount returns the number of tasks ever spawned.
func (e *Executor) SpawnedCount() uint64 { return e.spawned.Load() }

// ActiveCount returns the number of tasks currently running.
func (e *Executor) ActiveCount() uint64 {
	n := e.active.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// CompletedCount returns the number of tasks that returned normally.
func (e *Executor) CompletedCount() uint64 { return e.completed.Load() }

// PanickedCount returns the number of tasks that terminated by panicking.
func (e *Executor) PanickedCount() uint64 { return e.panicked.Load() }

// Spawn schedules the task on the pool and returns immediately. The task
// queue is unbounded; backpressure belongs to the layers feeding the
// executor, not the executor itself.
func (e *Executor) Spawn(task Task) {
	if task == nil {
		return
	}
	e.spawned.Add(1)
	e.metrics.Spawned.Inc()
	e.mu.Lock()
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	e.ready.Signal()
}

// Run schedules the task on the pool and blocks the calling goroutine until
// it finishes. Returns ErrTaskPanicked if the task panicked. Run must not be
// called from a task already running on the same executor when all other
// workers may be blocked the same way.
func (e *Executor) Run(task Task) error {
	if task == nil {
		return nil
	}
	done := make(chan struct{})
	var completed bool
	e.Spawn(func() {
		defer close(done)
		task()
		completed = true
	})
	<-done
	if !completed {
		return ErrTaskPanicked
	}
	return nil
}

// Await schedules fn on the executor and blocks until its result is
// available. Returns ErrTaskPanicked if fn panicked.
func Await[R any](e *Executor, fn func() R) (R, error) {
	var out R
	if err := e.Run(func() { out = fn() }); err != nil {
		return out, err
	}
	return out, nil
}

// Channel schedules fn on the executor and returns a buffered channel that
// will carry its result. If fn panics the channel is closed without a value.
func Channel[R any](e *Executor, fn func() R) <-chan R {
	ch := make(chan R, 1)
	e.Spawn(func() {
		defer close(ch)
		ch <- fn()
	})
	return ch
}

func (e *Executor) worker() {
	for {
		e.invoke(e.next())
	}
}

func (e *Executor) next() Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 {
		e.ready.Wait()
	}
	task := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return task
}

// invoke runs the task behind a recover boundary. The boundary always exists
// so a panicking task can never take down the worker or the process; the
// CatchPanic flag decides how the layers above surface the failure.
func (e *Executor) invoke(task Task) {
	e.active.Add(1)
	e.metrics.Active.Inc()
	defer func() {
		e.active.Add(-1)
		e.metrics.Active.Dec()
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.metrics.Panicked.Inc()
			e.logger.Error("task panicked",
				"executor_id", e.id.String(),
				"panic", fmt.Sprintf("%v", r),
			)
		} else {
			e.completed.Add(1)
			e.metrics.Completed.Inc()
		}
	}()
	task()
}
