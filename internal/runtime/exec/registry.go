package exec

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/internal/runtime/metrics"
)

// GlobalExecutorID names the default executor that every registry provides
// lazily on first access.
var GlobalExecutorID = mustParseExecutorID("01D2DMYKJSPRG6H419R7ZFXVRH")

func mustParseExecutorID(s string) ExecutorID {
	id, err := ParseExecutorID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// AlreadyRegisteredError is returned when registering an ExecutorID that the
// registry already holds.
type AlreadyRegisteredError struct {
	ID ExecutorID
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("reqflow: executor is already registered: %s", e.ID)
}

// Registry is a thread-safe table of named executors. It is explicitly
// constructed and passed down to call sites; registration is rare and
// mutually exclusive per id, lookups are cheap from any goroutine.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Exec

	mu        sync.RWMutex
	executors map[ExecutorID]*Executor

	globalOnce sync.Once
	global     *Executor
}

// NewRegistry creates an empty registry. A nil logger falls back to
// slog.Default; a nil registerer keeps the metrics in a private registry.
func NewRegistry(logger *slog.Logger, reg prometheus.Registerer) *Registry {
	return &Registry{
		logger:    logging.Default(logger),
		metrics:   metrics.NewExec(reg),
		executors: make(map[ExecutorID]*Executor),
	}
}

// Register builds the executor described by b and inserts it under its id.
// An executor is registered once and stays registered for the life of the
// process. Returns AlreadyRegisteredError if the id is taken; the registry
// is left untouched on any failure.
func (r *Registry) Register(b *Builder) (*Executor, error) {
	if b == nil {
		return nil, fmt.Errorf("reqflow: executor builder is required")
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[b.id]; ok {
		return nil, AlreadyRegisteredError{ID: b.id}
	}
	e := newExecutor(b, r.logger, r.metrics.ForExecutor(b.id.String()))
	r.executors[b.id] = e
	r.logger.Info("executor registered",
		"executor_id", b.id.String(),
		"pool_size", e.PoolSize(),
		"catch_panic", e.CatchPanic(),
	)
	return e, nil
}

// Executor looks up a registered executor by id.
func (r *Registry) Executor(id ExecutorID) (*Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[id]
	return e, ok
}

// Global returns the default executor, registering it under GlobalExecutorID
// on first access. If a caller registered its own executor under
// GlobalExecutorID beforehand, that instance is adopted.
func (r *Registry) Global() *Executor {
	r.globalOnce.Do(func() {
		e, err := r.Register(NewBuilder(GlobalExecutorID))
		if err != nil {
			e, _ = r.Executor(GlobalExecutorID)
		}
		r.global = e
	})
	return r.global
}

// IDs returns the registered executor ids.
func (r *Registry) IDs() []ExecutorID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ExecutorID, 0, len(r.executors))
	for id := range r.executors {
		out = append(out, id)
	}
	return out
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// SpawnedCount returns the total number of tasks spawned across all
// registered executors.
func (r *Registry) SpawnedCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, e := range r.executors {
		total += e.SpawnedCount()
	}
	return total
}
