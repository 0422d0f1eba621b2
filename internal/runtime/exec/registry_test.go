package exec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := newTestRegistry(t)
	id := NewExecutorID()

	e, err := r.Register(NewBuilder(id).PoolSize(2))
	require.NoError(t, err)

	got, ok := r.Executor(id)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = r.Executor(NewExecutorID())
	assert.False(t, ok)
}

func TestDuplicateRegistrationIsRejected(t *testing.T) {
	r := newTestRegistry(t)
	id := NewExecutorID()

	first, err := r.Register(NewBuilder(id).PoolSize(2))
	require.NoError(t, err)

	_, err = r.Register(NewBuilder(id).PoolSize(4))
	var dup AlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, id, dup.ID)

	// The first registration is untouched and remains the only entry.
	got, ok := r.Executor(id)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Count())
}

func TestGlobalIsCreatedOnce(t *testing.T) {
	r := newTestRegistry(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[*Executor]struct{})
	)
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			g := r.Global()
			mu.Lock()
			results[g] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, results, 1, "concurrent Global calls must observe one instance")

	g := r.Global()
	assert.Equal(t, GlobalExecutorID, g.ID())
	got, ok := r.Executor(GlobalExecutorID)
	require.True(t, ok)
	assert.Same(t, g, got)
}

func TestGlobalAdoptsExistingRegistration(t *testing.T) {
	r := newTestRegistry(t)

	mine, err := r.Register(NewBuilder(GlobalExecutorID).PoolSize(2))
	require.NoError(t, err)
	assert.Same(t, mine, r.Global())
}

func TestIDsAndAggregateCounts(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Register(NewBuilder(NewExecutorID()).PoolSize(1))
	require.NoError(t, err)
	b, err := r.Register(NewBuilder(NewExecutorID()).PoolSize(1))
	require.NoError(t, err)

	assert.ElementsMatch(t, []ExecutorID{a.ID(), b.ID()}, r.IDs())

	require.NoError(t, a.Run(func() {}))
	require.NoError(t, b.Run(func() {}))
	require.NoError(t, b.Run(func() {}))
	assert.Equal(t, uint64(3), r.SpawnedCount())
}
