package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	cycle := uuid.New()

	// Get a value that doesn't exist yet
	_, ok, err := s.Get(ctx, cycle, "pv")
	require.NoError(t, err)
	assert.False(t, ok)

	data := []byte("payload")
	require.NoError(t, s.Put(ctx, cycle, "pv", data))
	data[0] = 'X' // the store keeps its own copy

	got, ok, err := s.Get(ctx, cycle, "pv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	got[0] = 'Y' // and hands out copies
	again, _, err := s.Get(ctx, cycle, "pv")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)

	require.NoError(t, s.Put(ctx, cycle, "pv", []byte("replaced")))
	assert.Equal(t, 1, s.Len(cycle))
}

func TestCyclesAreDisjoint(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.Put(ctx, a, "k", []byte("a")))
	require.NoError(t, s.Put(ctx, b, "k", []byte("b")))

	got, _, _ := s.Get(ctx, a, "k")
	assert.Equal(t, []byte("a"), got)
	assert.Equal(t, 2, s.Cycles())

	require.NoError(t, s.Purge(ctx, a))
	_, ok, _ := s.Get(ctx, a, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(a))
	got, ok, _ = s.Get(ctx, b, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("b"), got)
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	cycle := uuid.New()
	numGoroutines := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, cycle, fmt.Sprintf("key-%d", i), []byte(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			got, ok, err := s.Get(ctx, cycle, fmt.Sprintf("key-%d", i))
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, fmt.Sprint(i), string(got), "mismatched value for key %d", i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, s.Len(cycle))
}
