package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolPreservesPerKeyOrder(t *testing.T) {
	const perKey = 20
	keys := []string{"alice:EMAIL", "bob:SMS", "carol:PUSH"}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]string, len(keys)*perKey)
	order := make(map[string][]uuid.UUID, len(keys))
	var wg sync.WaitGroup

	pool := NewWorkerPool(4, 8, func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		key := seen[id]
		order[key] = append(order[key], id)
		mu.Unlock()
		wg.Done()
		return nil
	})
	pool.Start()
	defer pool.Stop()

	expected := make(map[string][]uuid.UUID, len(keys))
	ctx := context.Background()
	for i := 0; i < perKey; i++ {
		for _, key := range keys {
			id := uuid.New()
			mu.Lock()
			seen[id] = key
			mu.Unlock()
			expected[key] = append(expected[key], id)
			wg.Add(1)
			require.NoError(t, pool.Submit(ctx, id, key))
		}
	}
	wg.Wait()

	for _, key := range keys {
		assert.Equal(t, expected[key], order[key],
			"jobs for %s must run in submission order", key)
	}
}

func TestWorkerPoolSubmitHonorsContext(t *testing.T) {
	// One partition of depth one, never started: the second submit has
	// nowhere to go and must give up with the caller's context.
	pool := NewWorkerPool(1, 1, func(context.Context, uuid.UUID) error { return nil })

	require.NoError(t, pool.Submit(context.Background(), uuid.New(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, uuid.New(), "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPoolStopWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	pool := NewWorkerPool(1, 4, func(context.Context, uuid.UUID) error {
		close(started)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	})
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), uuid.New(), "k"))
	<-started

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a dispatch was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the dispatch finished")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}
