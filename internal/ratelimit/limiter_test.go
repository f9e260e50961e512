package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "EMAIL:user-1", Key("EMAIL", "user-1"))
	assert.Equal(t, "SMS:global", Key("SMS", "global"))
}

func TestAllowWithinLimit(t *testing.T) {
	l := New()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(Key("EMAIL", "user-1"), 5))
	}
	assert.False(t, l.Allow(Key("EMAIL", "user-1"), 5))
}

func TestAllowZeroLimitDisables(t *testing.T) {
	l := New()

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("user-1:SMS", 0))
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("user-1:EMAIL", 1))
	assert.False(t, l.Allow("user-1:EMAIL", 1))
	assert.True(t, l.Allow("user-2:EMAIL", 1))
	assert.True(t, l.Allow("user-1:SMS", 1))
}

func TestWindowRollover(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 59, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := NewWithClock(time.Hour, clock)

	assert.True(t, l.Allow("user-1:PUSH", 1))
	assert.False(t, l.Allow("user-1:PUSH", 1))

	now = now.Add(2 * time.Minute) // crosses the hour boundary
	assert.True(t, l.Allow("user-1:PUSH", 1))
	assert.False(t, l.Allow("user-1:PUSH", 1))
}

func TestRemaining(t *testing.T) {
	l := New()

	assert.Equal(t, 3, l.Remaining("user-1:EMAIL", 3))
	l.Allow("user-1:EMAIL", 3)
	l.Allow("user-1:EMAIL", 3)
	assert.Equal(t, 1, l.Remaining("user-1:EMAIL", 3))
	l.Allow("user-1:EMAIL", 3)
	l.Allow("user-1:EMAIL", 3) // over the limit
	assert.Equal(t, 0, l.Remaining("user-1:EMAIL", 3))
}

func TestSweepRemovesStaleWindows(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := NewWithClock(time.Hour, clock)

	l.Allow("a:EMAIL", 10)
	l.Allow("b:SMS", 10)

	assert.Equal(t, 0, l.Sweep())

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 0, l.Sweep())
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	l := New()
	const limit = 50
	const workers = 10
	const perWorker = 20

	var allowed int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for i := 0; i < perWorker; i++ {
				if l.Allow("shared:EMAIL", limit) {
					local++
				}
			}
			mu.Lock()
			allowed += int64(local)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed)
}
