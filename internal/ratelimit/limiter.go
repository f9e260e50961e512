// Package ratelimit implements a process-local hourly rate limiter keyed by
// "{channel}:{recipient}". Counters live in fixed one-hour windows aligned to
// the wall clock; a janitor sweeps windows that have rolled over.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// window is one counter bucket. start is the unix second of the window the
// count belongs to; both fields are only touched atomically.
type window struct {
	start atomic.Int64
	count atomic.Int64
}

// Limiter tracks per-key hourly counters without locks on the hot path.
type Limiter struct {
	windows sync.Map // key string -> *window
	period  time.Duration
	now     func() time.Time
}

// New returns a limiter with one-hour windows.
func New() *Limiter {
	return &Limiter{period: time.Hour, now: time.Now}
}

// NewWithClock is for tests.
func NewWithClock(period time.Duration, now func() time.Time) *Limiter {
	return &Limiter{period: period, now: now}
}

// Allow records one attempt for key and reports whether it stays within
// limit. A limit <= 0 disables limiting for the key.
func (l *Limiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}

	w := l.windowFor(key)
	windowStart := l.now().Truncate(l.period).Unix()

	for {
		start := w.start.Load()
		if start == windowStart {
			return w.count.Add(1) <= int64(limit)
		}
		// Window rolled over. First caller to CAS the start resets the
		// count; losers retry and land in the current window.
		if w.start.CompareAndSwap(start, windowStart) {
			w.count.Store(1)
			return limit >= 1
		}
	}
}

// Remaining reports how many attempts key has left in the current window.
func (l *Limiter) Remaining(key string, limit int) int {
	if limit <= 0 {
		return limit
	}
	value, ok := l.windows.Load(key)
	if !ok {
		return limit
	}
	w := value.(*window)
	if w.start.Load() != l.now().Truncate(l.period).Unix() {
		return limit
	}
	remaining := int64(limit) - w.count.Load()
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Sweep drops windows whose hour has passed and returns how many were
// removed. The janitor task runs this on a schedule.
func (l *Limiter) Sweep() int {
	current := l.now().Truncate(l.period).Unix()
	removed := 0
	l.windows.Range(func(key, value interface{}) bool {
		if value.(*window).start.Load() < current {
			l.windows.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("[RateLimiter] Swept stale windows")
	}
	return removed
}

func (l *Limiter) windowFor(key string) *window {
	if value, ok := l.windows.Load(key); ok {
		return value.(*window)
	}
	value, _ := l.windows.LoadOrStore(key, &window{})
	return value.(*window)
}

// Key builds the canonical "{channel}:{recipient}" limiter key. The global
// per-channel bucket uses "global" as the recipient.
func Key(channel, recipient string) string {
	return channel + ":" + recipient
}
