package testsupport

import (
	"sync"
	"time"
)

// ManualClock is a time source that only moves when Advance is called.
// Pass its Now method to cache.WithClock.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts at start, or at 2024-01-01 UTC when start is zero.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
