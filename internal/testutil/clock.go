// Package testutil provides deterministic time and identifier sources for tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a DeterministicClock: 2024-06-01 09:00 UTC.
var Epoch = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests that advances by a fixed
// step on every read.
//
// A zero step makes it a frozen clock.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock starting at start. Each call to Now
// returns the current time and then advances it by step.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{now: start, step: step}
}

// FrozenClock creates a clock that always returns t.
func FrozenClock(t time.Time) *DeterministicClock {
	return NewDeterministicClock(t, 0)
}

// Now returns the current time and advances the clock.
//
// Its signature matches time.Now so it can be passed as a clock option.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the time the next call to Now will return.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
