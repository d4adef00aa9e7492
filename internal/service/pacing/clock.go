package pacing

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock derives the due cutoff from wall-clock time elapsed since the
// session started.
type Clock struct {
	clock clockwork.Clock
	start time.Time
	delay time.Duration
}

// NewClock captures the session start from c. A positive delay holds words
// back further; a negative delay releases them earlier.
func NewClock(c clockwork.Clock, delay time.Duration) *Clock {
	return &Clock{clock: c, start: c.Now(), delay: delay}
}

// Start returns the session start instant.
func (c *Clock) Start() time.Time { return c.start }

// Elapsed returns the time since the session started.
func (c *Clock) Elapsed() time.Duration { return c.clock.Since(c.start) }

// Cutoff returns the latest session offset that is currently due.
func (c *Clock) Cutoff() time.Duration {
	return c.Elapsed() - c.delay
}

// WakeAfter returns how long until the cutoff reaches due.
func (c *Clock) WakeAfter(due time.Duration) time.Duration {
	return c.start.Add(due + c.delay).Sub(c.clock.Now())
}

// NewTimer arms a timer on the underlying clock.
func (c *Clock) NewTimer(d time.Duration) clockwork.Timer {
	return c.clock.NewTimer(d)
}
