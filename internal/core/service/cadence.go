package service

import (
	"time"
)

// Cadence keeps emission deadlines on a fixed grid anchored at the first tick so
// that time spent rendering and writing does not accumulate as drift.
type Cadence struct {
	period   time.Duration
	deadline time.Time
	running  bool
}

func NewCadence(period time.Duration) *Cadence {
	return &Cadence{period: period}
}

// Start anchors the grid at now. Only the first call has an effect.
func (c *Cadence) Start(now time.Time) {
	if c.running {
		return
	}
	c.deadline = now
	c.running = true
}

func (c *Cadence) Running() bool {
	return c.running
}

func (c *Cadence) Period() time.Duration {
	return c.period
}

// Deadline is the scheduled time of the cycle in progress.
func (c *Cadence) Deadline() time.Time {
	return c.deadline
}

// Next advances the deadline by one period and returns how long to wait from now.
func (c *Cadence) Next(now time.Time) time.Duration {
	c.deadline = c.deadline.Add(c.period)
	wait := c.deadline.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
