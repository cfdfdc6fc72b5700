package testutil

import "sync"

// StepClock is a deterministic millisecond clock for tests.
//
// Each call to NowMillis advances the clock by Step and returns the new value,
// so the first record written with a StepClock starting at base carries
// base+step. It can be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu   sync.Mutex
	base int64
	step int64
	now  int64
}

// NewStepClock creates a clock starting at base millis and advancing by step.
// A step of 0 or less is treated as 1.
func NewStepClock(base, step int64) *StepClock {
	if step <= 0 {
		step = 1
	}
	return &StepClock{base: base, step: step, now: base}
}

// NowMillis advances the clock and returns the new time.
//
// Implements record.Clock.
func (c *StepClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last value handed out without advancing.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset moves the clock back to its base.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.base
}
