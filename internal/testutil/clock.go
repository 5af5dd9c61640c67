// Package testutil provides shared helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// Base is an arbitrary fixed instant tests can share. Any fixed value
// works; golden files depend on it staying put.
var Base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Clock hands out deterministic, strictly increasing instants for
// tests. Unlike time.Now, two calls never collide and the produced
// times are reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at base, advancing by step per
// Next call.
func NewClock(base time.Time, step time.Duration) *Clock {
	return &Clock{now: base, step: step}
}

// NewFrameClock creates a clock starting at Base that advances one
// frame interval at the given rate per Next call.
func NewFrameClock(fps float64) *Clock {
	return NewClock(Base, time.Duration(float64(time.Second)/fps))
}

// Next advances the clock one step and returns the new instant.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Current returns the current instant without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
// Used to model gaps larger than one step.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
