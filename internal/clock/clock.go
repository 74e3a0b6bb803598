// Copyright © 2026 The cm5674emu Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Package clock implements the monotonic systicks timebase of §4.H: a
// 64-bit tick counter advanced by the executor, with pause/resume so
// wall-clock time spent at a UI prompt isn't charged to the emulated
// machine.
package clock

import "sync/atomic"

// Clock is a lock-free monotonic tick counter.
type Clock struct {
	ticks  atomic.Uint64
	paused atomic.Bool
}

// New creates a Clock at tick 0, running.
func New() *Clock {
	return &Clock{}
}

// Tick advances the counter by one and returns the new value. The executor
// calls this once per retired instruction. A no-op while paused.
func (c *Clock) Tick() uint64 {
	if c.paused.Load() {
		return c.ticks.Load()
	}
	return c.ticks.Add(1)
}

// Now returns the current tick count without advancing it. Lock-free per
// §4.H "Tick reads are lock-free."
func (c *Clock) Now() uint64 {
	return c.ticks.Load()
}

// Pause stops Tick from advancing the counter, used while the UI holds a
// prompt.
func (c *Clock) Pause() { c.paused.Store(true) }

// Resume re-enables Tick.
func (c *Clock) Resume() { c.paused.Store(false) }

// Paused reports whether the clock is currently paused.
func (c *Clock) Paused() bool { return c.paused.Load() }

// Reset restores the counter to 0, used on cold/warm reset.
func (c *Clock) Reset() { c.ticks.Store(0) }
