// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "time"

// Clock drives the timer tick source. Production code uses RealClock,
// a time.Ticker-backed driver; tests use ManualClock, which lets a
// test goroutine advance simulated time deterministically instead of
// racing a real ticker. This is the same dependency-injected-clock
// idiom as v.io/x/ref/lib/timekeeper.TimeKeeper and its ManualTime
// test double, adapted from wall-clock Duration to discrete ticks
// since everything downstream of Tick (sleep_list ordering, MLFQS's
// per-tick/4-tick/1s cadences) is specified in whole ticks, not
// Durations.
type Clock interface {
	// Run starts delivering ticks by calling tick once per timer
	// period, until stop is closed. RealClock's Run blocks the
	// calling goroutine; callers that want it in the background
	// invoke it via `go`.
	Run(tick func(), stop <-chan struct{})
}

// RealClock delivers ticks at TimerFreq Hz using a time.Ticker,
// mirroring devices/timer.c's real PIT-driven interrupt source.
type RealClock struct {
	Freq int
}

// NewRealClock returns a Clock ticking at TimerFreq Hz.
func NewRealClock() *RealClock { return &RealClock{Freq: TimerFreq} }

// Run implements Clock.
func (r *RealClock) Run(tick func(), stop <-chan struct{}) {
	freq := r.Freq
	if freq <= 0 {
		freq = TimerFreq
	}
	ticker := time.NewTicker(time.Second / time.Duration(freq))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-stop:
			return
		}
	}
}

// ManualClock is a Clock a test drives explicitly, delivering exactly
// one tick per call to Advance rather than racing real wall-clock
// time. This is what makes scenarios like timed-sleep wake-up
// ordering (S4 in the invariant set this module tests) deterministic:
// a test can sleep three threads for different durations and then
// Advance tick-by-tick, asserting the exact wake-up order at each
// step, instead of sprinkling time.Sleep calls through the test and
// hoping the scheduler goroutine wins the race in time.
type ManualClock struct {
	tick func()
}

// NewManualClock returns a Clock that only ticks when Advance is
// called.
func NewManualClock() *ManualClock { return &ManualClock{} }

// Run implements Clock. It just remembers tick for Advance to call
// later; ManualClock ignores stop since tests own its lifetime
// directly.
func (m *ManualClock) Run(tick func(), stop <-chan struct{}) {
	m.tick = tick
}

// Advance delivers n ticks synchronously, in order, on the calling
// goroutine.
func (m *ManualClock) Advance(n int64) {
	for i := int64(0); i < n; i++ {
		m.tick()
	}
}
