// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "github.com/vanadium/pintos-core/internal/klog"

func byEarliestWakeup(a, b *Thread) bool { return a.wakeupTick < b.wakeupTick }

// Sleep blocks the calling thread for at least ticks timer ticks. A
// non-positive ticks returns immediately without yielding, matching
// timer_sleep's treatment of ticks <= 0.
func Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	c.mu.Lock()
	t := c.current
	t.wakeupTick = c.ticks + ticks
	t.status = StatusBlocked
	t.schedElem = c.sleeping.InsertOrdered(t, byEarliestWakeup)
	next := pickNextLocked()
	dispatch(next)
}

// StartClock wires clk as the scheduler's tick source and begins
// delivering ticks; for a ManualClock this just records the tick
// callback, for a RealClock it starts the ticker loop on a background
// goroutine. It must be called after Start.
func StartClock(clk Clock) {
	c.mu.Lock()
	c.clock = clk
	c.mu.Unlock()
	stop := make(chan struct{})
	if _, ok := clk.(*ManualClock); ok {
		clk.Run(Tick, stop)
		return
	}
	go clk.Run(Tick, stop)
}

// Tick is the timer interrupt handler's entry point: it advances the
// simulated tick count, wakes any thread whose sleep has expired, runs
// the MLFQS accounting cadence when MLFQS mode is enabled, and notes
// whether the running thread's time slice has expired. It always runs
// to completion without itself performing a context switch, since (as
// on real hardware) an interrupt handler returns to whatever context
// it interrupted; the actual preemption, if any was warranted, is
// carried out the next time that context reaches a scheduler entry
// point or calls CheckPreempt.
func Tick() {
	c.mu.Lock()
	c.ticks++
	tick := c.ticks

	for {
		e := c.sleeping.Front()
		if e == nil || e.Value.wakeupTick > tick {
			break
		}
		t := c.sleeping.Remove(e)
		t.schedElem = nil
		unblockLocked(t, true)
	}

	if c.mlfqs {
		mlfqsOnTick(tick)
	}

	c.ticksSinceYield++
	if c.ticksSinceYield >= TimeSlice && c.ready.Len() > 0 {
		c.deferredYield = true
	}
	c.mu.Unlock()
	klog.V(4).Infof("sched: tick %d", tick)
}
