// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "github.com/vanadium/pintos-core/internal/klog"

// pickNextLocked chooses the thread the dispatcher should switch to
// next. c.mu must be held. It never returns nil: the idle thread is
// the fallback when the ready list is empty, mirroring
// next_thread_to_run's fallback to idle_thread.
func pickNextLocked() *Thread {
	if t, ok := c.ready.PopMin(byMostUrgent); ok {
		t.schedElem = nil
		return t
	}
	return c.idle
}

// dispatch performs the context switch from the calling thread (the
// current thread, about to stop running) to next. It must be called
// with c.mu held and is the only place that releases it across a
// simulated context switch.
//
// There is no way to forcibly suspend an arbitrary running goroutine
// from another goroutine in Go, so, exactly as on real hardware,
// control only returns to the dispatcher at defined points: a thread
// calling Block/Yield/Exit, or a synchronization primitive blocking
// it. A tight loop that never calls into this package cannot be
// preempted by the timer; CheckPreempt exists for workloads that want
// to simulate CPU-bound work in a way the dispatcher can still
// interrupt at tick boundaries.
func dispatch(next *Thread) {
	prev := c.current
	c.current = next
	next.status = StatusRunning
	c.ticksSinceYield = 0

	if prev == next {
		c.mu.Unlock()
		return
	}
	klog.V(3).Infof("sched: dispatch %s(%d) -> %s(%d)", prev.name, prev.id, next.name, next.id)
	if prev != nil {
		prev.wake = make(chan struct{})
	}
	close(next.wake)
	c.mu.Unlock()
	if prev != nil {
		<-prev.wake
	}
}

// dispatchExit is dispatch's variant for a thread that is exiting: the
// calling goroutine is about to return and must not park waiting for a
// future turn that will never be granted.
func dispatchExit(next *Thread) {
	c.current = next
	next.status = StatusRunning
	c.ticksSinceYield = 0
	klog.V(3).Infof("sched: dispatch (exit) -> %s(%d)", next.name, next.id)
	close(next.wake)
	c.mu.Unlock()
}

// Block removes the calling thread from circulation until some other
// thread calls Unblock on it. Synchronization primitives are built on
// top of this; it is not meant to be called directly by workload code
// except to implement a new primitive.
func Block() {
	c.mu.Lock()
	t := c.current
	t.status = StatusBlocked
	next := pickNextLocked()
	dispatch(next)
}

// Unblock moves t from blocked to ready. If called from thread context
// (isr is false) and t is now more urgent than the calling thread, the
// calling thread yields to it immediately; from interrupt/tick context
// the preemption is deferred to the next tick boundary, mirroring
// intr_context()'s effect on thread_unblock's wake-up policy.
func Unblock(t *Thread, isr bool) {
	c.mu.Lock()
	unblockLocked(t, isr)
	c.mu.Unlock()
}

func unblockLocked(t *Thread, isr bool) {
	if t.status != StatusBlocked {
		return
	}
	t.status = StatusReady
	t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	if t == c.idle {
		return
	}
	if t.effPriority <= c.current.effPriority {
		return
	}
	if isr {
		c.deferredYield = true
		return
	}
	// The running thread is never itself on the ready list (its
	// schedElem is nil), so there is nothing to Remove here; just
	// ready it.
	c.current.schedElem = c.ready.InsertOrdered(c.current, byMostUrgent)
	c.current.status = StatusReady
	next := pickNextLocked()
	dispatch(next)
	c.mu.Lock()
}

// Yield puts the calling thread back on the ready list at its current
// priority and switches to the next most urgent ready thread, which
// may be the caller itself. The idle thread never yields onto the
// ready list; it is simply redispatched to whenever the list is empty.
func Yield() {
	c.mu.Lock()
	t := c.current
	if t != c.idle {
		t.status = StatusReady
		t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	}
	next := pickNextLocked()
	dispatch(next)
}

// CheckPreempt yields if a deferred preemption (set by the timer tick
// driver, either a round-robin time-slice expiry or a higher-priority
// thread woken from interrupt context) is pending. Cooperative
// workload loops that want to simulate sustained CPU usage under MLFQS
// or round-robin scheduling should call this once per unit of
// simulated work; it is the closest equivalent this model has to a
// hardware trap-return check, since nothing in Go can force-suspend a
// goroutine that never calls back into the scheduler.
func CheckPreempt() {
	c.mu.Lock()
	if !c.deferredYield {
		c.mu.Unlock()
		return
	}
	c.deferredYield = false
	t := c.current
	if t != c.idle {
		t.status = StatusReady
		t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	}
	next := pickNextLocked()
	dispatch(next)
}

// Exit terminates the calling thread. It never returns: the thread's
// goroutine unwinds back to runThread's call site and ends.
func Exit() {
	c.mu.Lock()
	t := c.current
	t.status = StatusDying
	if t.allElem != nil {
		c.allThreads.Remove(t.allElem)
		t.allElem = nil
	}
	c.destroyed = append(c.destroyed, t)
	klog.V(2).Infof("sched: exit %s(%d)", t.name, t.id)
	next := pickNextLocked()
	dispatchExit(next)
}

func idleBody(aux interface{}) {
	for {
		c.mu.Lock()
		t := c.current
		t.status = StatusBlocked
		next := pickNextLocked()
		dispatch(next)
		_ = aux
	}
}
