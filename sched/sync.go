// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Synchronization primitives: a counting semaphore, a mutex built on
// top of it with nested priority donation, and a Mesa-style condition
// variable. Ported from threads/synch.c; unlike that file's
// interrupt-disable/restore pairs, every blocking operation here goes
// through the dispatcher directly since c.mu already is this module's
// stand-in for "interrupts disabled".
package sched

import (
	"github.com/vanadium/pintos-core/internal/dlist"
	"github.com/vanadium/pintos-core/internal/kerr"
)

// Sema is a counting semaphore.
type Sema struct {
	value   int
	waiters dlist.List[*Thread]
}

// NewSema returns a semaphore with the given initial value.
func NewSema(value int) *Sema { return &Sema{value: value} }

// downLocked blocks the calling thread until the semaphore's value is
// positive, then decrements it. c.mu must be held; it is released
// across any wait and re-acquired before returning, so the caller
// always regains it.
func (s *Sema) downLocked() {
	for s.value == 0 {
		t := c.current
		t.status = StatusBlocked
		t.schedElem = s.waiters.InsertOrdered(t, byMostUrgent)
		next := pickNextLocked()
		dispatch(next)
		c.mu.Lock()
	}
	s.value--
}

// upLocked increments the semaphore's value and, if a thread is
// waiting, wakes the most urgent one. c.mu must be held throughout.
//
// The increment happens before the wake, not after: unblockLocked can
// itself perform a synchronous dispatch away from the calling thread
// (when the woken thread now outranks it), and the woken thread's own
// downLocked loop re-checks s.value as soon as it resumes. If value
// were still zero at that point it would block all over again.
func (s *Sema) upLocked(isr bool) {
	s.value++
	if t, ok := s.waiters.PopMin(byMostUrgent); ok {
		t.schedElem = nil
		unblockLocked(t, isr)
	}
}

// Down waits for the semaphore to become positive, then claims one
// unit of it. Not valid from interrupt context.
func (s *Sema) Down() {
	c.mu.Lock()
	s.downLocked()
	c.mu.Unlock()
}

// TryDown claims one unit of the semaphore without blocking, reporting
// whether it succeeded.
func (s *Sema) TryDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.value > 0 {
		s.value--
		return true
	}
	return false
}

// Up releases one unit of the semaphore, waking the most urgent
// waiter if any, and yields to it immediately if it now outranks the
// calling thread.
func (s *Sema) Up() {
	c.mu.Lock()
	s.upLocked(false)
	c.mu.Unlock()
}

// UpFromISR is Up for callers running in timer-interrupt context: a
// woken thread that outranks the current one is flagged for deferred
// preemption rather than switched to immediately.
func (s *Sema) UpFromISR() {
	c.mu.Lock()
	s.upLocked(true)
	c.mu.Unlock()
}

func preemptIfNeeded() {
	if c.current == c.idle {
		return
	}
	best := c.ready.Min(byMostUrgent)
	if best != nil && best.Value.effPriority > c.current.effPriority {
		c.current.status = StatusReady
		c.current.schedElem = c.ready.InsertOrdered(c.current, byMostUrgent)
		next := pickNextLocked()
		dispatch(next)
	}
}

// Lock is a mutex with nested priority donation: if a higher-priority
// thread blocks trying to acquire a lock some lower-priority thread
// holds, the holder (and transitively, whatever it is in turn waiting
// on) is temporarily raised to the blocked thread's priority, so a
// lower-priority holder cannot be starved by threads that preempt it
// but still rank below the thread actually waiting on the lock.
//
// In MLFQS mode donation is disabled entirely (the MLFQS formulas
// already determine priority; mixing in donation would fight them),
// and Lock degenerates to a plain priority-ordered binary semaphore.
type Lock struct {
	sema   Sema
	holder *Thread
}

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{sema: Sema{value: 1}}
}

// effectivePriorityOf returns t's base priority raised to the highest
// effective priority among threads currently donating to it.
func effectivePriorityOf(t *Thread) int {
	p := t.basePriority
	t.donors.Do(func(d *Thread) {
		if d.effPriority > p {
			p = d.effPriority
		}
	})
	return p
}

// donateChain recomputes start's effective priority and, if it
// changed, walks up the chain of locks start (and its own holders in
// turn) may itself be waiting on, propagating the raised priority as
// far as it needs to go. This is nested donation: a thread can donate
// through an arbitrary number of locks it does not itself hold.
func donateChain(start *Thread) {
	donee := start
	for donee != nil {
		next := effectivePriorityOf(donee)
		if next == donee.effPriority {
			break
		}
		donee.effPriority = next
		if donee.waitingForLock == nil {
			break
		}
		donee = donee.waitingForLock.holder
	}
}

func pruneDonorsForLock(holder *Thread, l *Lock) {
	for e := holder.donors.Front(); e != nil; {
		next := e.Next()
		if e.Value.waitingForLock == l {
			holder.donors.Remove(e)
		}
		e = next
	}
}

// Acquire blocks until the calling thread holds l. If l is already
// held and MLFQS mode is off, the calling thread donates its priority
// up the donation chain before blocking.
func (l *Lock) Acquire() {
	c.mu.Lock()
	t := c.current
	if l.holder == t {
		c.mu.Unlock()
		kerr.Fatalf("sched: Acquire called by %s(%d), which already holds the lock", t.name, t.id)
	}
	if !c.mlfqs && l.holder != nil {
		t.waitingForLock = l
		t.donorElem = l.holder.donors.PushBack(t)
		donateChain(l.holder)
	}
	l.sema.downLocked()
	t.waitingForLock = nil
	t.donorElem = nil
	l.holder = t
	c.mu.Unlock()
}

// TryAcquire claims l without blocking, reporting whether it
// succeeded. It never donates, since it never waits.
func (l *Lock) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l.holder != nil {
		return false
	}
	l.sema.value--
	l.holder = c.current
	return true
}

// Release releases l. The releasing thread's effective priority drops
// back to the highest remaining donation (or its base priority if
// none), and the calling thread yields immediately if some other
// ready thread now outranks it.
func (l *Lock) Release() {
	c.mu.Lock()
	t := c.current
	if l.holder != t {
		c.mu.Unlock()
		kerr.Fatalf("sched: Release called by %s(%d), which does not hold the lock", t.name, t.id)
	}
	l.holder = nil
	if !c.mlfqs {
		pruneDonorsForLock(t, l)
		t.effPriority = effectivePriorityOf(t)
	}
	l.sema.upLocked(false)
	preemptIfNeeded()
	c.mu.Unlock()
}

// HeldByCurrent reports whether the calling thread holds l.
func (l *Lock) HeldByCurrent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return l.holder == c.current
}

type waiter struct {
	t        *Thread
	sema     *Sema
	priority int
}

func byWaiterPriority(a, b *waiter) bool { return a.priority > b.priority }

// Cond is a Mesa-style condition variable: Signal/Broadcast only wake
// waiters, they do not themselves re-check any predicate, so every
// Wait call site must re-test its condition in a loop after Wait
// returns. Each waiter parks on its own private semaphore (rather than
// all sharing one), and the wait list is ordered by the waiter's
// effective priority at the moment it called Wait, so Signal always
// wakes the most urgent waiter first.
type Cond struct {
	waiters dlist.List[*waiter]
}

// NewCond returns a new, empty condition variable.
func NewCond() *Cond { return &Cond{} }

// Wait atomically releases l and blocks the calling thread until
// Signal or Broadcast wakes it, then reacquires l before returning.
// l must be held by the calling thread.
func (cv *Cond) Wait(l *Lock) {
	w := &waiter{t: c.current, sema: NewSema(0), priority: c.current.effPriority}
	c.mu.Lock()
	cv.waiters.InsertOrdered(w, byWaiterPriority)
	c.mu.Unlock()
	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the single most urgent waiter, if any.
func (cv *Cond) Signal() {
	c.mu.Lock()
	w, ok := cv.waiters.PopFront()
	c.mu.Unlock()
	if ok {
		w.sema.Up()
	}
}

// Broadcast wakes every current waiter, most urgent first.
func (cv *Cond) Broadcast() {
	for {
		c.mu.Lock()
		w, ok := cv.waiters.PopFront()
		c.mu.Unlock()
		if !ok {
			break
		}
		w.sema.Up()
	}
}
