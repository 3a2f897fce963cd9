// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements the scheduler core: thread control blocks,
// the ready-queue dispatcher, timed sleep, the semaphore/lock/condition
// variable primitives (with nested priority donation), and the MLFQS
// CPU-accounting pipeline. It is organized the way threads/thread.c,
// threads/synch.c and devices/timer.c are organized in the source this
// module is ported from: one cohesive unit of mutually recursive types
// (a Lock names its holder *Thread; a Thread names the *Lock it is
// waiting for), split across files by concern rather than into
// separate Go packages, which would force an import cycle neither side
// of that cycle actually wants broken.
package sched

import (
	"math/rand"
	"sync"

	"github.com/vanadium/pintos-core/internal/dlist"
	"github.com/vanadium/pintos-core/internal/fixed"
	"github.com/vanadium/pintos-core/internal/kerr"
	"github.com/vanadium/pintos-core/internal/klog"
)

// Priority bounds and defaults, matching threads/thread.h.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63

	// NiceMin and NiceMax bound thread.Nice in MLFQS mode.
	NiceMin = -20
	NiceMax = 20

	// TimeSlice is the number of ticks a thread may run before the
	// round-robin timer preempts it in favor of an equal-priority
	// peer.
	TimeSlice = 4

	// TimerFreq is the default number of simulated ticks per second.
	TimerFreq = 100
)

var (
	errTIDExhausted = kerr.Register("pintos-core/sched.TIDExhausted", kerr.NoRetry, "thread id space exhausted")
)

// ErrTIDExhausted is returned by Create when the thread id counter has
// wrapped (64 bits, so in practice never outside of a test that forces
// it).
var ErrTIDExhausted = errTIDExhausted

// Status is the scheduling state of a Thread.
type Status int

const (
	// StatusBlocked threads are waiting on a semaphore, lock,
	// condition variable or timed sleep; they are not on the ready
	// list and will not run until something unblocks them.
	StatusBlocked Status = iota
	// StatusReady threads are eligible to run and sit on the ready
	// list.
	StatusReady
	// StatusRunning is the single thread the dispatcher most
	// recently switched to.
	StatusRunning
	// StatusDying threads have called Exit and are waiting for the
	// next dispatch to reclaim them; they must never be dispatched.
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "blocked"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// Thread is a thread control block. Every field is protected by the
// scheduler's big lock (core.mu) except wake, which is synchronized by
// channel handoff, and entry/aux, which are only ever read by the
// thread's own goroutine.
type Thread struct {
	id     int64
	name   string
	status Status

	basePriority int
	effPriority  int

	waitingForLock *Lock
	donors         dlist.List[*Thread]
	donorElem      *dlist.Elem[*Thread]

	wakeupTick int64

	nice      int
	recentCPU fixed.Point

	schedElem *dlist.Elem[*Thread]
	allElem   *dlist.Elem[*Thread]

	wake chan struct{}

	entry func(aux interface{})
	aux   interface{}
}

// ID returns the thread's id, assigned at creation and never reused.
func (t *Thread) ID() int64 { return t.id }

// Name returns the thread's name, set at creation.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's current scheduling status.
func (t *Thread) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.status
}

// EffectivePriority returns the thread's current effective priority,
// i.e. its base priority as raised by any donations it currently
// holds.
func (t *Thread) EffectivePriority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.effPriority
}

// RecentCPUHundredths returns t's recent_cpu scaled by 100 and rounded
// to the nearest integer, for introspection of any thread (not just
// the calling one; compare GetRecentCPU).
func (t *Thread) RecentCPUHundredths() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.recentCPU.MulInt(100).Round()
}

// Nice returns t's niceness.
func (t *Thread) Nice() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.nice
}

// BasePriority returns t's base priority, undonated.
func (t *Thread) BasePriority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.basePriority
}

// DonorIDs returns the ids of threads currently donating priority to
// t, for introspection.
func (t *Thread) DonorIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int64
	t.donors.Do(func(d *Thread) { ids = append(ids, d.id) })
	return ids
}

func byMostUrgent(a, b *Thread) bool { return a.effPriority > b.effPriority }

// core is the single, process-wide scheduler instance. Pintos has
// exactly one CPU and exactly one scheduler; a package-level singleton
// mirrors that, the way thread.c's ready_list and all_list are package
// (module) globals rather than passed-around state.
type core struct {
	mu sync.Mutex

	ready      dlist.List[*Thread]
	sleeping   dlist.List[*Thread]
	allThreads dlist.List[*Thread]
	destroyed  []*Thread

	current *Thread
	idle    *Thread

	tidCounter int64
	ticks      int64

	ticksSinceYield int
	deferredYield   bool

	loadAvg   fixed.Point
	mlfqs     bool
	rng       *rand.Rand

	clock Clock

	started bool
}

var c = &core{}

// ResetForTest discards all scheduler state and re-initializes it as a
// fresh boot would, with the calling goroutine becoming the initial
// thread. It exists only for tests, which each want a clean scheduler
// instance; production code calls Init/Start exactly once.
func ResetForTest(mlfqsMode bool, seed int64) *Thread {
	c = &core{}
	return Init(mlfqsMode, seed)
}

// Init performs the first phase of scheduler bring-up: it creates the
// initial thread control block representing the calling goroutine
// (which becomes thread 0, "main") and readies the data structures,
// but does not yet start the idle thread or any preemption. This
// mirrors thread_init, which runs with interrupts off and allocation
// unsafe, before Start (thread_start) enables the timer interrupt.
func Init(mlfqsMode bool, seed int64) *Thread {
	c.mlfqs = mlfqsMode
	c.rng = rand.New(rand.NewSource(seed))
	c.clock = NewManualClock()

	initial := &Thread{
		id:           0,
		name:         "main",
		status:       StatusRunning,
		basePriority: PriDefault,
		effPriority:  PriDefault,
		wake:         make(chan struct{}),
	}
	if mlfqsMode {
		initial.effPriority = mlfqsPriority(initial)
		initial.basePriority = initial.effPriority
	}
	close(initial.wake)
	initial.allElem = c.allThreads.PushBack(initial)
	c.current = initial
	c.tidCounter = 1
	klog.V(1).Infof("sched: init, mlfqs=%v", mlfqsMode)
	return initial
}

// Start performs the second phase of bring-up: it creates the idle
// thread, which the dispatcher runs whenever the ready list is empty,
// and marks the scheduler as accepting preemption. Equivalent to
// thread_start plus the idle thread's startup synchronization.
func Start() {
	Create("idle", PriMin-1, idleBody, nil)
	c.mu.Lock()
	// The thread most recently created is idle; pull it off the
	// ready list; it is never dispatched through the normal path.
	for e := c.ready.Front(); e != nil; e = e.Next() {
		if e.Value.name == "idle" {
			c.ready.Remove(e)
			e.Value.schedElem = nil
			c.idle = e.Value
			c.idle.status = StatusBlocked
			// Create derives priority from recent_cpu/nice under
			// MLFQS, which would otherwise give idle a normal-looking
			// priority; idle never takes part in MLFQS accounting
			// (recomputeAllPriorities and recomputeAllRecentCPU both
			// skip it), so pin it to the bottom explicitly.
			c.idle.basePriority = PriMin - 1
			c.idle.effPriority = PriMin - 1
			break
		}
	}
	c.started = true
	c.mu.Unlock()
	klog.V(1).Infof("sched: start")
}

// Current returns the thread control block for the calling goroutine's
// thread. It panics if called from a goroutine that is not a
// registered scheduler thread, since there is no well-defined answer.
func Current() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Create allocates a new thread, names it, gives it the supplied base
// priority (PriDefault is the conventional choice, ignored in MLFQS
// mode where niceness drives priority instead), and makes it ready to
// run. entry is invoked on the new thread's own goroutine once the
// dispatcher first switches to it.
func Create(name string, priority int, entry func(aux interface{}), aux interface{}) *Thread {
	c.mu.Lock()
	id := c.tidCounter
	c.tidCounter++
	t := &Thread{
		id:           id,
		name:         name,
		status:       StatusReady,
		basePriority: priority,
		effPriority:  priority,
		nice:         0,
		wake:         make(chan struct{}),
		entry:        entry,
		aux:          aux,
	}
	if c.mlfqs {
		if parent := c.current; parent != nil {
			t.nice = parent.nice
		}
		t.recentCPU = 0
		if c.current != nil {
			t.recentCPU = c.current.recentCPU
		}
		t.effPriority = mlfqsPriority(t)
		t.basePriority = t.effPriority
	}
	t.allElem = c.allThreads.PushBack(t)
	t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	c.mu.Unlock()

	go runThread(t)

	maybeYieldToHigher(t)
	return t
}

func runThread(t *Thread) {
	<-t.wake
	defer kerr.Recover(t.name, klog.Errorf)
	t.entry(t.aux)
	Exit()
}

// GetPriority returns the calling thread's own effective priority.
func GetPriority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.effPriority
}

// SetPriority sets the calling thread's base priority. In MLFQS mode
// this is a no-op: priority is entirely derived from recent_cpu and
// nice, and direct priority assignment would be silently overwritten
// on the next recompute anyway.
func SetPriority(priority int) {
	c.mu.Lock()
	if c.mlfqs {
		c.mu.Unlock()
		return
	}
	t := c.current
	t.basePriority = priority
	t.effPriority = effectivePriorityOf(t)
	if t != c.idle {
		t.status = StatusReady
		t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	}
	next := pickNextLocked()
	dispatch(next)
}

// GetNice returns the calling thread's niceness.
func GetNice() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.nice
}

// SetNice sets the calling thread's niceness and immediately
// recomputes its priority, possibly yielding if it is no longer the
// most urgent ready thread.
func SetNice(nice int) {
	if nice < NiceMin {
		nice = NiceMin
	}
	if nice > NiceMax {
		nice = NiceMax
	}
	c.mu.Lock()
	t := c.current
	t.nice = nice
	t.effPriority = mlfqsPriority(t)
	if t != c.idle {
		t.status = StatusReady
		t.schedElem = c.ready.InsertOrdered(t, byMostUrgent)
	}
	next := pickNextLocked()
	dispatch(next)
}

// GetLoadAvg returns the system load average scaled by 100 and rounded
// to the nearest integer, the conventional presentation used by the
// "load" line of ps/uptime and by the source this pipeline is ported
// from.
func GetLoadAvg() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadAvg.MulInt(100).Round()
}

// GetRecentCPU returns the calling thread's recent_cpu scaled by 100
// and rounded to the nearest integer.
func GetRecentCPU() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.recentCPU.MulInt(100).Round()
}

// Ticks returns the number of timer ticks the scheduler has observed
// since boot.
func Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Rand returns the scheduler's seeded random source, the same one
// named by the -rs boot flag, for tests and workloads that want
// reproducible jitter.
func Rand() *rand.Rand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng
}

// AllThreads returns a point-in-time snapshot of every thread the
// scheduler knows about, for the debug package's introspection.
func AllThreads() []*Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allThreads.Values()
}

func maybeYieldToHigher(candidate *Thread) {
	c.mu.Lock()
	if c.current != nil && c.started && candidate.effPriority > c.current.effPriority {
		// The running thread is never itself on the ready list (its
		// schedElem is nil), so there is nothing to Remove here; just
		// ready it.
		c.current.schedElem = c.ready.InsertOrdered(c.current, byMostUrgent)
		c.current.status = StatusReady
		next := pickNextLocked()
		dispatch(next)
		return
	}
	c.mu.Unlock()
}
