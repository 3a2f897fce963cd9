// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel wires scheduler bring-up to boot-time configuration:
// flag parsing in the shape of v.io/x/ref/lib/flags's Flags wrapper
// (a typed struct plus the *flag.FlagSet that populated it), a uuid
// session identifier the way a real boot stamps a unique instance id
// into its log line, and a CPU-info probe used to size the fallback
// busy-wait loop the way devices/timer.c's timer_calibrate does when
// no more precise clock source is available.
package kernel

import (
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/vanadium/pintos-core/internal/klog"
	"github.com/vanadium/pintos-core/sched"
)

// Config is the set of boot-time flags a kernel instance is
// configured from, mirroring the thread_init/thread_start split: all
// of it is known before Boot ever creates the idle thread.
type Config struct {
	FlagSet *flag.FlagSet

	MLFQS      bool
	RandomSeed int64
	LogV       int
	TimerFreq  int
	HTTPAddr   string
}

// NewConfig builds a Config and registers its flags on a fresh
// *flag.FlagSet, the way lib/flags.CreateAndRegister registers a
// FlagGroup's fields. It does not parse args; call Parse.
func NewConfig() *Config {
	cfg := &Config{FlagSet: flag.NewFlagSet("pintos-core", flag.ContinueOnError)}
	cfg.FlagSet.BoolVar(&cfg.MLFQS, "mlfqs", false, "run the multi-level feedback queue scheduler instead of strict priority scheduling")
	cfg.FlagSet.Int64Var(&cfg.RandomSeed, "rs", 0, "seed for the scheduler's reproducible random source")
	cfg.FlagSet.IntVar(&cfg.LogV, "log.v", 0, "log verbosity threshold")
	cfg.FlagSet.IntVar(&cfg.TimerFreq, "timer.freq", sched.TimerFreq, "timer ticks per simulated second")
	cfg.FlagSet.StringVar(&cfg.HTTPAddr, "http", "", "address to serve the debug snapshot websocket on, disabled if empty")
	return cfg
}

// Parse parses args (typically os.Args[1:]) into cfg.
func (cfg *Config) Parse(args []string) error {
	return cfg.FlagSet.Parse(args)
}

// Kernel is a booted scheduler instance: the initial thread, a stamped
// session id, and the calibration this boot used to size its busy-wait
// fallback.
type Kernel struct {
	SessionID    uuid.UUID
	Initial      *sched.Thread
	CPUCores     int
	LoopsPerTick int

	clock sched.Clock
}

// Boot performs the two-phase bring-up thread_init/thread_start name
// in the source this is ported from: Init creates the initial thread
// control block with allocation and preemption both effectively
// disabled, timer_calibrate-equivalent CPU probing runs, and only then
// does Start create the idle thread and enable the timer.
func Boot(cfg *Config) (*Kernel, error) {
	k := &Kernel{SessionID: uuid.New()}

	k.Initial = sched.Init(cfg.MLFQS, cfg.RandomSeed)
	klog.SetVerbosity(cfg.LogV)
	klog.V(1).Infof("kernel: boot session %s mlfqs=%v seed=%d", k.SessionID, cfg.MLFQS, cfg.RandomSeed)

	cores, err := cpu.Counts(true)
	if err != nil {
		klog.Errorf("kernel: cpu.Counts failed, defaulting to 1: %v", err)
		cores = 1
	}
	k.CPUCores = cores
	k.LoopsPerTick = calibrateLoopsPerTick(cores)

	sched.Start()
	freq := cfg.TimerFreq
	if freq <= 0 {
		freq = sched.TimerFreq
	}
	k.clock = &sched.RealClock{Freq: freq}
	sched.StartClock(k.clock)

	return k, nil
}

// calibrateLoopsPerTick derives a busy-wait iteration count from the
// number of available cores, the way timer_calibrate doubles a loop
// counter until it overflows a tick: more cores conventionally means
// more headroom per core, so scale the floor up by core count rather
// than pretending every boot target is equally fast.
func calibrateLoopsPerTick(cores int) int {
	const baseLoopsPerCore = 1 << 16
	if cores <= 0 {
		cores = 1
	}
	return baseLoopsPerCore * cores
}

// BusyWait spins for approximately the given duration, using the
// calibrated loop count rather than time.Sleep, for code paths (none
// in this module's own tests, but exercised by cmd/schedctl's
// synthetic workload) that want to simulate CPU-bound work without
// yielding the underlying OS thread.
func (k *Kernel) BusyWait(d time.Duration) {
	loops := int64(k.LoopsPerTick) * int64(d) / int64(time.Second/time.Duration(sched.TimerFreq))
	var sink int64
	for i := int64(0); i < loops; i++ {
		sink += i
	}
	busyWaitSink = sink
}

// busyWaitSink exists only to keep BusyWait's loop from being compiled
// away as dead code.
var busyWaitSink int64

// String renders a one-line boot summary.
func (k *Kernel) String() string {
	return fmt.Sprintf("pintos-core session=%s cores=%d loops/tick=%d", k.SessionID, k.CPUCores, k.LoopsPerTick)
}
