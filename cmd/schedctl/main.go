// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command schedctl boots a scheduler instance, runs a small synthetic
// workload against it (a priority-donation chain and a few MLFQS
// CPU-bound threads, depending on -mlfqs), and lets an operator step
// through periodic debug.Snapshot dumps one key-press at a time.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/vanadium/pintos-core/debug"
	"github.com/vanadium/pintos-core/kernel"
	"github.com/vanadium/pintos-core/sched"
)

func main() {
	cfg := kernel.NewConfig()
	if err := cfg.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "schedctl:", err)
		os.Exit(1)
	}
	fmt.Println(k)

	var closer io.Closer
	if cfg.HTTPAddr != "" {
		closer, err = debug.Serve(cfg.HTTPAddr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "schedctl:", err)
			os.Exit(1)
		}
		fmt.Println("schedctl: debug snapshot server listening on", cfg.HTTPAddr)
		defer closer.Close()
	}

	runWorkload(k, cfg.MLFQS)

	// The pager (or the non-interactive print fallback) runs alongside
	// whatever the debug server's own background goroutines are doing;
	// an errgroup lets a failure on either side surface as main's exit
	// status instead of being silently dropped.
	var g errgroup.Group
	g.Go(func() error {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			pageSnapshots()
			return nil
		}
		// Non-interactive: just print one final snapshot, mirroring
		// passphrase.Get's fallback when stdin is not a terminal.
		fmt.Println(spew.Sdump(debug.Take()))
		return nil
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "schedctl:", err)
		os.Exit(1)
	}
}

// runWorkload starts a handful of threads that exercise donation (in
// priority mode) or sustained CPU usage (in MLFQS mode), then returns
// immediately; the threads keep running in the background.
func runWorkload(k *kernel.Kernel, mlfqs bool) {
	if mlfqs {
		for i := 0; i < 3; i++ {
			n := i
			sched.Create(fmt.Sprintf("cpu-%d", n), sched.PriDefault, func(aux interface{}) {
				for j := 0; j < 200; j++ {
					sched.CheckPreempt()
				}
			}, nil)
		}
		return
	}

	l := sched.NewLock()
	sched.Create("low", sched.PriDefault-2, func(aux interface{}) {
		l.Acquire()
		time.Sleep(10 * time.Millisecond)
		l.Release()
	}, nil)
	sched.Create("high", sched.PriDefault+2, func(aux interface{}) {
		l.Acquire()
		l.Release()
	}, nil)
}

// pageSnapshots puts the terminal in raw mode and prints a new
// debug.Snapshot dump each time the operator presses a key, quitting
// on 'q'. Grounded on lib/security/passphrase.Get's raw-mode
// save/restore pattern.
func pageSnapshots() {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "schedctl: raw mode:", err)
		return
	}
	defer term.Restore(fd, state)

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\r\npress any key for a snapshot, q to quit\r\n")
	for {
		b, err := reader.ReadByte()
		if err != nil || b == 'q' {
			return
		}
		fmt.Print("\r\n")
		fmt.Print(spew.Sdump(debug.Take()))
	}
}
