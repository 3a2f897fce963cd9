// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package klog implements a small leveled logger in the shape of
// v.io/x/lib/vlog's Infof/VI(n).Infof convention: every log call site
// names a verbosity level, and a single global threshold (settable at
// boot from the -log.v flag) decides what actually reaches output.
// This lets the scheduler log every block/unblock/donate/wake
// transition at a high verbosity level without paying for formatting
// that threshold filters out, the same tradeoff apilog.go documents
// for --vmodule.
package klog

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

var (
	threshold atomic.Int32
	out       io.Writer = os.Stderr
)

// SetVerbosity sets the global logging threshold; log calls at a
// level greater than v are suppressed.
func SetVerbosity(v int) { threshold.Store(int32(v)) }

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) { out = w }

// Level is a verbosity-gated logging handle, obtained from V.
type Level int32

// V returns a Level for logging at verbosity v. Use as:
//
//	klog.V(2).Infof("thread %d donated priority %d to %d", donor, p, holder)
func V(v int) Level { return Level(v) }

func (l Level) enabled() bool { return int32(l) <= threshold.Load() }

// Infof logs a formatted message if l's verbosity is at or below the
// current threshold.
func (l Level) Infof(format string, args ...interface{}) {
	if !l.enabled() {
		return
	}
	fmt.Fprintf(out, "I%s %s\n", time.Now().Format("150405.000000"), fmt.Sprintf(format, args...))
}

// Errorf always logs, regardless of the verbosity threshold, matching
// vlog's unconditional Error-level calls.
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(out, "E%s %s\n", time.Now().Format("150405.000000"), fmt.Sprintf(format, args...))
}
