// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kerr implements a small sentinel-error idiom in the shape of
// v23/verror's IDAction: every error kind this module can surface is
// registered once, up front, as a package-path-prefixed identifier
// with an explicit retry/no-retry action, so callers can compare
// errors with errors.Is instead of string matching. Unlike verror,
// kerr has no *context.T, no i18n catalogue and no wire encoding: this
// is a single-process scheduler core, not an RPC system, and none of
// those concerns have a caller here.
package kerr

import (
	"errors"
	"fmt"
)

// ActionCode describes what a caller encountering an error kind
// should typically do.
type ActionCode int

const (
	// NoRetry means the operation will not succeed if retried
	// unchanged.
	NoRetry ActionCode = iota
	// Benign means the error is an expected, non-exceptional "did
	// not happen" outcome (e.g. a try-lock that failed to acquire).
	Benign
)

// IDAction is a registered error kind: a stable identifier plus the
// action a caller should take.
type IDAction struct {
	ID     string
	Action ActionCode
	text   string
}

// Register creates a new IDAction. pkgPath.name is the conventional
// form of id, mirroring verror.Register's "PKGPATH.Name" convention.
func Register(id string, action ActionCode, text string) IDAction {
	return IDAction{ID: id, Action: action, text: text}
}

// Error implements the error interface so an IDAction alone can be
// compared with errors.Is against errors produced by New.
func (a IDAction) Error() string { return a.text }

// kerror is the concrete error value New produces; it wraps the
// IDAction so errors.Is(err, SomeIDAction) succeeds while Error()
// still carries caller-supplied detail.
type kerror struct {
	id  IDAction
	msg string
}

func (e *kerror) Error() string { return e.msg }

func (e *kerror) Is(target error) bool {
	if ida, ok := target.(IDAction); ok {
		return e.id.ID == ida.ID
	}
	return false
}

func (e *kerror) Unwrap() error { return e.id }

// New creates an error of the given kind, formatting detail the way
// fmt.Errorf does.
func New(id IDAction, format string, args ...interface{}) error {
	return &kerror{id: id, msg: fmt.Sprintf("%s: %s", id.ID, fmt.Sprintf(format, args...))}
}

// Is reports whether err (or anything it wraps) was produced for the
// given registered kind.
func Is(err error, id IDAction) bool {
	return errors.Is(err, id)
}

// HaltFunc is called by Fatalf after logging the diagnostic. Tests
// override it to observe a simulated halt instead of aborting the
// test binary; production callers leave it at the default, which
// panics (the root goroutine wrapper for every simulated thread
// recovers exactly this panic and turns it into a deterministic
// kernel halt, mirroring "the kernel prints a backtrace and halts").
var HaltFunc = func(msg string) { panic(fatalHalt(msg)) }

// fatalHalt is the panic value Fatalf raises through HaltFunc's
// default; the dispatcher's recover distinguishes it from unrelated
// panics by type.
type fatalHalt string

// Fatalf records an invariant violation and halts the simulated
// kernel. It never returns.
func Fatalf(format string, args ...interface{}) {
	HaltFunc(fmt.Sprintf(format, args...))
}

// Recover is meant to be deferred once per simulated thread's root
// goroutine. It recovers the panic value Fatalf's default HaltFunc
// raises, reports it through log, and swallows it so that a single
// thread's invariant violation does not crash the whole test binary
// the way a real kernel halt would take down the whole machine; any
// other panic is not this package's concern and is re-raised
// unchanged.
func Recover(ctx string, log func(format string, args ...interface{})) {
	if r := recover(); r != nil {
		if fh, ok := r.(fatalHalt); ok {
			log("%s: kernel halt: %s", ctx, string(fh))
			return
		}
		panic(r)
	}
}
