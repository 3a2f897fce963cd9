// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fixed implements 17.14 signed fixed-point arithmetic, the
// representation the MLFQS accounting pipeline uses for recent_cpu and
// load_avg so that fractional CPU usage survives integer-only thread
// bookkeeping. Ported from threads/fixed-point.h's macro set.
package fixed

// F is the scale: one unit of Point represents 1/F.
const F = 1 << 14

// Point is a signed 17.14 fixed-point number.
type Point int64

// FromInt converts an integer to fixed-point.
func FromInt(n int) Point {
	return Point(n) * F
}

// Int truncates toward zero and returns the integer part.
func (x Point) Int() int {
	return int(x / F)
}

// Round converts to the nearest integer, ties rounding away from
// zero, matching FP_TO_INT_ROUND.
func (x Point) Round() int {
	if x >= 0 {
		return int((x + F/2) / F)
	}
	return int((x - F/2) / F)
}

// Add returns x+y.
func (x Point) Add(y Point) Point { return x + y }

// Sub returns x-y.
func (x Point) Sub(y Point) Point { return x - y }

// AddInt returns x+n.
func (x Point) AddInt(n int) Point { return x + Point(n)*F }

// SubInt returns x-n.
func (x Point) SubInt(n int) Point { return x - Point(n)*F }

// Mul returns x*y.
func (x Point) Mul(y Point) Point {
	return Point(int64(x) * int64(y) / F)
}

// MulInt returns x*n.
func (x Point) MulInt(n int) Point { return x * Point(n) }

// Div returns x/y.
func (x Point) Div(y Point) Point {
	return Point(int64(x) * F / int64(y))
}

// DivInt returns x/n.
func (x Point) DivInt(n int) Point { return x / Point(n) }
