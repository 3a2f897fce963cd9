// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fixed

import "testing"

func TestIntRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, -1, 63, -63, 1000} {
		x := FromInt(n)
		if got := x.Int(); got != n {
			t.Errorf("FromInt(%d).Int() = %d, want %d", n, got, n)
		}
		if got := x.Round(); got != n {
			t.Errorf("FromInt(%d).Round() = %d, want %d", n, got, n)
		}
	}
}

func TestRoundTiesAwayFromZero(t *testing.T) {
	half := FromInt(1).DivInt(2)
	if got := half.Round(); got != 1 {
		t.Errorf("Round(0.5) = %d, want 1", got)
	}
	if got := half.Int(); got != 0 {
		t.Errorf("Int(0.5) = %d, want 0 (truncated)", got)
	}
	negHalf := FromInt(-1).DivInt(2)
	if got := negHalf.Round(); got != -1 {
		t.Errorf("Round(-0.5) = %d, want -1", got)
	}
}

func TestArithmetic(t *testing.T) {
	x := FromInt(3)
	y := FromInt(2)
	if got := x.Add(y).Int(); got != 5 {
		t.Errorf("3+2 = %d, want 5", got)
	}
	if got := x.Sub(y).Int(); got != 1 {
		t.Errorf("3-2 = %d, want 1", got)
	}
	if got := x.Mul(y).Int(); got != 6 {
		t.Errorf("3*2 = %d, want 6", got)
	}
	if got := x.Div(y).Round(); got != 2 {
		t.Errorf("3/2 rounded = %d, want 2 (1.5 rounds to 2)", got)
	}
	if got := x.AddInt(4).Int(); got != 7 {
		t.Errorf("3+4 = %d, want 7", got)
	}
	if got := x.MulInt(4).Int(); got != 12 {
		t.Errorf("3*4 = %d, want 12", got)
	}
}

func TestMLFQSLoadAvgFormula(t *testing.T) {
	// load_avg := (59/60)*load_avg + (1/60)*ready_count, starting from 0
	// with a steady ready_count of 1 should monotonically increase
	// toward, but never reach, 1.
	load := Point(0)
	fiftyNine := FromInt(59).DivInt(60)
	oneSixtieth := FromInt(1).DivInt(60)
	readyCount := FromInt(1)
	for i := 0; i < 1000; i++ {
		prev := load
		load = fiftyNine.Mul(load).Add(oneSixtieth.Mul(readyCount))
		if load < prev {
			t.Fatalf("load_avg decreased at iteration %d: %d -> %d", i, prev, load)
		}
		if load.Round() > 1 {
			t.Fatalf("load_avg exceeded 1 at iteration %d: %v", i, load.Round())
		}
	}
}
