// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "testing"

// TestSleepWakesInTickOrder is scenario S4: threads sleeping for
// different durations wake in ascending tick order regardless of
// creation order or priority.
func TestSleepWakesInTickOrder(t *testing.T) {
	ResetForTest(false, 1)
	Start()
	clk := NewManualClock()
	StartClock(clk)

	var order []string
	Create("b-sleeps-5", PriDefault, func(aux interface{}) {
		Sleep(5)
		order = append(order, "b")
	}, nil)
	Create("a-sleeps-2", PriDefault, func(aux interface{}) {
		Sleep(2)
		order = append(order, "a")
	}, nil)
	Create("c-sleeps-8", PriDefault, func(aux interface{}) {
		Sleep(8)
		order = append(order, "c")
	}, nil)

	Yield() // let all three reach their Sleep call and block
	if len(order) != 0 {
		t.Fatalf("order = %v before any ticks, want empty", order)
	}

	for i := 0; i < 2; i++ {
		clk.Advance(1)
	}
	Yield()
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("order after 2 ticks = %v, want [a]", order)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(1)
	}
	Yield()
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("order after 5 ticks = %v, want [a b]", order)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(1)
	}
	Yield()
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("order after 8 ticks = %v, want [a b c]", order)
	}
}

func TestSleepNonPositiveReturnsImmediately(t *testing.T) {
	ResetForTest(false, 1)
	Start()
	Sleep(0)
	Sleep(-5)
}

func TestTicksAdvance(t *testing.T) {
	ResetForTest(false, 1)
	Start()
	clk := NewManualClock()
	StartClock(clk)

	if got := Ticks(); got != 0 {
		t.Fatalf("Ticks() = %d, want 0", got)
	}
	clk.Advance(10)
	if got := Ticks(); got != 10 {
		t.Fatalf("Ticks() = %d, want 10", got)
	}
}
