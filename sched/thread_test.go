// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "testing"

func TestCreateAssignsDistinctIDs(t *testing.T) {
	ResetForTest(false, 1)
	Start()

	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		th := Create("w", PriMin, func(aux interface{}) {}, nil)
		if seen[th.ID()] {
			t.Fatalf("duplicate thread id %d", th.ID())
		}
		seen[th.ID()] = true
		Yield()
	}
}

func TestPriorityDefaultAndNoDonors(t *testing.T) {
	ResetForTest(false, 1)
	Start()

	th := Create("w", PriDefault, func(aux interface{}) {
		Sleep(100)
	}, nil)
	if got := th.EffectivePriority(); got != PriDefault {
		t.Errorf("EffectivePriority() = %d, want %d", got, PriDefault)
	}
}

func TestSetPriorityNoOpUnderMLFQS(t *testing.T) {
	ResetForTest(true, 1)
	Start()

	before := GetPriority()
	SetPriority(before + 10)
	if got := GetPriority(); got != before {
		t.Errorf("SetPriority under MLFQS changed priority: %d -> %d", before, got)
	}
}

func TestSetPriorityYieldsToHigherReadyThread(t *testing.T) {
	ResetForTest(false, 1)
	Start()

	ran := false
	// Created at the same priority as the current thread: Create's
	// own immediate-yield check requires strictly greater, so this
	// thread sits ready without running yet.
	Create("higher", PriDefault, func(aux interface{}) {
		ran = true
	}, nil)
	// Lowering our own priority below "higher" must yield to it.
	SetPriority(PriDefault - 5)
	if !ran {
		t.Fatalf("lowering priority below a ready thread did not yield to it")
	}
}
