// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"testing"

	"github.com/AleutianAI/AleutianComplete/completion"
)

func TestWaitQueue_PriorityThenFIFO(t *testing.T) {
	q := newWaitQueue()

	low := &waiter{priority: completion.PriorityLow}
	first := &waiter{priority: completion.PriorityNormal}
	high := &waiter{priority: completion.PriorityHigh}
	second := &waiter{priority: completion.PriorityNormal}

	q.push(low)
	q.push(first)
	q.push(high)
	q.push(second)

	want := []*waiter{high, first, second, low}
	for i, w := range want {
		got := q.pop()
		if got != w {
			t.Fatalf("pop %d returned priority %v seq %d, want priority %v seq %d",
				i, got.priority, got.seq, w.priority, w.seq)
		}
	}
	if q.pop() != nil {
		t.Error("pop on an empty queue returned a waiter")
	}
}

func TestWaitQueue_RemoveMidQueue(t *testing.T) {
	q := newWaitQueue()

	a := &waiter{priority: completion.PriorityNormal}
	b := &waiter{priority: completion.PriorityNormal}
	c := &waiter{priority: completion.PriorityNormal}
	q.push(a)
	q.push(b)
	q.push(c)

	if !q.remove(b) {
		t.Fatal("remove returned false for a queued waiter")
	}
	if q.remove(b) {
		t.Error("second remove of the same waiter returned true")
	}
	if q.len() != 2 {
		t.Fatalf("len = %d after removal, want 2", q.len())
	}
	if got := q.pop(); got != a {
		t.Error("ordering disturbed after mid-queue removal")
	}
	if got := q.pop(); got != c {
		t.Error("removed waiter's neighbor lost")
	}
}

func TestWaitQueue_DrainAll(t *testing.T) {
	q := newWaitQueue()
	q.push(&waiter{priority: completion.PriorityLow})
	q.push(&waiter{priority: completion.PriorityCritical})
	q.push(&waiter{priority: completion.PriorityNormal})

	drained := q.drainAll()
	if len(drained) != 3 {
		t.Fatalf("drained %d waiters, want 3", len(drained))
	}
	if drained[0].priority != completion.PriorityCritical {
		t.Error("drain did not start with the highest priority")
	}
	if q.len() != 0 {
		t.Error("queue not empty after drainAll")
	}
}
