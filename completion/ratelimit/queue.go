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
	"container/heap"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

// waiter is one deferred operation in the priority wait queue.
type waiter struct {
	priority  completion.Priority
	seq       uint64
	cost      int
	enqueueAt time.Time
	ready     chan error
	timer     clock.Timer
	index     int // heap bookkeeping; -1 once removed
}

// waitQueue orders waiters by priority first, arrival order within a
// priority. Not safe for concurrent use; the limiter's lock guards it.
type waitQueue struct {
	heap waiterHeap
	seq  uint64
}

func newWaitQueue() *waitQueue {
	return &waitQueue{}
}

func (q *waitQueue) push(w *waiter) {
	q.seq++
	w.seq = q.seq
	heap.Push(&q.heap, w)
}

// peek returns the highest-priority waiter without removing it.
func (q *waitQueue) peek() *waiter {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// pop removes and returns the highest-priority waiter.
func (q *waitQueue) pop() *waiter {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*waiter)
}

// remove detaches a specific waiter (timeout or caller cancellation).
func (q *waitQueue) remove(w *waiter) bool {
	if w.index < 0 {
		return false
	}
	heap.Remove(&q.heap, w.index)
	return true
}

func (q *waitQueue) len() int {
	return len(q.heap)
}

// drainAll empties the queue, returning every waiter.
func (q *waitQueue) drainAll() []*waiter {
	out := make([]*waiter, 0, len(q.heap))
	for q.len() > 0 {
		out = append(out, q.pop())
	}
	return out
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
