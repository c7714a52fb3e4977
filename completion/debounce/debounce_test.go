// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package debounce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

func newTestCoordinator() (*Coordinator, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return NewCoordinator(DefaultConfig(), clk), clk
}

func plainContext(fp, prefix string) *completion.CodeContext {
	return &completion.CodeContext{
		Language:    "go",
		Prefix:      prefix,
		CurrentLine: "x := compute",
		Fingerprint: fp,
	}
}

func TestRequest_DispatchesAfterDelay(t *testing.T) {
	c, clk := newTestCoordinator()

	var dispatched atomic.Int32
	want := []completion.Item{{Label: "computeTotal"}}

	var wg sync.WaitGroup
	var items []completion.Item
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		items, err = c.Request(context.Background(), plainContext("f1", "a"),
			func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
				dispatched.Add(1)
				return want, nil
			})
	}()

	waitForPending(t, c, 1)
	if n := dispatched.Load(); n != 0 {
		t.Fatalf("dispatched %d times before the delay elapsed", n)
	}

	clk.Advance(DefaultMinDelay + time.Millisecond)
	wg.Wait()

	if err != nil {
		t.Fatalf("Request returned %v", err)
	}
	if len(items) != 1 || items[0].Label != "computeTotal" {
		t.Errorf("items = %+v, want the dispatched result", items)
	}
	if n := dispatched.Load(); n != 1 {
		t.Errorf("dispatched %d times, want 1", n)
	}
}

func TestRequest_SecondRequestSupersedesFirst(t *testing.T) {
	c, clk := newTestCoordinator()

	var mu sync.Mutex
	var dispatchedPrefixes []string
	dispatch := func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
		mu.Lock()
		dispatchedPrefixes = append(dispatchedPrefixes, code.Prefix)
		mu.Unlock()
		return []completion.Item{{Label: code.Prefix}}, nil
	}

	var wg sync.WaitGroup
	var firstItems []completion.Item
	var firstErr error
	firstDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstItems, firstErr = c.Request(context.Background(), plainContext("f1", "first"), dispatch)
		close(firstDone)
	}()
	waitForPending(t, c, 1)

	var secondItems []completion.Item
	var secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		secondItems, secondErr = c.Request(context.Background(), plainContext("f1", "second"), dispatch)
	}()

	// The replacement registers its own timer before the superseded
	// request wakes, so once the first resolves the second is armed.
	<-firstDone

	clk.Advance(DefaultMaxDelay + time.Millisecond)
	wg.Wait()

	if firstErr != nil || firstItems != nil {
		t.Errorf("superseded request = (%v, %v), want silent empty", firstItems, firstErr)
	}
	if secondErr != nil || len(secondItems) != 1 || secondItems[0].Label != "second" {
		t.Errorf("winning request = (%v, %v), want the second context's result", secondItems, secondErr)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dispatchedPrefixes) != 1 || dispatchedPrefixes[0] != "second" {
		t.Errorf("dispatched prefixes = %v, want exactly [second]", dispatchedPrefixes)
	}
}

func TestRequest_DifferentFingerprintsRunConcurrently(t *testing.T) {
	c, clk := newTestCoordinator()

	var dispatched atomic.Int32
	dispatch := func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
		dispatched.Add(1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, fp := range []string{"f1", "f2"} {
		fp := fp
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Request(context.Background(), plainContext(fp, fp), dispatch)
		}()
	}
	waitForPending(t, c, 2)

	clk.Advance(DefaultMaxDelay + time.Millisecond)
	wg.Wait()

	if n := dispatched.Load(); n != 2 {
		t.Errorf("dispatched %d times, want one per fingerprint", n)
	}
}

func TestRequest_ImmediateTriggerSkipsDelay(t *testing.T) {
	c, _ := newTestCoordinator()

	code := plainContext("f1", "obj")
	code.CurrentLine = "obj."
	code.CursorColumn = 4

	var dispatched atomic.Int32
	// No clock advance: the dispatch must happen with the timer never
	// armed.
	items, err := c.Request(context.Background(), code,
		func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
			dispatched.Add(1)
			return []completion.Item{{Label: "Field"}}, nil
		})

	if err != nil || len(items) != 1 {
		t.Fatalf("Request = (%v, %v), want immediate dispatch", items, err)
	}
	if dispatched.Load() != 1 {
		t.Error("immediate trigger did not dispatch")
	}
}

func TestRequest_CallerCancelBeforeTimer(t *testing.T) {
	c, clk := newTestCoordinator()

	var dispatched atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var items []completion.Item
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		items, err = c.Request(ctx, plainContext("f1", "a"),
			func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
				dispatched.Add(1)
				return nil, nil
			})
	}()
	waitForPending(t, c, 1)

	cancel()
	wg.Wait()

	if items != nil || err != nil {
		t.Errorf("cancelled request = (%v, %v), want silent empty", items, err)
	}
	if c.pendingCount() != 0 {
		t.Error("cancelled operation left pending")
	}

	// The timer may still fire; nothing must be dispatched.
	clk.Advance(DefaultMaxDelay + time.Millisecond)
	if dispatched.Load() != 0 {
		t.Error("dispatch ran after caller cancellation")
	}
}

func TestRequest_SupersededMidFlightResolvesSilently(t *testing.T) {
	c, _ := newTestCoordinator()

	entered := make(chan struct{})
	release := make(chan struct{})
	dispatch := func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
		close(entered)
		select {
		case <-release:
			return []completion.Item{{Label: "late"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	code := plainContext("f1", "a")
	code.CurrentLine = "obj."
	code.CursorColumn = 4

	var wg sync.WaitGroup
	var firstItems []completion.Item
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstItems, firstErr = c.Request(context.Background(), code, dispatch)
	}()
	<-entered

	// The replacement cancels the in-flight dispatch for the same
	// fingerprint.
	second := plainContext("f1", "b")
	second.CurrentLine = "obj."
	second.CursorColumn = 4
	items, err := c.Request(context.Background(), second,
		func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error) {
			return []completion.Item{{Label: "winner"}}, nil
		})
	wg.Wait()
	close(release)

	if firstItems != nil || firstErr != nil {
		t.Errorf("superseded in-flight request = (%v, %v), want silent empty", firstItems, firstErr)
	}
	if err != nil || len(items) != 1 || items[0].Label != "winner" {
		t.Errorf("replacement request = (%v, %v)", items, err)
	}
}

func TestDelay_AdaptsToTypingSpeed(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := NewCoordinator(DefaultConfig(), clk)

	// No history: floor.
	c.mu.Lock()
	if got := c.delayLocked(); got != DefaultMinDelay {
		t.Errorf("delay with no history = %v, want %v", got, DefaultMinDelay)
	}
	c.mu.Unlock()

	// Fast typing (50ms apart) pushes the delay to the ceiling.
	for i := 0; i < intervalHistory; i++ {
		clk.Advance(50 * time.Millisecond)
		c.mu.Lock()
		c.observeLocked(clk.Now())
		c.mu.Unlock()
	}
	c.mu.Lock()
	if got := c.delayLocked(); got != DefaultMaxDelay {
		t.Errorf("delay while typing fast = %v, want %v", got, DefaultMaxDelay)
	}
	c.mu.Unlock()

	// Slow typing (2s apart) pulls it back to the floor.
	for i := 0; i < intervalHistory; i++ {
		clk.Advance(2 * time.Second)
		c.mu.Lock()
		c.observeLocked(clk.Now())
		c.mu.Unlock()
	}
	c.mu.Lock()
	if got := c.delayLocked(); got != DefaultMinDelay {
		t.Errorf("delay while typing slowly = %v, want %v", got, DefaultMinDelay)
	}
	c.mu.Unlock()
}

func TestImmediateTrigger(t *testing.T) {
	cases := []struct {
		name string
		line string
		col  int
		want bool
	}{
		{"member access", "obj.", 4, true},
		{"pointer member", "ptr->", 5, true},
		{"scope resolution", "std::", 5, true},
		{"open paren", "call(", 5, true},
		{"open bracket", "arr[", 4, true},
		{"open brace", "func() {", 8, true},
		{"trailing space after dot", "obj. ", 5, true},
		{"plain identifier", "value", 5, false},
		{"cursor before operator", "obj.", 3, false},
		{"empty line", "", 0, false},
		{"column past end", "obj.", 99, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := &completion.CodeContext{CurrentLine: tc.line, CursorColumn: tc.col}
			if got := ImmediateTrigger(code); got != tc.want {
				t.Errorf("ImmediateTrigger(%q, col %d) = %v, want %v", tc.line, tc.col, got, tc.want)
			}
		})
	}
}

func waitForPending(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	waitFor(t, func() bool { return c.pendingCount() == n })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never reached")
		}
		time.Sleep(time.Millisecond)
	}
}
