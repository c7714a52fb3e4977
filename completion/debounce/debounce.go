// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package debounce coordinates completion requests per context
// fingerprint: it delays dispatch by an adaptive interval derived from
// typing speed, skips the delay after member-access and bracket
// triggers, and guarantees at most one in-flight dispatch per
// fingerprint by cancelling and replacing the previous one.
package debounce

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

// Delay bounds for the adaptive debounce interval.
const (
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 300 * time.Millisecond
)

// Inter-arrival bounds used to scale the delay. At or below fastTyping
// the delay sits at MaxDelay; at or above slowTyping it sits at
// MinDelay; in between it interpolates linearly.
const (
	fastTyping = 200 * time.Millisecond
	slowTyping = time.Second
)

// intervalHistory is how many recent inter-arrival samples feed the
// adaptive delay.
const intervalHistory = 10

// immediateSuffixes are the operators that warrant dispatching without
// delay when they end the text before the cursor.
var immediateSuffixes = []string{".", "->", "::", "(", "[", "{"}

// DispatchFunc performs the downstream work for one debounced request.
// The context is cancelled when the request is superseded or the caller
// gives up.
type DispatchFunc func(ctx context.Context, code *completion.CodeContext) ([]completion.Item, error)

// Config configures the coordinator.
type Config struct {
	// MinDelay is the debounce floor reached during slow typing
	// (default: 100ms).
	MinDelay time.Duration

	// MaxDelay is the debounce ceiling reached during fast typing
	// (default: 300ms).
	MaxDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
	}
}

// pendingOp is the single in-flight or timer-armed operation for one
// fingerprint.
type pendingOp struct {
	cancel context.CancelFunc
	timer  clock.Timer
}

func (op *pendingOp) supersede() {
	if op.timer != nil {
		op.timer.Stop()
	}
	op.cancel()
}

// Coordinator debounces completion requests and enforces single-flight
// per fingerprint. Requests for different fingerprints proceed
// concurrently.
//
// Thread Safety: Safe for concurrent use.
type Coordinator struct {
	clock    clock.Clock
	minDelay time.Duration
	maxDelay time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingOp
	lastCall  time.Time
	intervals []time.Duration
}

// NewCoordinator creates a coordinator.
//
// Inputs:
//   - cfg: Delay bounds. Zero fields take defaults.
//   - clk: Clock driving debounce timers. Must not be nil.
func NewCoordinator(cfg Config, clk clock.Clock) *Coordinator {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = DefaultMaxDelay
	}
	return &Coordinator{
		clock:    clk,
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		pending:  make(map[string]*pendingOp),
	}
}

// Request debounces and dispatches one completion request.
//
// Description:
//
//	Cancels any pending operation with the same fingerprint, waits out
//	the adaptive delay (skipped for immediate triggers), then invokes
//	dispatch. A request that is superseded or cancelled before delivery
//	resolves silently with an empty result and a nil error.
//
// Inputs:
//   - ctx: Caller cancellation. Cancelling stops the timer and any
//     in-flight dispatch.
//   - code: The completion context. Only read.
//   - dispatch: The downstream call to run once the delay elapses.
//
// Outputs:
//   - []completion.Item: Dispatch results, or nil when superseded or
//     cancelled.
//   - error: The dispatch error, or nil for superseded and cancelled
//     requests.
func (c *Coordinator) Request(ctx context.Context, code *completion.CodeContext, dispatch DispatchFunc) ([]completion.Item, error) {
	fp := code.Fingerprint
	if fp == "" {
		fp = completion.ComputeFingerprint(code)
	}
	now := c.clock.Now()

	opCtx, cancel := context.WithCancel(ctx)
	op := &pendingOp{cancel: cancel}

	c.mu.Lock()
	c.observeLocked(now)
	if prev := c.pending[fp]; prev != nil {
		prev.supersede()
	}
	c.pending[fp] = op

	fired := make(chan struct{})
	if ImmediateTrigger(code) {
		close(fired)
	} else {
		op.timer = c.clock.AfterFunc(c.delayLocked(), func() {
			close(fired)
		})
	}
	c.mu.Unlock()

	select {
	case <-fired:
	case <-opCtx.Done():
		c.release(fp, op)
		return nil, nil
	}

	items, err := dispatch(opCtx, code)
	c.release(fp, op)

	// Superseded or cancelled mid-flight: resolve silently so the
	// caller never sees both a replacement result and an error.
	if opCtx.Err() != nil {
		return nil, nil
	}
	return items, err
}

// release removes the operation from the pending map if it is still the
// registered one, and always cancels its context.
func (c *Coordinator) release(fp string, op *pendingOp) {
	c.mu.Lock()
	if c.pending[fp] == op {
		delete(c.pending, fp)
	}
	c.mu.Unlock()
	op.supersede()
}

// observeLocked records the inter-arrival time since the previous
// request. Must be called with the lock held.
func (c *Coordinator) observeLocked(now time.Time) {
	if !c.lastCall.IsZero() {
		c.intervals = append(c.intervals, now.Sub(c.lastCall))
		if len(c.intervals) > intervalHistory {
			c.intervals = c.intervals[len(c.intervals)-intervalHistory:]
		}
	}
	c.lastCall = now
}

// delayLocked computes the adaptive delay from recent inter-arrival
// times. Fast typing pushes the delay up toward MaxDelay so keystrokes
// coalesce; slow typing pulls it down toward MinDelay for snappier
// results. Must be called with the lock held.
func (c *Coordinator) delayLocked() time.Duration {
	if len(c.intervals) == 0 {
		return c.minDelay
	}

	var sum time.Duration
	for _, d := range c.intervals {
		sum += d
	}
	avg := sum / time.Duration(len(c.intervals))

	switch {
	case avg <= fastTyping:
		return c.maxDelay
	case avg >= slowTyping:
		return c.minDelay
	}

	span := float64(slowTyping - fastTyping)
	frac := float64(avg-fastTyping) / span
	return c.maxDelay - time.Duration(frac*float64(c.maxDelay-c.minDelay))
}

// ImmediateTrigger reports whether the text before the cursor ends with
// an operator that should bypass the debounce delay: member access,
// scope resolution, or an opening bracket.
func ImmediateTrigger(code *completion.CodeContext) bool {
	line := code.CurrentLine
	col := code.CursorColumn
	if col < 0 || col > len(line) {
		col = len(line)
	}
	before := strings.TrimRight(line[:col], " \t")
	for _, suffix := range immediateSuffixes {
		if strings.HasSuffix(before, suffix) {
			return true
		}
	}
	return false
}

// pendingCount reports the number of registered operations.
func (c *Coordinator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
