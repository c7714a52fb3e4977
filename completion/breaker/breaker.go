// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package breaker provides circuit breaker protection for the remote
// completion dispatch.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation - requests pass through.
	StateClosed State = iota
	// StateOpen means too many failures - requests are rejected.
	StateOpen
	// StateHalfOpen is testing recovery.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures the circuit breaker behavior.
type Config struct {
	// FailureThreshold is the number of counted failures before opening
	// (default: 3).
	FailureThreshold int

	// SuccessThreshold is successes needed to close from half-open
	// (default: 2).
	SuccessThreshold int

	// ResetTimeout is how long to stay open before testing recovery
	// (default: 30s).
	ResetTimeout time.Duration

	// FailureClassifier decides whether an error counts toward the
	// failure threshold. Nil counts every error. The pipeline wires
	// completion.IsRetryable here so auth and validation failures pass
	// through without affecting breaker state.
	FailureClassifier func(error) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
	}
}

// StateChangeFunc observes a breaker transition.
type StateChangeFunc func(from, to State)

// Stats contains circuit breaker statistics.
type Stats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	CurrentFailures int       `json:"current_failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Breaker prevents cascading failures by temporarily rejecting dispatch
// after repeated failures. It has three states:
//
//   - Closed: Normal operation, requests pass through.
//   - Open: After FailureThreshold failures, requests are rejected.
//   - Half-Open: After ResetTimeout, requests test recovery.
//
// Thread Safety: Safe for concurrent use.
type Breaker struct {
	config Config
	clock  clock.Clock

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastStateChange time.Time
	listeners       []StateChangeFunc

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// New creates a circuit breaker in the closed state.
//
// Inputs:
//   - config: Breaker configuration.
//   - clk: Clock for the open-state reset timeout. Must not be nil.
//
// Outputs:
//   - *Breaker: Ready to use circuit breaker.
func New(config Config, clk clock.Clock) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		config:          config,
		clock:           clk,
		state:           StateClosed,
		lastStateChange: clk.Now(),
	}
}

// OnStateChange registers a transition listener. Listeners run outside
// the breaker lock and must not block.
func (b *Breaker) OnStateChange(fn StateChangeFunc) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn under breaker protection.
//
// While open, Execute rejects immediately with
// completion.ErrCircuitOpen without invoking fn. Once the reset timeout
// has elapsed, the next call transitions to half-open before running.
//
// Outcome accounting follows the configured FailureClassifier: errors
// it rejects pass through without touching the counters.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		if b.config.FailureClassifier == nil || b.config.FailureClassifier(err) {
			b.recordFailure()
		}
		return err
	}

	b.recordSuccess()
	return nil
}

// allow decides whether a call may proceed, moving open to half-open
// when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()

	b.totalCalls++

	if b.state == StateOpen {
		if b.clock.Now().Sub(b.lastStateChange) >= b.config.ResetTimeout {
			notify := b.transitionLocked(StateHalfOpen)
			b.mu.Unlock()
			notify()
			return nil
		}
		b.totalRejections++
		b.mu.Unlock()
		return completion.ErrCircuitOpen
	}

	b.mu.Unlock()
	return nil
}

// recordSuccess records a successful call.
func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	notify := func() {}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			notify = b.transitionLocked(StateClosed)
		}
	}
	b.mu.Unlock()
	notify()
}

// recordFailure records a counted failure.
func (b *Breaker) recordFailure() {
	b.mu.Lock()
	notify := func() {}

	b.totalFailures++
	b.failures++
	b.successes = 0

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			notify = b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		notify = b.transitionLocked(StateOpen)
	}
	b.mu.Unlock()
	notify()
}

// Trip forces the breaker open.
func (b *Breaker) Trip() {
	b.mu.Lock()
	notify := func() {}
	if b.state != StateOpen {
		notify = b.transitionLocked(StateOpen)
	}
	b.mu.Unlock()
	notify()
}

// Reset forces the breaker closed with zeroed counters, for manual
// recovery or test setup.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := func() {}
	if b.state != StateClosed {
		notify = b.transitionLocked(StateClosed)
	} else {
		b.failures = 0
		b.successes = 0
	}
	b.mu.Unlock()
	notify()
}

// Stats returns circuit breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:           b.state.String(),
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
		CurrentFailures: b.failures,
		LastStateChange: b.lastStateChange,
	}
}

// transitionLocked changes state, resets counters, and returns the
// listener notification to run after the lock is released. Must be
// called with the lock held.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	b.state = to
	b.lastStateChange = b.clock.Now()
	b.failures = 0
	b.successes = 0

	listeners := make([]StateChangeFunc, len(b.listeners))
	copy(listeners, b.listeners)

	return func() {
		for _, fn := range listeners {
			fn(from, to)
		}
	}
}
