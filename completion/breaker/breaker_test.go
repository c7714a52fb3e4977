// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

var errBoom = errors.New("boom")

func newTestBreaker() (*Breaker, *clock.Fake) {
	clk := clock.NewFake(time.Unix(0, 0))
	cfg := Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
	}
	return New(cfg, clk), clk
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("Execute = %v, want errBoom", err)
		}
	}

	if b.State() != StateOpen {
		t.Errorf("State = %v, want open after 3 failures", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	b.Execute(ctx, succeed)
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)

	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed; success must reset the counter", b.State())
	}
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}

	invoked := false
	err := b.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	})

	if !errors.Is(err, completion.ErrCircuitOpen) {
		t.Errorf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("operation invoked while breaker open")
	}
}

func TestBreaker_RecoveryCycle(t *testing.T) {
	b, clk := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}

	clk.Advance(31 * time.Second)

	// First call after the reset timeout moves to half-open and runs.
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("Execute after reset timeout = %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("State = %v, want half-open", b.State())
	}

	// Reaching the success threshold closes the breaker.
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("Execute in half-open = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed after success threshold", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	clk.Advance(31 * time.Second)

	if err := b.Execute(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("Execute = %v, want errBoom", err)
	}

	if b.State() != StateOpen {
		t.Errorf("State = %v, want open after half-open failure", b.State())
	}
	if err := b.Execute(ctx, succeed); !errors.Is(err, completion.ErrCircuitOpen) {
		t.Errorf("Execute = %v, want immediate rejection", err)
	}
}

func TestBreaker_ClassifierFiltersFailures(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.FailureClassifier = completion.IsRetryable
	b := New(cfg, clk)
	ctx := context.Background()

	authFail := func(context.Context) error { return completion.ErrAuthentication }
	for i := 0; i < 10; i++ {
		if err := b.Execute(ctx, authFail); !errors.Is(err, completion.ErrAuthentication) {
			t.Fatalf("Execute = %v, want the auth error surfaced", err)
		}
	}

	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed; auth errors must not count", b.State())
	}

	serverFail := func(context.Context) error { return completion.ErrServer }
	for i := 0; i < 3; i++ {
		b.Execute(ctx, serverFail)
	}
	if b.State() != StateOpen {
		t.Errorf("State = %v, want open after counted failures", b.State())
	}
}

func TestBreaker_TripAndReset(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	b.Trip()
	if b.State() != StateOpen {
		t.Fatalf("State after Trip = %v, want open", b.State())
	}
	if err := b.Execute(ctx, succeed); !errors.Is(err, completion.ErrCircuitOpen) {
		t.Errorf("Execute after Trip = %v, want rejection", err)
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("State after Reset = %v, want closed", b.State())
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Errorf("Execute after Reset = %v, want nil", err)
	}
	if got := b.Stats().CurrentFailures; got != 0 {
		t.Errorf("CurrentFailures after Reset = %d, want 0", got)
	}
}

func TestBreaker_TransitionEvents(t *testing.T) {
	b, clk := newTestBreaker()
	ctx := context.Background()

	type transition struct{ from, to State }
	var seen []transition
	b.OnStateChange(func(from, to State) {
		seen = append(seen, transition{from, to})
	})

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	clk.Advance(31 * time.Second)
	b.Execute(ctx, succeed)
	b.Execute(ctx, succeed)

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(seen) != len(want) {
		t.Fatalf("saw %d transitions, want %d: %+v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %+v, want %+v", i, seen[i], want[i])
		}
	}
}

func TestBreaker_StatsCountsRejections(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, fail)
	}
	b.Execute(ctx, succeed)
	b.Execute(ctx, succeed)

	s := b.Stats()
	if s.TotalRejections != 2 {
		t.Errorf("TotalRejections = %d, want 2", s.TotalRejections)
	}
	if s.TotalFailures != 3 {
		t.Errorf("TotalFailures = %d, want 3", s.TotalFailures)
	}
	if s.State != "open" {
		t.Errorf("State = %s, want open", s.State)
	}
}
