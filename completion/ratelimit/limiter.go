// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit provides sliding-window quota tracking with
// priority-based admission control and a priority wait queue for
// deferred requests.
//
// Priority affects the admission threshold, never the ceiling itself:
// below 80% usage every priority is admitted; between 80% and 90% a
// usage warning fires but everything is still admitted; between 90% and
// 100% low priority is denied; at or above 100% only critical passes.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
)

// Admission thresholds, as fractions of a window ceiling.
const (
	// WarnThreshold is where the usage-warning event fires.
	WarnThreshold = 0.80

	// DenyLowThreshold is where low-priority requests stop being
	// admitted.
	DenyLowThreshold = 0.90
)

// DefaultQueueTimeout is how long a deferred operation may wait for
// admission before it is rejected.
const DefaultQueueTimeout = 300 * time.Second

// Window lengths. The month window approximates a billing month.
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour
	monthWindow  = 30 * 24 * time.Hour
)

// Config configures the limiter.
type Config struct {
	// Tier supplies the initial window ceilings (default: FreeTier).
	Tier Tier

	// QueueTimeout bounds the wait of a deferred operation
	// (default: 300s).
	QueueTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tier:         FreeTier(),
		QueueTimeout: DefaultQueueTimeout,
	}
}

// Limiter tracks request and token consumption across four sliding
// windows and arbitrates admission by priority.
//
// Thread Safety: Safe for concurrent use.
type Limiter struct {
	clock        clock.Clock
	queueTimeout time.Duration

	mu         sync.Mutex
	tier       Tier
	windows    []*window
	queue      *waitQueue
	listeners  []completion.Listener
	drainTimer clock.Timer
	closed     bool

	lastYear int
	lastYday int
}

// New creates a limiter with the configured tier's ceilings.
//
// Inputs:
//   - cfg: Limiter configuration. Zero fields take defaults.
//   - clk: Clock for window arithmetic and queue timeouts. Must not be nil.
//
// Outputs:
//   - *Limiter: Ready to use. Call Close to reject queued waiters.
func New(cfg Config, clk clock.Clock) *Limiter {
	if cfg.Tier.Name == "" {
		cfg.Tier = FreeTier()
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}

	now := clk.Now()
	l := &Limiter{
		clock:        clk,
		queueTimeout: cfg.QueueTimeout,
		tier:         cfg.Tier,
		queue:        newWaitQueue(),
		lastYear:     now.Year(),
		lastYday:     now.YearDay(),
	}
	l.windows = []*window{
		{name: "minute", length: minuteWindow, ceiling: cfg.Tier.Minute},
		{name: "hour", length: hourWindow, ceiling: cfg.Tier.Hour},
		{name: "day", length: dayWindow, ceiling: cfg.Tier.Day},
		{name: "month", length: monthWindow, ceiling: cfg.Tier.Month},
	}
	return l
}

// OnEvent registers an event listener. Listeners run outside the
// limiter lock and must not block.
func (l *Limiter) OnEvent(fn completion.Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// TryAdmit reports whether a request of the given estimated token cost
// may proceed at the given priority. Admission does not consume quota;
// call Record after a successful dispatch.
func (l *Limiter) TryAdmit(estimatedCost int, priority completion.Priority) bool {
	now := l.clock.Now()

	l.mu.Lock()
	events := l.purgeLocked(now)
	events = append(events, l.warningEventsLocked(now)...)

	ok := l.decideLocked(estimatedCost, priority)
	if !ok {
		events = append(events, l.denialEventLocked(now, priority))
	}
	l.mu.Unlock()

	l.emit(events)
	recordDecision(ok, priority)
	return ok
}

// Record consumes quota for one dispatched request.
func (l *Limiter) Record(cost int) {
	now := l.clock.Now()

	l.mu.Lock()
	events := l.purgeLocked(now)
	for _, w := range l.windows {
		w.record(now, cost)
	}
	events = append(events, l.warningEventsLocked(now)...)
	l.mu.Unlock()

	l.emit(events)
}

// Enqueue admits the request immediately when possible, otherwise
// parks it in the priority wait queue until usage drops, a window rolls
// over, the queue timeout passes, or the caller cancels.
//
// Outputs:
//   - error: Nil once admitted. completion.ErrQueueTimeout after the
//     wait limit, completion.ErrLimiterClosed if the limiter is
//     disposed, or the context error on caller cancellation.
func (l *Limiter) Enqueue(ctx context.Context, estimatedCost int, priority completion.Priority) error {
	now := l.clock.Now()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return completion.ErrLimiterClosed
	}

	events := l.purgeLocked(now)
	events = append(events, l.warningEventsLocked(now)...)

	if l.decideLocked(estimatedCost, priority) {
		l.mu.Unlock()
		l.emit(events)
		recordDecision(true, priority)
		return nil
	}
	events = append(events, l.denialEventLocked(now, priority))

	w := &waiter{
		priority:  priority,
		cost:      estimatedCost,
		enqueueAt: now,
		ready:     make(chan error, 1),
	}
	l.queue.push(w)
	recordQueued(priority)

	w.timer = l.clock.AfterFunc(l.queueTimeout, func() {
		l.expireWaiter(w)
	})
	l.scheduleDrainLocked()
	l.mu.Unlock()

	l.emit(events)
	recordDecision(false, priority)

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		removed := l.queue.remove(w)
		l.mu.Unlock()
		if removed {
			w.timer.Stop()
			return ctx.Err()
		}
		// Already admitted or rejected; honor that outcome.
		return <-w.ready
	}
}

// Usage returns a snapshot of every window.
func (l *Limiter) Usage() []completion.UsageSnapshot {
	now := l.clock.Now()

	l.mu.Lock()
	events := l.purgeLocked(now)
	out := make([]completion.UsageSnapshot, 0, len(l.windows))
	for _, w := range l.windows {
		out = append(out, completion.UsageSnapshot{
			Window:       w.name,
			Requests:     w.requests,
			RequestLimit: w.ceiling.Requests,
			Tokens:       w.tokens,
			TokenLimit:   w.ceiling.Tokens,
			ResetsAt:     w.resetsAt(),
		})
	}
	l.mu.Unlock()

	l.emit(events)
	return out
}

// SetTier atomically replaces every window ceiling, then retries the
// wait queue against the new limits.
func (l *Limiter) SetTier(t Tier) {
	l.mu.Lock()
	l.tier = t
	l.windows[0].ceiling = t.Minute
	l.windows[1].ceiling = t.Hour
	l.windows[2].ceiling = t.Day
	l.windows[3].ceiling = t.Month
	l.mu.Unlock()

	l.drain()
}

// Tier returns the active tier.
func (l *Limiter) Tier() Tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier
}

// QueueDepth returns the number of waiting operations.
func (l *Limiter) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.len()
}

// Close disposes the limiter, rejecting every queued operation.
func (l *Limiter) Close() {
	l.mu.Lock()
	l.closed = true
	if l.drainTimer != nil {
		l.drainTimer.Stop()
		l.drainTimer = nil
	}
	waiters := l.queue.drainAll()
	l.mu.Unlock()

	for _, w := range waiters {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.ready <- completion.ErrLimiterClosed
	}
}

// decideLocked is the pure admission decision. Must be called with the
// lock held after a purge.
func (l *Limiter) decideLocked(cost int, priority completion.Priority) bool {
	pct := l.worstPercentLocked()

	switch {
	case pct >= 1.0:
		return priority == completion.PriorityCritical
	case pct >= DenyLowThreshold:
		if priority == completion.PriorityLow {
			return false
		}
	}

	// Priority moves thresholds, not ceilings: short of the hard 100%
	// cut, nothing but critical may project past a ceiling.
	if priority != completion.PriorityCritical {
		for _, w := range l.windows {
			if w.wouldExceed(cost) {
				return false
			}
		}
	}
	return true
}

// worstPercentLocked returns the highest usage ratio across windows.
func (l *Limiter) worstPercentLocked() float64 {
	worst := 0.0
	for _, w := range l.windows {
		if pct := w.percentUsed(); pct > worst {
			worst = pct
		}
	}
	return worst
}

// purgeLocked drops stale samples from every window and detects the
// calendar-day rollover. Returns events to emit after unlocking.
func (l *Limiter) purgeLocked(now time.Time) []completion.Event {
	for _, w := range l.windows {
		w.purge(now)
	}

	var events []completion.Event
	if now.Year() != l.lastYear || now.YearDay() != l.lastYday {
		l.lastYear = now.Year()
		l.lastYday = now.YearDay()
		events = append(events, completion.Event{
			Type:   completion.EventDailyReset,
			Time:   now,
			Window: "day",
		})
	}
	return events
}

// warningEventsLocked flips per-window warned flags and returns one
// usage-warning event per upward crossing of the warning threshold.
func (l *Limiter) warningEventsLocked(now time.Time) []completion.Event {
	var events []completion.Event
	for _, w := range l.windows {
		pct := w.percentUsed()
		switch {
		case pct >= WarnThreshold && !w.warned:
			w.warned = true
			events = append(events, completion.Event{
				Type:        completion.EventUsageWarning,
				Time:        now,
				Window:      w.name,
				PercentUsed: pct,
			})
		case pct < WarnThreshold && w.warned:
			w.warned = false
		}
	}
	return events
}

// denialEventLocked builds the rate-limit-exceeded event for a denial.
func (l *Limiter) denialEventLocked(now time.Time, priority completion.Priority) completion.Event {
	worstName := ""
	worst := 0.0
	for _, w := range l.windows {
		if pct := w.percentUsed(); pct >= worst {
			worst = pct
			worstName = w.name
		}
	}
	return completion.Event{
		Type:        completion.EventRateLimitExceeded,
		Time:        now,
		Window:      worstName,
		PercentUsed: worst,
		Priority:    priority,
	}
}

// scheduleDrainLocked arms the drain timer for the next moment a
// sample leaves any window. Must be called with the lock held.
func (l *Limiter) scheduleDrainLocked() {
	if l.closed || l.queue.len() == 0 {
		return
	}

	var next time.Time
	for _, w := range l.windows {
		at := w.resetsAt()
		if at.IsZero() {
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	if next.IsZero() {
		return
	}

	if l.drainTimer != nil {
		l.drainTimer.Stop()
	}
	wait := next.Sub(l.clock.Now())
	if wait < 0 {
		wait = 0
	}
	l.drainTimer = l.clock.AfterFunc(wait, l.drain)
}

// drain admits queued waiters, highest priority first, for as long as
// the decision passes. Re-arms itself while waiters remain.
func (l *Limiter) drain() {
	now := l.clock.Now()

	l.mu.Lock()
	events := l.purgeLocked(now)

	var admitted []*waiter
	for {
		w := l.queue.peek()
		if w == nil {
			break
		}
		if !l.decideLocked(w.cost, w.priority) {
			break
		}
		l.queue.pop()
		admitted = append(admitted, w)
	}
	l.scheduleDrainLocked()
	l.mu.Unlock()

	l.emit(events)
	for _, w := range admitted {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.ready <- nil
	}
}

// expireWaiter rejects a waiter whose queue timeout elapsed.
func (l *Limiter) expireWaiter(w *waiter) {
	l.mu.Lock()
	removed := l.queue.remove(w)
	l.mu.Unlock()

	if removed {
		w.ready <- completion.ErrQueueTimeout
	}
}

// emit delivers events to the registered listeners.
func (l *Limiter) emit(events []completion.Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	listeners := make([]completion.Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, e := range events {
		for _, fn := range listeners {
			fn(e)
		}
	}
}
