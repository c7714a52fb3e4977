// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline composes the completion client: fingerprinted cache,
// token-budget truncation, adaptive debouncing, priority admission, and
// a circuit-breaker-guarded dispatcher, behind one entry point.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianComplete/clock"
	"github.com/AleutianAI/AleutianComplete/completion"
	"github.com/AleutianAI/AleutianComplete/completion/breaker"
	"github.com/AleutianAI/AleutianComplete/completion/budget"
	"github.com/AleutianAI/AleutianComplete/completion/cache"
	"github.com/AleutianAI/AleutianComplete/completion/debounce"
	"github.com/AleutianAI/AleutianComplete/completion/ratelimit"
	"github.com/AleutianAI/AleutianComplete/telemetry"
)

const tracerName = "complete.pipeline"

// Config configures the pipeline and its owned components.
type Config struct {
	// Model is the completion model identifier, used for token budget
	// lookups (default: budget's safe default).
	Model string `json:"model" yaml:"model"`

	// ContextShare is the fraction of the model limit available to
	// context (default: 0.80).
	ContextShare float64 `json:"context_share" yaml:"context_share"`

	Cache    cache.Config     `json:"cache" yaml:"cache"`
	Breaker  breaker.Config   `json:"breaker" yaml:"breaker"`
	Limiter  ratelimit.Config `json:"limiter" yaml:"limiter"`
	Debounce debounce.Config  `json:"debounce" yaml:"debounce"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ContextShare: budget.DefaultContextShare,
		Cache:        cache.DefaultConfig(),
		Breaker:      breaker.DefaultConfig(),
		Limiter:      ratelimit.DefaultConfig(),
		Debounce:     debounce.DefaultConfig(),
	}
}

// Service is the completion request pipeline. Each Service owns its
// cache, limiter, breaker, and debouncer; nothing is shared process-wide,
// so tests and multiple editor sessions construct isolated instances.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg        Config
	dispatcher completion.Dispatcher
	cache      *cache.Cache
	breaker    *breaker.Breaker
	limiter    *ratelimit.Limiter
	debouncer  *debounce.Coordinator
	logger     *slog.Logger

	mu        sync.Mutex
	listeners []completion.Listener
}

// New creates a pipeline service.
//
// Description:
//
//	Builds and wires all owned components. Limiter and breaker events
//	fan in to listeners registered with Subscribe.
//
// Inputs:
//   - cfg: Pipeline configuration. Zero sub-configs take defaults.
//   - dispatcher: The transport collaborator performing the network
//     call. Must not be nil.
//   - logger: Structured logger. Nil uses slog.Default().
//   - clk: Clock driving cache TTL, debounce, limiter windows, and
//     breaker timeouts. Must not be nil.
//
// Outputs:
//   - *Service: Ready to use. Call Close to release timers and reject
//     queued admissions.
func New(cfg Config, dispatcher completion.Dispatcher, logger *slog.Logger, clk clock.Clock) *Service {
	if cfg.ContextShare <= 0 || cfg.ContextShare > 1 {
		cfg.ContextShare = budget.DefaultContextShare
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Breaker.FailureClassifier == nil {
		cfg.Breaker.FailureClassifier = completion.IsRetryable
	}

	s := &Service{
		cfg:        cfg,
		dispatcher: dispatcher,
		cache:      cache.New(cfg.Cache, clk),
		breaker:    breaker.New(cfg.Breaker, clk),
		limiter:    ratelimit.New(cfg.Limiter, clk),
		debouncer:  debounce.NewCoordinator(cfg.Debounce, clk),
		logger:     logger,
	}

	s.limiter.OnEvent(s.emit)
	s.breaker.OnStateChange(func(from, to breaker.State) {
		s.emit(completion.Event{
			Type:      completion.EventCircuitStateChange,
			Time:      clk.Now(),
			FromState: from.String(),
			ToState:   to.String(),
		})
	})
	return s
}

// RequestCompletion runs one request through the pipeline.
//
// Description:
//
//	Cache check, token-budget truncation, debounce, admission (queueing
//	on denial), then the circuit-breaker-guarded dispatch. Successful
//	results are cached and their cost recorded against the quota. A
//	cancelled or superseded request resolves to an empty result with a
//	nil error, never populating the cache or the quota.
//
// Inputs:
//   - ctx: Caller cancellation, checked at every stage.
//   - code: The completion context. Only read.
//   - priority: Admission priority for the rate limiter.
//
// Outputs:
//   - []completion.Item: Completions, possibly served from cache. Nil
//     for cancelled or superseded requests.
//   - error: A typed error kind (completion.ErrCircuitOpen,
//     ErrQueueTimeout, dispatcher kinds), or nil.
func (s *Service) RequestCompletion(ctx context.Context, code *completion.CodeContext, priority completion.Priority) ([]completion.Item, error) {
	requestID := uuid.NewString()
	fp := code.Fingerprint
	if fp == "" {
		fp = completion.ComputeFingerprint(code)
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.RequestCompletion",
		trace.WithAttributes(
			attribute.String("completion.language", code.Language),
			attribute.String("completion.priority", priority.String()),
		))
	defer span.End()

	logger := telemetry.LoggerWithTrace(ctx, s.logger).With(
		"request_id", requestID,
		"fingerprint", fp,
	)

	if items, ok := s.cache.Get(code); ok {
		logger.Debug("completion served from cache", "items", len(items))
		recordRequest("cache_hit", priority)
		return items, nil
	}

	trunc := budget.TruncateToBudget(code, budget.ContextBudget(s.cfg.Model, s.cfg.ContextShare))
	trunc.Fingerprint = fp
	cost := budget.EstimateContextTokens(trunc)

	items, err := s.debouncer.Request(ctx, trunc, func(opCtx context.Context, c *completion.CodeContext) ([]completion.Item, error) {
		return s.dispatch(opCtx, c, priority, cost, logger)
	})
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
		logger.Warn("completion request failed", "error", err)
		recordRequest("error", priority)
		return nil, err
	case items == nil:
		logger.Debug("completion request superseded or cancelled")
		recordRequest("cancelled", priority)
		return nil, nil
	default:
		logger.Debug("completion dispatched", "items", len(items), "cost", cost)
		recordRequest("dispatched", priority)
		return items, nil
	}
}

// dispatch runs admission, the guarded network call, and the success
// bookkeeping for one debounced request.
func (s *Service) dispatch(ctx context.Context, code *completion.CodeContext, priority completion.Priority, cost int, logger *slog.Logger) ([]completion.Item, error) {
	if err := s.limiter.Enqueue(ctx, cost, priority); err != nil {
		return nil, err
	}

	var items []completion.Item
	err := s.breaker.Execute(ctx, func(callCtx context.Context) error {
		var sendErr error
		items, sendErr = s.dispatcher.Send(callCtx, code)
		return sendErr
	})
	if err != nil {
		return nil, err
	}

	// A cancelled call must not populate the cache or consume quota.
	if ctx.Err() != nil {
		return nil, nil
	}

	s.limiter.Record(cost)
	if len(items) > 0 {
		s.cache.Set(code, items)
	}
	return items, nil
}

// InvalidateCache removes cached entries matching the pattern and
// returns the count. An empty pattern clears everything.
func (s *Service) InvalidateCache(pattern string) int {
	return s.cache.Invalidate(pattern)
}

// ClearCache removes all cached entries and returns the count.
func (s *Service) ClearCache() int {
	return s.cache.Clear()
}

// CacheMetrics returns a snapshot of cache counters.
func (s *Service) CacheMetrics() cache.Metrics {
	return s.cache.Metrics()
}

// Usage returns the limiter's per-window snapshot.
func (s *Service) Usage() []completion.UsageSnapshot {
	return s.limiter.Usage()
}

// UpdateSubscriptionTier atomically replaces the limiter ceilings.
func (s *Service) UpdateSubscriptionTier(t ratelimit.Tier) {
	s.logger.Info("subscription tier updated", "tier", t.Name)
	s.limiter.SetTier(t)
}

// BreakerState returns the circuit breaker's current state.
func (s *Service) BreakerState() breaker.State {
	return s.breaker.State()
}

// Subscribe registers a listener for limiter and breaker events.
// Listeners must not block.
func (s *Service) Subscribe(fn completion.Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close releases the cache sweep timer and rejects queued admissions.
func (s *Service) Close() {
	s.cache.Close()
	s.limiter.Close()
}

func (s *Service) emit(e completion.Event) {
	s.mu.Lock()
	listeners := make([]completion.Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}
