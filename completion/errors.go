// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package completion

import (
	"errors"
	"time"
)

// Sentinel errors classifying dispatcher and pipeline failures.
//
// Dispatchers wrap these with fmt.Errorf("...: %w", Err...) so callers can
// classify with errors.Is while keeping the underlying detail.
var (
	// ErrNetwork indicates an offline, DNS, or connect failure. Retryable.
	ErrNetwork = errors.New("network error")

	// ErrAuthentication indicates an expired or invalid credential.
	// Not retried by the core; surfaced to the caller.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited indicates the remote service rejected the request
	// for quota reasons. Retryable after a delay; see RateLimitError.
	ErrRateLimited = errors.New("rate limited")

	// ErrServer indicates a 5xx response. Retryable.
	ErrServer = errors.New("server error")

	// ErrInvalidRequest indicates a 4xx validation failure. Not retryable.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTimeout indicates the request exceeded its deadline. Retryable.
	ErrTimeout = errors.New("request timed out")

	// ErrUnknown is the catch-all for unclassified failures.
	ErrUnknown = errors.New("unknown error")

	// ErrCircuitOpen indicates the circuit breaker rejected the request
	// without dispatching it. Callers may fall back to cached results.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrQueueTimeout indicates a deferred request waited in the
	// admission queue past the configured limit.
	ErrQueueTimeout = errors.New("queued request timed out")

	// ErrLimiterClosed indicates the rate limiter was disposed while
	// the request was waiting for admission.
	ErrLimiterClosed = errors.New("rate limiter closed")
)

// RateLimitError carries the remote retry hint and the local usage
// snapshot at the time of the rejection.
type RateLimitError struct {
	// RetryAfter is the delay suggested by the service, if any.
	RetryAfter time.Duration

	// Usage is the local limiter snapshot when the rejection occurred.
	Usage []UsageSnapshot
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IsRetryable reports whether the error kind is safe to retry, and thus
// whether it counts toward circuit-breaker failure accounting. Auth and
// validation failures pass through without affecting the breaker.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrServer),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}
