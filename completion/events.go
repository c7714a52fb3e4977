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

import "time"

// EventType identifies an event in the completion request lifecycle.
type EventType string

const (
	// EventUsageWarning is emitted once per crossing of the usage-warning
	// threshold (80% of a window ceiling).
	EventUsageWarning EventType = "usage_warning"

	// EventDailyReset is emitted when the day window rolls over.
	EventDailyReset EventType = "daily_reset"

	// EventRateLimitExceeded is emitted when admission is denied.
	EventRateLimitExceeded EventType = "rate_limit_exceeded"

	// EventCircuitStateChange is emitted on every breaker transition.
	EventCircuitStateChange EventType = "circuit_state_change"
)

// Event is one observable occurrence in the core. Fields are populated
// depending on the event type.
type Event struct {
	// Type is the event classification.
	Type EventType

	// Time is when the event occurred.
	Time time.Time

	// Window names the rate window for usage events.
	Window string

	// PercentUsed is the window usage ratio for usage events.
	PercentUsed float64

	// Priority is the denied priority for rate-limit events.
	Priority Priority

	// FromState and ToState carry the breaker transition for
	// circuit events.
	FromState string
	ToState   string
}

// Listener receives events. Listeners must not block; slow consumers
// should hand off to their own channel.
type Listener func(Event)
