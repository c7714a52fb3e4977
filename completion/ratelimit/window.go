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

import "time"

// sample is one timestamped consumption record.
type sample struct {
	at   time.Time
	cost int
}

// window tracks consumption over one sliding period.
//
// Samples older than the window length are purged before every
// admission decision; requests and tokens are the running sums of the
// retained samples.
type window struct {
	name     string
	length   time.Duration
	ceiling  Ceiling
	samples  []sample
	requests int
	tokens   int

	// warned is set while usage sits above the warning threshold so the
	// usage-warning event fires once per crossing, not once per request.
	warned bool
}

// purge drops samples older than the window length.
func (w *window) purge(now time.Time) {
	cutoff := now.Add(-w.length)
	i := 0
	for i < len(w.samples) && !w.samples[i].at.After(cutoff) {
		w.requests--
		w.tokens -= w.samples[i].cost
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// record appends one consumption sample.
func (w *window) record(now time.Time, cost int) {
	w.samples = append(w.samples, sample{at: now, cost: cost})
	w.requests++
	w.tokens += cost
}

// percentUsed returns the higher of the request and token usage ratios.
// Unlimited dimensions report zero.
func (w *window) percentUsed() float64 {
	var reqPct, tokPct float64
	if w.ceiling.Requests > 0 {
		reqPct = float64(w.requests) / float64(w.ceiling.Requests)
	}
	if w.ceiling.Tokens > 0 {
		tokPct = float64(w.tokens) / float64(w.ceiling.Tokens)
	}
	if reqPct > tokPct {
		return reqPct
	}
	return tokPct
}

// wouldExceed reports whether admitting one request of the given token
// cost would push either dimension past its ceiling.
func (w *window) wouldExceed(cost int) bool {
	if w.ceiling.Requests > 0 && w.requests+1 > w.ceiling.Requests {
		return true
	}
	if w.ceiling.Tokens > 0 && w.tokens+cost > w.ceiling.Tokens {
		return true
	}
	return false
}

// resetsAt returns when the oldest retained sample leaves the window,
// or the zero time when the window is empty.
func (w *window) resetsAt() time.Time {
	if len(w.samples) == 0 {
		return time.Time{}
	}
	return w.samples[0].at.Add(w.length)
}
