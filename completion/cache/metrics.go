// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.complete.cache")

var (
	lookupTotal   metric.Int64Counter
	evictionTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the otel instruments. Safe to call repeatedly;
// metric recording degrades to a no-op when initialization fails.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lookupTotal, err = meter.Int64Counter(
			"completion_cache_lookups_total",
			metric.WithDescription("Cache lookups by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictionTotal, err = meter.Int64Counter(
			"completion_cache_evictions_total",
			metric.WithDescription("Cache evictions by policy"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit() {
	if initMetrics() != nil {
		return
	}
	lookupTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", "hit")))
}

func recordMiss() {
	if initMetrics() != nil {
		return
	}
	lookupTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", "miss")))
}

func recordEviction(policy string) {
	if initMetrics() != nil {
		return
	}
	evictionTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("policy", policy)))
}
