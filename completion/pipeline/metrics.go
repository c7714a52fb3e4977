// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianComplete/completion"
)

var meter = otel.Meter("aleutian.complete.pipeline")

var (
	requestTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		requestTotal, metricsErr = meter.Int64Counter(
			"completion_requests_total",
			metric.WithDescription("Pipeline requests by outcome and priority"),
		)
	})
	return metricsErr
}

func recordRequest(outcome string, priority completion.Priority) {
	if initMetrics() != nil {
		return
	}
	requestTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("priority", priority.String()),
	))
}
