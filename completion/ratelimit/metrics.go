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

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianComplete/completion"
)

var meter = otel.Meter("aleutian.complete.ratelimit")

var (
	admissionTotal metric.Int64Counter
	queuedTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		admissionTotal, err = meter.Int64Counter(
			"completion_admissions_total",
			metric.WithDescription("Admission decisions by outcome and priority"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queuedTotal, err = meter.Int64Counter(
			"completion_queued_total",
			metric.WithDescription("Operations deferred into the wait queue"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordDecision(admitted bool, priority completion.Priority) {
	if initMetrics() != nil {
		return
	}
	outcome := "denied"
	if admitted {
		outcome = "admitted"
	}
	admissionTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("priority", priority.String()),
	))
}

func recordQueued(priority completion.Priority) {
	if initMetrics() != nil {
		return
	}
	queuedTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("priority", priority.String()),
	))
}
