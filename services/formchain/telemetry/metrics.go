// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Fork outcomes used as the "outcome" attribute of ForksTotal.
const (
	ForkWinner    = "winner"
	ForkDiscarded = "discarded"
	ForkBudget    = "budget_exceeded"
	ForkFailed    = "failed"
)

// Metrics contains the formchain generation metrics.
//
// Description:
//
//	All metrics use the "formchain_" prefix. The Record helpers are safe on a
//	nil *Metrics so components can run without telemetry.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// SegmentsTotal counts committed segments.
	SegmentsTotal metric.Int64Counter

	// ForksTotal counts forks by outcome.
	ForksTotal metric.Int64Counter

	// ForkSteps records symbols generated per fork.
	ForkSteps metric.Int64Histogram

	// SegmentCoherence records the matched form order of committed segments.
	SegmentCoherence metric.Int64Histogram

	// SymbolsTotal counts committed symbols.
	SymbolsTotal metric.Int64Counter

	// ContextRecoveriesTotal counts generator lookups that needed recovery,
	// by kind (truncate, restart).
	ContextRecoveriesTotal metric.Int64Counter

	// TrainDuration records corpus training time in seconds.
	TrainDuration metric.Float64Histogram

	// CacheLookupsTotal counts trained-corpus cache lookups by result.
	CacheLookupsTotal metric.Int64Counter
}

// NewMetrics registers all formchain metrics with meter.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SegmentsTotal, err = meter.Int64Counter(
		"formchain_segments_total",
		metric.WithDescription("Total committed segments"),
		metric.WithUnit("{segment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create segments_total: %w", err)
	}

	m.ForksTotal, err = meter.Int64Counter(
		"formchain_forks_total",
		metric.WithDescription("Total speculative forks by outcome"),
		metric.WithUnit("{fork}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create forks_total: %w", err)
	}

	m.ForkSteps, err = meter.Int64Histogram(
		"formchain_fork_steps",
		metric.WithDescription("Symbols generated by a fork before it stopped"),
		metric.WithUnit("{symbol}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50, 100, 200, 400, 1000),
	)
	if err != nil {
		return nil, fmt.Errorf("create fork_steps: %w", err)
	}

	m.SegmentCoherence, err = meter.Int64Histogram(
		"formchain_segment_coherence",
		metric.WithDescription("Matched form order of committed segments"),
		metric.WithUnit("{order}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5, 6, 8, 10, 12, 16),
	)
	if err != nil {
		return nil, fmt.Errorf("create segment_coherence: %w", err)
	}

	m.SymbolsTotal, err = meter.Int64Counter(
		"formchain_symbols_total",
		metric.WithDescription("Total committed symbols"),
		metric.WithUnit("{symbol}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create symbols_total: %w", err)
	}

	m.ContextRecoveriesTotal, err = meter.Int64Counter(
		"formchain_context_recoveries_total",
		metric.WithDescription("Generator lookups recovered by truncation or restart"),
		metric.WithUnit("{recovery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create context_recoveries_total: %w", err)
	}

	m.TrainDuration, err = meter.Float64Histogram(
		"formchain_train_duration_seconds",
		metric.WithDescription("Corpus training duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create train_duration: %w", err)
	}

	m.CacheLookupsTotal, err = meter.Int64Counter(
		"formchain_cache_lookups_total",
		metric.WithDescription("Trained corpus cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_lookups_total: %w", err)
	}

	return m, nil
}

// RecordSegment records one committed segment.
func (m *Metrics) RecordSegment(ctx context.Context, symbols, coherence int) {
	if m == nil {
		return
	}
	m.SegmentsTotal.Add(ctx, 1)
	m.SymbolsTotal.Add(ctx, int64(symbols))
	m.SegmentCoherence.Record(ctx, int64(coherence))
}

// RecordFork records one fork with its outcome and length.
func (m *Metrics) RecordFork(ctx context.Context, outcome string, steps int) {
	if m == nil {
		return
	}
	m.ForksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.ForkSteps.Record(ctx, int64(steps))
}

// RecordRecoveries records generator context recoveries.
func (m *Metrics) RecordRecoveries(ctx context.Context, truncations, restarts int) {
	if m == nil {
		return
	}
	if truncations > 0 {
		m.ContextRecoveriesTotal.Add(ctx, int64(truncations), metric.WithAttributes(attribute.String("kind", "truncate")))
	}
	if restarts > 0 {
		m.ContextRecoveriesTotal.Add(ctx, int64(restarts), metric.WithAttributes(attribute.String("kind", "restart")))
	}
}

// RecordTrain records one training run.
func (m *Metrics) RecordTrain(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.TrainDuration.Record(ctx, d.Seconds())
}

// RecordCacheLookup records a cache lookup with result "hit", "miss" or "error".
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
