// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const searchTracerName = "formchain.search"

// Tracer provides OpenTelemetry tracing for search runs.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil).
//   - enabled: False makes every Start method return a no-op span.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  otel.Tracer(searchTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartRun starts a span for a whole generation run.
func (t *Tracer) StartRun(ctx context.Context, cfg Config) (context.Context, trace.Span) {
	t.logger.InfoContext(ctx, "Search run started",
		slog.Int("forks", cfg.Forks),
		slog.Int("min_order", cfg.MinOrder),
		slog.Int("max_order", cfg.MaxOrder),
		slog.Int("output_amount", cfg.OutputAmount),
	)
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.run",
		trace.WithAttributes(
			attribute.Int("search.forks", cfg.Forks),
			attribute.Int("search.min_order", cfg.MinOrder),
			attribute.Int("search.max_order", cfg.MaxOrder),
			attribute.Int("search.min_coherence", cfg.MinCoherence),
			attribute.Int("search.fork_step_budget", cfg.ForkStepBudget),
			attribute.Int("search.output_amount", cfg.OutputAmount),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRun completes the run span.
//
// Inputs:
//   - span: The span to end.
//   - symbols: Symbols in the output.
//   - segments: Committed segments.
//   - err: Error if the run failed.
func (t *Tracer) EndRun(span trace.Span, symbols, segments int, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Int("search.result.symbols", symbols),
		attribute.Int("search.result.segments", segments),
	)
	span.End()

	if err != nil {
		t.logger.Error("Search run failed",
			slog.Int("symbols", symbols),
			slog.Int("segments", segments),
			slog.String("error", err.Error()),
		)
		return
	}
	t.logger.Info("Search run completed",
		slog.Int("symbols", symbols),
		slog.Int("segments", segments),
	)
}

// StartSegment starts a span for one fork-evaluate-commit cycle.
func (t *Tracer) StartSegment(ctx context.Context, index, canonicalMatched int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.segment",
		trace.WithAttributes(
			attribute.Int("search.segment", index),
			attribute.Int("search.canonical_matched", canonicalMatched),
		),
	)
}

// EndSegment completes the segment span.
func (t *Tracer) EndSegment(span trace.Span, report SegmentReport, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	span.SetAttributes(
		attribute.Int("search.winner", report.Winner),
		attribute.String("search.reason", report.Reason),
		attribute.Int("search.matched", report.Matched),
		attribute.Int("search.symbols", len(report.Triples)),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

// TraceFork starts a span for one fork.
func (t *Tracer) TraceFork(ctx context.Context, index int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.fork",
		trace.WithAttributes(attribute.Int("search.fork", index)),
	)
}

// EndFork completes a fork span.
func (t *Tracer) EndFork(span trace.Span, report ForkReport) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("search.fork.steps", report.Steps),
		attribute.Int("search.fork.matched", report.Matched),
	)
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, report.Err.Error())
	}
	span.End()
}
