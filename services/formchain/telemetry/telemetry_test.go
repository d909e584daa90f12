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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := DefaultConfig()
	if cfg.ServiceName != "formchain" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "formchain")
	}
	if cfg.TraceExporter != "none" {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, "none")
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "localhost:4317")
	}
	if cfg.Enabled() {
		t.Error("default config should not enable exporters")
	}
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	cfg := DefaultConfig()
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.True(t, cfg.Enabled())
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, Config{})
	if err != ErrNilContext {
		t.Errorf("Init(nil, cfg) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_NoExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "formchain-test",
		TraceExporter:  "stdout",
		MetricExporter: "stdout",
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_PrometheusServesMetrics(t *testing.T) {
	// Two inits must not collide on a shared registry.
	for i := 0; i < 2; i++ {
		shutdown, err := Init(context.Background(), Config{ServiceName: "formchain-test", MetricExporter: ExporterPrometheus})
		require.NoError(t, err)
		t.Cleanup(func() { _ = shutdown(context.Background()) })
	}

	m, err := NewMetrics(otel.Meter(MeterName))
	require.NoError(t, err)
	m.RecordSegment(context.Background(), 10, 3)

	h := MetricsHandler()
	require.NotNil(t, h)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "formchain_segments")
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "jaeger-thrift"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))

	_, err = Init(context.Background(), Config{MetricExporter: "graphite"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T", m.Name, m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter(MeterName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSegment(ctx, 12, 4)
	m.RecordSegment(ctx, 3, 6)
	m.RecordFork(ctx, ForkWinner, 12)
	m.RecordFork(ctx, ForkBudget, 400)
	m.RecordRecoveries(ctx, 2, 1)
	m.RecordRecoveries(ctx, 0, 0)
	m.RecordTrain(ctx, 150*time.Millisecond)
	m.RecordCacheLookup(ctx, "miss")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, got["formchain_segments_total"]))
	assert.Equal(t, int64(15), sumValue(t, got["formchain_symbols_total"]))
	assert.Equal(t, int64(2), sumValue(t, got["formchain_forks_total"]))
	assert.Equal(t, int64(3), sumValue(t, got["formchain_context_recoveries_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["formchain_cache_lookups_total"]))

	hist, ok := got["formchain_train_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordSegment(ctx, 1, 1)
		m.RecordFork(ctx, ForkFailed, 1)
		m.RecordRecoveries(ctx, 1, 1)
		m.RecordTrain(ctx, time.Second)
		m.RecordCacheLookup(ctx, "hit")
	})
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// No span: logger returned unchanged.
	assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, logger).Info("hello")
	assert.True(t, strings.Contains(buf.String(), "trace_id="+span.SpanContext().TraceID().String()))
	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(ctx))
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestRecordError_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("x"))
		SetSpanOK(nil)
	})
}
