// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder receives workflow measurements.
type Recorder interface {
	RecordStep(ctx context.Context, workflow, step string, duration time.Duration, err error)
	RecordRun(ctx context.Context, workflow, status string)
	RecordInterrupt(ctx context.Context, workflow, step string)
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)
	RecordModelCall(ctx context.Context, model string, duration time.Duration, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// PrometheusMetrics implements Recorder with OpenTelemetry instruments
// exported through Prometheus. The zero value records nothing.
type PrometheusMetrics struct {
	provider *sdkmetric.MeterProvider

	stepDuration  metric.Float64Histogram
	stepsTotal    metric.Int64Counter
	stepErrors    metric.Int64Counter
	runsTotal     metric.Int64Counter
	suspendsTotal metric.Int64Counter
	toolDuration  metric.Float64Histogram
	toolErrors    metric.Int64Counter
	modelDuration metric.Float64Histogram
	httpDuration  metric.Float64Histogram
}

func (m *PrometheusMetrics) RecordStep(ctx context.Context, workflow, step string, duration time.Duration, err error) {
	if m == nil || m.stepDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("step", step),
	)
	m.stepDuration.Record(ctx, duration.Seconds(), attrs)
	m.stepsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.stepErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordRun(ctx context.Context, workflow, status string) {
	if m == nil || m.runsTotal == nil {
		return
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", status),
	))
}

func (m *PrometheusMetrics) RecordInterrupt(ctx context.Context, workflow, step string) {
	if m == nil || m.suspendsTotal == nil {
		return
	}
	m.suspendsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("step", step),
	))
}

func (m *PrometheusMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordModelCall(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil || m.modelDuration == nil {
		return
	}
	m.modelDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	))
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

func (NoopRecorder) RecordStep(context.Context, string, string, time.Duration, error)      {}
func (NoopRecorder) RecordRun(context.Context, string, string)                             {}
func (NoopRecorder) RecordInterrupt(context.Context, string, string)                       {}
func (NoopRecorder) RecordToolCall(context.Context, string, time.Duration, error)          {}
func (NoopRecorder) RecordModelCall(context.Context, string, time.Duration, error)         {}
func (NoopRecorder) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

var (
	_ Recorder = (*PrometheusMetrics)(nil)
	_ Recorder = NoopRecorder{}
)
