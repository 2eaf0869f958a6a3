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
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics creates the workflow instruments on a Prometheus-backed meter.
// Each call uses its own registry, so the returned handler only exposes
// the instruments created here. A disabled config yields a nil-safe
// recorder and a nil handler.
func InitMetrics(cfg MetricsConfig) (*PrometheusMetrics, http.Handler, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil, nil
	}

	registry := prometheus.NewRegistry()
	exporterOpts := []otelprom.Option{otelprom.WithRegisterer(registry)}
	if cfg.Namespace != "" {
		exporterOpts = append(exporterOpts, otelprom.WithNamespace(cfg.Namespace))
	}
	exporter, err := otelprom.New(exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)

	m := &PrometheusMetrics{provider: provider}

	if m.stepDuration, err = meter.Float64Histogram(
		"step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	if m.stepsTotal, err = meter.Int64Counter(
		"step_executions_total",
		metric.WithDescription("Total step executions"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create step counter: %w", err)
	}

	if m.stepErrors, err = meter.Int64Counter(
		"step_errors_total",
		metric.WithDescription("Total failed step executions"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create step error counter: %w", err)
	}

	if m.runsTotal, err = meter.Int64Counter(
		"runs_total",
		metric.WithDescription("Run and resume calls by final status"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create run counter: %w", err)
	}

	if m.suspendsTotal, err = meter.Int64Counter(
		"interrupts_total",
		metric.WithDescription("Total interrupts raised"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create interrupt counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"tool_call_duration_seconds",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolErrors, err = meter.Int64Counter(
		"tool_errors_total",
		metric.WithDescription("Total failed tool calls"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create tool error counter: %w", err)
	}

	if m.modelDuration, err = meter.Float64Histogram(
		"model_call_duration_seconds",
		metric.WithDescription("Model call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create model duration histogram: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m, handler, nil
}
