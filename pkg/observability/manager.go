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
	"errors"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider and metric instruments for a process.
type Manager struct {
	config Config

	mu             sync.RWMutex
	tracerProvider trace.TracerProvider
	metrics        *PrometheusMetrics
	metricsHandler http.Handler
}

// NewManager creates a Manager. Call Initialize before use.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Initialize creates the tracer provider and metric instruments.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitTracerProvider(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, handler, err := InitMetrics(m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics
	m.metricsHandler = handler
	return nil
}

// Tracer returns a named tracer, or a no-op tracer before Initialize.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Recorder returns the metrics recorder. It is never nil.
func (m *Manager) Recorder() Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopRecorder{}
	}
	return m.metrics
}

// MetricsHandler serves the Prometheus exposition, or nil when metrics are off.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsHandler
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() Config {
	return m.config
}

// Shutdown flushes exporters.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, spt.Shutdown(ctx))
	}
	errs = append(errs, m.metrics.Shutdown(ctx))
	return errors.Join(errs...)
}
