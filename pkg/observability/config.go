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
	"errors"
	"fmt"
	"strings"
	"time"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config is the observability section.
//
//	observability:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    sampling_rate: 0.25
//	  metrics:
//	    enabled: true
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls OpenTelemetry spans for runs, supersteps, steps
// and tool calls.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is otlp (gRPC) or stdout. Default: otlp
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector address. Default: localhost:4317
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the fraction of root spans kept. Default: 1
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	ServiceName    string `yaml:"service_name,omitempty"`
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Insecure skips TLS towards the collector. Default: true
	Insecure *bool `yaml:"insecure,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	// CaptureState records each step's state update as a span attribute.
	// State can hold email bodies and other user content.
	CaptureState bool `yaml:"capture_state,omitempty"`

	// Timeout bounds each export. Default: 10s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the HTTP path. Default: /metrics
	Endpoint string `yaml:"endpoint,omitempty"`

	// Namespace prefixes metric names. Default: waypoint
	Namespace string `yaml:"namespace,omitempty"`

	ConstLabels map[string]string `yaml:"const_labels,omitempty"`
}

// SetDefaults fills both sections.
func (c *Config) SetDefaults() {
	t := &c.Tracing
	t.Exporter = orDefault(t.Exporter, ExporterOTLP)
	t.Endpoint = orDefault(t.Endpoint, DefaultOTLPEndpoint)
	t.ServiceName = orDefault(t.ServiceName, DefaultServiceName)
	if t.SamplingRate == 0 {
		t.SamplingRate = DefaultSamplingRate
	}
	if t.Insecure == nil {
		insecure := true
		t.Insecure = &insecure
	}
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}

	m := &c.Metrics
	m.Endpoint = orDefault(m.Endpoint, DefaultMetricsPath)
	m.Namespace = orDefault(m.Namespace, DefaultNamespace)
}

// Validate checks only the enabled sections.
func (c *Config) Validate() error {
	var errs []error
	if t := c.Tracing; t.Enabled {
		if t.Endpoint == "" && t.Exporter != ExporterStdout {
			errs = append(errs, errors.New("tracing: endpoint is required"))
		}
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling_rate must be between 0 and 1, got %g", t.SamplingRate))
		}
		if t.Exporter != ExporterOTLP && t.Exporter != ExporterStdout {
			errs = append(errs, fmt.Errorf("tracing: invalid exporter %q (valid: otlp, stdout)", t.Exporter))
		}
	}
	if m := c.Metrics; m.Enabled && !strings.HasPrefix(m.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("metrics: endpoint must be a path starting with '/', got %q", m.Endpoint))
	}
	return errors.Join(errs...)
}

// IsInsecure reports whether the exporter connection skips TLS.
func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
