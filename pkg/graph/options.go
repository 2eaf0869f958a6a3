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

package graph

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/event"
	"github.com/kadirpekel/waypoint/pkg/observability"
)

// DefaultRecursionLimit bounds the supersteps of one Run or Resume call.
const DefaultRecursionLimit = 25

// Option configures a Graph.
type Option func(*Graph)

// WithRecursionLimit overrides DefaultRecursionLimit. Values below 1 are ignored.
func WithRecursionLimit(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.recursionLimit = n
		}
	}
}

// WithObserver sets the lifecycle event observer.
func WithObserver(o event.Observer) Option {
	return func(g *Graph) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r observability.Recorder) Option {
	return func(g *Graph) {
		if r != nil {
			g.metrics = r
		}
	}
}

// WithTracer sets the tracer used for run and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Graph) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithCaptureState attaches each step's state update to its span.
func WithCaptureState(enabled bool) Option {
	return func(g *Graph) { g.captureState = enabled }
}

// WithMaxParallel caps how many fan-out branches run at once. 0 means no cap.
func WithMaxParallel(n int) Option {
	return func(g *Graph) {
		if n >= 0 {
			g.maxParallel = n
		}
	}
}

// WithStepTimeout bounds each step invocation. 0 disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(g *Graph) {
		if d >= 0 {
			g.stepTimeout = d
		}
	}
}

// WithLocks shares a conversation lock table between graphs on one store.
func WithLocks(locks *checkpoint.Locks) Option {
	return func(g *Graph) {
		if locks != nil {
			g.locks = locks
		}
	}
}
