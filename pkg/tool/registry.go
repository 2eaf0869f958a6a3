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

package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/waypoint/pkg/observability"
)

// ErrUnknownTool is returned for calls to unregistered tools.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds callable tools by name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]CallableTool
	order   []string
	approve []string
	metrics observability.Recorder
	tracer  trace.Tracer
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records tool call durations and errors.
func WithMetrics(r observability.Recorder) RegistryOption {
	return func(reg *Registry) {
		if r != nil {
			reg.metrics = r
		}
	}
}

// WithTracer wraps each call in a span.
func WithTracer(t trace.Tracer) RegistryOption {
	return func(reg *Registry) {
		if t != nil {
			reg.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(reg *Registry) {
		if logger != nil {
			reg.logger = logger
		}
	}
}

// WithRequiredApproval marks tools by name as approval-gated regardless of
// what the tool itself reports.
func WithRequiredApproval(names ...string) RegistryOption {
	return func(reg *Registry) { reg.approve = append(reg.approve, names...) }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]CallableTool),
		metrics: observability.NoopRecorder{},
		tracer:  observability.NoopTracer(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tools. Names must be unique.
func (r *Registry) Register(tools ...CallableTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return fmt.Errorf("tool name is required")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return nil
}

// AddToolset resolves the tools of ts and registers the callable ones.
func (r *Registry) AddToolset(ctx context.Context, ts Toolset) error {
	tools, err := ts.Tools(ctx)
	if err != nil {
		return fmt.Errorf("toolset %s: %w", ts.Name(), err)
	}
	var callable []CallableTool
	for _, t := range tools {
		ct, ok := t.(CallableTool)
		if !ok {
			r.logger.Warn("Skipping non-callable tool", "toolset", ts.Name(), "tool", t.Name())
			continue
		}
		callable = append(callable, ct)
	}
	if err := r.Register(callable...); err != nil {
		return fmt.Errorf("toolset %s: %w", ts.Name(), err)
	}
	r.logger.Info("Registered toolset", "toolset", ts.Name(), "tools", len(callable))
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Definitions describes every tool matching pred (all when pred is nil).
func (r *Registry) Definitions(pred Predicate) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if pred != nil && !pred(t) {
			continue
		}
		def := ToDefinition(t)
		def.RequiresApproval = def.RequiresApproval || slices.Contains(r.approve, name)
		defs = append(defs, def)
	}
	return defs
}

// RequiresApproval reports whether calls to name must be approved.
func (r *Registry) RequiresApproval(name string) bool {
	t, ok := r.Lookup(name)
	if !ok {
		return false
	}
	return t.RequiresApproval() || slices.Contains(r.approve, name)
}

// Call invokes a tool by name.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := r.tracer.Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(attribute.String(observability.AttrTool, name)))
	defer span.End()

	start := time.Now()
	result, err := t.Call(ctx, args)
	r.metrics.RecordToolCall(ctx, name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("Tool call failed", "tool", name, "error", err)
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	r.logger.Debug("Tool call completed", "tool", name, "duration", time.Since(start))
	return result, nil
}
