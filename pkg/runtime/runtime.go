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

// Package runtime assembles a configured engine: checkpoint store, event
// bus, observability, model, tools and the registered workflows.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/event"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/model"
	"github.com/kadirpekel/waypoint/pkg/observability"
	"github.com/kadirpekel/waypoint/pkg/tool"
	"github.com/kadirpekel/waypoint/pkg/tool/mcptoolset"
)

// ErrUnknownWorkflow is returned for workflow names that are not registered.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Runtime owns every long-lived component of an engine process.
type Runtime struct {
	config *config.Config
	logger *slog.Logger

	pool     *config.DBPool
	store    checkpoint.Store
	locks    *checkpoint.Locks
	bus      *event.Bus
	obs      *observability.Manager
	model    model.Model
	tools    []tool.CallableTool
	toolsets []*mcptoolset.Toolset

	factories map[string]WorkflowFactory
	graphs    map[string]*graph.Graph
	order     []string

	observers []event.Observer
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithStore overrides the configured checkpoint store.
func WithStore(store checkpoint.Store) Option {
	return func(r *Runtime) { r.store = store }
}

// WithModel overrides the configured model.
func WithModel(m model.Model) Option {
	return func(r *Runtime) { r.model = m }
}

// WithTools registers extra tools available to every workflow.
func WithTools(tools ...tool.CallableTool) Option {
	return func(r *Runtime) { r.tools = append(r.tools, tools...) }
}

// WithWorkflow registers an additional workflow factory, replacing a
// built-in one of the same name.
func WithWorkflow(name string, factory WorkflowFactory) Option {
	return func(r *Runtime) { r.factories[name] = factory }
}

// WithObserver receives every event next to the bus.
func WithObserver(o event.Observer) Option {
	return func(r *Runtime) { r.observers = append(r.observers, o) }
}

// New builds a Runtime from cfg. A nil cfg uses defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	} else {
		cfg.SetDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Runtime{
		config:    cfg,
		logger:    slog.Default(),
		pool:      config.NewDBPool(),
		locks:     checkpoint.NewLocks(),
		factories: builtinWorkflows(),
		graphs:    make(map[string]*graph.Graph),
	}
	for _, opt := range opts {
		opt(r)
	}

	ok := false
	defer func() {
		if !ok {
			if err := r.Close(context.Background()); err != nil {
				r.logger.Warn("Cleanup after failed start", "error", err)
			}
		}
	}()

	r.obs = observability.NewManager(cfg.Observability)
	if err := r.obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if r.store == nil {
		store, err := checkpoint.NewStoreFromConfig(cfg.Storage, cfg.Databases, r.pool)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		r.store = store
	}

	r.bus = event.NewBus(cfg.Engine.EventBuffer)

	if r.model == nil {
		m, err := model.New(cfg.Model, r.obs.Recorder())
		if err != nil {
			return nil, fmt.Errorf("failed to create model: %w", err)
		}
		r.model = m
	}

	if err := r.connectToolsets(ctx); err != nil {
		return nil, err
	}

	if err := r.buildWorkflows(); err != nil {
		return nil, err
	}

	ok = true
	r.logger.Info("Runtime ready", "workflows", r.order, "storage", cfg.Storage.Backend, "tools", len(r.tools))
	return r, nil
}

func (r *Runtime) connectToolsets(ctx context.Context) error {
	for _, sc := range r.config.Tools.MCP {
		ts, err := mcptoolset.New(mcptoolset.Config{
			Name:      sc.Name,
			Transport: sc.Transport,
			Command:   sc.Command,
			Args:      sc.Args,
			Env:       sc.Env,
			URL:       sc.URL,
			Headers:   sc.Headers,
			Filter:    sc.Filter,
		})
		if err != nil {
			return fmt.Errorf("mcp server %q: %w", sc.Name, err)
		}
		r.toolsets = append(r.toolsets, ts)

		tools, err := ts.Tools(ctx)
		if err != nil {
			// An unreachable server should not prevent the engine from
			// serving workflows that do not need it.
			r.logger.Warn("Failed to list MCP tools", "server", sc.Name, "error", err)
			continue
		}
		for _, t := range tools {
			if ct, ok := t.(tool.CallableTool); ok {
				r.tools = append(r.tools, ct)
			}
		}
		r.logger.Info("Connected MCP server", "server", sc.Name, "tools", len(tools))
	}
	return nil
}

func (r *Runtime) buildWorkflows() error {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)

	var failures []error
	for _, name := range names {
		wf := r.config.Workflow(name)
		if !wf.IsEnabled() {
			r.logger.Debug("Workflow disabled", "workflow", name)
			continue
		}
		g, err := r.buildGraph(name, wf)
		if err != nil {
			failures = append(failures, fmt.Errorf("workflow %q: %w", name, err))
			continue
		}
		r.graphs[name] = g
		r.order = append(r.order, name)
	}
	return errors.Join(failures...)
}

func (r *Runtime) buildGraph(name string, wf *config.WorkflowConfig) (*graph.Graph, error) {
	reg, err := r.toolRegistry(wf)
	if err != nil {
		return nil, err
	}
	def, err := r.factories[name](Deps{
		Model:           r.model,
		Tools:           reg,
		Logger:          r.logger.With("workflow", name),
		ReviewUrgencies: wf.ReviewUrgencies,
	})
	if err != nil {
		return nil, err
	}
	if def.Name != name {
		return nil, fmt.Errorf("factory built workflow %q", def.Name)
	}

	limit := r.config.Engine.RecursionLimit
	if wf.RecursionLimit > 0 {
		limit = wf.RecursionLimit
	}
	observers := append([]event.Observer{r.bus}, r.observers...)

	return graph.New(def, r.store,
		graph.WithRecursionLimit(limit),
		graph.WithMaxParallel(r.config.Engine.MaxParallel),
		graph.WithStepTimeout(r.config.Engine.StepTimeout),
		graph.WithObserver(event.Multi(observers...)),
		graph.WithLogger(r.logger),
		graph.WithMetrics(r.obs.Recorder()),
		graph.WithTracer(r.obs.Tracer(observability.DefaultServiceName)),
		graph.WithCaptureState(r.config.Observability.Tracing.CaptureState),
		graph.WithLocks(r.locks),
	), nil
}

// toolRegistry gives each workflow its own registry so approval
// requirements stay per workflow.
func (r *Runtime) toolRegistry(wf *config.WorkflowConfig) (*tool.Registry, error) {
	reg := tool.NewRegistry(
		tool.WithMetrics(r.obs.Recorder()),
		tool.WithTracer(r.obs.Tracer(observability.DefaultServiceName)),
		tool.WithLogger(r.logger),
		tool.WithRequiredApproval(wf.RequireApproval...),
	)
	for _, t := range r.tools {
		if _, exists := reg.Lookup(t.Name()); exists {
			r.logger.Warn("Duplicate tool name, keeping first", "tool", t.Name())
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Config returns the effective configuration.
func (r *Runtime) Config() *config.Config { return r.config }

// Store returns the checkpoint store.
func (r *Runtime) Store() checkpoint.Store { return r.store }

// Bus returns the event bus.
func (r *Runtime) Bus() *event.Bus { return r.bus }

// Observability returns the tracing and metrics manager.
func (r *Runtime) Observability() *observability.Manager { return r.obs }

// Model returns the configured model, or nil.
func (r *Runtime) Model() model.Model { return r.model }

// Workflows returns the registered workflow names in sorted order.
func (r *Runtime) Workflows() []string { return slices.Clone(r.order) }

// Graph returns the named workflow.
func (r *Runtime) Graph(name string) (*graph.Graph, error) {
	g, ok := r.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	return g, nil
}

// Close releases every component. It is safe to call on a partially
// built Runtime.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for _, ts := range r.toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp server %s: %w", ts.Name(), err))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint store: %w", err))
		}
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database pool: %w", err))
		}
	}
	if r.obs != nil {
		if err := r.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}
	return errors.Join(errs...)
}
