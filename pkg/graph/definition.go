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
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
)

// End is the terminal marker. Routing to End finishes a branch.
const End = "__end__"

// RouterFunc picks the next step from the merged state after a step that
// returned no directive. It must return one of the targets it was
// registered with, or End.
type RouterFunc func(st state.State) (string, error)

type router struct {
	fn      RouterFunc
	targets []string
}

// Definition is a validated workflow: steps, edges, routers and joins.
// It is immutable once built.
type Definition struct {
	Name  string
	Entry string

	registry *step.Registry
	edges    map[string][]string
	routers  map[string]*router
	joins    map[string][]string
}

// Steps returns the step names in registration order.
func (d *Definition) Steps() []string { return d.registry.Names() }

// Registry returns the step registry.
func (d *Definition) Registry() *step.Registry { return d.registry }

// Edges returns the static successors of a step.
func (d *Definition) Edges(from string) []string { return slices.Clone(d.edges[from]) }

// JoinSources returns the steps a join target waits for, or nil.
func (d *Definition) JoinSources(target string) []string { return slices.Clone(d.joins[target]) }

// Builder assembles a Definition. Errors are collected and reported by Build.
type Builder struct {
	name     string
	entry    string
	registry *step.Registry
	edges    map[string][]string
	routers  map[string]*router
	joins    map[string][]string
	order    []string
	errs     []error
	logger   *slog.Logger
}

// NewBuilder starts a workflow named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		registry: step.NewRegistry(),
		edges:    make(map[string][]string),
		routers:  make(map[string]*router),
		joins:    make(map[string][]string),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger used for build warnings.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// AddStep registers a step.
func (b *Builder) AddStep(name string, fn step.Func, opts ...step.Option) *Builder {
	if name == End {
		b.errs = append(b.errs, fmt.Errorf("step name %q is reserved", End))
		return b
	}
	if err := b.registry.Register(name, fn, opts...); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// AddEdge adds static edges from a step. Several targets fan out: they all
// run in the next superstep.
func (b *Builder) AddEdge(from string, to ...string) *Builder {
	if len(to) == 0 {
		b.errs = append(b.errs, fmt.Errorf("edge from %q has no target", from))
		return b
	}
	b.touch(from)
	for _, t := range to {
		if !slices.Contains(b.edges[from], t) {
			b.edges[from] = append(b.edges[from], t)
		}
	}
	return b
}

// AddRouter adds a conditional edge. targets lists every name fn may return.
func (b *Builder) AddRouter(from string, fn RouterFunc, targets ...string) *Builder {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("router for %q is nil", from))
		return b
	}
	if _, exists := b.routers[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("step %q already has a router", from))
		return b
	}
	if len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("router for %q declares no targets", from))
		return b
	}
	b.touch(from)
	b.routers[from] = &router{fn: fn, targets: slices.Clone(targets)}
	return b
}

// AddJoin makes target wait until every source has finished. It also adds
// the edges source -> target.
func (b *Builder) AddJoin(target string, sources ...string) *Builder {
	if len(sources) == 0 {
		b.errs = append(b.errs, fmt.Errorf("join %q has no sources", target))
		return b
	}
	if _, exists := b.joins[target]; exists {
		b.errs = append(b.errs, fmt.Errorf("join %q already defined", target))
		return b
	}
	b.joins[target] = slices.Clone(sources)
	for _, s := range sources {
		b.AddEdge(s, target)
	}
	return b
}

// SetEntry sets the first step of new conversations.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

func (b *Builder) touch(from string) {
	if !slices.Contains(b.order, from) {
		b.order = append(b.order, from)
	}
}

// Build validates the workflow and returns its definition.
func (b *Builder) Build() (*Definition, error) {
	errs := slices.Clone(b.errs)

	known := func(name string) bool {
		_, ok := b.registry.Lookup(name)
		return ok
	}
	target := func(name string) bool { return name == End || known(name) }

	if b.name == "" {
		errs = append(errs, fmt.Errorf("workflow name is required"))
	}
	switch {
	case b.entry == "":
		errs = append(errs, fmt.Errorf("workflow %q has no entry step", b.name))
	case !known(b.entry):
		errs = append(errs, fmt.Errorf("entry step %q is not registered", b.entry))
	}

	for _, from := range b.order {
		if !known(from) {
			errs = append(errs, fmt.Errorf("edge source %q is not registered", from))
		}
		for _, to := range b.edges[from] {
			if !target(to) {
				errs = append(errs, fmt.Errorf("edge %s -> %s: target is not registered", from, to))
			}
		}
		if r, ok := b.routers[from]; ok {
			if len(b.edges[from]) > 0 {
				errs = append(errs, fmt.Errorf("step %q has both static edges and a router", from))
			}
			for _, to := range r.targets {
				if !target(to) {
					errs = append(errs, fmt.Errorf("router %s -> %s: target is not registered", from, to))
				}
			}
		}
	}

	for t, sources := range b.joins {
		if !known(t) {
			errs = append(errs, fmt.Errorf("join target %q is not registered", t))
		}
		for _, s := range sources {
			if !known(s) {
				errs = append(errs, fmt.Errorf("join %q: source %q is not registered", t, s))
			}
		}
	}

	errs = append(errs, b.conflictingWrites()...)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	def := &Definition{
		Name:     b.name,
		Entry:    b.entry,
		registry: b.registry,
		edges:    b.edges,
		routers:  b.routers,
		joins:    b.joins,
	}
	for _, name := range def.unreachable() {
		b.logger.Warn("Step is not reachable from entry through edges or routers",
			"workflow", b.name, "step", name)
	}
	return def, nil
}

// conflictingWrites checks fan-out siblings for overlapping declared writes.
func (b *Builder) conflictingWrites() []error {
	var errs []error
	for _, from := range b.order {
		targets := b.edges[from]
		for i := 0; i < len(targets); i++ {
			for j := i + 1; j < len(targets); j++ {
				left, lok := b.registry.Lookup(targets[i])
				right, rok := b.registry.Lookup(targets[j])
				if !lok || !rok {
					continue
				}
				var keys []string
				for _, k := range left.Writes {
					if slices.Contains(right.Writes, k) && !slices.Contains(keys, k) {
						keys = append(keys, k)
					}
				}
				if len(keys) > 0 {
					errs = append(errs, &ConflictingWritesError{
						From:  from,
						Steps: []string{targets[i], targets[j]},
						Keys:  keys,
					})
				}
			}
		}
	}
	return errs
}

func (d *Definition) unreachable() []string {
	seen := map[string]bool{d.Entry: true}
	queue := []string{d.Entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := d.edges[cur]
		if r, ok := d.routers[cur]; ok {
			next = append(slices.Clone(next), r.targets...)
		}
		for _, n := range next {
			if n != End && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}

	var out []string
	for _, name := range d.registry.Names() {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

// successors resolves where a step that returned no directive goes next.
func (d *Definition) successors(from string, st state.State) ([]string, error) {
	if r, ok := d.routers[from]; ok {
		next, err := r.fn(st)
		if err != nil {
			return nil, &StepError{Step: from, Err: fmt.Errorf("router: %w", err)}
		}
		if !slices.Contains(r.targets, next) {
			return nil, &StepError{Step: from, Err: fmt.Errorf("router returned undeclared target %q", next)}
		}
		return []string{next}, nil
	}
	if edges := d.edges[from]; len(edges) > 0 {
		return slices.Clone(edges), nil
	}
	return nil, &NoOutgoingEdgeError{Step: from}
}

func (d *Definition) hasStep(name string) bool {
	_, ok := d.registry.Lookup(name)
	return ok
}
