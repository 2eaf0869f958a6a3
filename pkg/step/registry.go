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

package step

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// ErrUnknownStep is matched by UnknownStepError.
var ErrUnknownStep = errors.New("unknown step")

// UnknownStepError reports a step name with no registered function.
type UnknownStepError struct {
	Step string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %q", e.Step)
}

func (e *UnknownStepError) Is(target error) bool {
	return target == ErrUnknownStep
}

// Definition is a registered step.
type Definition struct {
	Name        string
	Fn          Func
	Description string

	// Writes lists the state keys the step may update. Empty means
	// undeclared; the graph only checks fan-out conflicts for declared keys.
	Writes []string

	// Requires is validated against the merged state before the step runs.
	Requires []state.KeySpec
}

// Option configures a Definition.
type Option func(*Definition)

// Writes declares the keys a step updates.
func Writes(keys ...string) Option {
	return func(d *Definition) { d.Writes = append(d.Writes, keys...) }
}

// Requires declares keys that must be present (and well-typed) on entry.
func Requires(specs ...state.KeySpec) Option {
	return func(d *Definition) { d.Requires = append(d.Requires, specs...) }
}

// Description documents a step.
func Description(s string) Option {
	return func(d *Definition) { d.Description = s }
}

// Registry maps step names to definitions.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]*Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]*Definition)}
}

// Register adds a step. Names must be unique and non-empty.
func (r *Registry) Register(name string, fn Func, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("step name is required")
	}
	if fn == nil {
		return fmt.Errorf("step %q: function is required", name)
	}

	def := &Definition{Name: name, Fn: fn}
	for _, opt := range opts {
		opt(def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step %q already registered", name)
	}
	r.steps[name] = def
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.steps[name]
	return def, ok
}

// Names returns step names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}
