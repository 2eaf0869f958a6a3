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
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// Executor runs registered steps.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, logger: logger}
}

// Registry returns the executor's registry.
func (e *Executor) Registry() *Registry { return e.registry }

// Run looks up inv.Step and invokes it with a copy of st.
//
// Errors from the step are returned unchanged. A nil result is treated as
// an empty update with no directive.
func (e *Executor) Run(ctx context.Context, inv Invocation, st state.State) (*Result, error) {
	def, ok := e.registry.Lookup(inv.Step)
	if !ok {
		return nil, &UnknownStepError{Step: inv.Step}
	}

	if err := state.Validate(st, def.Requires...); err != nil {
		return nil, fmt.Errorf("step %q input: %w", inv.Step, err)
	}

	if inv.Logger == nil {
		inv.Logger = e.logger
	}
	res, err := def.Fn(NewContext(ctx, inv), st.Clone())
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	if res.Update == nil {
		res.Update = state.State{}
	}

	if len(def.Writes) > 0 {
		for _, k := range res.Update.Keys() {
			if !slices.Contains(def.Writes, k) {
				e.logger.Warn("Step wrote undeclared key",
					"conversation_id", inv.ConversationID, "step", inv.Step, "key", k)
			}
		}
	}
	return res, nil
}
