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

// Package step defines the unit of workflow logic and the executor that
// invokes it.
//
// A step is a function of the current conversation state to a partial
// update plus an optional routing directive. Steps own their side effects;
// the executor neither retries nor recovers them.
package step

import (
	"context"
	"log/slog"
	"maps"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// Func is the signature every step implements.
type Func func(ctx Context, st state.State) (*Result, error)

// DirectiveKind says where a run goes after a step.
type DirectiveKind int

const (
	// DirectiveNone defers to the graph's static edges and routers.
	DirectiveNone DirectiveKind = iota
	DirectiveGoto
	DirectiveSuspend
	DirectiveTerminate
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveGoto:
		return "goto"
	case DirectiveSuspend:
		return "suspend"
	case DirectiveTerminate:
		return "terminate"
	default:
		return "none"
	}
}

// Directive is the routing decision of a step.
type Directive struct {
	Kind    DirectiveKind
	Targets []string
	Payload map[string]any
}

// Result is what a step returns: a field-level patch and a directive.
type Result struct {
	Update    state.State
	Directive Directive
}

// Update returns a result that only patches state.
func Update(update state.State) *Result {
	return &Result{Update: update}
}

// Goto patches state and routes to targets. More than one target fans out.
func Goto(update state.State, targets ...string) *Result {
	return &Result{Update: update, Directive: Directive{Kind: DirectiveGoto, Targets: targets}}
}

// Suspend patches state and pauses the run with payload for the caller.
// The step runs again on resume with the caller's decision available.
func Suspend(update state.State, payload map[string]any) *Result {
	return &Result{Update: update, Directive: Directive{Kind: DirectiveSuspend, Payload: maps.Clone(payload)}}
}

// Terminate patches state and ends the run.
func Terminate(update state.State) *Result {
	return &Result{Update: update, Directive: Directive{Kind: DirectiveTerminate}}
}

// Context is passed to every step invocation.
type Context interface {
	context.Context

	ConversationID() string
	Step() string
	// Superstep is the zero-based superstep index within the current call.
	Superstep() int
	// Decision returns the caller's resume decision. It is only set for
	// the step a suspended run resumes at.
	Decision() (any, bool)
	Logger() *slog.Logger
}

// Invocation describes one call of a step.
type Invocation struct {
	ConversationID string
	Step           string
	Superstep      int
	Decision       any
	HasDecision    bool
	Logger         *slog.Logger
}

type stepContext struct {
	context.Context
	inv Invocation
}

// NewContext builds a Context for inv on top of ctx.
func NewContext(ctx context.Context, inv Invocation) Context {
	if inv.Logger == nil {
		inv.Logger = slog.Default()
	}
	inv.Logger = inv.Logger.With("conversation_id", inv.ConversationID, "step", inv.Step)
	return &stepContext{Context: ctx, inv: inv}
}

func (c *stepContext) ConversationID() string { return c.inv.ConversationID }
func (c *stepContext) Step() string           { return c.inv.Step }
func (c *stepContext) Superstep() int         { return c.inv.Superstep }
func (c *stepContext) Logger() *slog.Logger   { return c.inv.Logger }

func (c *stepContext) Decision() (any, bool) {
	return c.inv.Decision, c.inv.HasDecision
}
