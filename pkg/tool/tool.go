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

// Package tool defines the tools that workflow steps invoke.
//
// A tool is an opaque collaborator: given a name and arguments it returns
// a result map or an error. Local function tools and tools discovered on
// remote MCP servers are registered side by side and are indistinguishable
// to the steps calling them.
//
//	Tool (base)
//	  ├── CallableTool       - synchronous execution with a JSON schema
//	  └── RequiresApproval() - human approval before execution
//
// Approval-gated execution is provided by ApprovalStep, which suspends the
// workflow until an operator approves, edits or rejects the call.
package tool

import (
	"context"
	"maps"
	"slices"
)

// Tool is the base interface of every tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells a model or operator what the tool does.
	Description() string

	// RequiresApproval reports whether a human must approve each call.
	RequiresApproval() bool
}

// CallableTool is a tool that can be executed.
type CallableTool interface {
	Tool

	// Call executes the tool. It blocks until the result is available.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema of the arguments, or nil.
	Schema() map[string]any
}

// Toolset groups tools that are resolved lazily, e.g. from a remote server.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Tool, error)
}

// Predicate selects tools.
type Predicate func(t Tool) bool

// StringPredicate allows only the named tools.
func StringPredicate(allowed []string) Predicate {
	return func(t Tool) bool { return slices.Contains(allowed, t.Name()) }
}

// AllowAll allows every tool.
func AllowAll() Predicate {
	return func(Tool) bool { return true }
}

// Definition describes a tool for model function calling or listing.
type Definition struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	RequiresApproval bool           `json:"requires_approval,omitempty"`
}

// ToDefinition describes t.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:             t.Name(),
		Description:      t.Description(),
		RequiresApproval: t.RequiresApproval(),
	}
	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	}
	return def
}

// Call is a request to invoke a tool, as stored in conversation state.
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// AsState returns c as a plain map for storing in conversation state.
func (c Call) AsState() map[string]any {
	out := map[string]any{"name": c.Name, "args": maps.Clone(c.Args)}
	if c.ID != "" {
		out["id"] = c.ID
	}
	if out["args"] == nil {
		out["args"] = map[string]any{}
	}
	return out
}

// WithApproval wraps t so that it always requires approval.
func WithApproval(t CallableTool) CallableTool {
	return approvalRequired{t}
}

type approvalRequired struct {
	CallableTool
}

func (approvalRequired) RequiresApproval() bool { return true }
