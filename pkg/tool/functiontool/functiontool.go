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

// Package functiontool builds tools from typed Go functions.
//
// The argument schema is generated from the Args struct's json and
// jsonschema tags:
//
//	type GetWeatherArgs struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
//
//	weather, err := functiontool.New(
//	    functiontool.Config{Name: "get_weather", Description: "Get weather for a city"},
//	    func(ctx context.Context, args GetWeatherArgs) (map[string]any, error) {
//	        return map[string]any{"forecast": "sunny"}, nil
//	    },
//	)
package functiontool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/tool"
)

// Config defines a function tool.
type Config struct {
	// Name is the unique identifier of the tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string

	// RequireApproval gates every call behind a human decision.
	RequireApproval bool
}

// Func is the typed implementation of a tool.
type Func[Args any] func(ctx context.Context, args Args) (map[string]any, error)

// New creates a CallableTool from fn.
func New[Args any](cfg Config, fn Func[Args]) (tool.CallableTool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool %s: description is required", cfg.Name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function is required", cfg.Name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}
	return &functionTool[Args]{config: cfg, fn: fn, schema: schema}, nil
}

// NewWithValidation is New with an extra check run on the decoded arguments
// before fn.
func NewWithValidation[Args any](cfg Config, fn Func[Args], validate func(Args) error) (tool.CallableTool, error) {
	if validate == nil {
		return New(cfg, fn)
	}
	return New(cfg, func(ctx context.Context, args Args) (map[string]any, error) {
		if err := validate(args); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", cfg.Name, err)
		}
		return fn(ctx, args)
	})
}

// MustNew is New that panics on error. For package-level tool variables.
func MustNew[Args any](cfg Config, fn Func[Args]) tool.CallableTool {
	t, err := New(cfg, fn)
	if err != nil {
		panic(err)
	}
	return t
}

type functionTool[Args any] struct {
	config Config
	fn     Func[Args]
	schema map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.config.Name }
func (t *functionTool[Args]) Description() string    { return t.config.Description }
func (t *functionTool[Args]) RequiresApproval() bool { return t.config.RequireApproval }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

// Call decodes args into Args and invokes the function.
func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	var typed Args
	if args != nil {
		if err := state.Decode(args, &typed); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
		}
	}
	return t.fn(ctx, typed)
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
