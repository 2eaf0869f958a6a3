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

// Package weather is a tool-calling workflow whose weather lookups need a
// human decision before they run.
//
//	plan -> call_tool -> answer -> End
//
// plan asks the configured model for a tool call, or picks one from the
// question text when no model is set.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/model"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
	"github.com/kadirpekel/waypoint/pkg/tool"
	"github.com/kadirpekel/waypoint/pkg/tool/functiontool"
)

// Name is the workflow name.
const Name = "weather"

// State keys.
const (
	KeyQuestion = "question"
	KeyAnswer   = "answer"
)

// Step names.
const (
	StepPlan     = "plan"
	StepCallTool = "call_tool"
	StepAnswer   = "answer"
)

// Tool names.
const (
	ToolWeather     = "get_weather"
	ToolTemperature = "get_temperature"
)

type cityArgs struct {
	City string `json:"city" jsonschema:"required,description=City to look up"`
}

// Tools returns the weather tools. get_weather requires approval.
func Tools() []tool.CallableTool {
	return []tool.CallableTool{
		functiontool.MustNew(functiontool.Config{
			Name:            ToolWeather,
			Description:     "Get the current weather for a city",
			RequireApproval: true,
		}, func(_ context.Context, args cityArgs) (map[string]any, error) {
			return map[string]any{"result": fmt.Sprintf("The weather in %s is sunny.", args.City)}, nil
		}),
		functiontool.MustNew(functiontool.Config{
			Name:        ToolTemperature,
			Description: "Get the current temperature for a city",
		}, func(_ context.Context, args cityArgs) (map[string]any, error) {
			return map[string]any{"result": fmt.Sprintf("The temperature in %s is 70 degrees Fahrenheit.", args.City)}, nil
		}),
	}
}

// RegisterTools adds the weather tools to reg, skipping ones already
// present.
func RegisterTools(reg *tool.Registry) error {
	for _, t := range Tools() {
		if _, ok := reg.Lookup(t.Name()); ok {
			continue
		}
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Options configures the workflow.
type Options struct {
	// Tools must contain the weather tools.
	Tools *tool.Registry
	// Model plans tool calls when set.
	Model  model.Model
	Logger *slog.Logger
}

// InitialState returns the starting state for one question.
func InitialState(question string) state.State {
	return state.State{KeyQuestion: question}
}

// Build returns the workflow definition.
func Build(opts Options) (*graph.Definition, error) {
	if opts.Tools == nil {
		return nil, fmt.Errorf("weather workflow requires a tool registry")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &planner{tools: opts.Tools, model: opts.Model}

	return graph.NewBuilder(Name).
		WithLogger(opts.Logger).
		AddStep(StepPlan, p.plan,
			step.Requires(state.RequiredKey(KeyQuestion, state.KindString)),
			step.Writes(tool.KeyToolCall, KeyAnswer),
			step.Description("Choose a tool call for the question")).
		AddStep(StepCallTool, tool.ApprovalStep(tool.ApprovalConfig{
			Registry: opts.Tools,
			Next:     StepAnswer,
		}),
			step.Writes(tool.KeyToolResult, tool.KeyToolRejected, tool.KeyRejectionReason),
			step.Description("Run the chosen tool, asking for approval when required")).
		AddStep(StepAnswer, answer,
			step.Writes(KeyAnswer),
			step.Description("Turn the tool result into an answer")).
		AddEdge(StepPlan, StepCallTool).
		AddEdge(StepCallTool, StepAnswer).
		AddEdge(StepAnswer, graph.End).
		SetEntry(StepPlan).
		Build()
}

type planner struct {
	tools *tool.Registry
	model model.Model
}

func (p *planner) plan(ctx step.Context, st state.State) (*step.Result, error) {
	question := st.String(KeyQuestion)
	if p.model == nil {
		return step.Update(state.State{tool.KeyToolCall: guessCall(question).AsState()}), nil
	}

	resp, err := p.model.Generate(ctx, &model.Request{
		Messages: []model.Message{
			model.System("You are a helpful assistant. Use the tools to answer weather questions."),
			model.User(question),
		},
		Tools: p.tools.Definitions(tool.StringPredicate([]string{ToolWeather, ToolTemperature})),
	})
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		return step.Goto(state.State{KeyAnswer: resp.Content}, graph.End), nil
	}
	call := resp.ToolCalls[0]
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	ctx.Logger().Debug("Model chose tool", "tool", call.Name)
	return step.Update(state.State{tool.KeyToolCall: call.AsState()}), nil
}

var cityPattern = regexp.MustCompile(`(?i)\bin\s+([A-Za-z][A-Za-z .'-]*[A-Za-z])`)

// guessCall maps a question onto a tool call without a model.
func guessCall(question string) tool.Call {
	name := ToolWeather
	if strings.Contains(strings.ToLower(question), "temperature") {
		name = ToolTemperature
	}
	city := "San Francisco"
	if m := cityPattern.FindStringSubmatch(question); m != nil {
		city = strings.TrimSpace(m[1])
	}
	return tool.Call{ID: uuid.NewString(), Name: name, Args: map[string]any{"city": city}}
}

func answer(_ step.Context, st state.State) (*step.Result, error) {
	result := st.Map(tool.KeyToolResult)
	text, _ := result["result"].(string)
	if text == "" {
		text = fmt.Sprintf("%v", result)
	}
	return step.Update(state.State{KeyAnswer: text}), nil
}
