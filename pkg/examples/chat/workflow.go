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

// Package chat is a multi-turn assistant that may call any registered tool,
// including tools discovered on MCP servers.
//
//	respond -> call_tool -> record -> respond -> ... -> End
//
// The transcript lives in state under KeyMessages. Running a finished
// conversation again adds the new input as the next user message, so the
// model always sees the whole exchange. Tool calls pass through
// tool.ApprovalStep; a rejected call is reported back to the model on the
// next turn.
package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/model"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
	"github.com/kadirpekel/waypoint/pkg/tool"
)

// Name is the workflow name.
const Name = "chat"

// State keys.
const (
	KeyInput    = "input"
	KeyMessages = "messages"
	KeyReply    = "reply"
)

// Step names.
const (
	StepRespond  = "respond"
	StepCallTool = "call_tool"
	StepRecord   = "record"
)

// DefaultSystemPrompt opens every model request.
const DefaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the user."

// Options configures the workflow.
type Options struct {
	// Tools is offered to the model in full.
	Tools *tool.Registry
	// Model answers each turn. Without one the workflow replies with the
	// list of available tools.
	Model        model.Model
	SystemPrompt string
	Logger       *slog.Logger
}

// InitialState returns the input of one turn.
func InitialState(input string) state.State {
	return state.State{KeyInput: input}
}

// Build returns the workflow definition.
func Build(opts Options) (*graph.Definition, error) {
	if opts.Tools == nil {
		return nil, fmt.Errorf("chat workflow requires a tool registry")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	a := &assistant{opts: opts}

	return graph.NewBuilder(Name).
		WithLogger(opts.Logger).
		AddStep(StepRespond, a.respond,
			step.Requires(state.Key(KeyInput, state.KindString)),
			step.Writes(KeyInput, KeyMessages, KeyReply, tool.KeyToolCall),
			step.Description("Answer the latest message or ask for a tool call")).
		AddStep(StepCallTool, tool.ApprovalStep(tool.ApprovalConfig{
			Registry: opts.Tools,
			Next:     StepRecord,
		}),
			step.Writes(tool.KeyToolResult, tool.KeyToolRejected, tool.KeyRejectionReason),
			step.Description("Run the requested tool, asking for approval when required")).
		AddStep(StepRecord, record,
			step.Writes(KeyMessages, tool.KeyToolCall, tool.KeyToolResult),
			step.Description("Add the tool result to the transcript")).
		AddEdge(StepCallTool, StepRecord).
		AddEdge(StepRecord, StepRespond).
		AddRouter(StepRespond, routeReply, StepCallTool).
		SetEntry(StepRespond).
		Build()
}

type assistant struct {
	opts Options
}

func (a *assistant) respond(ctx step.Context, st state.State) (*step.Result, error) {
	msgs, err := Messages(st)
	if err != nil {
		return nil, err
	}
	if call, ok := pendingCall(st); ok && st.Bool(tool.KeyToolRejected) {
		reason := st.String(tool.KeyRejectionReason)
		msgs = append(msgs, model.ToolResult(call.ID, "The call was rejected: "+reason))
	}
	if input := strings.TrimSpace(st.String(KeyInput)); input != "" {
		msgs = append(msgs, model.User(input))
	}

	update := state.State{KeyInput: "", tool.KeyToolCall: nil, tool.KeyToolRejected: false}
	if a.opts.Model == nil {
		reply := "No model is configured. Available tools: " + strings.Join(a.opts.Tools.Names(), ", ")
		update[KeyMessages] = encode(append(msgs, model.Assistant(reply)))
		update[KeyReply] = reply
		return step.Update(update), nil
	}

	resp, err := a.opts.Model.Generate(ctx, &model.Request{
		Messages: append([]model.Message{model.System(a.opts.SystemPrompt)}, msgs...),
		Tools:    a.opts.Tools.Definitions(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		update[KeyMessages] = encode(append(msgs, model.Assistant(resp.Content)))
		update[KeyReply] = resp.Content
		return step.Update(update), nil
	}

	// One call per turn keeps every assistant call paired with its result.
	call := resp.ToolCalls[0]
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	ctx.Logger().Debug("Model requested tool", "tool", call.Name, "dropped", len(resp.ToolCalls)-1)
	update[KeyMessages] = encode(append(msgs, model.Assistant(resp.Content, call)))
	update[KeyReply] = ""
	update[tool.KeyToolCall] = call.AsState()
	return step.Update(update), nil
}

func routeReply(st state.State) (string, error) {
	if _, ok := pendingCall(st); ok {
		return StepCallTool, nil
	}
	return graph.End, nil
}

func record(_ step.Context, st state.State) (*step.Result, error) {
	call, ok := pendingCall(st)
	if !ok {
		return nil, fmt.Errorf("no tool call to record")
	}
	msgs, err := Messages(st)
	if err != nil {
		return nil, err
	}
	content, err := json.Marshal(st.Map(tool.KeyToolResult))
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of %s: %w", call.Name, err)
	}
	return step.Update(state.State{
		KeyMessages:        encode(append(msgs, model.ToolResult(call.ID, string(content)))),
		tool.KeyToolCall:   nil,
		tool.KeyToolResult: nil,
	}), nil
}

// Messages returns the transcript stored in st.
func Messages(st state.State) ([]model.Message, error) {
	raw, ok := st.Get(KeyMessages)
	if !ok || raw == nil {
		return nil, nil
	}
	var msgs []model.Message
	if err := state.Decode(raw, &msgs); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return msgs, nil
}

func pendingCall(st state.State) (tool.Call, bool) {
	raw, ok := st.Get(tool.KeyToolCall)
	if !ok || raw == nil {
		return tool.Call{}, false
	}
	var call tool.Call
	if err := state.Decode(raw, &call); err != nil || call.Name == "" {
		return tool.Call{}, false
	}
	return call, true
}

// encode turns msgs into plain values that survive any checkpoint store.
func encode(msgs []model.Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]any{"role": string(m.Role), "content": m.Content}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]any, 0, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				calls = append(calls, c.AsState())
			}
			entry["tool_calls"] = calls
		}
		out = append(out, entry)
	}
	return out
}
