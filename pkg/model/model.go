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

// Package model is the chat-model collaborator of model-backed steps.
//
// The engine never calls a model itself. Steps that need generated text or
// a structured classification call a Model; the OpenAI implementation
// targets any OpenAI-compatible endpoint, including local servers.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kadirpekel/waypoint/pkg/tool"
)

// Role tags a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls are the calls an assistant message asked for.
	ToolCalls []tool.Call `json:"tool_calls,omitempty"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message carrying calls.
func Assistant(content string, calls ...tool.Call) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult returns the message answering the call with id.
func ToolResult(id, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: id}
}

// Request is the input of one model call.
type Request struct {
	Messages []Message

	// Tools the model may ask to call.
	Tools []tool.Definition

	// Temperature overrides the configured temperature when set.
	Temperature *float32
	MaxTokens   int

	// ResponseSchema requests structured JSON output.
	ResponseSchema     map[string]any
	ResponseSchemaName string
}

// Response is the output of one model call.
type Response struct {
	Content      string
	ToolCalls    []tool.Call
	FinishReason string
}

// Decode unmarshals a structured response into out.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal([]byte(r.Content), out); err != nil {
		return fmt.Errorf("model returned invalid JSON: %w", err)
	}
	return nil
}

// Model generates responses.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// StaticModel replays canned responses in order, repeating the last one.
// It is used where no model endpoint is available.
type StaticModel struct {
	mu        sync.Mutex
	responses []*Response
	requests  []*Request
}

// NewStatic creates a StaticModel answering with contents in order.
func NewStatic(contents ...string) *StaticModel {
	m := &StaticModel{}
	for _, c := range contents {
		m.responses = append(m.responses, &Response{Content: c, FinishReason: "stop"})
	}
	return m
}

// Name returns "static".
func (m *StaticModel) Name() string { return "static" }

// Generate returns the next canned response.
func (m *StaticModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("static model has no responses")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	out := *resp
	return &out, nil
}

// Requests returns the requests received so far.
func (m *StaticModel) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}
