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

package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/httpclient"
	"github.com/kadirpekel/waypoint/pkg/observability"
	"github.com/kadirpekel/waypoint/pkg/tool"
)

// OpenAIModel calls an OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client  *openai.Client
	cfg     config.ModelConfig
	metrics observability.Recorder
}

// OpenAIOption configures an OpenAIModel.
type OpenAIOption func(*OpenAIModel)

// WithMetrics records call durations and errors.
func WithMetrics(r observability.Recorder) OpenAIOption {
	return func(m *OpenAIModel) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewOpenAI creates a model client from cfg.
func NewOpenAI(cfg config.ModelConfig, opts ...OpenAIOption) (*OpenAIModel, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}

	var tlsCfg *httpclient.TLSConfig
	if cfg.CACertificate != "" || cfg.InsecureSkipVerify {
		tlsCfg = &httpclient.TLSConfig{CACertificate: cfg.CACertificate, InsecureSkipVerify: cfg.InsecureSkipVerify}
	}
	transport, err := httpclient.NewTransport(tlsCfg)
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout, Transport: transport}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseRetryHeaders),
	)

	m := &OpenAIModel{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		metrics: observability.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// New builds the model selected by cfg, or nil when the provider is none.
func New(cfg *config.ModelConfig, rec observability.Recorder) (Model, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	m, err := NewOpenAI(*cfg, WithMetrics(rec))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the configured model name.
func (m *OpenAIModel) Name() string { return m.cfg.Model }

// Generate sends req as a chat completion.
func (m *OpenAIModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	for _, msg := range req.Messages {
		cm := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to encode arguments of %s: %w", call.Name, err)
			}
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:       call.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: call.Name, Arguments: string(args)},
			})
		}
		creq.Messages = append(creq.Messages, cm)
	}
	for _, def := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if req.ResponseSchema != nil {
		name := req.ResponseSchemaName
		if name == "" {
			name = "response"
		}
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema(req.ResponseSchema),
				Strict: true,
			},
		}
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, creq)
	m.metrics.RecordModelCall(ctx, m.cfg.Model, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("Model sent unparsable tool arguments", "tool", tc.Function.Name, "error", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, tool.Call{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

// schema adapts a schema map to the json.Marshaler the client expects.
type schema map[string]any

func (s schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

var (
	_ Model = (*OpenAIModel)(nil)
	_ Model = (*StaticModel)(nil)
)
