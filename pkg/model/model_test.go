package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/tool"
)

func TestStaticModel(t *testing.T) {
	m := NewStatic("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		resp, err := m.Generate(ctx, &Request{Messages: []Message{User("hi")}})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	assert.Len(t, m.Requests(), 3)

	_, err := NewStatic().Generate(ctx, &Request{})
	assert.Error(t, err)
}

func TestResponseDecode(t *testing.T) {
	var out struct {
		Urgency string `json:"urgency"`
	}
	require.NoError(t, (&Response{Content: `{"urgency":"critical"}`}).Decode(&out))
	assert.Equal(t, "critical", out.Urgency)
	assert.Error(t, (&Response{Content: "not json"}).Decode(&out))
}

func TestOpenAIModel(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer local", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "local-model",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "{\"intent\":\"billing\"}",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\":\"sf\"}"}
					}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI(config.ModelConfig{BaseURL: srv.URL + "/v1", Model: "local-model", APIKey: "local"})
	require.NoError(t, err)
	assert.Equal(t, "local-model", m.Name())

	temp := float32(0.2)
	resp, err := m.Generate(context.Background(), &Request{
		Messages:       []Message{System("classify"), User("I was charged twice")},
		Tools:          []tool.Definition{{Name: "get_weather", Description: "Weather", Parameters: map[string]any{"type": "object"}}},
		Temperature:    &temp,
		ResponseSchema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"intent":"billing"}`, resp.Content)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, tool.Call{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "sf"}}, resp.ToolCalls[0])

	assert.Equal(t, "local-model", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	assert.Len(t, got["tools"], 1)
}

func TestOpenAIModelSendsToolTranscript(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Sunny."}}]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI(config.ModelConfig{BaseURL: srv.URL, Model: "local-model"})
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), &Request{Messages: []Message{
		User("weather in sf?"),
		Assistant("", tool.Call{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "sf"}}),
		ToolResult("call_1", `{"result":"sunny"}`),
	}})
	require.NoError(t, err)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_weather", fn["name"])
	assert.JSONEq(t, `{"city":"sf"}`, fn["arguments"].(string))
	assert.Equal(t, "call_1", msgs[2].(map[string]any)["tool_call_id"])
}

func TestOpenAIModelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded"}}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI(config.ModelConfig{BaseURL: srv.URL, MaxRetries: -1})
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), &Request{Messages: []Message{User("hi")}})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	m, err := New(&config.ModelConfig{Provider: config.ModelProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = New(&config.ModelConfig{Provider: config.ModelProviderOpenAI}, nil)
	require.NoError(t, err)
	assert.Equal(t, "qwen/qwen3-4b-2507", m.Name())

	_, err = NewOpenAI(config.ModelConfig{Provider: "bogus"})
	assert.Error(t, err)
}
