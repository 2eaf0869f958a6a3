package weather

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/model"
	"github.com/kadirpekel/waypoint/pkg/tool"
	"github.com/kadirpekel/waypoint/pkg/tool/functiontool"
)

func newGraph(t *testing.T, reg *tool.Registry, m model.Model) *graph.Graph {
	t.Helper()
	if reg == nil {
		reg = tool.NewRegistry()
		require.NoError(t, RegisterTools(reg))
	}
	def, err := Build(Options{Tools: reg, Model: m})
	require.NoError(t, err)
	return graph.New(def, checkpoint.NewMemoryStore())
}

func TestGuessCall(t *testing.T) {
	tests := []struct {
		question string
		tool     string
		city     string
	}{
		{"What is the weather in Paris?", ToolWeather, "Paris"},
		{"temperature in San Francisco", ToolTemperature, "San Francisco"},
		{"How hot is it?", ToolWeather, "San Francisco"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			call := guessCall(tt.question)
			assert.Equal(t, tt.tool, call.Name)
			assert.Equal(t, tt.city, call.Args["city"])
			assert.NotEmpty(t, call.ID)
		})
	}
}

func TestUngatedToolRunsThrough(t *testing.T) {
	g := newGraph(t, nil, nil)

	out, err := g.Run(context.Background(), "thread_1", InitialState("What is the temperature in Paris?"))
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, "The temperature in Paris is 70 degrees Fahrenheit.", out.State[KeyAnswer])
}

func TestGatedToolSuspendsThenRuns(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t, nil, nil)

	out, err := g.Run(ctx, "thread_2", InitialState("What is the weather in Paris?"))
	require.NoError(t, err)
	require.Equal(t, checkpoint.StatusSuspended, out.Status)
	require.NotNil(t, out.Interrupt)
	assert.Equal(t, StepCallTool, out.Interrupt.Step)
	assert.Equal(t, ToolWeather, out.Interrupt.Payload["tool"])
	assert.Equal(t, map[string]any{"city": "Paris"}, out.Interrupt.Payload["args"])

	out, err = g.Resume(ctx, "thread_2", "approve")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, "The weather in Paris is sunny.", out.State[KeyAnswer])
}

func TestEditedArgsAreUsed(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t, nil, nil)

	_, err := g.Run(ctx, "thread_3", InitialState("weather in Paris"))
	require.NoError(t, err)

	out, err := g.Resume(ctx, "thread_3", map[string]any{
		"action": "edit",
		"args":   map[string]any{"city": "Rome"},
	})
	require.NoError(t, err)
	assert.Equal(t, "The weather in Rome is sunny.", out.State[KeyAnswer])
}

func TestRejectNeverInvokesTool(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(functiontool.MustNew(functiontool.Config{
		Name:            ToolWeather,
		Description:     "counting weather tool",
		RequireApproval: true,
	}, func(context.Context, cityArgs) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{"result": "sunny"}, nil
	})))
	require.NoError(t, RegisterTools(reg))
	g := newGraph(t, reg, nil)

	_, err := g.Run(ctx, "thread_4", InitialState("weather in Oslo"))
	require.NoError(t, err)

	out, err := g.Resume(ctx, "thread_4", map[string]any{"action": "reject", "reason": "not now"})
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, true, out.State[tool.KeyToolRejected])
	assert.Equal(t, "not now", out.State[tool.KeyRejectionReason])
	assert.NotContains(t, out.State, KeyAnswer)
	assert.Zero(t, calls.Load())
}

type toolCallingModel struct {
	calls []tool.Call
	last  *model.Request
}

func (m *toolCallingModel) Name() string { return "fake" }

func (m *toolCallingModel) Generate(_ context.Context, req *model.Request) (*model.Response, error) {
	m.last = req
	if len(m.calls) == 0 {
		return &model.Response{Content: "I can only help with weather."}, nil
	}
	return &model.Response{ToolCalls: m.calls, FinishReason: "tool_calls"}, nil
}

func TestModelPlansToolCall(t *testing.T) {
	m := &toolCallingModel{calls: []tool.Call{{
		ID: "call_1", Name: ToolTemperature, Args: map[string]any{"city": "Berlin"},
	}}}
	g := newGraph(t, nil, m)

	out, err := g.Run(context.Background(), "thread_5", InitialState("How warm is Berlin?"))
	require.NoError(t, err)

	assert.Equal(t, "The temperature in Berlin is 70 degrees Fahrenheit.", out.State[KeyAnswer])
	require.NotNil(t, m.last)
	assert.Len(t, m.last.Tools, 2)
}

func TestModelAnswersWithoutTools(t *testing.T) {
	g := newGraph(t, nil, &toolCallingModel{})

	out, err := g.Run(context.Background(), "thread_6", InitialState("Tell me a joke"))
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, "I can only help with weather.", out.State[KeyAnswer])
	assert.NotContains(t, out.State, tool.KeyToolCall)
}
