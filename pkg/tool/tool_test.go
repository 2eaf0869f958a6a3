package tool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
	"github.com/kadirpekel/waypoint/pkg/tool"
	"github.com/kadirpekel/waypoint/pkg/tool/functiontool"
)

type cityArgs struct {
	City string `json:"city" jsonschema:"required"`
}

func newRegistry(t *testing.T, calls *atomic.Int32, opts ...tool.RegistryOption) *tool.Registry {
	t.Helper()
	weather := functiontool.MustNew(functiontool.Config{Name: "get_weather", Description: "Weather"},
		func(_ context.Context, a cityArgs) (map[string]any, error) {
			calls.Add(1)
			return map[string]any{"forecast": "sunny in " + a.City}, nil
		})
	failing := functiontool.MustNew(functiontool.Config{Name: "explode", Description: "Fails"},
		func(context.Context, struct{}) (map[string]any, error) {
			return nil, errors.New("kaboom")
		})

	reg := tool.NewRegistry(opts...)
	require.NoError(t, reg.Register(weather, failing))
	return reg
}

func TestRegistry(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, tool.WithRequiredApproval("get_weather"))

	assert.Equal(t, []string{"get_weather", "explode"}, reg.Names())
	assert.True(t, reg.RequiresApproval("get_weather"))
	assert.False(t, reg.RequiresApproval("explode"))
	assert.False(t, reg.RequiresApproval("missing"))

	defs := reg.Definitions(tool.StringPredicate([]string{"get_weather"}))
	require.Len(t, defs, 1)
	assert.True(t, defs[0].RequiresApproval)
	assert.NotNil(t, defs[0].Parameters)
	assert.Len(t, reg.Definitions(nil), 2)

	out, err := reg.Call(context.Background(), "get_weather", map[string]any{"city": "sf"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in sf", out["forecast"])

	_, err = reg.Call(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, tool.ErrUnknownTool)
	_, err = reg.Call(context.Background(), "explode", nil)
	assert.ErrorContains(t, err, "kaboom")

	assert.Error(t, reg.Register(functiontool.MustNew(functiontool.Config{Name: "explode", Description: "dup"},
		func(context.Context, struct{}) (map[string]any, error) { return nil, nil })))
}

func TestWithApproval(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls)
	explode, ok := reg.Lookup("explode")
	require.True(t, ok)
	assert.True(t, tool.WithApproval(explode).RequiresApproval())
	assert.Equal(t, "explode", tool.WithApproval(explode).Name())
}

func approvalGraph(t *testing.T, reg *tool.Registry) *graph.Graph {
	t.Helper()
	def, err := graph.NewBuilder("tool-approval").
		AddStep("plan", func(_ step.Context, st state.State) (*step.Result, error) {
			call := tool.Call{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": st.String("city")}}
			return step.Update(state.State{tool.KeyToolCall: call.AsState()}), nil
		}).
		AddStep("call_tool", tool.ApprovalStep(tool.ApprovalConfig{Registry: reg, Next: "answer"})).
		AddStep("answer", func(_ step.Context, st state.State) (*step.Result, error) {
			result := st.Map(tool.KeyToolResult)
			return step.Goto(state.State{"answer": result["forecast"]}, graph.End), nil
		}).
		AddEdge("plan", "call_tool").
		SetEntry("plan").
		Build()
	require.NoError(t, err)
	return graph.New(def, checkpoint.NewMemoryStore())
}

func TestApprovalStepApprove(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	g := approvalGraph(t, newRegistry(t, &calls, tool.WithRequiredApproval("get_weather")))

	out, err := g.Run(ctx, "c1", state.State{"city": "sf"})
	require.NoError(t, err)
	require.NotNil(t, out.Interrupt)
	assert.Equal(t, "call_tool", out.Interrupt.Step)
	assert.Equal(t, "get_weather", out.Interrupt.Payload["tool"])
	assert.Equal(t, []string{"approve", "edit", "reject"}, out.Interrupt.Payload["allowed_decisions"])
	assert.Zero(t, calls.Load())

	out, err = g.Resume(ctx, "c1", map[string]any{"type": "approve"})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, "sunny in sf", out.State["answer"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestApprovalStepEdit(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	g := approvalGraph(t, newRegistry(t, &calls, tool.WithRequiredApproval("get_weather")))

	_, err := g.Run(ctx, "c1", state.State{"city": "sf"})
	require.NoError(t, err)

	out, err := g.Resume(ctx, "c1", map[string]any{"action": "edit", "args": map[string]any{"city": "nyc"}})
	require.NoError(t, err)
	assert.Equal(t, "sunny in nyc", out.State["answer"])
}

func TestApprovalStepRejectNeverInvokesTool(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	g := approvalGraph(t, newRegistry(t, &calls, tool.WithRequiredApproval("get_weather")))

	_, err := g.Run(ctx, "c1", state.State{"city": "sf"})
	require.NoError(t, err)

	out, err := g.Resume(ctx, "c1", map[string]any{"approved": false, "reason": "no thanks"})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, true, out.State[tool.KeyToolRejected])
	assert.Equal(t, "no thanks", out.State[tool.KeyRejectionReason])
	assert.NotContains(t, out.State, "answer")
	assert.Zero(t, calls.Load())
}

func TestApprovalStepUnreadableDecisionRejects(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	g := approvalGraph(t, newRegistry(t, &calls, tool.WithRequiredApproval("get_weather")))

	_, err := g.Run(ctx, "c1", state.State{"city": "sf"})
	require.NoError(t, err)
	out, err := g.Resume(ctx, "c1", "perhaps")
	require.NoError(t, err)
	assert.Equal(t, true, out.State[tool.KeyToolRejected])
	assert.Zero(t, calls.Load())
}

func TestApprovalStepWithoutApprovalRunsDirectly(t *testing.T) {
	var calls atomic.Int32
	g := approvalGraph(t, newRegistry(t, &calls))

	out, err := g.Run(context.Background(), "c1", state.State{"city": "sf"})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTerminated, out.Status)
	assert.Equal(t, int32(1), calls.Load())
}
