package interrupt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/state"
)

type recordingRunner struct {
	calls     int
	decision  any
	resumedAt string
}

func (r *recordingRunner) ContinueFrom(_ context.Context, cp *checkpoint.Checkpoint, decision any) (*checkpoint.Checkpoint, error) {
	r.calls++
	r.decision = decision
	r.resumedAt = cp.NextStep()
	out := cp.Clone()
	out.Status = checkpoint.StatusTerminated
	out.Interrupt = nil
	out.Next = nil
	return out, nil
}

func suspended(t *testing.T, store checkpoint.Store, m *Manager, id string) *Point {
	t.Helper()
	cp := checkpoint.New(id, "email", state.State{"urgency": "critical"}, "human_review")
	p := m.Suspend(id, "human_review", map[string]any{"urgency": "critical"})
	cp.Status = checkpoint.StatusSuspended
	cp.Interrupt = p.Record()
	require.NoError(t, store.Save(context.Background(), cp))
	return p
}

func TestResumeInvokesRunnerAtInterruptedStep(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	runner := &recordingRunner{}
	m := NewManager(store, runner, WithWorkflow("email"))

	p := suspended(t, store, m, "thread_1")
	assert.NotEmpty(t, p.ID)

	got, err := m.Pending(ctx, "thread_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	cp, err := m.Resume(ctx, "thread_1", map[string]any{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTerminated, cp.Status)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "human_review", runner.resumedAt)
	assert.Equal(t, map[string]any{"approved": true}, runner.decision)
}

func TestResumeWithoutPendingInterrupt(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	runner := &recordingRunner{}
	m := NewManager(store, runner)

	_, err := m.Resume(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	require.NoError(t, store.Save(ctx, checkpoint.New("running", "email", nil, "classify")))
	_, err = m.Resume(ctx, "running", true)
	var npe *NoPendingInterruptError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, "running", npe.ConversationID)
	assert.Contains(t, npe.Reason, "running")

	other := NewManager(store, runner, WithWorkflow("weather"))
	suspended(t, store, m, "thread_x")
	_, err = other.Resume(ctx, "thread_x", true)
	assert.ErrorIs(t, err, checkpoint.ErrWorkflowMismatch)

	assert.Zero(t, runner.calls)
}

func TestPendingFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	first := NewManager(store, &recordingRunner{}, WithWorkflow("email"))
	p := suspended(t, store, first, "thread_2")

	// A fresh manager, as after a process restart.
	second := NewManager(store, &recordingRunner{}, WithWorkflow("email"))
	got, err := second.Pending(ctx, "thread_2")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "critical", got.Payload["urgency"])

	list, err := second.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "thread_2", list[0].ConversationID)

	_, err = second.Pending(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	m := NewManager(store, &recordingRunner{})
	suspended(t, store, m, "thread_3")

	require.NoError(t, m.Cancel(ctx, "thread_3"))
	_, err := store.Load(ctx, "thread_3")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	assert.ErrorIs(t, m.Cancel(ctx, "thread_3"), checkpoint.ErrNotFound)

	_, err = m.Pending(ctx, "thread_3")
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)
}

func TestDecodeApproval(t *testing.T) {
	tests := []struct {
		name     string
		decision any
		want     Approval
		wantErr  bool
	}{
		{name: "bool true", decision: true, want: Approval{Approved: true, Action: ActionApprove}},
		{name: "bool false", decision: false, want: Approval{Action: ActionReject}},
		{name: "string", decision: "Deny", want: Approval{Action: ActionReject}},
		{name: "approved map", decision: map[string]any{"approved": true}, want: Approval{Approved: true, Action: ActionApprove}},
		{
			name:     "edited response",
			decision: map[string]any{"approved": true, "edited_response": "We refunded you."},
			want:     Approval{Approved: true, Action: ActionEdit, Edited: "We refunded you."},
		},
		{
			name:     "edit action with args",
			decision: map[string]any{"type": "edit", "args": map[string]any{"city": "Paris"}},
			want:     Approval{Approved: true, Action: ActionEdit, Args: map[string]any{"city": "Paris"}},
		},
		{
			name:     "reject with reason",
			decision: map[string]any{"action": "reject", "reason": "not now"},
			want:     Approval{Action: ActionReject, Reason: "not now"},
		},
		{name: "nil", decision: nil, want: Approval{Action: ActionReject}, wantErr: true},
		{name: "garbage string", decision: "maybe", want: Approval{Action: ActionReject}, wantErr: true},
		{name: "empty map", decision: map[string]any{}, want: Approval{Action: ActionReject}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeApproval(tt.decision)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowedDecisions(t *testing.T) {
	assert.Equal(t, []string{"approve", "edit", "reject"}, AllowedDecisions())
	a, err := ParseAction(" YES ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)
}

func TestCancelRejectsOtherWorkflow(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	owner := NewManager(store, &recordingRunner{}, WithWorkflow("email"))
	suspended(t, store, owner, "thread_4")

	other := NewManager(store, &recordingRunner{}, WithWorkflow("weather"))
	err := other.Cancel(ctx, "thread_4")
	var mismatch *checkpoint.WorkflowMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "email", mismatch.Owner)
	assert.Equal(t, "weather", mismatch.Requested)

	_, err = store.Load(ctx, "thread_4")
	require.NoError(t, err)
	_, err = owner.Pending(ctx, "thread_4")
	assert.NoError(t, err)
}

func TestPendingReflectsResumeByAnotherManager(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	a := NewManager(store, &recordingRunner{}, WithWorkflow("email"))
	b := NewManager(store, &recordingRunner{}, WithWorkflow("email"))
	suspended(t, store, a, "thread_5")

	_, err := a.Pending(ctx, "thread_5")
	require.NoError(t, err)

	cp, err := b.Resume(ctx, "thread_5", true)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cp))

	_, err = a.Pending(ctx, "thread_5")
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	suspended(t, store, a, "thread_6")
	require.NoError(t, b.Cancel(ctx, "thread_6"))
	_, err = a.Pending(ctx, "thread_6")
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)
}
