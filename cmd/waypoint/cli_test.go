package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/state"
)

func TestParseState(t *testing.T) {
	st, err := parseState(`{"question":"hi","n":1}`, map[string]string{"question": "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", st["question"])
	assert.Equal(t, float64(1), st["n"])

	_, err = parseState(`{bad`, nil)
	assert.Error(t, err)

	st, err = parseState("", nil)
	require.NoError(t, err)
	assert.Empty(t, st)
}

func TestResumeDecision(t *testing.T) {
	tests := []struct {
		name string
		cmd  ResumeCmd
		want interrupt.Approval
	}{
		{"approve", ResumeCmd{Approve: true}, interrupt.Approval{Approved: true, Action: interrupt.ActionApprove}},
		{"reject", ResumeCmd{Reject: true, Reason: "no"}, interrupt.Approval{Action: interrupt.ActionReject, Reason: "no"}},
		{"edit", ResumeCmd{Edit: "new text"}, interrupt.Approval{Approved: true, Action: interrupt.ActionEdit, Edited: "new text"}},
		{"args", ResumeCmd{Args: map[string]string{"city": "Rome"}}, interrupt.Approval{Approved: true, Action: interrupt.ActionEdit, Args: map[string]any{"city": "Rome"}}},
		{"raw json", ResumeCmd{Decision: `{"approved":false}`}, interrupt.Approval{Action: interrupt.ActionReject}},
		{"raw word", ResumeCmd{Decision: "yes"}, interrupt.Approval{Approved: true, Action: interrupt.ActionApprove}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.cmd.decision()
			require.NoError(t, err)
			got, err := interrupt.DecodeApproval(d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := (&ResumeCmd{}).decision()
	assert.Error(t, err)
}

func TestPromptDecision(t *testing.T) {
	t.Run("retries until valid", func(t *testing.T) {
		var out bytes.Buffer
		d, err := promptDecision(bufio.NewReader(strings.NewReader("maybe\na\n")), &out)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"approved": true}, d)
		assert.Contains(t, out.String(), "unknown decision")
	})

	t.Run("edit", func(t *testing.T) {
		d, err := promptDecision(bufio.NewReader(strings.NewReader("e\nThanks, fixed.\n")), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"approved": true, "edited_response": "Thanks, fixed."}, d)
	})

	t.Run("reject with reason", func(t *testing.T) {
		d, err := promptDecision(bufio.NewReader(strings.NewReader("r\ntoo blunt\n")), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"approved": false, "reason": "too blunt"}, d)
	})

	t.Run("eof", func(t *testing.T) {
		_, err := promptDecision(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestReadEmail(t *testing.T) {
	text, err := readEmail(strings.NewReader("line one\nline two\n\nignored\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	text, err = readEmail(strings.NewReader("  all\n\nof it\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "all\n\nof it", text)
}

func TestNextThreadID(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()

	id, err := nextThreadID(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)

	require.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{ConversationID: "thread_1", Workflow: "email", Status: checkpoint.StatusTerminated}))
	id, err = nextThreadID(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "thread_2", id)
}

func TestPrintOutcome(t *testing.T) {
	out := &graph.Outcome{
		ConversationID: "thread_1",
		Workflow:       "email",
		Status:         checkpoint.StatusSuspended,
		State:          state.State{"urgency": "high", "draft_response": strings.Repeat("x", 200)},
		Interrupt:      &interrupt.Point{ID: "int_1", Step: "human_review", Payload: map[string]any{"urgency": "high"}},
		Supersteps:     4,
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out, false))
	text := buf.String()
	assert.Contains(t, text, "email/thread_1: suspended after 4 supersteps")
	assert.Contains(t, text, `Waiting at "human_review"`)
	assert.Contains(t, text, "urgency: high")
	assert.Contains(t, text, strings.Repeat("x", 117)+"...")

	buf.Reset()
	require.NoError(t, printOutcome(&buf, out, true))
	assert.Contains(t, buf.String(), `"status": "suspended"`)
}
