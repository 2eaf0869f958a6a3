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

// Package checkpoint persists the resumable position of a workflow run.
//
// A Checkpoint is a snapshot of the conversation state together with the
// steps that run next. Exactly one checkpoint is live per conversation id:
// every step boundary overwrites it, nothing is appended. A suspended run
// lives entirely in its checkpoint, so the process may exit between suspend
// and resume.
//
// Storage layout (JSON):
//
//	{
//	  "conversation_id": "thread_1",
//	  "workflow": "email",
//	  "state": { ... },
//	  "next": ["human_review"],
//	  "status": "suspended",
//	  "interrupt": {"id": "...", "step": "human_review", "payload": { ... }}
//	}
package checkpoint

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// Status is the lifecycle position of a run.
type Status string

const (
	// StatusRunning - the run has steps left to execute.
	StatusRunning Status = "running"

	// StatusSuspended - the run is paused at an interrupt awaiting a decision.
	StatusSuspended Status = "suspended"

	// StatusTerminated - the run reached the end marker or a terminate directive.
	StatusTerminated Status = "terminated"
)

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusRunning, StatusSuspended, StatusTerminated:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown checkpoint status: %q", s)
	}
}

// Interrupt records where a run was suspended and why.
type Interrupt struct {
	ID        string         `json:"id"`
	Step      string         `json:"step"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Checkpoint is the single live snapshot of one conversation.
type Checkpoint struct {
	ConversationID string      `json:"conversation_id"`
	Workflow       string      `json:"workflow,omitempty"`
	State          state.State `json:"state"`

	// Next lists the steps that run in the next superstep, in declaration order.
	// The first entry is the step a suspended run resumes at.
	Next []string `json:"next"`

	Status    Status     `json:"status"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`

	// Joins tracks, per join target, which source steps have already arrived.
	Joins map[string][]string `json:"joins,omitempty"`

	// Supersteps counts completed supersteps over the life of the conversation.
	Supersteps int `json:"supersteps"`

	// Trail lists every executed step name in order.
	Trail []string `json:"trail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a running checkpoint positioned at entry.
func New(conversationID, workflow string, initial state.State, entry string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		ConversationID: conversationID,
		Workflow:       workflow,
		State:          initial.Clone(),
		Next:           []string{entry},
		Status:         StatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NextStep returns the step a resume continues at, or "" when none is left.
func (c *Checkpoint) NextStep() string {
	if len(c.Next) == 0 {
		return ""
	}
	return c.Next[0]
}

// IsSuspended reports whether the run is waiting for a decision.
func (c *Checkpoint) IsSuspended() bool {
	return c.Status == StatusSuspended && c.Interrupt != nil
}

// Clone returns a deep copy of c.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = c.State.Clone()
	out.Next = slices.Clone(c.Next)
	out.Trail = slices.Clone(c.Trail)
	if c.Interrupt != nil {
		ip := *c.Interrupt
		ip.Payload = state.New(c.Interrupt.Payload)
		out.Interrupt = &ip
	}
	if c.Joins != nil {
		out.Joins = make(map[string][]string, len(c.Joins))
		for k, v := range c.Joins {
			out.Joins[k] = slices.Clone(v)
		}
	}
	return &out
}

// Validate checks that c can be stored.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return fmt.Errorf("cannot save nil checkpoint")
	}
	if c.ConversationID == "" {
		return fmt.Errorf("conversation_id is required for checkpoint")
	}
	if _, err := ParseStatus(string(c.Status)); err != nil {
		return err
	}
	if c.Status == StatusSuspended && c.Interrupt == nil {
		return fmt.Errorf("suspended checkpoint %s has no interrupt", c.ConversationID)
	}
	return nil
}

// Serialize encodes c as JSON. Temp-prefixed state keys are dropped.
func (c *Checkpoint) Serialize() ([]byte, error) {
	out := *c
	out.State = c.State.Persistable()
	return json.Marshal(&out)
}

// Deserialize decodes a checkpoint produced by Serialize.
func Deserialize(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if c.State == nil {
		c.State = state.State{}
	}
	return &c, nil
}
