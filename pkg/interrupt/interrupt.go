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

// Package interrupt suspends workflow runs for external input and resumes
// them with the caller's decision.
//
// A suspended run is fully described by its checkpoint. The Manager holds
// no interrupt state of its own, so any process sharing the store can
// answer, resume or cancel a run another process suspended.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
)

// ErrNoPendingInterrupt is matched by NoPendingInterruptError.
var ErrNoPendingInterrupt = errors.New("no pending interrupt")

// NoPendingInterruptError reports a resume with nothing to resume.
type NoPendingInterruptError struct {
	ConversationID string
	Reason         string
}

func (e *NoPendingInterruptError) Error() string {
	return fmt.Sprintf("no pending interrupt for conversation %q: %s", e.ConversationID, e.Reason)
}

func (e *NoPendingInterruptError) Is(target error) bool {
	return target == ErrNoPendingInterrupt
}

// Point is a suspension awaiting a decision.
type Point struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Workflow       string         `json:"workflow,omitempty"`
	Step           string         `json:"step"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FromCheckpoint returns the point recorded in a suspended checkpoint, or
// nil when cp is not suspended.
func FromCheckpoint(cp *checkpoint.Checkpoint) *Point {
	if cp == nil || !cp.IsSuspended() {
		return nil
	}
	return &Point{
		ID:             cp.Interrupt.ID,
		ConversationID: cp.ConversationID,
		Workflow:       cp.Workflow,
		Step:           cp.Interrupt.Step,
		Payload:        maps.Clone(cp.Interrupt.Payload),
		CreatedAt:      cp.Interrupt.CreatedAt,
	}
}

// Record converts p to its checkpoint form.
func (p *Point) Record() *checkpoint.Interrupt {
	return &checkpoint.Interrupt{
		ID:        p.ID,
		Step:      p.Step,
		Payload:   maps.Clone(p.Payload),
		CreatedAt: p.CreatedAt,
	}
}

// Runner continues a suspended checkpoint. The caller holds the
// conversation lock for the duration of the call.
type Runner interface {
	ContinueFrom(ctx context.Context, cp *checkpoint.Checkpoint, decision any) (*checkpoint.Checkpoint, error)
}

// Manager tracks interrupts for one workflow.
type Manager struct {
	store    checkpoint.Store
	runner   Runner
	locks    *checkpoint.Locks
	workflow string
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocks shares a lock table with other users of the same store.
func WithLocks(locks *checkpoint.Locks) Option {
	return func(m *Manager) {
		if locks != nil {
			m.locks = locks
		}
	}
}

// WithWorkflow scopes every operation to conversations of one workflow.
func WithWorkflow(name string) Option {
	return func(m *Manager) { m.workflow = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager that resumes runs through runner.
func NewManager(store checkpoint.Store, runner Runner, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		runner: runner,
		locks:  checkpoint.NewLocks(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Suspend creates the interrupt point for conversationID at step. The
// caller stores it in the checkpoint through Point.Record.
func (m *Manager) Suspend(conversationID, step string, payload map[string]any) *Point {
	p := &Point{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Workflow:       m.workflow,
		Step:           step,
		Payload:        maps.Clone(payload),
		CreatedAt:      time.Now().UTC(),
	}

	m.logger.Info("Run suspended", "conversation_id", conversationID, "step", step, "interrupt_id", p.ID)
	return p
}

// Resume continues the suspended run of conversationID with decision.
// The decision is opaque here; the resumed step interprets it.
func (m *Manager) Resume(ctx context.Context, conversationID string, decision any) (*checkpoint.Checkpoint, error) {
	unlock := m.locks.Lock(conversationID)
	defer unlock()

	cp, err := m.store.Load(ctx, conversationID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, &NoPendingInterruptError{ConversationID: conversationID, Reason: "no checkpoint"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := m.expectDecision(cp); err != nil {
		return nil, err
	}

	m.logger.Info("Resuming run", "conversation_id", conversationID, "step", cp.Interrupt.Step)
	return m.runner.ContinueFrom(ctx, cp, decision)
}

func (m *Manager) expectDecision(cp *checkpoint.Checkpoint) error {
	if err := checkpoint.CheckOwner(cp, m.workflow); err != nil {
		return err
	}
	id := cp.ConversationID
	switch {
	case cp.Status != checkpoint.StatusSuspended:
		return &NoPendingInterruptError{ConversationID: id, Reason: fmt.Sprintf("run is %s", cp.Status)}
	case cp.Interrupt == nil:
		return &NoPendingInterruptError{ConversationID: id, Reason: "checkpoint has no interrupt"}
	case cp.NextStep() != cp.Interrupt.Step:
		return &NoPendingInterruptError{
			ConversationID: id,
			Reason:         fmt.Sprintf("next step %q does not expect a decision", cp.NextStep()),
		}
	}
	return nil
}

// Pending returns the open interrupt of conversationID as the store
// currently records it.
func (m *Manager) Pending(ctx context.Context, conversationID string) (*Point, error) {
	cp, err := m.store.Load(ctx, conversationID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, &NoPendingInterruptError{ConversationID: conversationID, Reason: "no checkpoint"}
	}
	if err != nil {
		return nil, err
	}
	if err := m.expectDecision(cp); err != nil {
		return nil, err
	}
	return FromCheckpoint(cp), nil
}

// ListPending returns every suspended run in the store for this workflow.
func (m *Manager) ListPending(ctx context.Context) ([]*Point, error) {
	cps, err := m.store.List(ctx, checkpoint.ListFilter{
		Status:   checkpoint.StatusSuspended,
		Workflow: m.workflow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list suspended runs: %w", err)
	}
	points := make([]*Point, 0, len(cps))
	for _, cp := range cps {
		if p := FromCheckpoint(cp); p != nil {
			points = append(points, p)
		}
	}
	return points, nil
}

// Cancel abandons the run of conversationID by deleting its checkpoint.
func (m *Manager) Cancel(ctx context.Context, conversationID string) error {
	unlock := m.locks.Lock(conversationID)
	defer unlock()

	cp, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := checkpoint.CheckOwner(cp, m.workflow); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Run cancelled", "conversation_id", conversationID)
	return nil
}
