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

// Package graph walks a workflow definition over conversation state.
//
// Execution proceeds in supersteps. Every step in the frontier runs against
// the same state snapshot; fanned-out steps run concurrently. Their updates
// are merged in frontier order, the routing of each step is resolved, join
// barriers are applied, and the result is checkpointed before the next
// superstep starts. A run stops when it suspends at an interrupt, when
// every branch reaches End, when a step terminates it, or with an error.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/event"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/observability"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
)

// Outcome is the result of a Run or Resume call.
type Outcome struct {
	ConversationID string            `json:"conversation_id"`
	Workflow       string            `json:"workflow"`
	Status         checkpoint.Status `json:"status"`
	State          state.State       `json:"state"`
	Next           []string          `json:"next,omitempty"`
	Interrupt      *interrupt.Point  `json:"interrupt,omitempty"`

	// Supersteps counts supersteps over the life of the conversation.
	Supersteps int `json:"supersteps"`
}

// Graph executes one workflow definition against a checkpoint store.
type Graph struct {
	def        *Definition
	store      checkpoint.Store
	exec       *step.Executor
	interrupts *interrupt.Manager
	locks      *checkpoint.Locks

	observer       event.Observer
	logger         *slog.Logger
	metrics        observability.Recorder
	tracer         trace.Tracer
	recursionLimit int
	maxParallel    int
	stepTimeout    time.Duration
	captureState   bool
}

// New creates a graph for def persisting to store.
func New(def *Definition, store checkpoint.Store, opts ...Option) *Graph {
	g := &Graph{
		def:            def,
		store:          store,
		locks:          checkpoint.NewLocks(),
		observer:       event.Nop,
		logger:         slog.Default(),
		metrics:        observability.NoopRecorder{},
		tracer:         observability.NoopTracer(),
		recursionLimit: DefaultRecursionLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("workflow", def.Name)
	g.exec = step.NewExecutor(def.registry, g.logger)
	g.interrupts = interrupt.NewManager(store, g,
		interrupt.WithLocks(g.locks),
		interrupt.WithWorkflow(def.Name),
		interrupt.WithLogger(g.logger),
	)
	return g
}

// Name returns the workflow name.
func (g *Graph) Name() string { return g.def.Name }

// Definition returns the workflow definition.
func (g *Graph) Definition() *Definition { return g.def }

// Interrupts returns the graph's interrupt manager.
func (g *Graph) Interrupts() *interrupt.Manager { return g.interrupts }

// Run starts or continues the conversation.
//
// A new conversation starts at the entry step with initial as its state.
// A running conversation (e.g. one whose last call failed) continues from
// its recorded frontier with initial merged in. A terminated conversation
// starts over at the entry step, keeping its prior state under initial.
// A suspended conversation returns ErrSuspended.
func (g *Graph) Run(ctx context.Context, conversationID string, initial state.State) (*Outcome, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	unlock := g.locks.Lock(conversationID)
	defer unlock()

	cp, err := g.store.Load(ctx, conversationID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		cp = checkpoint.New(conversationID, g.def.Name, initial, g.def.Entry)
	case err != nil:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	default:
		if err := g.owns(cp); err != nil {
			return nil, err
		}
		switch cp.Status {
		case checkpoint.StatusSuspended:
			return nil, fmt.Errorf("conversation %q at step %q: %w", conversationID, cp.NextStep(), ErrSuspended)
		case checkpoint.StatusTerminated:
			restart := checkpoint.New(conversationID, g.def.Name, cp.State.Merge(initial), g.def.Entry)
			restart.CreatedAt = cp.CreatedAt
			restart.Supersteps = cp.Supersteps
			restart.Trail = cp.Trail
			cp = restart
		default:
			cp.State = cp.State.Merge(initial)
		}
	}

	ctx, span := g.tracer.Start(ctx, observability.SpanRun, trace.WithAttributes(
		attribute.String(observability.AttrWorkflow, g.def.Name),
		attribute.String(observability.AttrConversationID, conversationID),
	))
	defer span.End()

	g.logger.Info("Run started", "conversation_id", conversationID, "next", cp.Next)
	g.emit(event.Event{Type: event.RunStarted, ConversationID: conversationID, Step: cp.NextStep()})

	res, err := g.execute(ctx, span, cp, nil, false)
	if err != nil {
		return nil, err
	}
	return res.Outcome, nil
}

// Resume continues a suspended conversation with decision. The interrupted
// step runs again and sees decision through its Context.
func (g *Graph) Resume(ctx context.Context, conversationID string, decision any) (*Outcome, error) {
	cp, err := g.interrupts.Resume(ctx, conversationID, decision)
	if err != nil {
		return nil, err
	}
	return g.outcome(cp), nil
}

// ContinueFrom implements interrupt.Runner. The caller holds the
// conversation lock.
func (g *Graph) ContinueFrom(ctx context.Context, cp *checkpoint.Checkpoint, decision any) (*checkpoint.Checkpoint, error) {
	cp = cp.Clone()
	resumed := cp.Interrupt
	cp.Status = checkpoint.StatusRunning
	cp.Interrupt = nil

	ctx, span := g.tracer.Start(ctx, observability.SpanResume, trace.WithAttributes(
		attribute.String(observability.AttrWorkflow, g.def.Name),
		attribute.String(observability.AttrConversationID, cp.ConversationID),
		attribute.String(observability.AttrStep, resumed.Step),
	))
	defer span.End()

	g.emit(event.Event{
		Type:           event.RunResumed,
		ConversationID: cp.ConversationID,
		Step:           resumed.Step,
		Payload:        map[string]any{"interrupt_id": resumed.ID},
	})

	out, err := g.execute(ctx, span, cp, decision, true)
	if err != nil {
		return nil, err
	}
	return out.checkpoint, nil
}

// Pending returns the open interrupt of a conversation.
func (g *Graph) Pending(ctx context.Context, conversationID string) (*interrupt.Point, error) {
	return g.interrupts.Pending(ctx, conversationID)
}

// ListPending returns every suspended conversation of this workflow.
func (g *Graph) ListPending(ctx context.Context) ([]*interrupt.Point, error) {
	return g.interrupts.ListPending(ctx)
}

// Cancel deletes the conversation's checkpoint.
func (g *Graph) Cancel(ctx context.Context, conversationID string) error {
	if err := g.interrupts.Cancel(ctx, conversationID); err != nil {
		return err
	}
	g.emit(event.Event{Type: event.RunCancelled, ConversationID: conversationID})
	g.metrics.RecordRun(ctx, g.def.Name, "cancelled")
	return nil
}

// Checkpoint returns the live checkpoint of a conversation.
func (g *Graph) Checkpoint(ctx context.Context, conversationID string) (*checkpoint.Checkpoint, error) {
	cp, err := g.store.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := g.owns(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (g *Graph) owns(cp *checkpoint.Checkpoint) error {
	return checkpoint.CheckOwner(cp, g.def.Name)
}

type result struct {
	*Outcome
	checkpoint *checkpoint.Checkpoint
}

type branch struct {
	name string
	res  *step.Result
	err  error
	dur  time.Duration
}

// execute runs supersteps from cp.Next until the run stops. When
// hasDecision is set, the first step of the first superstep receives
// decision.
func (g *Graph) execute(ctx context.Context, span trace.Span, cp *checkpoint.Checkpoint, decision any, hasDecision bool) (*result, error) {
	id := cp.ConversationID
	st := cp.State.Clone()

	fail := func(err error) (*result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("Run failed", "conversation_id", id, "error", err)
		g.emit(event.Event{Type: event.RunFailed, ConversationID: id, Error: err.Error()})
		g.metrics.RecordRun(ctx, g.def.Name, "failed")
		span.SetAttributes(attribute.String(observability.AttrStatus, "failed"))
		return nil, err
	}

	for superstep := 0; ; superstep++ {
		if len(cp.Next) == 0 {
			cp.Status = checkpoint.StatusTerminated
			break
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if superstep >= g.recursionLimit {
			return fail(&RecursionLimitError{ConversationID: id, Limit: g.recursionLimit})
		}

		frontier := slices.Clone(cp.Next)
		branches := g.runFrontier(ctx, cp, st, frontier, superstep, decision, hasDecision && superstep == 0)
		for _, b := range branches {
			if b.err != nil {
				return fail(&StepError{Step: b.name, Err: b.err})
			}
		}

		next, suspends, terminate, err := g.advance(cp, &st, branches)
		if err != nil {
			return fail(err)
		}

		cp.Supersteps++
		cp.Trail = append(cp.Trail, frontier...)
		cp.UpdatedAt = time.Now().UTC()
		cp.State = st.Persistable()

		var point *interrupt.Point
		switch {
		case terminate:
			cp.Status = checkpoint.StatusTerminated
			cp.Next = nil
			cp.Joins = nil
		case len(suspends) > 0:
			first := suspends[0]
			point = g.interrupts.Suspend(id, first.name, first.res.Directive.Payload)
			cp.Status = checkpoint.StatusSuspended
			cp.Interrupt = point.Record()
			cp.Next = next
		case len(next) == 0:
			if len(cp.Joins) > 0 {
				g.logger.Warn("Run ended with incomplete joins", "conversation_id", id, "joins", cp.Joins)
			}
			cp.Status = checkpoint.StatusTerminated
			cp.Next = nil
			cp.Joins = nil
		default:
			cp.Status = checkpoint.StatusRunning
			cp.Next = next
		}

		if err := g.store.Save(ctx, cp); err != nil {
			return fail(fmt.Errorf("failed to save checkpoint: %w", err))
		}

		for _, b := range branches {
			g.emit(event.Event{
				Type:           event.StepFinished,
				ConversationID: id,
				Step:           b.name,
				Superstep:      superstep,
				Update:         b.res.Update,
			})
		}

		if point != nil {
			g.metrics.RecordInterrupt(ctx, g.def.Name, point.Step)
			g.metrics.RecordRun(ctx, g.def.Name, string(checkpoint.StatusSuspended))
			span.SetAttributes(attribute.String(observability.AttrStatus, string(checkpoint.StatusSuspended)))
			g.emit(event.Event{
				Type:           event.RunSuspended,
				ConversationID: id,
				Step:           point.Step,
				Superstep:      superstep,
				Payload:        point.Payload,
			})
			return g.result(cp, point), nil
		}
		if cp.Status == checkpoint.StatusTerminated {
			break
		}
	}

	g.logger.Info("Run terminated", "conversation_id", id, "supersteps", cp.Supersteps)
	g.metrics.RecordRun(ctx, g.def.Name, string(checkpoint.StatusTerminated))
	span.SetAttributes(attribute.String(observability.AttrStatus, string(checkpoint.StatusTerminated)))
	g.emit(event.Event{Type: event.RunTerminated, ConversationID: id})
	return g.result(cp, nil), nil
}

// runFrontier executes every frontier step against st.
func (g *Graph) runFrontier(ctx context.Context, cp *checkpoint.Checkpoint, st state.State, frontier []string, superstep int, decision any, withDecision bool) []branch {
	ctx, span := g.tracer.Start(ctx, observability.SpanSuperstep, trace.WithAttributes(
		attribute.String(observability.AttrWorkflow, g.def.Name),
		attribute.Int(observability.AttrSuperstep, superstep),
		attribute.StringSlice(observability.AttrFrontier, frontier),
	))
	defer span.End()

	branches := make([]branch, len(frontier))

	for _, name := range frontier {
		g.emit(event.Event{Type: event.StepStarted, ConversationID: cp.ConversationID, Step: name, Superstep: superstep})
	}

	invoke := func(ctx context.Context, i int) {
		inv := step.Invocation{
			ConversationID: cp.ConversationID,
			Step:           frontier[i],
			Superstep:      superstep,
		}
		input := st
		if withDecision && i == 0 {
			inv.Decision, inv.HasDecision = decision, true
			input = st.Merge(state.State{state.DecisionKey: decision})
		}
		branches[i] = g.runStep(ctx, inv, input)
	}

	if len(frontier) == 1 {
		invoke(ctx, 0)
	} else {
		// Branch errors are collected per branch; the group only bounds
		// concurrency and waits.
		var eg errgroup.Group
		if g.maxParallel > 0 {
			eg.SetLimit(g.maxParallel)
		}
		for i := range frontier {
			eg.Go(func() error {
				invoke(ctx, i)
				return nil
			})
		}
		_ = eg.Wait()
	}

	for _, b := range branches {
		if b.err != nil {
			g.emit(event.Event{
				Type:           event.StepFailed,
				ConversationID: cp.ConversationID,
				Step:           b.name,
				Superstep:      superstep,
				Error:          b.err.Error(),
			})
		}
	}
	return branches
}

func (g *Graph) runStep(ctx context.Context, inv step.Invocation, st state.State) branch {
	ctx, span := g.tracer.Start(ctx, observability.SpanStep, trace.WithAttributes(
		attribute.String(observability.AttrWorkflow, g.def.Name),
		attribute.String(observability.AttrStep, inv.Step),
		attribute.Int(observability.AttrSuperstep, inv.Superstep),
	))
	defer span.End()

	if g.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.exec.Run(ctx, inv, st)
	dur := time.Since(start)

	g.metrics.RecordStep(ctx, g.def.Name, inv.Step, dur, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("Step failed", "conversation_id", inv.ConversationID, "step", inv.Step, "error", err)
	} else {
		if g.captureState {
			if data, jerr := json.Marshal(res.Update); jerr == nil {
				span.SetAttributes(attribute.String(observability.AttrStateUpdate, string(data)))
			}
		}
		g.logger.Debug("Step finished", "conversation_id", inv.ConversationID, "step", inv.Step,
			"directive", res.Directive.Kind.String(), "duration", dur)
	}
	return branch{name: inv.Step, res: res, err: err, dur: dur}
}

// advance merges branch updates into st and computes the next frontier.
//
// Suspending steps lead the frontier so a resume re-runs them first.
func (g *Graph) advance(cp *checkpoint.Checkpoint, st *state.State, branches []branch) (next []string, suspends []branch, terminate bool, err error) {
	writer := make(map[string]string)
	merged := *st
	for _, b := range branches {
		for _, k := range b.res.Update.Keys() {
			if prev, ok := writer[k]; ok && prev != b.name {
				g.logger.Warn("Concurrent steps wrote the same key; later step wins",
					"conversation_id", cp.ConversationID, "key", k, "steps", []string{prev, b.name})
			}
			writer[k] = b.name
		}
		merged = merged.Merge(b.res.Update)
	}
	*st = merged

	var routed []string
	add := func(from, to string) {
		if to == End || slices.Contains(routed, to) {
			return
		}
		if sources, ok := g.def.joins[to]; ok && slices.Contains(sources, from) {
			if cp.Joins == nil {
				cp.Joins = make(map[string][]string)
			}
			if !slices.Contains(cp.Joins[to], from) {
				cp.Joins[to] = append(cp.Joins[to], from)
			}
			for _, s := range sources {
				if !slices.Contains(cp.Joins[to], s) {
					return
				}
			}
			delete(cp.Joins, to)
			if len(cp.Joins) == 0 {
				cp.Joins = nil
			}
		}
		routed = append(routed, to)
	}

	for _, b := range branches {
		d := b.res.Directive
		switch d.Kind {
		case step.DirectiveTerminate:
			terminate = true
		case step.DirectiveSuspend:
			suspends = append(suspends, b)
		case step.DirectiveGoto:
			if len(d.Targets) == 0 {
				return nil, nil, false, &StepError{Step: b.name, Err: fmt.Errorf("goto without targets")}
			}
			for _, t := range d.Targets {
				if t != End && !g.def.hasStep(t) {
					return nil, nil, false, &StepError{Step: b.name, Err: &step.UnknownStepError{Step: t}}
				}
				add(b.name, t)
			}
		default:
			targets, err := g.def.successors(b.name, merged)
			if err != nil {
				return nil, nil, false, err
			}
			for _, t := range targets {
				add(b.name, t)
			}
		}
	}

	for _, s := range suspends {
		next = append(next, s.name)
	}
	for _, t := range routed {
		if !slices.Contains(next, t) {
			next = append(next, t)
		}
	}
	return next, suspends, terminate, nil
}

func (g *Graph) result(cp *checkpoint.Checkpoint, point *interrupt.Point) *result {
	out := g.outcome(cp)
	if point != nil {
		out.Interrupt = point
	}
	return &result{Outcome: out, checkpoint: cp}
}

func (g *Graph) outcome(cp *checkpoint.Checkpoint) *Outcome {
	return &Outcome{
		ConversationID: cp.ConversationID,
		Workflow:       g.def.Name,
		Status:         cp.Status,
		State:          cp.State.Persistable(),
		Next:           slices.Clone(cp.Next),
		Interrupt:      interrupt.FromCheckpoint(cp),
		Supersteps:     cp.Supersteps,
	}
}

func (g *Graph) emit(e event.Event) {
	e.Workflow = g.def.Name
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	g.observer.Observe(e)
}
