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

// Package email is a customer-support triage workflow with a human review
// gate.
//
//	read_email -> classify -> {search, ticket} -> compose
//	compose -> human_review (urgent or complex) | send_reply
//	human_review -> send_reply (approve/edit) | terminate (reject)
//	send_reply -> End
//
// Classification and drafting are pluggable: deterministic keyword and
// template implementations are used unless a chat model is configured.
package email

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
)

// Name is the workflow name.
const Name = "email"

// State keys.
const (
	KeyEmailContent   = "email_content"
	KeySenderEmail    = "sender_email"
	KeyEmailID        = "email_id"
	KeyClassification = "classification"
	KeyIntent         = "intent"
	KeyUrgency        = "urgency"
	KeySearchResults  = "search_results"
	KeyTicketID       = "ticket_id"
	KeyDraftResponse  = "draft_response"
	KeyReview         = "review"
	KeySent           = "sent"
)

// Step names.
const (
	StepReadEmail   = "read_email"
	StepClassify    = "classify"
	StepSearch      = "search"
	StepTicket      = "ticket"
	StepCompose     = "compose"
	StepHumanReview = "human_review"
	StepSendReply   = "send_reply"
)

// DefaultReviewUrgencies are the urgencies that require human review.
var DefaultReviewUrgencies = []string{"high", "critical"}

// Options configures the workflow.
type Options struct {
	Classifier Classifier
	Drafter    Drafter
	Searcher   Searcher
	Sender     Sender

	// ReviewUrgencies overrides DefaultReviewUrgencies.
	ReviewUrgencies []string

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Classifier == nil {
		o.Classifier = KeywordClassifier{}
	}
	if o.Drafter == nil {
		o.Drafter = TemplateDrafter{}
	}
	if o.Searcher == nil {
		o.Searcher = StaticSearcher{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sender == nil {
		o.Sender = LogSender{Logger: o.Logger}
	}
	if len(o.ReviewUrgencies) == 0 {
		o.ReviewUrgencies = DefaultReviewUrgencies
	}
}

// InitialState returns the starting state for one email.
func InitialState(content, sender, emailID string) state.State {
	return state.State{
		KeyEmailContent: content,
		KeySenderEmail:  sender,
		KeyEmailID:      emailID,
	}
}

// Build returns the workflow definition.
func Build(opts Options) (*graph.Definition, error) {
	opts.setDefaults()
	w := &workflow{opts: opts}

	return graph.NewBuilder(Name).
		WithLogger(opts.Logger).
		AddStep(StepReadEmail, w.readEmail,
			step.Requires(state.RequiredKey(KeyEmailContent, state.KindString)),
			step.Writes(KeyEmailContent, KeyEmailID, KeySenderEmail),
			step.Description("Normalize the incoming email")).
		AddStep(StepClassify, w.classify,
			step.Writes(KeyClassification, KeyIntent, KeyUrgency),
			step.Description("Classify intent and urgency")).
		AddStep(StepSearch, w.search,
			step.Writes(KeySearchResults),
			step.Description("Search documentation for the topic")).
		AddStep(StepTicket, w.ticket,
			step.Writes(KeyTicketID),
			step.Description("Open a tracking ticket")).
		AddStep(StepCompose, w.compose,
			step.Requires(state.RequiredKey(KeyClassification, state.KindMap)),
			step.Writes(KeyDraftResponse),
			step.Description("Draft a reply")).
		AddStep(StepHumanReview, w.humanReview,
			step.Writes(KeyDraftResponse, KeyReview),
			step.Description("Wait for a reviewer to approve, edit or reject the draft")).
		AddStep(StepSendReply, w.sendReply,
			step.Requires(state.RequiredKey(KeyDraftResponse, state.KindString)),
			step.Writes(KeySent),
			step.Description("Send the reply")).
		AddEdge(StepReadEmail, StepClassify).
		AddEdge(StepClassify, StepSearch, StepTicket).
		AddJoin(StepCompose, StepSearch, StepTicket).
		AddRouter(StepCompose, w.routeDraft, StepHumanReview, StepSendReply).
		AddEdge(StepSendReply, graph.End).
		SetEntry(StepReadEmail).
		Build()
}

type workflow struct {
	opts Options
}

func (w *workflow) readEmail(_ step.Context, st state.State) (*step.Result, error) {
	update := state.State{KeyEmailContent: strings.TrimSpace(st.String(KeyEmailContent))}
	if st.String(KeyEmailID) == "" {
		update[KeyEmailID] = "email_" + uuid.NewString()[:8]
	}
	if st.String(KeySenderEmail) == "" {
		update[KeySenderEmail] = "unknown@example.com"
	}
	return step.Update(update), nil
}

func (w *workflow) classify(ctx step.Context, st state.State) (*step.Result, error) {
	c, err := w.opts.Classifier.Classify(ctx, st.String(KeyEmailContent), st.String(KeySenderEmail))
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	ctx.Logger().Info("Email classified", "intent", c.Intent, "urgency", c.Urgency)
	return step.Update(state.State{
		KeyClassification: c.AsState(),
		KeyIntent:         c.Intent,
		KeyUrgency:        c.Urgency,
	}), nil
}

func (w *workflow) search(ctx step.Context, st state.State) (*step.Result, error) {
	c := classificationOf(ctx.Logger(), st)
	results, err := w.opts.Searcher.Search(ctx, strings.TrimSpace(c.Intent+" "+c.Topic))
	if err != nil {
		results = []string{"Search temporarily unavailable: " + err.Error()}
	}
	return step.Update(state.State{KeySearchResults: results}), nil
}

func (w *workflow) ticket(step.Context, state.State) (*step.Result, error) {
	return step.Update(state.State{KeyTicketID: "BUG_" + uuid.NewString()}), nil
}

func (w *workflow) compose(ctx step.Context, st state.State) (*step.Result, error) {
	draft, err := w.opts.Drafter.Draft(ctx, DraftInput{
		Email:          st.String(KeyEmailContent),
		Classification: classificationOf(ctx.Logger(), st),
		SearchResults:  st.Strings(KeySearchResults),
		TicketID:       st.String(KeyTicketID),
	})
	if err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}
	return step.Update(state.State{KeyDraftResponse: draft}), nil
}

func (w *workflow) routeDraft(st state.State) (string, error) {
	c := classificationOf(w.opts.Logger, st)
	// Classifiers always set an urgency; an empty one is unreadable.
	if c.Urgency == "" || slices.Contains(w.opts.ReviewUrgencies, c.Urgency) || c.Intent == IntentComplex {
		return StepHumanReview, nil
	}
	return StepSendReply, nil
}

func (w *workflow) humanReview(ctx step.Context, st state.State) (*step.Result, error) {
	decision, ok := ctx.Decision()
	if !ok {
		c := classificationOf(ctx.Logger(), st)
		return step.Suspend(nil, map[string]any{
			"email_id":          st.String(KeyEmailID),
			"original_email":    st.String(KeyEmailContent),
			"draft_response":    st.String(KeyDraftResponse),
			"urgency":           c.Urgency,
			"intent":            c.Intent,
			"action":            "Please review and approve/edit this response",
			"allowed_decisions": interrupt.AllowedDecisions(),
		}), nil
	}

	approval, err := interrupt.DecodeApproval(decision)
	if err != nil {
		ctx.Logger().Warn("Unreadable review decision, rejecting draft", "error", err)
	}
	if !approval.Approved {
		ctx.Logger().Info("Draft rejected", "email_id", st.String(KeyEmailID))
		return step.Terminate(state.State{
			KeyReview: map[string]any{"approved": false, "reason": approval.Reason},
		}), nil
	}

	update := state.State{
		KeyReview: map[string]any{"approved": true, "edited": approval.Edited != ""},
	}
	if approval.Edited != "" {
		update[KeyDraftResponse] = approval.Edited
	}
	return step.Goto(update, StepSendReply), nil
}

func (w *workflow) sendReply(ctx step.Context, st state.State) (*step.Result, error) {
	if err := w.opts.Sender.Send(ctx, st.String(KeySenderEmail), st.String(KeyDraftResponse)); err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	return step.Update(state.State{KeySent: true}), nil
}

// classificationOf reads the stored classification. A malformed one is
// logged and read as empty.
func classificationOf(logger *slog.Logger, st state.State) Classification {
	var c Classification
	if raw := st.Map(KeyClassification); raw != nil {
		if err := state.Decode(raw, &c); err != nil {
			logger.Warn("Malformed classification in state", "error", err)
		}
	}
	return c
}
