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

package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/waypoint/pkg/model"
)

// Intents.
const (
	IntentQuestion = "question"
	IntentBug      = "bug"
	IntentBilling  = "billing"
	IntentFeature  = "feature"
	IntentComplex  = "complex"
)

// Classification is the triage result for one email.
type Classification struct {
	Intent  string `json:"intent" jsonschema:"required,enum=question,enum=bug,enum=billing,enum=feature,enum=complex"`
	Urgency string `json:"urgency" jsonschema:"required,enum=low,enum=medium,enum=high,enum=critical"`
	Topic   string `json:"topic" jsonschema:"required,description=Short topic of the email"`
	Summary string `json:"summary" jsonschema:"required,description=One sentence summary"`
}

// AsState converts c into a state value.
func (c Classification) AsState() map[string]any {
	return map[string]any{
		"intent":  c.Intent,
		"urgency": c.Urgency,
		"topic":   c.Topic,
		"summary": c.Summary,
	}
}

// Classifier decides intent and urgency of an email.
type Classifier interface {
	Classify(ctx context.Context, content, sender string) (Classification, error)
}

type keywordRule struct {
	intent   string
	keywords []string
}

var intentRules = []keywordRule{
	{IntentBilling, []string{"charge", "invoice", "refund", "billing", "payment", "subscription"}},
	{IntentBug, []string{"bug", "error", "crash", "broken", "fails", "outage", "down"}},
	{IntentFeature, []string{"feature", "would be great", "suggest", "add support"}},
	{IntentComplex, []string{"contract", "legal", "integration", "migrate"}},
}

var urgencyRules = []keywordRule{
	{"critical", []string{"double charge", "charged twice", "outage", "security", "data loss", "breach"}},
	{"high", []string{"urgent", "asap", "immediately", "crash", "cannot log in", "can't log in"}},
	{"low", []string{"feature", "suggest", "whenever", "no rush"}},
}

// KeywordClassifier classifies with fixed keyword rules. It is
// deterministic and needs no model.
type KeywordClassifier struct{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(_ context.Context, content, _ string) (Classification, error) {
	text := strings.ToLower(content)
	c := Classification{
		Intent:  match(intentRules, text, IntentQuestion),
		Urgency: match(urgencyRules, text, "medium"),
		Summary: firstLine(content),
	}
	c.Topic = c.Intent
	return c, nil
}

func match(rules []keywordRule, text, fallback string) string {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.intent
			}
		}
	}
	return fallback
}

const maxSummaryRunes = 120

// firstLine returns the first sentence of s, cut to maxSummaryRunes.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) > maxSummaryRunes {
		s = string([]rune(s)[:maxSummaryRunes])
	}
	return s
}

// ModelClassifier asks a chat model for a structured classification.
type ModelClassifier struct {
	Model model.Model
}

const classifyPrompt = `Analyze this customer email and classify it.

Email: %s
From: %s

Provide the intent, urgency level, topic and a one sentence summary.`

// Classify implements Classifier.
func (m ModelClassifier) Classify(ctx context.Context, content, sender string) (Classification, error) {
	schema, err := reflectSchema(&Classification{})
	if err != nil {
		return Classification{}, err
	}
	resp, err := m.Model.Generate(ctx, &model.Request{
		Messages:           []model.Message{model.User(fmt.Sprintf(classifyPrompt, content, sender))},
		ResponseSchema:     schema,
		ResponseSchemaName: "email_classification",
	})
	if err != nil {
		return Classification{}, err
	}
	var c Classification
	if err := resp.Decode(&c); err != nil {
		return Classification{}, err
	}
	if c.Intent == "" || c.Urgency == "" {
		return Classification{}, fmt.Errorf("incomplete classification: %q", resp.Content)
	}
	return c, nil
}

func reflectSchema(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// DraftInput is everything a Drafter may use.
type DraftInput struct {
	Email          string
	Classification Classification
	SearchResults  []string
	TicketID       string
}

// Drafter writes the reply text.
type Drafter interface {
	Draft(ctx context.Context, in DraftInput) (string, error)
}

// TemplateDrafter fills a fixed reply template.
type TemplateDrafter struct{}

// Draft implements Drafter.
func (TemplateDrafter) Draft(_ context.Context, in DraftInput) (string, error) {
	var b strings.Builder
	b.WriteString("Hello,\n\nThank you for reaching out")
	if in.Classification.Topic != "" {
		fmt.Fprintf(&b, " about %s", in.Classification.Topic)
	}
	b.WriteString(".")
	if in.TicketID != "" {
		fmt.Fprintf(&b, " We opened ticket %s to track this.", in.TicketID)
	}
	if len(in.SearchResults) > 0 {
		b.WriteString("\n\nThese resources may help:\n")
		for _, r := range in.SearchResults {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("\nBest regards,\nSupport")
	return b.String(), nil
}

// ModelDrafter drafts replies with a chat model.
type ModelDrafter struct {
	Model model.Model
}

const draftPrompt = `Draft a response to this customer email:
%s

Email intent: %s
Urgency level: %s
Ticket: %s

Relevant documentation:
%s

Guidelines:
- Be professional and helpful
- Address their specific concern
- Use the provided documentation when relevant`

// Draft implements Drafter.
func (m ModelDrafter) Draft(ctx context.Context, in DraftInput) (string, error) {
	docs := "None"
	if len(in.SearchResults) > 0 {
		docs = "- " + strings.Join(in.SearchResults, "\n- ")
	}
	resp, err := m.Model.Generate(ctx, &model.Request{
		Messages: []model.Message{model.User(fmt.Sprintf(draftPrompt,
			in.Email, in.Classification.Intent, in.Classification.Urgency, in.TicketID, docs))},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("model returned an empty draft")
	}
	return resp.Content, nil
}

// Searcher looks up knowledge base entries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// StaticSearcher returns canned knowledge base entries per intent.
type StaticSearcher struct{}

var knowledgeBase = map[string][]string{
	IntentBilling: {
		"Duplicate charges are refunded within 3-5 business days",
		"Billing history is available under Settings > Billing",
	},
	IntentBug: {
		"Check the status page for ongoing incidents",
		"Include reproduction steps when reporting errors",
	},
	IntentQuestion: {
		"Reset your password from the login page",
		"The getting started guide covers account setup",
	},
}

// Search implements Searcher.
func (StaticSearcher) Search(_ context.Context, query string) ([]string, error) {
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if docs, ok := knowledgeBase[word]; ok {
			return docs, nil
		}
	}
	return []string{"No matching documentation found"}, nil
}

// Sender delivers replies.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender logs replies instead of sending them.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, to, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Sending reply", "to", to, "length", len(body))
	return nil
}
