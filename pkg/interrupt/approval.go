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

package interrupt

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// Action is an operator's answer to an approval interrupt.
type Action string

const (
	ActionApprove Action = "approve"
	ActionEdit    Action = "edit"
	ActionReject  Action = "reject"
)

// AllowedActions lists every action, in the order offered to operators.
var AllowedActions = []Action{ActionApprove, ActionEdit, ActionReject}

// AllowedDecisions returns AllowedActions as strings for interrupt payloads.
func AllowedDecisions() []string {
	out := make([]string, len(AllowedActions))
	for i, a := range AllowedActions {
		out[i] = string(a)
	}
	return out
}

// ParseAction accepts an action name or a common synonym.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "accept", "yes", "y":
		return ActionApprove, nil
	case "edit", "e":
		return ActionEdit, nil
	case "reject", "rejected", "deny", "no", "n":
		return ActionReject, nil
	default:
		return "", fmt.Errorf("unknown decision %q (expected approve, edit or reject)", s)
	}
}

// Approval is the decoded form of an approve/edit/reject decision.
type Approval struct {
	Approved bool
	Action   Action

	// Edited replaces the value under review, e.g. a draft response.
	Edited string
	// Args replaces the arguments of a reviewed tool call.
	Args map[string]any

	Reason string
}

type rawApproval struct {
	Approved       *bool          `json:"approved"`
	Action         string         `json:"action"`
	Type           string         `json:"type"`
	EditedValue    string         `json:"edited_value"`
	EditedResponse string         `json:"edited_response"`
	Args           map[string]any `json:"args"`
	Reason         string         `json:"reason"`
}

// DecodeApproval interprets a decision given as a bool, an action string or
// a map such as {"approved": true, "edited_response": "..."} or
// {"action": "edit", "args": {...}}.
//
// Anything that cannot be read as an approval decodes as a rejection
// together with an error.
func DecodeApproval(decision any) (Approval, error) {
	deny := Approval{Action: ActionReject}

	switch d := decision.(type) {
	case nil:
		return deny, fmt.Errorf("decision is empty")
	case bool:
		return fromBool(d), nil
	case string:
		a, err := ParseAction(d)
		if err != nil {
			return deny, err
		}
		return fromAction(a), nil
	}

	var raw rawApproval
	if err := state.Decode(decision, &raw); err != nil {
		return deny, fmt.Errorf("invalid decision: %w", err)
	}

	var out Approval
	name := raw.Action
	if name == "" {
		name = raw.Type
	}
	switch {
	case name != "":
		a, err := ParseAction(name)
		if err != nil {
			return deny, err
		}
		out = fromAction(a)
	case raw.Approved != nil:
		out = fromBool(*raw.Approved)
	default:
		return deny, fmt.Errorf("decision has neither approved nor action")
	}

	out.Edited = raw.EditedValue
	if out.Edited == "" {
		out.Edited = raw.EditedResponse
	}
	out.Args = raw.Args
	out.Reason = raw.Reason
	if out.Approved && (out.Edited != "" || len(out.Args) > 0) {
		out.Action = ActionEdit
	}
	return out, nil
}

func fromBool(approved bool) Approval {
	if approved {
		return Approval{Approved: true, Action: ActionApprove}
	}
	return Approval{Action: ActionReject}
}

func fromAction(a Action) Approval {
	return Approval{Approved: a != ActionReject, Action: a}
}
