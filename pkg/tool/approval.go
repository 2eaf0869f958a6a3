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

package tool

import (
	"fmt"

	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/state"
	"github.com/kadirpekel/waypoint/pkg/step"
)

// State keys written by ApprovalStep.
const (
	KeyToolCall        = "tool_call"
	KeyToolResult      = "tool_result"
	KeyToolRejected    = "tool_rejected"
	KeyRejectionReason = "tool_rejection_reason"
)

// ApprovalConfig configures ApprovalStep.
type ApprovalConfig struct {
	Registry *Registry

	// CallKey holds the pending Call. Defaults to KeyToolCall.
	CallKey string

	// ResultKey receives the tool result. Defaults to KeyToolResult.
	ResultKey string

	// Next is routed to after a successful call. Empty defers to the
	// graph's static edges.
	Next string
}

// ApprovalStep returns a step that executes the tool call stored in state.
//
// Calls to tools requiring approval suspend the run with a payload naming
// the tool, its arguments and the allowed decisions. On resume, approve
// executes the call as is, edit executes it with the edited arguments, and
// reject terminates the run without invoking the tool. Decisions that
// cannot be read are treated as rejections.
func ApprovalStep(cfg ApprovalConfig) step.Func {
	if cfg.CallKey == "" {
		cfg.CallKey = KeyToolCall
	}
	if cfg.ResultKey == "" {
		cfg.ResultKey = KeyToolResult
	}

	return func(ctx step.Context, st state.State) (*step.Result, error) {
		raw, ok := st.Get(cfg.CallKey)
		if !ok || raw == nil {
			return nil, fmt.Errorf("no pending tool call under %q", cfg.CallKey)
		}
		var call Call
		if err := state.Decode(raw, &call); err != nil {
			return nil, fmt.Errorf("invalid tool call: %w", err)
		}
		if _, ok := cfg.Registry.Lookup(call.Name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		}

		args := call.Args
		if cfg.Registry.RequiresApproval(call.Name) {
			decision, ok := ctx.Decision()
			if !ok {
				ctx.Logger().Info("Tool call requires approval", "tool", call.Name)
				return step.Suspend(nil, map[string]any{
					"tool":              call.Name,
					"call_id":           call.ID,
					"args":              call.Args,
					"allowed_decisions": interrupt.AllowedDecisions(),
				}), nil
			}

			approval, err := interrupt.DecodeApproval(decision)
			if err != nil {
				ctx.Logger().Warn("Unreadable decision, rejecting tool call", "tool", call.Name, "error", err)
			}
			if !approval.Approved {
				reason := approval.Reason
				if reason == "" {
					reason = "rejected by reviewer"
				}
				ctx.Logger().Info("Tool call rejected", "tool", call.Name, "reason", reason)
				return step.Terminate(state.State{
					KeyToolRejected:    true,
					KeyRejectionReason: reason,
				}), nil
			}
			if approval.Action == interrupt.ActionEdit && len(approval.Args) > 0 {
				args = approval.Args
			}
		}

		result, err := cfg.Registry.Call(ctx, call.Name, args)
		if err != nil {
			return nil, err
		}

		update := state.State{cfg.ResultKey: result, KeyToolRejected: false}
		if cfg.Next != "" {
			return step.Goto(update, cfg.Next), nil
		}
		return step.Update(update), nil
	}
}
