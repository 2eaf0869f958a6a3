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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/state"
)

// RunCmd starts or continues a conversation.
type RunCmd struct {
	Workflow     string            `arg:"" help:"Workflow name."`
	Conversation string            `arg:"" help:"Conversation id."`
	Set          map[string]string `short:"s" help:"Initial state field as key=value. Repeatable."`
	State        string            `help:"Initial state as a JSON object."`
	JSON         bool              `name:"json" help:"Print the outcome as JSON."`
}

func (c *RunCmd) Run(cli *CLI) error {
	initial, err := parseState(c.State, c.Set)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := rt.Run(ctx, c.Workflow, c.Conversation, initial)
	if err != nil {
		return err
	}
	return printOutcome(os.Stdout, out, c.JSON)
}

// ResumeCmd delivers a decision to a suspended conversation.
type ResumeCmd struct {
	Workflow     string            `arg:"" help:"Workflow name."`
	Conversation string            `arg:"" help:"Conversation id."`
	Approve      bool              `xor:"decision" help:"Approve as is."`
	Reject       bool              `xor:"decision" help:"Reject."`
	Edit         string            `xor:"decision" help:"Approve with an edited value."`
	Args         map[string]string `help:"Approve with edited tool arguments as key=value."`
	Reason       string            `help:"Reason recorded with a rejection."`
	Decision     string            `xor:"decision" help:"Raw decision as JSON."`
	JSON         bool              `name:"json" help:"Print the outcome as JSON."`
}

func (c *ResumeCmd) decision() (any, error) {
	switch {
	case c.Decision != "":
		var v any
		if err := json.Unmarshal([]byte(c.Decision), &v); err != nil {
			return c.Decision, nil
		}
		return v, nil
	case c.Reject:
		return map[string]any{"action": string(interrupt.ActionReject), "reason": c.Reason}, nil
	case c.Edit != "":
		return map[string]any{"action": string(interrupt.ActionEdit), "edited_value": c.Edit}, nil
	case len(c.Args) > 0:
		args := make(map[string]any, len(c.Args))
		for k, v := range c.Args {
			args[k] = v
		}
		return map[string]any{"action": string(interrupt.ActionEdit), "args": args}, nil
	case c.Approve:
		return string(interrupt.ActionApprove), nil
	}
	return nil, fmt.Errorf("one of --approve, --reject, --edit, --args or --decision is required")
}

func (c *ResumeCmd) Run(cli *CLI) error {
	decision, err := c.decision()
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := rt.Resume(ctx, c.Workflow, c.Conversation, decision)
	if err != nil {
		return err
	}
	return printOutcome(os.Stdout, out, c.JSON)
}

// StatusCmd shows the checkpoint of a conversation.
type StatusCmd struct {
	Conversation string `arg:"" help:"Conversation id."`
}

func (c *StatusCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	cp, err := rt.Checkpoint(ctx, c.Conversation)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, cp)
}

// CancelCmd discards a conversation.
type CancelCmd struct {
	Workflow     string `arg:"" help:"Workflow name."`
	Conversation string `arg:"" help:"Conversation id."`
}

func (c *CancelCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := rt.Cancel(ctx, c.Workflow, c.Conversation); err != nil {
		return err
	}
	fmt.Printf("Cancelled %s\n", c.Conversation)
	return nil
}

// PendingCmd lists open interrupts.
type PendingCmd struct {
	Workflow string `help:"Only list this workflow."`
	JSON     bool   `name:"json" help:"Print as JSON."`
}

func (c *PendingCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	points, err := rt.ListPending(ctx, c.Workflow)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(os.Stdout, points)
	}
	if len(points) == 0 {
		fmt.Println("No pending interrupts")
		return nil
	}
	for _, p := range points {
		fmt.Printf("%s  %-10s %-14s %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"), p.Workflow, p.Step, p.ConversationID)
	}
	return nil
}

// parseState merges a JSON object with key=value pairs, the pairs winning.
func parseState(raw string, pairs map[string]string) (state.State, error) {
	st := state.State{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("invalid --state: %w", err)
		}
	}
	for k, v := range pairs {
		st[k] = v
	}
	return st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
