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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/examples/email"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
)

// EmailCmd runs one email through the triage workflow and, when a draft
// needs review, asks for a decision on the terminal.
type EmailCmd struct {
	Text         []string `arg:"" optional:"" help:"Email text. Read from stdin when omitted."`
	Sender       string   `help:"Sender address." default:"customer@example.com"`
	Conversation string   `help:"Conversation id. Generated when empty."`
	JSON         bool     `name:"json" help:"Print outcomes as JSON."`
}

func (c *EmailCmd) Run(cli *CLI) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	content := strings.TrimSpace(strings.Join(c.Text, " "))
	if content == "" {
		if interactive {
			fmt.Print("Email text (end with an empty line):\n")
		}
		text, err := readEmail(os.Stdin, interactive)
		if err != nil {
			return err
		}
		content = text
	}
	if content == "" {
		return errors.New("email text is empty")
	}

	ctx := context.Background()
	rt, cleanup, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	id := c.Conversation
	if id == "" {
		if id, err = nextThreadID(ctx, rt.Store()); err != nil {
			return err
		}
	}

	out, err := rt.Run(ctx, email.Name, id, email.InitialState(content, c.Sender, ""))
	if err != nil {
		return err
	}
	if err := printOutcome(os.Stdout, out, c.JSON); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	for out.Status == checkpoint.StatusSuspended {
		if !interactive {
			fmt.Printf("Review pending. Resume with: waypoint resume %s %s --approve\n", email.Name, id)
			return nil
		}
		decision, err := promptDecision(in, os.Stdout)
		if err != nil {
			return err
		}
		out, err = rt.Resume(ctx, email.Name, id, decision)
		if err != nil {
			return err
		}
		if err := printOutcome(os.Stdout, out, c.JSON); err != nil {
			return err
		}
	}
	return nil
}

// nextThreadID returns the first thread_<n> id with no checkpoint.
func nextThreadID(ctx context.Context, store checkpoint.Store) (string, error) {
	for n := 1; ; n++ {
		id := fmt.Sprintf("thread_%d", n)
		_, err := store.Load(ctx, id)
		if errors.Is(err, checkpoint.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// readEmail reads the email body. On a terminal reading stops at the first
// empty line, otherwise at EOF.
func readEmail(r io.Reader, stopAtBlank bool) (string, error) {
	if !stopAtBlank {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read email: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read email: %w", err)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// promptDecision asks for approve, edit or reject until it gets a valid
// answer.
func promptDecision(r *bufio.Reader, w io.Writer) (any, error) {
	for {
		fmt.Fprint(w, "[a]pprove, [e]dit or [r]eject? ")
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("no decision: %w", err)
		}

		action, perr := interrupt.ParseAction(shortAction(line))
		if perr != nil {
			fmt.Fprintln(w, perr)
			if err != nil {
				return nil, perr
			}
			continue
		}

		switch action {
		case interrupt.ActionApprove:
			return map[string]any{"approved": true}, nil
		case interrupt.ActionEdit:
			fmt.Fprint(w, "Replacement response: ")
			edited, err := r.ReadString('\n')
			edited = strings.TrimSpace(edited)
			if edited == "" {
				if err != nil {
					return nil, fmt.Errorf("no edited response: %w", err)
				}
				fmt.Fprintln(w, "edited response is empty")
				continue
			}
			return map[string]any{"approved": true, "edited_response": edited}, nil
		default:
			fmt.Fprint(w, "Reason (optional): ")
			reason, _ := r.ReadString('\n')
			return map[string]any{"approved": false, "reason": strings.TrimSpace(reason)}, nil
		}
	}
}

func shortAction(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return "approve"
	case "r":
		return "reject"
	}
	return s
}
