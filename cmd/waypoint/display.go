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
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
)

// printOutcome writes out as indented JSON or as a short report.
func printOutcome(w io.Writer, out *graph.Outcome, asJSON bool) error {
	if asJSON {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "%s/%s: %s after %d supersteps\n", out.Workflow, out.ConversationID, out.Status, out.Supersteps)
	if out.Status == checkpoint.StatusSuspended && out.Interrupt != nil {
		printInterrupt(w, out.Interrupt)
	}

	keys := make([]string, 0, len(out.State))
	for k := range out.State {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fmt.Fprintln(w, "State:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, compact(out.State[k]))
	}
	return nil
}

func printInterrupt(w io.Writer, p *interrupt.Point) {
	fmt.Fprintf(w, "Waiting at %q (interrupt %s)\n", p.Step, p.ID)
	keys := make([]string, 0, len(p.Payload))
	for k := range p.Payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, compact(p.Payload[k]))
	}
}

// compact renders a value on one line, truncating long text.
func compact(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = fmt.Sprint(t)
		} else {
			s = string(b)
		}
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
