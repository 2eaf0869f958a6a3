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

package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
)

var (
	// ErrSuspended is returned by Run for a conversation that is waiting on
	// an interrupt. Use Resume instead.
	ErrSuspended = errors.New("conversation is suspended")

	// ErrWorkflowMismatch is returned for a conversation owned by another
	// workflow.
	ErrWorkflowMismatch = checkpoint.ErrWorkflowMismatch

	ErrRecursionLimit = errors.New("recursion limit exceeded")
	ErrNoOutgoingEdge = errors.New("no outgoing edge")
)

// RecursionLimitError reports a run that executed Limit supersteps in one
// call without suspending or terminating.
type RecursionLimitError struct {
	ConversationID string
	Limit          int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("conversation %q: recursion limit of %d supersteps reached without hitting a stop condition", e.ConversationID, e.Limit)
}

func (e *RecursionLimitError) Is(target error) bool { return target == ErrRecursionLimit }

// NoOutgoingEdgeError reports a step that returned no directive and has
// neither a router nor a static edge.
type NoOutgoingEdgeError struct {
	Step string
}

func (e *NoOutgoingEdgeError) Error() string {
	return fmt.Sprintf("step %q has no directive and no outgoing edge", e.Step)
}

func (e *NoOutgoingEdgeError) Is(target error) bool { return target == ErrNoOutgoingEdge }

// StepError wraps an error returned by a step function or its router.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ConflictingWritesError reports fan-out siblings that declare writes to
// the same state keys.
type ConflictingWritesError struct {
	From  string
	Steps []string
	Keys  []string
}

func (e *ConflictingWritesError) Error() string {
	return fmt.Sprintf("steps %s fanned out from %q both write %s",
		strings.Join(e.Steps, " and "), e.From, strings.Join(e.Keys, ", "))
}
