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

package checkpoint

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no checkpoint exists for an id.
var ErrNotFound = errors.New("checkpoint not found")

// ErrWorkflowMismatch is matched by WorkflowMismatchError.
var ErrWorkflowMismatch = errors.New("conversation belongs to another workflow")

// WorkflowMismatchError reports an operation on a conversation that another
// workflow owns. Conversation ids are global across workflows.
type WorkflowMismatchError struct {
	ConversationID string
	Owner          string
	Requested      string
}

func (e *WorkflowMismatchError) Error() string {
	return fmt.Sprintf("conversation %q belongs to workflow %q, not %q", e.ConversationID, e.Owner, e.Requested)
}

func (e *WorkflowMismatchError) Is(target error) bool { return target == ErrWorkflowMismatch }

// CheckOwner fails with a WorkflowMismatchError when cp is owned by a
// workflow other than name. Unowned checkpoints and an empty name pass.
func CheckOwner(cp *Checkpoint, name string) error {
	if name == "" || cp.Workflow == "" || cp.Workflow == name {
		return nil
	}
	return &WorkflowMismatchError{ConversationID: cp.ConversationID, Owner: cp.Workflow, Requested: name}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status   Status
	Workflow string
	Limit    int
}

func (f ListFilter) match(c *Checkpoint) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Workflow != "" && c.Workflow != f.Workflow {
		return false
	}
	return true
}

// Store persists one checkpoint per conversation id.
//
// Implementations must be safe for concurrent use. Callers serialize writes
// for the same id (see Locks); a Store only guarantees that each Save fully
// replaces the previous checkpoint.
type Store interface {
	// Save persists c, overwriting any previous checkpoint for its id.
	Save(ctx context.Context, c *Checkpoint) error

	// Load returns the last saved checkpoint or ErrNotFound.
	Load(ctx context.Context, conversationID string) (*Checkpoint, error)

	// Delete removes the checkpoint. Deleting a missing id is not an error.
	Delete(ctx context.Context, conversationID string) error

	// List returns checkpoints matching filter ordered by conversation id.
	List(ctx context.Context, filter ListFilter) ([]*Checkpoint, error)

	// Close releases resources held by the store.
	Close() error
}
