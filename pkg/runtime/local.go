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

package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/kadirpekel/waypoint/pkg/checkpoint"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/interrupt"
	"github.com/kadirpekel/waypoint/pkg/state"
)

// Run starts or continues a conversation on the named workflow.
func (r *Runtime) Run(ctx context.Context, workflow, conversationID string, initial state.State) (*graph.Outcome, error) {
	g, err := r.Graph(workflow)
	if err != nil {
		return nil, err
	}
	return g.Run(ctx, conversationID, initial)
}

// Resume delivers decision to a suspended conversation of the named
// workflow.
func (r *Runtime) Resume(ctx context.Context, workflow, conversationID string, decision any) (*graph.Outcome, error) {
	g, err := r.Graph(workflow)
	if err != nil {
		return nil, err
	}
	return g.Resume(ctx, conversationID, decision)
}

// Cancel discards a conversation of the named workflow.
func (r *Runtime) Cancel(ctx context.Context, workflow, conversationID string) error {
	g, err := r.Graph(workflow)
	if err != nil {
		return err
	}
	return g.Cancel(ctx, conversationID)
}

// Checkpoint loads a conversation without knowing its workflow.
func (r *Runtime) Checkpoint(ctx context.Context, conversationID string) (*checkpoint.Checkpoint, error) {
	cp, err := r.store.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, ok := r.graphs[cp.Workflow]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, cp.Workflow)
	}
	return cp, nil
}

// ListPending returns the open interrupts of every workflow, oldest first.
// An empty workflow lists all of them.
func (r *Runtime) ListPending(ctx context.Context, workflow string) ([]*interrupt.Point, error) {
	var points []*interrupt.Point
	for _, name := range r.order {
		if workflow != "" && name != workflow {
			continue
		}
		pending, err := r.graphs[name].ListPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		points = append(points, pending...)
	}
	if workflow != "" && r.graphs[workflow] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].CreatedAt.Before(points[j].CreatedAt)
	})
	return points, nil
}
