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

// Package event carries workflow lifecycle events to external observers.
//
// The graph never performs I/O of its own to report progress. It emits
// Events to an Observer; console renderers, the HTTP event stream and tests
// subscribe through a Bus.
package event

import (
	"time"

	"github.com/kadirpekel/waypoint/pkg/state"
)

// Type names a lifecycle event.
type Type string

const (
	RunStarted    Type = "run.started"
	RunResumed    Type = "run.resumed"
	RunSuspended  Type = "run.suspended"
	RunTerminated Type = "run.terminated"
	RunFailed     Type = "run.failed"
	RunCancelled  Type = "run.cancelled"

	StepStarted  Type = "step.started"
	StepFinished Type = "step.finished"
	StepFailed   Type = "step.failed"
)

// Event is one observation of a run.
type Event struct {
	Type           Type           `json:"type"`
	Workflow       string         `json:"workflow,omitempty"`
	ConversationID string         `json:"conversation_id"`
	Step           string         `json:"step,omitempty"`
	Superstep      int            `json:"superstep,omitempty"`
	Update         state.State    `json:"update,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Error          string         `json:"error,omitempty"`
	Time           time.Time      `json:"time"`
}

// Observer receives events. Observe is called synchronously from the run
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Multi fans an event out to several observers in order. Nil entries are skipped.
func Multi(observers ...Observer) Observer {
	var out multi
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Nop discards every event.
var Nop Observer = ObserverFunc(func(Event) {})

// IsTerminal reports whether t ends a Run or Resume call.
func (t Type) IsTerminal() bool {
	switch t {
	case RunSuspended, RunTerminated, RunFailed, RunCancelled:
		return true
	}
	return false
}
