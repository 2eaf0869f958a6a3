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
	"log/slog"

	"github.com/kadirpekel/waypoint/pkg/examples/chat"
	"github.com/kadirpekel/waypoint/pkg/examples/email"
	"github.com/kadirpekel/waypoint/pkg/examples/weather"
	"github.com/kadirpekel/waypoint/pkg/graph"
	"github.com/kadirpekel/waypoint/pkg/model"
	"github.com/kadirpekel/waypoint/pkg/tool"
)

// Deps are the shared components handed to a WorkflowFactory.
type Deps struct {
	// Model is nil when no model is configured.
	Model model.Model
	// Tools is private to the workflow being built.
	Tools  *tool.Registry
	Logger *slog.Logger

	ReviewUrgencies []string
}

// WorkflowFactory builds one workflow definition.
type WorkflowFactory func(deps Deps) (*graph.Definition, error)

func builtinWorkflows() map[string]WorkflowFactory {
	return map[string]WorkflowFactory{
		chat.Name:    ChatWorkflow,
		email.Name:   EmailWorkflow,
		weather.Name: WeatherWorkflow,
	}
}

// EmailWorkflow builds the support email workflow. Classification and
// drafting use the model when one is configured.
func EmailWorkflow(deps Deps) (*graph.Definition, error) {
	opts := email.Options{
		ReviewUrgencies: deps.ReviewUrgencies,
		Logger:          deps.Logger,
	}
	if deps.Model != nil {
		opts.Classifier = email.ModelClassifier{Model: deps.Model}
		opts.Drafter = email.ModelDrafter{Model: deps.Model}
	}
	return email.Build(opts)
}

// WeatherWorkflow builds the approval-gated weather workflow.
func WeatherWorkflow(deps Deps) (*graph.Definition, error) {
	if err := weather.RegisterTools(deps.Tools); err != nil {
		return nil, err
	}
	return weather.Build(weather.Options{
		Tools:  deps.Tools,
		Model:  deps.Model,
		Logger: deps.Logger,
	})
}

// ChatWorkflow builds the multi-turn assistant. It is offered every tool
// of its registry: the connected MCP tools plus the local weather tools.
func ChatWorkflow(deps Deps) (*graph.Definition, error) {
	if err := weather.RegisterTools(deps.Tools); err != nil {
		return nil, err
	}
	return chat.Build(chat.Options{
		Tools:  deps.Tools,
		Model:  deps.Model,
		Logger: deps.Logger,
	})
}
