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

package config

import (
	"fmt"
	"time"
)

// DefaultRecursionLimit bounds the supersteps of one run or resume call.
const DefaultRecursionLimit = 25

// EngineConfig tunes the workflow engine.
type EngineConfig struct {
	// RecursionLimit is the maximum number of supersteps per run or resume.
	// Default: 25
	RecursionLimit int `yaml:"recursion_limit,omitempty"`

	// MaxParallel caps concurrently executing fan-out branches.
	// Default: 0 (unlimited)
	MaxParallel int `yaml:"max_parallel,omitempty"`

	// EventBuffer is the per-subscriber event channel capacity.
	// Default: 64
	EventBuffer int `yaml:"event_buffer,omitempty"`

	// StepTimeout bounds a single step execution. Zero disables it.
	StepTimeout time.Duration `yaml:"step_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *EngineConfig) SetDefaults() {
	if c.RecursionLimit == 0 {
		c.RecursionLimit = DefaultRecursionLimit
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
}

// Validate checks the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.RecursionLimit < 1 {
		return fmt.Errorf("recursion_limit must be at least 1")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be non-negative")
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1")
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must be non-negative")
	}
	return nil
}

// WorkflowConfig overrides engine settings for one workflow.
//
// Example:
//
//	workflows:
//	  email:
//	    review_urgencies: [high, critical]
//	  weather:
//	    require_approval: [get_weather]
type WorkflowConfig struct {
	// Enabled toggles registration of the workflow.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// RecursionLimit overrides engine.recursion_limit.
	RecursionLimit int `yaml:"recursion_limit,omitempty"`

	// RequireApproval lists tools that suspend for a decision before running.
	RequireApproval []string `yaml:"require_approval,omitempty"`

	// ReviewUrgencies lists urgency levels routed to human review.
	ReviewUrgencies []string `yaml:"review_urgencies,omitempty"`
}

// SetDefaults applies default values.
func (c *WorkflowConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
}

// Validate checks the workflow configuration.
func (c *WorkflowConfig) Validate() error {
	if c.RecursionLimit < 0 {
		return fmt.Errorf("recursion_limit must be non-negative")
	}
	return nil
}

// IsEnabled reports whether the workflow should be registered.
func (c *WorkflowConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}
