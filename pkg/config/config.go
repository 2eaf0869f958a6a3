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

// Package config loads the waypoint configuration.
//
// Configuration is read from a provider (file, consul, etcd, zookeeper),
// parsed as YAML, expanded against the environment, decoded into Config,
// defaulted and validated. Every section is optional: an empty file yields
// an in-memory engine with the built-in workflows.
//
// Example:
//
//	logger:
//	  level: info
//	databases:
//	  main:
//	    driver: sqlite
//	    database: ./waypoint.db
//	storage:
//	  backend: sql
//	  database: main
//	engine:
//	  recursion_limit: 25
//	model:
//	  base_url: http://127.0.0.1:1234/v1
//	  model: qwen/qwen3-4b-2507
//	workflows:
//	  weather:
//	    require_approval: [get_weather]
package config

import (
	"fmt"
	"sort"

	"github.com/kadirpekel/waypoint/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	Version string `yaml:"version,omitempty"`
	Name    string `yaml:"name,omitempty"`

	Logger *LoggerConfig `yaml:"logger,omitempty"`

	// Databases are named connections referenced by other sections.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty"`

	Storage *StorageConfig `yaml:"storage,omitempty"`
	Engine  *EngineConfig  `yaml:"engine,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Model   *ModelConfig   `yaml:"model,omitempty"`
	Tools   *ToolsConfig   `yaml:"tools,omitempty"`

	Observability observability.Config `yaml:"observability,omitempty"`

	// Workflows holds per-workflow overrides keyed by workflow name.
	Workflows map[string]*WorkflowConfig `yaml:"workflows,omitempty"`
}

// SetDefaults fills every unset section with its defaults.
func (c *Config) SetDefaults() {
	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}
	c.Logger.SetDefaults()

	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	c.Storage.SetDefaults()

	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	c.Engine.SetDefaults()

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	c.Server.SetDefaults()

	if c.Model == nil {
		c.Model = &ModelConfig{}
	}
	c.Model.SetDefaults()

	if c.Tools == nil {
		c.Tools = &ToolsConfig{}
	}
	c.Tools.SetDefaults()

	c.Observability.SetDefaults()

	if c.Workflows == nil {
		c.Workflows = make(map[string]*WorkflowConfig)
	}
	for _, wf := range c.Workflows {
		if wf != nil {
			wf.SetDefaults()
		}
	}
}

// Validate checks the whole configuration, including cross references.
func (c *Config) Validate() error {
	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}

	for _, name := range sortedKeys(c.Databases) {
		db := c.Databases[name]
		if db == nil {
			return fmt.Errorf("database %q: empty definition", name)
		}
		if err := db.Validate(); err != nil {
			return fmt.Errorf("database %q: %w", name, err)
		}
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if c.Storage.Backend == StorageBackendSQL {
			if _, ok := c.Databases[c.Storage.Database]; !ok {
				return fmt.Errorf("storage: database %q is not defined in databases", c.Storage.Database)
			}
		}
	}

	if c.Engine != nil {
		if err := c.Engine.Validate(); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}

	if c.Server != nil {
		if err := c.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	if c.Model != nil {
		if err := c.Model.Validate(); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}

	if c.Tools != nil {
		if err := c.Tools.Validate(); err != nil {
			return fmt.Errorf("tools: %w", err)
		}
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	for _, name := range sortedKeys(c.Workflows) {
		wf := c.Workflows[name]
		if wf == nil {
			continue
		}
		if err := wf.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", name, err)
		}
	}

	return nil
}

// Workflow returns the overrides for name, or defaults when none are set.
func (c *Config) Workflow(name string) *WorkflowConfig {
	if wf, ok := c.Workflows[name]; ok && wf != nil {
		return wf
	}
	wf := &WorkflowConfig{}
	wf.SetDefaults()
	return wf
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
