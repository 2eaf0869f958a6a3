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

import "fmt"

// MCP transports.
const (
	MCPTransportStdio          = "stdio"
	MCPTransportStreamableHTTP = "streamable_http"
	MCPTransportSSE            = "sse"
)

// ToolsConfig configures external tool registries.
//
// Example:
//
//	tools:
//	  mcp:
//	    - name: time
//	      transport: stdio
//	      command: npx
//	      args: ["-y", "@theo.foobar/mcp-time"]
//	    - name: msdocs
//	      transport: streamable_http
//	      url: https://learn.microsoft.com/api/mcp
type ToolsConfig struct {
	MCP []*MCPServerConfig `yaml:"mcp,omitempty"`
}

// MCPServerConfig describes one remote tool server.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	// Filter keeps only the named tools. Empty keeps all.
	Filter []string `yaml:"filter,omitempty"`
}

// SetDefaults applies default values.
func (c *ToolsConfig) SetDefaults() {
	for _, s := range c.MCP {
		if s == nil {
			continue
		}
		if s.Transport == "" {
			if s.URL != "" {
				s.Transport = MCPTransportStreamableHTTP
			} else {
				s.Transport = MCPTransportStdio
			}
		}
	}
}

// Validate checks the tools configuration.
func (c *ToolsConfig) Validate() error {
	seen := make(map[string]bool)
	for i, s := range c.MCP {
		if s == nil {
			return fmt.Errorf("mcp[%d]: empty definition", i)
		}
		if s.Name == "" {
			return fmt.Errorf("mcp[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		switch s.Transport {
		case MCPTransportStdio:
			if s.Command == "" {
				return fmt.Errorf("mcp %q: command is required for stdio transport", s.Name)
			}
		case MCPTransportStreamableHTTP, MCPTransportSSE:
			if s.URL == "" {
				return fmt.Errorf("mcp %q: url is required for %s transport", s.Name, s.Transport)
			}
		default:
			return fmt.Errorf("mcp %q: invalid transport %q (valid: stdio, streamable_http, sse)", s.Name, s.Transport)
		}
	}
	return nil
}
