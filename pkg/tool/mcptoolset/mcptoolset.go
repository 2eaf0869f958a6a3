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

// Package mcptoolset exposes the tools of a remote MCP server as a
// tool.Toolset.
//
// The connection is established lazily on the first Tools call. Tools are
// discovered as (name, description, input schema) and wrapped as
// tool.CallableTool, so steps cannot tell them apart from local tools.
//
// Transports: stdio (subprocess), streamable_http and sse, all through the
// mcp-go client.
package mcptoolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/waypoint/pkg/tool"
)

// Transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
)

const clientName = "waypoint"

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset.
	Name string

	// Transport is stdio, streamable_http or sse. Defaults to stdio when
	// Command is set and streamable_http otherwise.
	Transport string

	// Command, Args and Env start the server for the stdio transport.
	Command string
	Args    []string
	Env     map[string]string

	// URL and Headers address the server for HTTP transports.
	URL     string
	Headers map[string]string

	// Filter limits which tools are exposed. Empty exposes all.
	Filter []string

	// RequireApproval lists tools that need a human decision before each call.
	RequireApproval []string
}

// Toolset is an MCP-backed toolset with lazy connection.
type Toolset struct {
	cfg     Config
	connect func(ctx context.Context) (*client.Client, error)

	mu        sync.Mutex
	client    *client.Client
	tools     []tool.Tool
	connected bool
}

// New creates a toolset for cfg. Nothing is dialed until Tools is called.
func New(cfg Config) (*Toolset, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp toolset name is required")
	}
	if cfg.Transport == "" {
		if cfg.Command != "" {
			cfg.Transport = TransportStdio
		} else {
			cfg.Transport = TransportStreamableHTTP
		}
	}

	ts := &Toolset{cfg: cfg}
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("mcp toolset %s: command is required for stdio", cfg.Name)
		}
		ts.connect = ts.dialStdio
	case TransportStreamableHTTP, TransportSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp toolset %s: url is required for %s", cfg.Name, cfg.Transport)
		}
		ts.connect = ts.dialHTTP
	default:
		return nil, fmt.Errorf("mcp toolset %s: unsupported transport %q", cfg.Name, cfg.Transport)
	}
	return ts, nil
}

// NewFromClient wraps an already constructed, not yet started client, such
// as an in-process one.
func NewFromClient(cfg Config, c *client.Client) *Toolset {
	return &Toolset{
		cfg: cfg,
		connect: func(context.Context) (*client.Client, error) {
			return c, nil
		},
	}
}

// Name returns the toolset name.
func (t *Toolset) Name() string { return t.cfg.Name }

// Tools connects on first use and returns the discovered tools.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server %s: %w", t.cfg.Name, err)
		}
	}
	return slices.Clone(t.tools), nil
}

func (t *Toolset) dialStdio(ctx context.Context) (*client.Client, error) {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, k+"="+v)
	}
	return client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
}

func (t *Toolset) dialHTTP(ctx context.Context) (*client.Client, error) {
	if t.cfg.Transport == TransportSSE {
		return client.NewSSEMCPClient(t.cfg.URL, client.WithHeaders(t.cfg.Headers))
	}
	return client.NewStreamableHttpClient(t.cfg.URL, transport.WithHTTPHeaders(t.cfg.Headers))
}

// initialize runs the MCP handshake and lists tools. Caller holds t.mu.
func (t *Toolset) initialize(ctx context.Context) error {
	c, err := t.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	var tools []tool.Tool
	for _, mt := range listResp.Tools {
		if len(t.cfg.Filter) > 0 && !slices.Contains(t.cfg.Filter, mt.Name) {
			continue
		}
		tools = append(tools, &remoteTool{
			toolset:  t,
			name:     mt.Name,
			desc:     mt.Description,
			schema:   inputSchema(mt),
			approval: slices.Contains(t.cfg.RequireApproval, mt.Name),
		})
	}

	t.client = c
	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"transport", t.cfg.Transport,
		"tools", len(tools),
	)
	return nil
}

// Close closes the connection. A later Tools call reconnects.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.client != nil {
		err = t.client.Close()
	}
	t.client = nil
	t.tools = nil
	t.connected = false
	return err
}

func (t *Toolset) currentClient() *client.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// remoteTool adapts one MCP tool to tool.CallableTool.
type remoteTool struct {
	toolset  *Toolset
	name     string
	desc     string
	schema   map[string]any
	approval bool
}

func (r *remoteTool) Name() string           { return r.name }
func (r *remoteTool) Description() string    { return r.desc }
func (r *remoteTool) RequiresApproval() bool { return r.approval }
func (r *remoteTool) Schema() map[string]any { return r.schema }

// Call invokes the tool on the server. A result flagged as an error by the
// server is returned as a Go error.
func (r *remoteTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	c := r.toolset.currentClient()
	if c == nil {
		return nil, fmt.Errorf("MCP client %s not connected", r.toolset.Name())
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = r.name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	texts := textContent(resp.Content)
	if resp.IsError {
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("MCP tool %s: %s", r.name, msg)
	}

	result := make(map[string]any)
	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	if resp.StructuredContent != nil {
		result["structured"] = resp.StructuredContent
	}
	return result, nil
}

func textContent(contents []mcp.Content) []string {
	var texts []string
	for _, c := range contents {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	return texts
}

// inputSchema renders the tool's input schema as a plain map.
func inputSchema(mt mcp.Tool) map[string]any {
	data, err := json.Marshal(mt)
	if err != nil {
		return nil
	}
	var raw struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw.InputSchema
}

var (
	_ tool.Toolset      = (*Toolset)(nil)
	_ tool.CallableTool = (*remoteTool)(nil)
)
