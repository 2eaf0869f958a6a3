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

// Command waypoint runs and serves resumable workflows.
//
// Usage:
//
//	waypoint serve --config waypoint.yaml
//	waypoint run email thread_1 --set email_content="I was charged twice"
//	waypoint resume email thread_1 --approve
//	waypoint email "My export keeps crashing"
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/waypoint/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API."`
	Run      RunCmd      `cmd:"" help:"Start or continue a conversation."`
	Resume   ResumeCmd   `cmd:"" help:"Deliver a decision to a suspended conversation."`
	Status   StatusCmd   `cmd:"" help:"Show the checkpoint of a conversation."`
	Cancel   CancelCmd   `cmd:"" help:"Discard a conversation."`
	Pending  PendingCmd  `cmd:"" help:"List conversations waiting for a decision."`
	Email    EmailCmd    `cmd:"" help:"Triage one email interactively."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema of the configuration."`

	Config          string   `short:"c" help:"Path or key of the config." env:"WAYPOINT_CONFIG"`
	ConfigProvider  string   `name:"config-provider" help:"Config source (file, consul, etcd, zookeeper)." default:"file"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints of a remote config source." sep:","`

	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("waypoint version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("waypoint"),
		kong.Description("Resumable workflows with human review."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
