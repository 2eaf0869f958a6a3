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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/waypoint/pkg/runtime"
)

// ValidateCmd checks the configuration and, optionally, that every enabled
// workflow builds.
type ValidateCmd struct {
	Format      string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the configuration with defaults applied."`
	Build       bool   `help:"Also build the runtime and every enabled workflow."`
}

type validateResult struct {
	Valid     bool     `json:"valid"`
	Source    string   `json:"source"`
	Workflows []string `json:"workflows,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()
	source := cli.Config
	if source == "" {
		source = "defaults"
	}

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return c.report(validateResult{Source: source, Error: err.Error()}, err)
	}
	defer closeLoader(loader)

	res := validateResult{Valid: true, Source: source}
	if c.Build {
		rt, err := runtime.New(ctx, cfg)
		if err != nil {
			return c.report(validateResult{Source: source, Error: err.Error()}, err)
		}
		res.Workflows = rt.Workflows()
		if err := rt.Close(ctx); err != nil {
			return c.report(validateResult{Source: source, Error: err.Error()}, err)
		}
	}

	if err := c.report(res, nil); err != nil {
		return err
	}
	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return nil
}

func (c *ValidateCmd) report(res validateResult, cause error) error {
	if c.Format == "json" {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	} else if res.Valid {
		fmt.Printf("%s: valid\n", res.Source)
		for _, wf := range res.Workflows {
			fmt.Printf("  workflow %s: ok\n", wf)
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", res.Source, res.Error)
	}
	if cause != nil {
		return fmt.Errorf("validation failed: %w", cause)
	}
	return nil
}
