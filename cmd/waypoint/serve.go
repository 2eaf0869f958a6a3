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
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/runtime"
	"github.com/kadirpekel/waypoint/pkg/server"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Address string `help:"Listen address, overrides server.address." placeholder:"HOST:PORT"`
	Watch   bool   `help:"Reload when the config source changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	defer closeLoader(loader)

	logCleanup, err := initLoggerFromConfig(cli, cfg.Logger)
	if err != nil {
		return err
	}
	if logCleanup != nil {
		defer logCleanup()
	}

	reloads := make(chan *config.Config, 1)
	if c.Watch && loader != nil {
		loader.SetOnChange(func(next *config.Config) {
			select {
			case reloads <- next:
			default:
				// Replace the queued config with the newer one.
				select {
				case <-reloads:
				default:
				}
				reloads <- next
			}
		})
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	for {
		next, err := c.serveOnce(ctx, cfg, reloads)
		if err != nil || next == nil {
			return err
		}
		if next.Storage.Backend == config.StorageBackendMemory {
			slog.Warn("Reloading with in-memory storage drops open conversations")
		}
		cfg = next
		slog.Info("Restarting with new configuration")
	}
}

// serveOnce serves cfg until ctx ends or a new config arrives, which is
// returned.
func (c *ServeCmd) serveOnce(ctx context.Context, cfg *config.Config, reloads <-chan *config.Config) (*config.Config, error) {
	if c.Address != "" {
		cfg.Server.Address = c.Address
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			slog.Warn("Runtime cleanup error", "error", err)
		}
	}()

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := server.New(rt, cfg.Server)
	if err != nil {
		return nil, err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(srvCtx) }()

	printStartup(cfg, rt)

	select {
	case err := <-errCh:
		return nil, err
	case next := <-reloads:
		cancel()
		if err := <-errCh; err != nil {
			return nil, err
		}
		return next, nil
	case <-ctx.Done():
		slog.Info("Shutting down")
		return nil, <-errCh
	}
}

func printStartup(cfg *config.Config, rt *runtime.Runtime) {
	fmt.Printf("\nwaypoint %s ready\n", version())
	fmt.Printf("   API:        http://%s/v1\n", cfg.Server.Address)
	fmt.Printf("   Health:     http://%s/health\n", cfg.Server.Address)
	fmt.Printf("   Events:     http://%s/v1/events\n", cfg.Server.Address)
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:    http://%s%s\n", cfg.Server.Address, cfg.Observability.Metrics.Endpoint)
	}
	fmt.Printf("   Storage:    %s\n", cfg.Storage.Backend)
	if m := rt.Model(); m != nil {
		fmt.Printf("   Model:      %s (%s)\n", m.Name(), cfg.Model.BaseURL)
	}
	fmt.Println("\n   Workflows:")
	for _, name := range rt.Workflows() {
		fmt.Printf("     - http://%s/v1/workflows/%s/runs/{conversation}\n", cfg.Server.Address, name)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
