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

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/config/provider"
	"github.com/kadirpekel/waypoint/pkg/runtime"
)

// loadConfig reads the configuration selected by the global flags. Without
// --config the defaults are used and the returned loader is nil.
func loadConfig(ctx context.Context, cli *CLI) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		slog.Debug("No config given, using defaults")
		return config.Default(), nil, nil
	}

	typ, err := provider.ParseType(cli.ConfigProvider)
	if err != nil {
		return nil, nil, err
	}

	var (
		cfg    *config.Config
		loader *config.Loader
	)
	if typ == provider.TypeFile {
		cfg, loader, err = config.LoadConfigFile(ctx, cli.Config)
	} else {
		cfg, loader, err = config.LoadConfig(ctx, provider.ProviderConfig{
			Type:      typ,
			Path:      cli.Config,
			Endpoints: cli.ConfigEndpoints,
		})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Debug("Loaded configuration", "source", typ, "path", cli.Config)
	return cfg, loader, nil
}

// openRuntime loads the configuration and builds a runtime from it. The
// returned cleanup closes everything that was opened.
func openRuntime(ctx context.Context, cli *CLI) (*runtime.Runtime, func(), error) {
	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return nil, nil, err
	}
	logCleanup, err := initLoggerFromConfig(cli, cfg.Logger)
	if err != nil {
		closeLoader(loader)
		return nil, nil, err
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		closeLoader(loader)
		return nil, nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	cleanup := func() {
		if err := rt.Close(context.Background()); err != nil {
			slog.Warn("Runtime cleanup error", "error", err)
		}
		closeLoader(loader)
		if logCleanup != nil {
			logCleanup()
		}
	}
	return rt, cleanup, nil
}

func closeLoader(loader *config.Loader) {
	if loader == nil {
		return
	}
	if err := loader.Close(); err != nil {
		slog.Warn("Config loader cleanup error", "error", err)
	}
}
