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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/waypoint/pkg/config/provider"
)

// Loader reads a Config from a Provider and reloads it on change.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)

	// last is the fingerprint of the last config handed out.
	last [sha256.Size]byte
}

// NewLoader creates a Loader for p.
func NewLoader(p provider.Provider) *Loader {
	return &Loader{provider: p}
}

// SetOnChange registers the reload callback. Call it before Watch.
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.onChange = fn
}

// Load reads the source and returns a defaulted, validated Config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l.last = fingerprint(cfg)
	return cfg, nil
}

// Watch blocks until ctx ends, calling the change callback with every
// reloaded config that differs from the previous one. Invalid edits are
// logged and skipped so a typo never takes a running server down.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	if changes == nil {
		slog.Info("Config source does not support watching", "type", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			prev := l.last
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Error("Ignoring invalid config change", "error", err)
				continue
			}
			if l.last == prev {
				slog.Debug("Config source changed without effect")
				continue
			}
			slog.Info("Configuration changed", "type", l.provider.Type())
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}

// Close releases the provider.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// fingerprint hashes the effective config, defaults included, so reordered
// keys or comments do not count as changes.
func fingerprint(cfg *Config) [sha256.Size]byte {
	data, err := json.Marshal(cfg)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}

// parseBytes reads YAML, which also covers JSON documents.
func parseBytes(data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}

// expandEnv replaces ${VAR}, ${VAR:-default} and $VAR in every string
// value.
func expandEnv(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnv(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return os.Expand(s, func(name string) string {
		if key, def, ok := strings.Cut(name, ":-"); ok {
			if v := os.Getenv(key); v != "" {
				return v
			}
			return def
		}
		return os.Getenv(name)
	})
}

// LoadConfig opens the provider described by opts and loads from it.
func LoadConfig(ctx context.Context, opts provider.ProviderConfig) (*Config, *Loader, error) {
	p, err := provider.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	loader := NewLoader(p)
	cfg, err := loader.Load(ctx)
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return cfg, loader, nil
}

// LoadConfigFile loads a local file. A .env next to it is read first so
// ${VAR} references resolve.
func LoadConfigFile(ctx context.Context, path string) (*Config, *Loader, error) {
	if err := LoadDotEnvForConfig(path); err != nil {
		return nil, nil, err
	}
	return LoadConfig(ctx, provider.ProviderConfig{Type: provider.TypeFile, Path: path})
}

// Parse turns YAML or JSON into a defaulted, validated Config.
func Parse(data []byte) (*Config, error) {
	raw, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{}
	if err := decodeConfig(expandEnv(raw).(map[string]any), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
