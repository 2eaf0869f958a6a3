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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulProvider reads config from a Consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	client *api.Client
	key    string
}

// NewConsulProvider connects to the agent at address.
func NewConsulProvider(address, key string) (*ConsulProvider, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &ConsulProvider{client: client, key: strings.TrimPrefix(key, "/")}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type {
	return TypeConsul
}

// Load reads the key.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := p.client.KV().Get(p.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.key)
	}
	return pair.Value, nil
}

// Watch signals whenever the key's modify index advances.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	_, meta, err := p.client.KV().Get(p.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		index := meta.LastIndex
		for {
			opts := (&api.QueryOptions{WaitIndex: index, WaitTime: 5 * time.Minute}).WithContext(ctx)
			_, meta, err := p.client.KV().Get(p.key, opts)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Warn("Consul watch failed; retrying", "key", p.key, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			if meta.LastIndex > index {
				notify(ch)
			}
			// Consul may reset the index; start over rather than spin.
			if meta.LastIndex < index {
				index = 0
				continue
			}
			index = meta.LastIndex
		}
	}()

	slog.Info("Watching consul key", "key", p.key)
	return ch, nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (p *ConsulProvider) Close() error {
	return nil
}

var _ Provider = (*ConsulProvider)(nil)
