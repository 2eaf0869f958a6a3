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

// Package provider loads raw configuration bytes from a file or a
// key-value store and signals when they change.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Type names a configuration source.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

var typeAliases = map[string]Type{
	"":          TypeFile,
	"file":      TypeFile,
	"consul":    TypeConsul,
	"etcd":      TypeEtcd,
	"zookeeper": TypeZookeeper,
	"zk":        TypeZookeeper,
}

// ParseType resolves a --config-type value.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown provider type: %s", s)
}

// Provider is a configuration source. Implementations are safe for
// concurrent use.
type Provider interface {
	Type() Type

	// Load returns the current document.
	Load(ctx context.Context) ([]byte, error)

	// Watch returns a channel that receives after each change, until ctx
	// ends or the provider closes. A nil channel means the source cannot
	// be watched.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// ProviderConfig selects and addresses a source.
type ProviderConfig struct {
	Type Type

	// Path is a file path or a key in the remote store.
	Path string

	// Endpoints of the remote store. Defaults to its usual local address.
	Endpoints []string

	// Timeout bounds the remote connection setup. Default: 10s
	Timeout time.Duration
}

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

func (c ProviderConfig) endpoints(fallback string) []string {
	if len(c.Endpoints) > 0 {
		return c.Endpoints
	}
	return []string{fallback}
}

// New opens the source opts describes.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(opts.endpoints("localhost:8500")[0], opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(opts.endpoints("localhost:2379"), opts.Path, opts.timeout())
	case TypeZookeeper:
		return NewZookeeperProvider(opts.endpoints("localhost:2181"), opts.Path, opts.timeout())
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}
