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
	"time"

	"github.com/go-zookeeper/zk"
)

// ZookeeperProvider reads config from a znode.
type ZookeeperProvider struct {
	conn *zk.Conn
	path string
}

// NewZookeeperProvider connects to the ensemble at servers.
func NewZookeeperProvider(servers []string, path string, sessionTimeout time.Duration) (*ZookeeperProvider, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("zookeeper servers are required")
	}
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &ZookeeperProvider{conn: conn, path: path}, nil
}

// Type returns TypeZookeeper.
func (p *ZookeeperProvider) Type() Type {
	return TypeZookeeper
}

// Load reads the znode data.
func (p *ZookeeperProvider) Load(ctx context.Context) ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read znode %s: %w", p.path, err)
	}
	return data, nil
}

// Watch re-arms a one-shot data watch after every change.
func (p *ZookeeperProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	_, _, events, err := p.conn.GetW(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to watch znode %s: %w", p.path, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type == zk.EventNodeDataChanged || ev.Type == zk.EventNodeCreated {
					notify(ch)
				}
				for {
					_, _, events, err = p.conn.GetW(p.path)
					if err == nil {
						break
					}
					slog.Warn("Failed to re-arm zookeeper watch", "path", p.path, "error", err)
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
			}
		}
	}()

	slog.Info("Watching zookeeper node", "path", p.path)
	return ch, nil
}

// Close closes the session.
func (p *ZookeeperProvider) Close() error {
	p.conn.Close()
	return nil
}

var _ Provider = (*ZookeeperProvider)(nil)
