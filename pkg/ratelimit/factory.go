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

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/waypoint/pkg/config"
)

// NewFromConfig builds a limiter and its store. It returns nil when cfg is
// nil or disabled.
func NewFromConfig(cfg *config.RateLimitConfig) (*Limiter, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	var store Store
	switch cfg.Backend {
	case config.StorageBackendMemory, "":
		store = NewMemoryStore()

	case config.StorageBackendRedis:
		rc := cfg.Redis
		if rc == nil {
			return nil, fmt.Errorf("redis configuration is required for redis backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Username: rc.Username,
			Password: rc.Password,
			DB:       rc.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
		}
		store = NewRedisStore(client, rc.Prefix)

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}

	l, err := New(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	slog.Info("Rate limiting enabled", "backend", cfg.Backend, "limits", len(cfg.Limits))
	return l, nil
}
