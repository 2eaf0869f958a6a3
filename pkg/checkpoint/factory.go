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

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/waypoint/pkg/config"
)

// NewStoreFromConfig creates the Store selected by cfg.
//
// For the sql backend the named database is looked up in databases and
// opened through pool so connections are shared with other components.
// A nil cfg yields an in-memory store.
func NewStoreFromConfig(cfg *config.StorageConfig, databases map[string]*config.DatabaseConfig, pool *config.DBPool) (Store, error) {
	if cfg == nil {
		slog.Debug("Using in-memory checkpoint store")
		return NewMemoryStore(), nil
	}

	switch cfg.Backend {
	case config.StorageBackendMemory, "":
		slog.Debug("Using in-memory checkpoint store")
		return NewMemoryStore(), nil

	case config.StorageBackendSQL:
		dbCfg, ok := databases[cfg.Database]
		if !ok {
			return nil, fmt.Errorf("database %q not found", cfg.Database)
		}
		if pool == nil {
			pool = config.NewDBPool()
		}
		db, err := pool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %q: %w", cfg.Database, err)
		}
		store, err := NewSQLStore(db, dbCfg.Dialect())
		if err != nil {
			return nil, err
		}
		slog.Info("Using SQL checkpoint store", "database", cfg.Database, "dialect", dbCfg.Dialect())
		return store, nil

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
		slog.Info("Using Redis checkpoint store", "addr", rc.Addr)
		return NewRedisStore(client, WithRedisPrefix(rc.Prefix), WithRedisTTL(rc.TTL)), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
