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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const dbConnectTimeout = 10 * time.Second

// sqlitePragmas run on every new SQLite handle. WAL with a busy timeout
// lets readers proceed while a checkpoint is written.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
}

// DBPool hands out one *sql.DB per driver and DSN, so named databases
// that point at the same server share connections.
type DBPool struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewDBPool creates an empty pool.
func NewDBPool() *DBPool {
	return &DBPool{dbs: make(map[string]*sql.DB)}
}

// Get returns the handle for cfg, connecting on first use.
func (p *DBPool) Get(cfg *DatabaseConfig) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	key := cfg.DriverName() + "|" + cfg.DSN()

	p.mu.Lock()
	defer p.mu.Unlock()
	if db := p.dbs[key]; db != nil {
		return db, nil
	}
	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	p.dbs[key] = db
	return db, nil
}

func connect(cfg *DatabaseConfig) (*sql.DB, error) {
	driver := cfg.DriverName()
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	sizePool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	if cfg.isSQLite() {
		for _, pragma := range sqlitePragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				slog.Warn("Failed to apply SQLite pragma", "pragma", pragma, "error", err)
			}
		}
	}

	slog.Debug("Connected to database", "driver", driver, "dsn", redactDSN(cfg.DSN()))
	return db, nil
}

// sizePool applies the configured limits. SQLite gets a single connection
// since it serializes writers anyway.
func sizePool(db *sql.DB, cfg *DatabaseConfig) {
	maxOpen, maxIdle := cfg.MaxConns, cfg.MaxIdle
	if cfg.isSQLite() {
		maxOpen, maxIdle = 1, 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)
}

// Len reports how many distinct databases are open.
func (p *DBPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dbs)
}

// Close closes every handle and empties the pool.
func (p *DBPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", redactDSN(key), err))
		}
		delete(p.dbs, key)
	}
	return errors.Join(errs...)
}
