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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists checkpoints in a SQL database.
// Writes for one conversation are serialized by the caller; the upsert
// guarantees a single row per conversation id.
type SQLStore struct {
	db      *sql.DB
	dialect string
	ownsDB  bool
}

// createCheckpointsSchemaSQL takes the column type of checkpoint_json.
const createCheckpointsSchemaSQL = `
CREATE TABLE IF NOT EXISTS workflow_checkpoints (
    conversation_id VARCHAR(255) NOT NULL PRIMARY KEY,
    workflow VARCHAR(255),
    status VARCHAR(32) NOT NULL,
    next_step VARCHAR(255),
    checkpoint_json %s NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createCheckpointsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_workflow_checkpoints_status ON workflow_checkpoints(status, workflow)`

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithOwnedDB makes Close also close the underlying *sql.DB.
func WithOwnedDB() SQLStoreOption {
	return func(s *SQLStore) {
		s.ownsDB = true
	}
}

// NewSQLStore creates a SQL-backed store and ensures its table exists.
func NewSQLStore(db *sql.DB, dialect string, opts ...SQLStoreOption) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) schemaStatements() []string {
	// MySQL TEXT stops at 64KiB, too small for long transcripts.
	if s.dialect == "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS.
		return []string{fmt.Sprintf(createCheckpointsSchemaSQL, "LONGTEXT")}
	}
	return []string{
		fmt.Sprintf(createCheckpointsSchemaSQL, "TEXT"),
		createCheckpointsStatusIndexSQL,
	}
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, c *Checkpoint) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	data, err := c.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.upsertQuery(),
		c.ConversationID, c.Workflow, string(c.Status), c.NextStep(), string(data), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", c.ConversationID, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, conversationID string) (*Checkpoint, error) {
	query := s.rebind(`SELECT checkpoint_json FROM workflow_checkpoints WHERE conversation_id = ?`)

	var data string
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", conversationID, err)
	}
	return Deserialize([]byte(data))
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, conversationID string) error {
	query := s.rebind(`DELETE FROM workflow_checkpoints WHERE conversation_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, conversationID); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", conversationID, err)
	}
	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*Checkpoint, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Workflow != "" {
		clauses = append(clauses, "workflow = ?")
		args = append(args, filter.Workflow)
	}

	query := `SELECT checkpoint_json FROM workflow_checkpoints`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY conversation_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		c, err := Deserialize([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close implements Store. The database is closed only when the store owns it.
func (s *SQLStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) upsertQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO workflow_checkpoints (conversation_id, workflow, status, next_step, checkpoint_json, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
                ON CONFLICT (conversation_id) DO UPDATE SET workflow = EXCLUDED.workflow, status = EXCLUDED.status,
                next_step = EXCLUDED.next_step, checkpoint_json = EXCLUDED.checkpoint_json, updated_at = EXCLUDED.updated_at`
	case "mysql":
		return `INSERT INTO workflow_checkpoints (conversation_id, workflow, status, next_step, checkpoint_json, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON DUPLICATE KEY UPDATE workflow = VALUES(workflow), status = VALUES(status),
                next_step = VALUES(next_step), checkpoint_json = VALUES(checkpoint_json), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO workflow_checkpoints (conversation_id, workflow, status, next_step, checkpoint_json, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (conversation_id) DO UPDATE SET workflow = excluded.workflow, status = excluded.status,
                next_step = excluded.next_step, checkpoint_json = excluded.checkpoint_json, updated_at = excluded.updated_at`
	}
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect == "postgres" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// convertToPostgresPlaceholders rewrites ? placeholders as $1, $2, ...
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for _, r := range query {
		if r == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ Store = (*SQLStore)(nil)
