package checkpoint

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/state"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(db, "sqlite3", WithOwnedDB())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, WithRedisPrefix("test:cp:"))
	t.Cleanup(func() { store.Close() })
	return store
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
		"redis":  newRedisStore(t),
	}
}

func TestStoreLoadMissing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			cp := New("thread_1", "email", state.State{"email_content": "double charge"}, "read_email")
			require.NoError(t, store.Save(ctx, cp))

			cp.State = cp.State.Merge(state.State{"urgency": "critical"})
			cp.Next = []string{"human_review"}
			cp.Status = StatusSuspended
			cp.Interrupt = &Interrupt{
				ID:      "int-1",
				Step:    "human_review",
				Payload: map[string]any{"urgency": "critical"},
			}
			require.NoError(t, store.Save(ctx, cp))

			loaded, err := store.Load(ctx, "thread_1")
			require.NoError(t, err)
			assert.Equal(t, StatusSuspended, loaded.Status)
			assert.Equal(t, "human_review", loaded.NextStep())
			assert.Equal(t, "critical", loaded.State.String("urgency"))
			assert.Equal(t, "double charge", loaded.State.String("email_content"))
			require.NotNil(t, loaded.Interrupt)
			assert.Equal(t, "critical", loaded.Interrupt.Payload["urgency"])

			all, err := store.List(ctx, ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1, "one live checkpoint per conversation")
		})
	}
}

func TestStoreLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			cp := New("thread_2", "email", state.State{
				"classification": map[string]any{"intent": "billing"},
				"results":        []any{"doc1", "doc2"},
			}, "classify")
			require.NoError(t, store.Save(ctx, cp))

			first, err := store.Load(ctx, "thread_2")
			require.NoError(t, err)
			second, err := store.Load(ctx, "thread_2")
			require.NoError(t, err)

			assert.Equal(t, first, second)

			// Mutating one loaded copy must not leak into the next load.
			first.State["classification"].(map[string]any)["intent"] = "bug"
			third, err := store.Load(ctx, "thread_2")
			require.NoError(t, err)
			assert.Equal(t, second, third)
		})
	}
}

func TestStoreDropsTempKeys(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			cp := New("thread_3", "wf", state.State{"kept": "yes", state.DecisionKey: true}, "a")
			require.NoError(t, store.Save(ctx, cp))

			loaded, err := store.Load(ctx, "thread_3")
			require.NoError(t, err)
			assert.Equal(t, state.State{"kept": "yes"}, loaded.State)
		})
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			a := New("a", "email", nil, "read_email")
			b := New("b", "weather", nil, "plan")
			b.Status = StatusTerminated
			b.Next = nil
			require.NoError(t, store.Save(ctx, a))
			require.NoError(t, store.Save(ctx, b))

			running, err := store.List(ctx, ListFilter{Status: StatusRunning})
			require.NoError(t, err)
			require.Len(t, running, 1)
			assert.Equal(t, "a", running[0].ConversationID)

			weather, err := store.List(ctx, ListFilter{Workflow: "weather"})
			require.NoError(t, err)
			require.Len(t, weather, 1)
			assert.Equal(t, "b", weather[0].ConversationID)

			require.NoError(t, store.Delete(ctx, "a"))
			require.NoError(t, store.Delete(ctx, "a"), "deleting twice is fine")

			_, err = store.Load(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Save(ctx, &Checkpoint{Status: StatusRunning}))

			suspended := New("x", "wf", nil, "a")
			suspended.Status = StatusSuspended
			assert.Error(t, store.Save(ctx, suspended), "suspended checkpoint needs an interrupt")
		})
	}
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, WithRedisTTL(time.Minute))
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, New("ttl", "wf", nil, "a")))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConvertToPostgresPlaceholders(t *testing.T) {
	got := convertToPostgresPlaceholders("SELECT * FROM t WHERE a = ? AND b = ?")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", got)
}

func TestSchemaStatementsPerDialect(t *testing.T) {
	tests := []struct {
		dialect string
		column  string
		index   bool
	}{
		{dialect: "mysql", column: "checkpoint_json LONGTEXT NOT NULL"},
		{dialect: "postgres", column: "checkpoint_json TEXT NOT NULL", index: true},
		{dialect: "sqlite", column: "checkpoint_json TEXT NOT NULL", index: true},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			stmts := (&SQLStore{dialect: tt.dialect}).schemaStatements()
			require.NotEmpty(t, stmts)
			assert.Contains(t, stmts[0], tt.column)
			assert.NotContains(t, stmts[0], "%s")
			if tt.index {
				assert.Equal(t, []string{stmts[0], createCheckpointsStatusIndexSQL}, stmts)
			} else {
				assert.Len(t, stmts, 1)
			}
		})
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	store, err := NewStoreFromConfig(nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	dbs := map[string]*config.DatabaseConfig{
		"main": {Driver: "sqlite", Database: filepath.Join(t.TempDir(), "wp.db")},
	}
	pool := config.NewDBPool()
	defer pool.Close()

	store, err = NewStoreFromConfig(&config.StorageConfig{Backend: config.StorageBackendSQL, Database: "main"}, dbs, pool)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store)

	_, err = NewStoreFromConfig(&config.StorageConfig{Backend: config.StorageBackendSQL, Database: "missing"}, dbs, pool)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	store, err = NewStoreFromConfig(&config.StorageConfig{
		Backend: config.StorageBackendRedis,
		Redis:   &config.RedisConfig{Addr: mr.Addr()},
	}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	store.Close()
}

func TestCheckpointClone(t *testing.T) {
	cp := New("c", "wf", state.State{"m": map[string]any{"k": "v"}}, "a")
	cp.Joins = map[string][]string{"compose": {"search"}}
	cp.Interrupt = &Interrupt{Step: "a", Payload: map[string]any{"x": 1}}

	clone := cp.Clone()
	clone.Joins["compose"][0] = "ticket"
	clone.State.Map("m")["k"] = "changed"
	clone.Interrupt.Payload["x"] = 2

	assert.Equal(t, "search", cp.Joins["compose"][0])
	assert.Equal(t, "v", cp.State.Map("m")["k"])
	assert.Equal(t, 1, cp.Interrupt.Payload["x"])
}
