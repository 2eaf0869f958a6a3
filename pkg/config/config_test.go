package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyConfigAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, DefaultRecursionLimit, cfg.Engine.RecursionLimit)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ModelProviderNone, cfg.Model.Provider)
	assert.False(t, cfg.Model.Enabled())
	assert.True(t, cfg.Workflow("email").IsEnabled())
}

func TestParseFullConfig(t *testing.T) {
	t.Setenv("WAYPOINT_TEST_DB", "/tmp/wp.db")

	data := []byte(`
logger:
  level: debug
databases:
  main:
    driver: sqlite
    database: ${WAYPOINT_TEST_DB}
storage:
  backend: sql
  database: main
engine:
  recursion_limit: 10
  max_parallel: 4
  step_timeout: 30s
model:
  model: ${WAYPOINT_TEST_MODEL:-llama-3.2-3b-instruct}
tools:
  mcp:
    - name: time
      command: npx
      args: ["-y", "@theo.foobar/mcp-time"]
    - name: msdocs
      url: https://learn.microsoft.com/api/mcp
workflows:
  weather:
    require_approval: [get_weather]
  email:
    enabled: false
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/tmp/wp.db", cfg.Databases["main"].Database)
	assert.Equal(t, "sqlite3", cfg.Databases["main"].DriverName())
	assert.Equal(t, 10, cfg.Engine.RecursionLimit)
	assert.Equal(t, 30*time.Second, cfg.Engine.StepTimeout)
	assert.Equal(t, "llama-3.2-3b-instruct", cfg.Model.Model)
	assert.Equal(t, ModelProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.Model.BaseURL)
	require.Len(t, cfg.Tools.MCP, 2)
	assert.Equal(t, MCPTransportStdio, cfg.Tools.MCP[0].Transport)
	assert.Equal(t, MCPTransportStreamableHTTP, cfg.Tools.MCP[1].Transport)
	assert.Equal(t, []string{"get_weather"}, cfg.Workflow("weather").RequireApproval)
	assert.False(t, cfg.Workflow("email").IsEnabled())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "storage:\n  backend: s3\n"},
		{"sql without database ref", "storage:\n  backend: sql\n  database: nope\n"},
		{"bad log level", "logger:\n  level: loud\n"},
		{"bad recursion limit", "engine:\n  recursion_limit: -1\n"},
		{"stdio without command", "tools:\n  mcp:\n    - name: x\n      transport: stdio\n"},
		{"duplicate mcp", "tools:\n  mcp:\n    - {name: x, command: a}\n    - {name: x, command: b}\n"},
		{"bad model provider", "model:\n  provider: magic\n"},
		{"bad address", "server:\n  address: nope\n"},
		{"postgres without host", "databases:\n  pg:\n    driver: postgres\n    database: wp\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := &DatabaseConfig{Driver: "postgres", Host: "db", Database: "wp", Username: "u", Password: "secret"}
	pg.SetDefaults()
	assert.Equal(t, "host=db port=5432 dbname=wp user=u password=secret sslmode=disable", pg.DSN())
	assert.NotContains(t, redactDSN(pg.DSN()), "secret")

	my := &DatabaseConfig{Driver: "mysql", Host: "db", Database: "wp", Username: "u", Password: "secret"}
	my.SetDefaults()
	parsed, err := mysql.ParseDSN(my.DSN())
	require.NoError(t, err)
	assert.Equal(t, "u", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "wp", parsed.DBName)
	assert.NotContains(t, redactDSN(my.DSN()), "secret")
}

func TestDBPoolSharesConnections(t *testing.T) {
	pool := NewDBPool()
	defer pool.Close()

	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "wp.db")}
	a, err := pool.Get(cfg)
	require.NoError(t, err)
	b, err := pool.Get(cfg)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, pool.Len())
}

func TestLoadConfigFileWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WAYPOINT_TEST_ADDR=127.0.0.1:9999\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "waypoint.yaml"), []byte("server:\n  address: ${WAYPOINT_TEST_ADDR}\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("WAYPOINT_TEST_ADDR") })

	cfg, loader, err := LoadConfigFile(context.Background(), filepath.Join(dir, "waypoint.yaml"))
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
}

func TestExpandEnvString(t *testing.T) {
	t.Setenv("WAYPOINT_X", "x")
	assert.Equal(t, "x-x-def", expandEnvString("$WAYPOINT_X-${WAYPOINT_X}-${WAYPOINT_UNSET_VAR:-def}"))
}

func TestRateLimitConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  rate_limit:
    enabled: true
    backend: redis
`))
	require.NoError(t, err)
	rl := cfg.Server.RateLimit
	assert.Equal(t, []RateLimitRule{{Window: WindowMinute, Requests: 60}}, rl.Limits)
	assert.Equal(t, "localhost:6379", rl.Redis.Addr)
	assert.Equal(t, "waypoint:ratelimit", rl.Redis.Prefix)

	_, err = Parse([]byte(`
server:
  rate_limit:
    enabled: true
    limits:
      - window: minute
        requests: 10
      - window: minute
        requests: 20
`))
	assert.ErrorContains(t, err, "duplicate window")

	_, err = Parse([]byte(`
server:
  rate_limit:
    enabled: true
    limits:
      - window: week
        requests: 10
`))
	assert.ErrorContains(t, err, "invalid window")
}

func TestLoaderWatchSkipsUnchangedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: :8080\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, loader, err := LoadConfigFile(ctx, path)
	require.NoError(t, err)
	defer loader.Close()

	changes := make(chan *Config, 4)
	loader.SetOnChange(func(cfg *Config) { changes <- cfg })
	go loader.Watch(ctx)

	// Give the watcher time to register before editing.
	time.Sleep(200 * time.Millisecond)

	// Comments do not change the effective config.
	require.NoError(t, os.WriteFile(path, []byte("# same\nserver:\n  address: :8080\n"), 0o644))
	select {
	case <-changes:
		t.Fatal("unchanged config triggered a reload")
	case <-time.After(500 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: :9090\n"), 0o644))
	select {
	case cfg := <-changes:
		assert.Equal(t, ":9090", cfg.Server.Address)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not delivered")
	}
}
