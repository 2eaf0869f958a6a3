package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple)

	l.With("conversation_id", "thread_1").Info("Run suspended", "step", "human_review")
	l.Debug("hidden")

	assert.Equal(t, "INFO Run suspended conversation_id=thread_1 step=human_review\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelDebug, &buf, FormatJSON)
	l.Warn("Step failed", "step", "classify")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "classify", rec["step"])
}

func TestOpenLogFile(t *testing.T) {
	f, cleanup, err := OpenLogFile(filepath.Join(t.TempDir(), "waypoint.log"))
	require.NoError(t, err)
	defer cleanup()

	l := New(slog.LevelInfo, f, FormatVerbose)
	l.Info("hello")
}
