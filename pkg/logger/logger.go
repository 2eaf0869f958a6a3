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

// Package logger configures the process-wide slog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

const modulePrefix = "github.com/kadirpekel/waypoint"

// Output formats.
const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to output.
//
// format is "simple" (level and message), "verbose" (adds the time), "json",
// or anything else for the stock slog text format. Terminal output is
// colored. Records from other modules are dropped unless level is debug.
func New(level slog.Level, output io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	case FormatSimple, "", FormatVerbose:
		handler = &lineHandler{
			base:    slog.NewTextHandler(output, opts),
			writer:  output,
			color:   isTerminal(output),
			verbose: format == FormatVerbose,
		}
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(&filteringHandler{handler: handler, minLevel: level})
}

// Init installs a New logger as the slog default.
func Init(level slog.Level, output io.Writer, format string) *slog.Logger {
	l := New(level, output, format)
	slog.SetDefault(l)
	return l
}

// OpenLogFile opens path for appending and returns a cleanup func.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// filteringHandler hides third-party records unless debugging.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel > slog.LevelDebug && !fromModule(record.PC) {
		return nil
	}
	return h.handler.Handle(ctx, record)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func fromModule(pc uintptr) bool {
	if pc == 0 {
		// No caller info (e.g. records built by hand); keep them.
		return true
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.HasPrefix(fn.Name(), modulePrefix) || strings.HasPrefix(fn.Name(), "main.")
}

// lineHandler renders "LEVEL message k=v" lines, optionally colored and
// prefixed with the time.
type lineHandler struct {
	base    slog.Handler
	writer  io.Writer
	color   bool
	verbose bool
	attrs   []slog.Attr
}

func (h *lineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder

	if h.verbose && !record.Time.IsZero() {
		b.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	level := record.Level.String()
	if h.color {
		b.WriteString(levelColor(record.Level))
		b.WriteString(level)
		b.WriteString("\033[0m")
	} else {
		b.WriteString(level)
	}
	b.WriteByte(' ')
	b.WriteString(record.Message)

	write := func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(write)
	b.WriteByte('\n')

	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.base = h.base.WithGroup(name)
	return &clone
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}
