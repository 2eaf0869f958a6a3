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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/logger"
)

// Environment variables consulted when the matching flag is empty.
const (
	LogFileEnvVar   = "LOG_FILE"
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger configures the default logger.
// Priority: CLI flags > env vars > defaults
func initLogger(level, file, format string) (func(), error) {
	level = firstNonEmpty(level, os.Getenv(LogLevelEnvVar), "info")
	file = firstNonEmpty(file, os.Getenv(LogFileEnvVar))
	format = firstNonEmpty(format, os.Getenv(LogFormatEnvVar), logger.FormatSimple)
	return applyLogger(level, file, format)
}

// initLoggerFromConfig reapplies the logger section of a loaded config
// for every setting the CLI and environment left open.
func initLoggerFromConfig(cli *CLI, cfg *config.LoggerConfig) (func(), error) {
	if cfg == nil {
		return nil, nil
	}
	level := firstNonEmpty(cli.LogLevel, os.Getenv(LogLevelEnvVar), cfg.Level)
	file := firstNonEmpty(cli.LogFile, os.Getenv(LogFileEnvVar), cfg.File)
	format := firstNonEmpty(cli.LogFormat, os.Getenv(LogFormatEnvVar), cfg.Format)
	return applyLogger(level, file, format)
}

func applyLogger(level, file, format string) (func(), error) {
	var output io.Writer = os.Stderr
	var cleanup func()
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = closeFn
	}
	logger.Init(logger.ParseLevel(level), output, format)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
