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
	"fmt"
	"strings"
)

// LoggerConfig is the logger section. The CLI flags and the LOG_LEVEL,
// LOG_FILE and LOG_FORMAT variables override it.
//
//	logger:
//	  level: debug
//	  file: waypoint.log
//	  format: json
type LoggerConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// File receives log output instead of stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`

	// Format is simple, verbose or json. Other values fall back to the
	// plain slog text format.
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"default=simple"`
}

// SetDefaults fills level and format.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate rejects unknown levels.
func (c *LoggerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
}
