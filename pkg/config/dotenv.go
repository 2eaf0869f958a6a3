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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment files without overwriting variables that are
// already set. Explicit paths are tried first, then .env.local and .env in
// the working directory. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	candidates := append([]string{}, paths...)
	candidates = append(candidates, ".env.local", ".env")

	seen := make(map[string]bool)
	for _, path := range candidates {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			// .env files are optional; a malformed one should not stop startup.
			slog.Warn("Failed to load env file", "path", abs, "error", err)
			continue
		}
		slog.Debug("Loaded environment file", "path", abs)
	}
	return nil
}

// LoadDotEnvForConfig loads .env from the config file's directory, then the
// working directory.
func LoadDotEnvForConfig(configPath string) error {
	if configPath == "" {
		return LoadDotEnv()
	}
	dir := filepath.Dir(configPath)
	return LoadDotEnv(filepath.Join(dir, ".env.local"), filepath.Join(dir, ".env"))
}
