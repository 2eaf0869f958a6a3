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
	"time"
)

// Storage backends.
const (
	StorageBackendMemory = "memory"
	StorageBackendSQL    = "sql"
	StorageBackendRedis  = "redis"
)

// StorageConfig selects where checkpoints live.
//
// Example:
//
//	storage:
//	  backend: redis
//	  redis:
//	    addr: localhost:6379
//	    prefix: waypoint:checkpoint
//	    ttl: 168h
type StorageConfig struct {
	// Backend is one of "memory", "sql", "redis".
	// Default: memory
	Backend string `yaml:"backend,omitempty"`

	// Database names an entry of the top-level databases map.
	// Required when Backend is "sql".
	Database string `yaml:"database,omitempty"`

	// Redis configures the redis backend.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Prefix namespaces checkpoint keys.
	Prefix string `yaml:"prefix,omitempty"`

	// TTL expires idle checkpoints. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// SetDefaults applies default values.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendMemory
	}
	if c.Backend == StorageBackendRedis {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		if c.Redis.Addr == "" {
			c.Redis.Addr = "localhost:6379"
		}
		if c.Redis.Prefix == "" {
			c.Redis.Prefix = "waypoint:checkpoint"
		}
	}
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageBackendMemory, "":
	case StorageBackendSQL:
		if c.Database == "" {
			return fmt.Errorf("database is required for sql backend")
		}
	case StorageBackendRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis backend")
		}
		if c.Redis.TTL < 0 {
			return fmt.Errorf("redis.ttl must be non-negative")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sql, redis)", c.Backend)
	}
	return nil
}
