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
)

// Rate limit windows.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

// RateLimitConfig throttles run and resume requests per client.
//
// Example:
//
//	server:
//	  rate_limit:
//	    enabled: true
//	    limits:
//	      - window: minute
//	        requests: 60
//	      - window: day
//	        requests: 5000
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Backend is "memory" or "redis". Use redis when several servers share
	// one quota.
	// Default: memory
	Backend string `yaml:"backend,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Limits are checked together; a request must fit every one.
	// Default: 60 requests per minute
	Limits []RateLimitRule `yaml:"limits,omitempty"`
}

// RateLimitRule caps requests within a fixed window.
type RateLimitRule struct {
	Window   string `yaml:"window"`
	Requests int64  `yaml:"requests"`
}

// SetDefaults applies default values.
func (c *RateLimitConfig) SetDefaults() {
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
			c.Redis.Prefix = "waypoint:ratelimit"
		}
	}
	if c.Enabled && len(c.Limits) == 0 {
		c.Limits = []RateLimitRule{{Window: WindowMinute, Requests: 60}}
	}
}

// Validate checks the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	switch c.Backend {
	case StorageBackendMemory, "":
	case StorageBackendRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, redis)", c.Backend)
	}

	seen := make(map[string]bool, len(c.Limits))
	for i, l := range c.Limits {
		switch l.Window {
		case WindowMinute, WindowHour, WindowDay:
		default:
			return fmt.Errorf("limits[%d]: invalid window %q (valid: minute, hour, day)", i, l.Window)
		}
		if l.Requests <= 0 {
			return fmt.Errorf("limits[%d]: requests must be positive", i)
		}
		if seen[l.Window] {
			return fmt.Errorf("limits[%d]: duplicate window %q", i, l.Window)
		}
		seen[l.Window] = true
	}
	return nil
}
