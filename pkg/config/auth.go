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
	"net/url"
	"time"
)

// AuthConfig protects the /v1 API with bearer JWTs.
//
// Example:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: https://auth.example.com/.well-known/jwks.json
//	    issuer: https://auth.example.com/
//	    audience: waypoint
//	    reviewer_roles: [support-lead, admin]
type AuthConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval is the minimum time between key set refreshes.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// ReviewerRoles may resume or cancel conversations. Empty allows any
	// authenticated caller.
	ReviewerRoles []string `yaml:"reviewer_roles,omitempty"`
}

// SetDefaults applies default values.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
}

// Validate checks the auth configuration.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required when auth is enabled")
	}
	if u, err := url.Parse(c.JWKSURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid jwks_url %q", c.JWKSURL)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must be non-negative")
	}
	return nil
}
