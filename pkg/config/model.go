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

// Model providers.
const (
	ModelProviderOpenAI = "openai"
	ModelProviderNone   = "none"
)

// ModelConfig configures the chat model used by model-backed steps.
// The default targets a local OpenAI-compatible server.
type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "none".
	// Default: openai when base_url or model is set, otherwise none
	Provider string `yaml:"provider,omitempty"`

	// BaseURL of the OpenAI-compatible API.
	// Default: http://127.0.0.1:1234/v1
	BaseURL string `yaml:"base_url,omitempty"`

	// Model name sent with each request.
	// Default: qwen/qwen3-4b-2507
	Model string `yaml:"model,omitempty"`

	// APIKey for the endpoint. Local servers accept any value.
	APIKey string `yaml:"api_key,omitempty"`

	Temperature float32 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`

	// Timeout bounds one model call.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries for rate-limited or failing calls. -1 disables retries.
	// Default: 3
	MaxRetries int `yaml:"max_retries,omitempty"`

	// CACertificate is a PEM file to trust for self-hosted endpoints.
	CACertificate string `yaml:"ca_certificate,omitempty"`

	// InsecureSkipVerify disables TLS verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
}

// SetDefaults applies default values. Without a provider, base_url or
// model the section stays disabled and workflows use their deterministic
// fallbacks.
func (c *ModelConfig) SetDefaults() {
	if c.Provider == "" {
		if c.BaseURL == "" && c.Model == "" {
			c.Provider = ModelProviderNone
		} else {
			c.Provider = ModelProviderOpenAI
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Provider != ModelProviderOpenAI {
		return
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:1234/v1"
	}
	if c.Model == "" {
		c.Model = "qwen/qwen3-4b-2507"
	}
	if c.APIKey == "" {
		c.APIKey = "not-needed"
	}
}

// Validate checks the model configuration.
func (c *ModelConfig) Validate() error {
	switch c.Provider {
	case ModelProviderOpenAI:
		if c.BaseURL == "" {
			return fmt.Errorf("base_url is required")
		}
		if c.Model == "" {
			return fmt.Errorf("model is required")
		}
	case ModelProviderNone:
	default:
		return fmt.Errorf("invalid provider %q (valid: openai, none)", c.Provider)
	}
	if c.MaxRetries < -1 {
		return fmt.Errorf("max_retries must be -1 or greater")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// Enabled reports whether a model client should be created.
func (c *ModelConfig) Enabled() bool {
	return c != nil && c.Provider != ModelProviderNone
}
