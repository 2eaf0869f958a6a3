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

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator turns a raw bearer token into claims.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// JWTValidatorConfig configures a JWTValidator.
type JWTValidatorConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string

	// RefreshInterval is the minimum time between JWKS refreshes.
	// Default: 15m
	RefreshInterval time.Duration
}

// JWTValidator checks signatures against a cached, auto-refreshed JWKS.
type JWTValidator struct {
	cfg    JWTValidatorConfig
	cache  *jwk.Cache
	cancel context.CancelFunc
}

// NewJWTValidator fetches the key set once to fail fast on a bad URL.
func NewJWTValidator(ctx context.Context, cfg JWTValidatorConfig) (*JWTValidator, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks_url is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Minute
	}

	// The cache refreshes in the background until Close.
	cacheCtx, cancel := context.WithCancel(context.Background())
	cache := jwk.NewCache(cacheCtx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &JWTValidator{cfg: cfg, cache: cache, cancel: cancel}, nil
}

// Validate implements TokenValidator.
func (v *JWTValidator) Validate(ctx context.Context, raw string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{Subject: token.Subject(), Custom: make(map[string]any)}
	for key, value := range token.PrivateClaims() {
		s, _ := value.(string)
		switch key {
		case "email":
			claims.Email = s
		case "role":
			claims.Role = s
		case "tenant_id":
			claims.TenantID = s
		default:
			claims.Custom[key] = value
		}
	}
	return claims, nil
}

// Close stops background refreshes.
func (v *JWTValidator) Close() {
	v.cancel()
}
