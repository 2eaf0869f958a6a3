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

// Package auth validates bearer JWTs against a JWKS endpoint and guards
// HTTP handlers with them.
package auth

import (
	"context"
	"slices"
)

type contextKey struct{}

// Claims is the identity carried by a validated token.
type Claims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds every other private claim.
	Custom map[string]any `json:"-"`
}

// HasAnyRole reports whether the role claim is one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.Role)
}

// ClaimsFromContext returns the claims stored by Middleware, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// ContextWithClaims stores claims in ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}
