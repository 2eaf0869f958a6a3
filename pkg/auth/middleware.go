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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context. A nil validator disables the check.
func Middleware(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if header == "" || !ok || token == "" {
				writeError(w, http.StatusUnauthorized, ErrUnauthorized)
				return
			}

			claims, err := v.Validate(r.Context(), token)
			if err != nil {
				slog.Debug("Token rejected", "error", err)
				if !errors.Is(err, ErrInvalidToken) {
					err = ErrUnauthorized
				}
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole admits only callers whose role is one of roles. It must run
// after Middleware. No roles admits every authenticated caller; requests
// with no claims at all pass when auth is off.
func RequireRole(enabled bool, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled || len(roles) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, ErrUnauthorized)
				return
			}
			if !claims.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="waypoint"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": code})
}
