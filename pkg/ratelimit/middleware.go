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

package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
)

// IdentifierFunc extracts the scope and client identifier of a request.
type IdentifierFunc func(r *http.Request) (scope, identifier string)

// ClientIDHeader lets trusted callers name themselves.
const ClientIDHeader = "X-Client-ID"

// DefaultIdentifierFunc uses the X-Client-ID header, falling back to the
// remote host.
func DefaultIdentifierFunc(r *http.Request) (string, string) {
	if id := r.Header.Get(ClientIDHeader); id != "" {
		return "", id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", r.RemoteAddr
	}
	return "", host
}

// Middleware rejects requests over the limit with 429. A nil limiter
// passes everything through. Store failures fail open.
func Middleware(limiter *Limiter, identify IdentifierFunc) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if identify == nil {
		identify = DefaultIdentifierFunc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, id := identify(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), scope, id)
			if err != nil {
				slog.Error("Rate limit check failed", "error", err, "client", id)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result)
			if !result.Allowed {
				writeLimited(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, result *CheckResult) {
	seconds := int64(math.Ceil(result.RetryAfter.Seconds()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":               result.Reason,
		"code":                "rate_limited",
		"retry_after_seconds": seconds,
	})
}

func addHeaders(w http.ResponseWriter, result *CheckResult) {
	u := result.Tightest()
	if u == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(u.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(u.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(u.WindowEnd.Unix(), 10))
}
