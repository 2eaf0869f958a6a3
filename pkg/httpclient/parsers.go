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

package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryHeaders reads Retry-After (seconds or HTTP date) and the
// x-ratelimit-* headers OpenAI-compatible servers send. Reset headers may
// be durations such as "6m0s" or unix seconds.
func ParseRetryHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo

	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			info.RetryAfter = time.Until(at)
		}
	}

	for _, name := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			info.ResetTime = time.Now().Add(d).Unix()
			break
		}
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetTime = unix
			break
		}
	}

	if v := h.Get("x-ratelimit-remaining-requests"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := h.Get("x-ratelimit-remaining-tokens"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}
	return info
}
