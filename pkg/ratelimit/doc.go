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

// Package ratelimit caps how many requests a client may make per fixed time
// window.
//
// A Limiter checks every configured window at once and records the request
// in all of them. Counters live in a Store: MemoryStore for a single process,
// RedisStore when several servers share one quota.
//
//	limiter, err := ratelimit.NewFromConfig(cfg.Server.RateLimit)
//	...
//	r.Use(ratelimit.Middleware(limiter, nil))
package ratelimit
