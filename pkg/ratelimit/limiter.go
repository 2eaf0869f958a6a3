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
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/waypoint/pkg/config"
)

// Store counts requests per key until the key's window ends.
type Store interface {
	// Increment adds one to key and returns the new count. The counter
	// expires at windowEnd.
	Increment(ctx context.Context, key string, windowEnd time.Time) (int64, error)

	// Close releases the store.
	Close() error
}

type rule struct {
	window TimeWindow
	limit  int64
}

// Limiter enforces a set of fixed-window request limits.
type Limiter struct {
	rules []rule
	store Store
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter for the rules in cfg.
func New(cfg *config.RateLimitConfig, store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if len(cfg.Limits) == 0 {
		return nil, fmt.Errorf("at least one limit is required")
	}

	l := &Limiter{store: store, now: time.Now}
	for i, lc := range cfg.Limits {
		w, err := ParseTimeWindow(lc.Window)
		if err != nil {
			return nil, fmt.Errorf("limits[%d]: %w", i, err)
		}
		if lc.Requests <= 0 {
			return nil, fmt.Errorf("limits[%d]: requests must be positive", i)
		}
		l.rules = append(l.rules, rule{window: w, limit: lc.Requests})
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow records one request by identifier within scope and reports whether
// it fits every limit. Rejected requests still count.
func (l *Limiter) Allow(ctx context.Context, scope, identifier string) (*CheckResult, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	now := l.now()
	result := &CheckResult{Allowed: true, Usages: make([]Usage, 0, len(l.rules))}

	for _, r := range l.rules {
		start, end := r.window.bounds(now)
		key := fmt.Sprintf("%s:%s:%s:%d", scope, identifier, r.window, start.Unix())

		current, err := l.store.Increment(ctx, key, end)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s window: %w", r.window, err)
		}

		result.Usages = append(result.Usages, Usage{
			Window:    r.window,
			Current:   current,
			Limit:     r.limit,
			Remaining: max(r.limit-current, 0),
			WindowEnd: end,
		})

		if current > r.limit {
			if result.Allowed {
				result.Reason = fmt.Sprintf("request limit exceeded for %s window (%d/%d)", r.window, current, r.limit)
			}
			result.Allowed = false
			if wait := end.Sub(now); wait > result.RetryAfter {
				result.RetryAfter = wait
			}
		}
	}
	return result, nil
}

// Close closes the store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
