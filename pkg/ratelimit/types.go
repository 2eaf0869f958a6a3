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
	"fmt"
	"time"
)

// TimeWindow is the length of a counting window.
type TimeWindow string

const (
	WindowMinute TimeWindow = "minute"
	WindowHour   TimeWindow = "hour"
	WindowDay    TimeWindow = "day"
)

// ParseTimeWindow validates a window name.
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch w := TimeWindow(s); w {
	case WindowMinute, WindowHour, WindowDay:
		return w, nil
	default:
		return "", fmt.Errorf("invalid window %q", s)
	}
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// bounds returns the aligned window containing t.
func (w TimeWindow) bounds(t time.Time) (start, end time.Time) {
	start = t.Truncate(w.Duration())
	return start, start.Add(w.Duration())
}

// Usage is the state of one window after a request.
type Usage struct {
	Window    TimeWindow `json:"window"`
	Current   int64      `json:"current"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	WindowEnd time.Time  `json:"window_end"`
}

// CheckResult reports whether a request was allowed.
type CheckResult struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	Usages     []Usage       `json:"usages"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Tightest returns the usage with the fewest remaining requests.
func (r *CheckResult) Tightest() *Usage {
	var out *Usage
	for i := range r.Usages {
		u := &r.Usages[i]
		if out == nil || u.Remaining < out.Remaining {
			out = u
		}
	}
	return out
}
