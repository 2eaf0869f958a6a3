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
	"sync"
	"time"
)

type counter struct {
	count     int64
	windowEnd time.Time
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*counter
	now  func() time.Time

	lastSweep time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*counter), now: time.Now}
}

// Increment implements Store.
func (s *MemoryStore) Increment(ctx context.Context, key string, windowEnd time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > time.Minute {
		s.sweep(now)
		s.lastSweep = now
	}

	c, ok := s.data[key]
	if !ok || !c.windowEnd.After(now) {
		c = &counter{windowEnd: windowEnd}
		s.data[key] = c
	}
	c.count++
	return c.count, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, c := range s.data {
		if !c.windowEnd.After(now) {
			delete(s.data, k)
		}
	}
}

// Len returns the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
