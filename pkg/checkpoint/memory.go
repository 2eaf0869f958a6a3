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

package checkpoint

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory.
//
// Checkpoints are held in their serialized form so every Load returns an
// independent copy and temp keys never survive a Save, matching the
// durable backends.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, c *Checkpoint) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	data, err := c.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	s.mu.Lock()
	s.data[c.ConversationID] = data
	s.mu.Unlock()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, conversationID string) (*Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.data[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Deserialize(data)
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.data, conversationID)
	s.mu.Unlock()
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Checkpoint, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	blobs := make([][]byte, len(ids))
	for i, id := range ids {
		blobs[i] = s.data[id]
	}
	s.mu.RUnlock()

	var out []*Checkpoint
	for _, data := range blobs {
		c, err := Deserialize(data)
		if err != nil {
			return nil, err
		}
		if !filter.match(c) {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
