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
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces checkpoint keys.
const DefaultRedisPrefix = "waypoint:checkpoint"

// RedisStore keeps each checkpoint as a JSON string under <prefix>:<id>.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = strings.TrimSuffix(prefix, ":")
		}
	}
}

// WithRedisTTL expires checkpoints that have not been saved for ttl.
// Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(conversationID string) string {
	return s.prefix + ":" + conversationID
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, c *Checkpoint) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	data, err := c.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(c.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", c.ConversationID, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, conversationID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", conversationID, err)
	}
	return Deserialize(data)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", conversationID, err)
	}
	return nil
}

// List implements Store. It walks the key space with SCAN, so it is meant
// for operator tooling rather than hot paths.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]*Checkpoint, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	slices.Sort(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	var out []*Checkpoint
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		c, err := Deserialize([]byte(raw))
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
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
