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
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces counter keys.
const DefaultRedisPrefix = "waypoint:ratelimit"

// RedisStore keeps counters in Redis so several servers share one quota.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, windowEnd time.Time) (int64, error) {
	k := s.prefix + ":" + key

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireAt(ctx, k, windowEnd)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
