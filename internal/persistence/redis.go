// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client.
// *redis.Client satisfies this directly.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisFingerprintStore mirrors trained fingerprints into Redis, one key per
// (host, label, method, user-agent) tuple. It only writes: nothing in this
// repository reads fingerprints back from Redis into a fingerprint.Store,
// so a restarted process still retrains. Applies each upsert idempotently
// with a Lua script: SETNX an upsert marker, and only on first application
// write the fingerprint hash — a retried upsert for the same tuple is a
// no-op, matching the teacher's RedisPersister marker pattern.
type RedisFingerprintStore struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisFingerprintStore returns a store backed by client. markerTTL
// bounds marker growth; it defaults to 24h, comfortably larger than any
// reasonable retry window.
func NewRedisFingerprintStore(client RedisEvaler, markerTTL time.Duration) *RedisFingerprintStore {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisFingerprintStore{client: client, markerTTL: markerTTL}
}

// upsertScript returns 1 if the fingerprint hash was written, 0 if the
// marker already existed (duplicate upsert).
const upsertScript = `
local markerKey = KEYS[1]
local hashKey = KEYS[2]
local payload = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('SET', hashKey, payload)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func fingerprintMarkerKey(upsertID string) string { return fmt.Sprintf("fpguard:marker:%s", upsertID) }
func fingerprintHashKey(upsertID string) string   { return fmt.Sprintf("fpguard:fp:%s", upsertID) }

// UpsertBatch implements FingerprintPersister.
func (s *RedisFingerprintStore) UpsertBatch(ctx context.Context, records []FingerprintRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.UpsertID == "" {
			return errors.New("persistence: FingerprintRecord.UpsertID must be set")
		}
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("persistence: marshal fingerprint %s: %w", r.UpsertID, err)
		}
		keys := []string{fingerprintMarkerKey(r.UpsertID), fingerprintHashKey(r.UpsertID)}
		if err := s.client.Eval(ctx, upsertScript, keys, string(payload), int(s.markerTTL.Seconds())).Err(); err != nil {
			return fmt.Errorf("persistence: redis eval upsert=%s: %w", r.UpsertID, err)
		}
	}
	return nil
}
