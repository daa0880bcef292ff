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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS fingerprints (
//   upsert_id TEXT PRIMARY KEY,
//   host TEXT NOT NULL,
//   label TEXT NOT NULL,
//   method TEXT NOT NULL,
//   user_agent TEXT NOT NULL,
//   language TEXT NOT NULL,
//   constant_header_fields TEXT NOT NULL,
//   hosts JSONB NOT NULL,
//   avg_size DOUBLE PRECISION NOT NULL,
//   outgoing_info BIGINT NOT NULL,
//   trained_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_fingerprints_host ON fingerprints(host);

// PostgresFingerprintStore durably stores trained fingerprints, one row per
// (host, label, method, user-agent) tuple, idempotent on upsert_id via the
// teacher's ON CONFLICT DO NOTHING, transaction-per-batch pattern.
type PostgresFingerprintStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresFingerprintStore returns a store backed by db.
func NewPostgresFingerprintStore(db *sql.DB) *PostgresFingerprintStore {
	return &PostgresFingerprintStore{db: db, defaultTimeout: 10 * time.Second}
}

// UpsertBatch implements FingerprintPersister.
func (p *PostgresFingerprintStore) UpsertBatch(ctx context.Context, records []FingerprintRecord) error {
	if len(records) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if r.UpsertID == "" {
			return errors.New("persistence: FingerprintRecord.UpsertID must be set")
		}
		hostsJSON, err := json.Marshal(r.Hosts)
		if err != nil {
			return fmt.Errorf("persistence: marshal hosts for %s: %w", r.UpsertID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprints(upsert_id, host, label, method, user_agent, language, constant_header_fields, hosts, avg_size, outgoing_info)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (upsert_id) DO NOTHING`,
			r.UpsertID, r.Host, r.Label.String(), r.Method, r.UserAgent, r.Language,
			strings.Join(r.ConstantHeaderFields, ","), hostsJSON, r.AvgSize, r.OutgoingInfo,
		); err != nil {
			return fmt.Errorf("persistence: insert fingerprints(%s): %w", r.UpsertID, err)
		}
	}

	return tx.Commit()
}
