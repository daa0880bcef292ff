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

// Package persistence provides optional, idempotent backends for sharing
// trained fingerprints across detector processes and for publishing raised
// alerts downstream. None of it sits on the hot path described in spec §5
// ("the detection core itself is pure, no I/O"): a fingerprint.Store always
// remains the in-process source of truth, and these adapters only mirror it.
package persistence

import (
	"context"

	"fpguard/pkg/fingerprint"
)

// FingerprintRecord is the adapter-facing, flattened shape of one trained
// Fingerprint, keyed by the host it was trained under.
type FingerprintRecord struct {
	Host                 string
	Label                fingerprint.Label
	Method               string
	UserAgent            string
	Language             string
	ConstantHeaderFields []string
	Hosts                []fingerprint.HostCount
	AvgSize              float64
	OutgoingInfo         int

	// UpsertID is the idempotency key for this write: the same
	// (host, label, method, user-agent) tuple retried after a crash or
	// timeout must not double-apply, mirroring the teacher's CommitID
	// convention.
	UpsertID string
}

// NewFingerprintRecord flattens fp for persistence under host.
func NewFingerprintRecord(host string, fp *fingerprint.Fingerprint) FingerprintRecord {
	return FingerprintRecord{
		Host:                 host,
		Label:                fp.Label,
		Method:               fp.Method.String(),
		UserAgent:            fp.UserAgent[0],
		Language:             fp.Language,
		ConstantHeaderFields: fp.SortedConstantHeaderFields(),
		Hosts:                fp.Hosts,
		AvgSize:              fp.AvgSize,
		OutgoingInfo:         fp.OutgoingInfo,
		UpsertID:             host + "|" + fp.Label.String() + "|" + fp.Method.String() + "|" + fp.UserAgent[0],
	}
}

// FingerprintPersister mirrors newly trained fingerprints to a shared
// backend. Implementations must make UpsertBatch safe to retry: a record
// whose UpsertID was already applied is a no-op, not an error.
type FingerprintPersister interface {
	UpsertBatch(ctx context.Context, records []FingerprintRecord) error
}

// AlertRecord is the adapter-facing shape of one raised alert.
type AlertRecord struct {
	Host      string
	Label     string
	Method    string
	UserAgent string
	Outgoing  int
}

// AlertSink publishes raised alerts to an external consumer (e.g. a SIEM),
// decoupled from the synchronous detection path.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert AlertRecord) error
}
