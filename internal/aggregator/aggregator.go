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

// Package aggregator implements the windowed streaming grouper that
// partitions requests by (host, user-agent), drives fingerprint creation
// during training, and drives detection during testing.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"fpguard/internal/detector"
	"fpguard/internal/graph"
	"fpguard/internal/labelgen"
	"fpguard/internal/telemetry"
	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fpmode"
	"fpguard/pkg/httprecord"
)

// noneUserAgent is the distinguished bucket for requests without a
// user-agent header, per spec §4.1.
const noneUserAgent = "None"

// RecordStream is a pull-only, bounded iterator over chronologically
// ordered records, matching spec §9's "the core treats its input as a
// pull-only, bounded iterator". Next returns (nil, false) at end of stream.
type RecordStream interface {
	Next() (*httprecord.Record, bool)
}

// SliceStream adapts an in-memory, already-chronological slice to
// RecordStream, used by tests and by the cmd/fpguard-agent and
// cmd/fpguard-sim front ends.
type SliceStream struct {
	records []*httprecord.Record
	pos     int
}

// NewSliceStream wraps records as a RecordStream.
func NewSliceStream(records []*httprecord.Record) *SliceStream {
	return &SliceStream{records: records}
}

func (s *SliceStream) Next() (*httprecord.Record, bool) {
	if s.pos >= len(s.records) {
		return nil, false
	}
	r := s.records[s.pos]
	s.pos++
	return r, true
}

// Alert is one detector-positive decision raised during testing.
type Alert struct {
	Host        string
	Fingerprint *fingerprint.Fingerprint
}

// Params bundles the aggregator's tunables; zero fields fall back to spec
// defaults.
type Params struct {
	Window   time.Duration
	Label    labelgen.Params
	Detector detector.Params
}

var DefaultParams = Params{Window: 10 * time.Minute}

func (p Params) withDefaults() Params {
	if p.Window <= 0 {
		p.Window = DefaultParams.Window
	}
	return p
}

type bucketKey struct {
	host string
	ua   string
}

// canonicalSubClusterOrder fixes the iteration order over a drain's emitted
// sub-clusters so that fingerprint and alert emission order is deterministic
// given the same input, per spec §8 property 1 — map iteration order alone
// would not guarantee this.
var canonicalSubClusterOrder = []labelgen.SubClusterKey{
	{Method: httprecord.MethodGET, Label: fingerprint.LabelBrowser},
	{Method: httprecord.MethodGET, Label: fingerprint.LabelBackground},
	{Method: httprecord.MethodPOST, Label: fingerprint.LabelBrowser},
	{Method: httprecord.MethodPOST, Label: fingerprint.LabelBackground},
}

// Aggregator owns the fingerprint store, the known-browser-user-agent set
// and the per-user-agent retained graph map for the lifetime of one run,
// per spec §5 ("owned exclusively by the Aggregator; no locking is
// required" — Analyse is not safe for concurrent callers).
type Aggregator struct {
	params Params
	store  *fingerprint.Store
	det    *detector.Detector

	knownBrowserUA map[string]struct{}
	prevGraphs     map[string]*graph.Graph
}

// New constructs an Aggregator writing into (and, in testing mode, reading
// from) store.
func New(store *fingerprint.Store, params Params) *Aggregator {
	return &Aggregator{
		params:         params.withDefaults(),
		store:          store,
		det:            detector.New(params.Detector),
		knownBrowserUA: make(map[string]struct{}),
		prevGraphs:     make(map[string]*graph.Graph),
	}
}

// Store exposes the aggregator's fingerprint store, e.g. so a testing-mode
// run can reuse the store populated by a prior training-mode run.
func (a *Aggregator) Store() *fingerprint.Store { return a.store }

// Analyse implements spec §4.1's single operation. In training mode it
// returns no alerts; in testing mode it returns every alert raised, in
// drain order.
func (a *Aggregator) Analyse(stream RecordStream, mode fpmode.Mode) ([]Alert, error) {
	if mode != fpmode.Training && mode != fpmode.Testing {
		return nil, fpmode.ErrInvalidMode
	}

	buckets := make(map[bucketKey][]*httprecord.Record)
	var alerts []Alert

	if mode == fpmode.Training {
		for {
			r, ok := stream.Next()
			if !ok {
				break
			}
			if !a.admit(r) {
				continue
			}
			a.insert(buckets, r)
		}
		drained, err := a.drain(buckets, mode)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, drained...)
		return alerts, nil
	}

	var windowStart time.Time
	for {
		r, ok := stream.Next()
		if !ok {
			break
		}
		if !a.admit(r) {
			continue
		}
		if windowStart.IsZero() {
			windowStart = r.TS
		} else if r.TS.Sub(windowStart) > a.params.Window {
			drained, err := a.drain(buckets, mode)
			if err != nil {
				return nil, err
			}
			alerts = append(alerts, drained...)
			buckets = make(map[bucketKey][]*httprecord.Record)
			windowStart = r.TS
		}
		a.insert(buckets, r)
	}
	drained, err := a.drain(buckets, mode)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, drained...)
	return alerts, nil
}

// admit implements spec §7's data-error policy: a record missing its
// method or timestamp is dropped and counted, never retried. Only GET/POST
// participate in clustering per spec §3.
func (a *Aggregator) admit(r *httprecord.Record) bool {
	if r.TS.IsZero() {
		telemetry.IncDataError("missing_timestamp")
		return false
	}
	if r.Method != httprecord.MethodGET && r.Method != httprecord.MethodPOST {
		telemetry.IncDataError("missing_method")
		return false
	}
	return true
}

func (a *Aggregator) insert(buckets map[bucketKey][]*httprecord.Record, r *httprecord.Record) {
	ua := r.UserAgent()
	if ua == "" {
		ua = noneUserAgent
	}
	key := bucketKey{host: r.OrigIP, ua: ua}
	buckets[key] = append(buckets[key], r)
}

// drain implements spec §4.1's per-window drain: every live bucket is
// labelled, converted to fingerprints, and either stored (training) or
// compared against the store (testing). Buckets are visited in sorted
// (host, user-agent) order so that output ordering is deterministic given
// the same input, per spec §8 property 1.
func (a *Aggregator) drain(buckets map[bucketKey][]*httprecord.Record, mode fpmode.Mode) ([]Alert, error) {
	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].host != keys[j].host {
			return keys[i].host < keys[j].host
		}
		return keys[i].ua < keys[j].ua
	})

	var alerts []Alert
	for _, key := range keys {
		cluster := buckets[key]
		telemetry.ObserveBucketSize(len(cluster))
		telemetry.IncWindowDrain()

		result := labelgen.Generate(cluster, mode, a.knownBrowserUA, a.prevGraphs[key.ua], a.params.Label)
		a.prevGraphs[key.ua] = result.Graph
		if n := result.Graph.Len(); n > 0 {
			ratio := float64(len(result.Graph.ConnectedIndices())) / float64(n)
			telemetry.ObserveGraphConnectedness(ratio)
		}

		for _, subKey := range canonicalSubClusterOrder {
			records, ok := result.SubClusters[subKey]
			if !ok {
				continue
			}
			fp, err := fingerprint.New(records, subKey.Label, subKey.Method)
			if err != nil {
				return nil, fmt.Errorf("aggregator: building fingerprint for host %s ua %s: %w", key.host, key.ua, err)
			}

			switch mode {
			case fpmode.Training:
				a.store.Insert(key.host, fp)
				telemetry.IncFingerprintTrained(fp.Label.String())
				if fp.Label == fingerprint.LabelBrowser {
					a.knownBrowserUA[key.ua] = struct{}{}
				}
			case fpmode.Testing:
				trained := a.store.For(key.host)
				alert, err := a.det.Detect(trained, fp)
				if err != nil {
					return nil, fmt.Errorf("aggregator: detecting for host %s ua %s: %w", key.host, key.ua, err)
				}
				if alert {
					telemetry.IncAlert()
					alerts = append(alerts, Alert{Host: key.host, Fingerprint: fp})
				}
			}
		}
	}
	return alerts, nil
}
