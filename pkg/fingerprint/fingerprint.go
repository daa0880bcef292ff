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

// Package fingerprint defines the immutable summary of one labelled
// sub-cluster and the per-host store that holds trained fingerprints. The
// similarity metric used to compare two fingerprints lives in
// internal/detector.
package fingerprint

import (
	"errors"
	"sort"

	"fpguard/pkg/httprecord"
)

// Label is the three-valued tag a cluster is classified into. Encoded as a
// closed tagged union rather than an interface hierarchy: there is no
// dynamic dispatch anywhere in the detection core (see DESIGN.md).
type Label int

const (
	LabelBackground Label = iota
	LabelBrowser
	// LabelSuspectedBrowser is an intermediate tag used only inside the label
	// generator's resolution step; it never survives into a stored
	// Fingerprint (see internal/labelgen).
	LabelSuspectedBrowser
)

func (l Label) String() string {
	switch l {
	case LabelBackground:
		return "Background"
	case LabelBrowser:
		return "Browser"
	case LabelSuspectedBrowser:
		return "Suspected Browser"
	default:
		return "Unknown"
	}
}

// HostCount is one entry of a Fingerprint's ordered hosts list.
type HostCount struct {
	Host  string
	Count int
}

// Fingerprint is the immutable summary of one non-empty labelled
// sub-cluster. Two Fingerprints are never mutated in place except by the
// Detector's update-recognition path, which is the one sanctioned exception
// (spec §4.5): it rewrites UserAgent on a trained Fingerprint it owns.
type Fingerprint struct {
	Label  Label
	Method httprecord.Method

	// UserAgent is stored as a one-element array so that the update path can
	// rewrite it as a single addressable field without reallocating the
	// whole Fingerprint.
	UserAgent [1]string

	Language string

	// ConstantHeaderFields is the set of header names present with an
	// identical value across every request in the sub-cluster. user-agent,
	// accept-language and host are excluded: they are first-class fields.
	ConstantHeaderFields map[string]struct{}

	// Hosts preserves first-occurrence insertion order.
	Hosts []HostCount

	AvgSize      float64
	OutgoingInfo int
}

// ErrEmptySubCluster signals an attempt to build a Fingerprint from zero
// requests. The empty fingerprint is represented by absence (a nil
// *Fingerprint), never by a zero-length value, per spec §3's invariant.
var ErrEmptySubCluster = errors.New("fingerprint: sub-cluster must be non-empty")

// New builds the immutable summary of a non-empty, method-uniform
// sub-cluster. The caller guarantees every record shares the same Method;
// New does not re-validate that invariant on the hot path, mirroring the
// label generator's contract that it only ever emits uniform sub-clusters.
func New(records []*httprecord.Record, label Label, method httprecord.Method) (*Fingerprint, error) {
	if len(records) == 0 {
		return nil, ErrEmptySubCluster
	}

	fp := &Fingerprint{
		Label:                label,
		Method:               method,
		Language:             mostPrevalentLanguage(records),
		ConstantHeaderFields: constantHeaderFields(records),
	}
	fp.UserAgent[0] = records[0].UserAgent()
	fp.Hosts = orderedHostCounts(records)

	var sizeSum, outgoing int
	for _, r := range records {
		sizeSum += r.TotalSize()
		switch method {
		case httprecord.MethodGET:
			outgoing += r.QueryLen()
		case httprecord.MethodPOST:
			outgoing += r.BodyLen
		}
	}
	fp.AvgSize = float64(sizeSum) / float64(len(records))
	fp.OutgoingInfo = outgoing
	return fp, nil
}

func mostPrevalentLanguage(records []*httprecord.Record) string {
	counts := make(map[string]int, 4)
	for _, r := range records {
		lang, _ := r.Header("accept-language")
		counts[lang]++
	}
	best, bestCount := "", -1
	// Iterate in first-seen order so ties resolve deterministically to the
	// earliest-seen value, matching the ordered-hosts determinism elsewhere.
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		lang, _ := r.Header("accept-language")
		if seen[lang] {
			continue
		}
		seen[lang] = true
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}

func orderedHostCounts(records []*httprecord.Record) []HostCount {
	order := make([]string, 0, 4)
	counts := make(map[string]int, 4)
	for _, r := range records {
		h := r.Host()
		if _, ok := counts[h]; !ok {
			order = append(order, h)
		}
		counts[h]++
	}
	out := make([]HostCount, 0, len(order))
	for _, h := range order {
		out = append(out, HostCount{Host: h, Count: counts[h]})
	}
	return out
}

// excludedFromConstantSet are the header names that are first-class fields
// elsewhere on the Fingerprint and are therefore never part of the
// comparable constant-header footprint.
var excludedFromConstantSet = map[string]struct{}{
	"user-agent":      {},
	"accept-language": {},
	"host":            {},
}

func constantHeaderFields(records []*httprecord.Record) map[string]struct{} {
	first := records[0].Headers
	candidates := make(map[string]string, len(first))
	for name, value := range first {
		if _, excluded := excludedFromConstantSet[name]; excluded {
			continue
		}
		candidates[name] = value
	}
	for _, r := range records[1:] {
		for name, value := range candidates {
			rv, ok := r.Headers[name]
			if !ok || rv != value {
				delete(candidates, name)
			}
		}
		if len(candidates) == 0 {
			break
		}
	}
	out := make(map[string]struct{}, len(candidates))
	for name := range candidates {
		out[name] = struct{}{}
	}
	return out
}

// SortedConstantHeaderFields returns ConstantHeaderFields as a sorted slice,
// used by both the CSV serialisation and tests for deterministic output.
func (fp *Fingerprint) SortedConstantHeaderFields() []string {
	out := make([]string, 0, len(fp.ConstantHeaderFields))
	for name := range fp.ConstantHeaderFields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
