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

// Package detector implements the fingerprint-vs-set comparison, update
// recognition, and alert decision from spec §4.5. It holds no state of its
// own: every call takes the trained set for a host and a freshly minted
// Fingerprint to evaluate against it.
package detector

import (
	"errors"
	"strings"

	"fpguard/internal/textdist"
	"fpguard/pkg/fingerprint"
)

// Params bundles the detector's tunables; zero fields fall back to spec
// defaults from §6's tunable table.
type Params struct {
	BackgroundThreshold float64
	BrowserThreshold    float64
	OutgoingThreshold   int
	UpdateThreshold     float64
	AvgSizeMargin       float64
}

var DefaultParams = Params{
	BackgroundThreshold: 2.5,
	BrowserThreshold:    2.0,
	OutgoingThreshold:   1000,
	UpdateThreshold:     0.10,
	AvgSizeMargin:       0.30,
}

func (p Params) withDefaults() Params {
	d := DefaultParams
	if p.BackgroundThreshold <= 0 {
		p.BackgroundThreshold = d.BackgroundThreshold
	}
	if p.BrowserThreshold <= 0 {
		p.BrowserThreshold = d.BrowserThreshold
	}
	if p.OutgoingThreshold <= 0 {
		p.OutgoingThreshold = d.OutgoingThreshold
	}
	if p.UpdateThreshold <= 0 {
		p.UpdateThreshold = d.UpdateThreshold
	}
	if p.AvgSizeMargin <= 0 {
		p.AvgSizeMargin = d.AvgSizeMargin
	}
	return p
}

// ErrInvalidLabel is the domain error raised when update recognition's
// non-UA similarity check is asked to evaluate a label outside
// {Background, Browser}. Per spec §7 this signals a bug, not a data issue,
// and is never recovered.
var ErrInvalidLabel = errors.New("detector: invalid fingerprint label for update check")

// Detector evaluates new fingerprints against a host's trained set.
type Detector struct {
	params Params
}

// New returns a Detector configured with params (zero fields take spec
// defaults).
func New(params Params) *Detector {
	return &Detector{params: params.withDefaults()}
}

// Detect implements spec §4.5's decision procedure. trained is the host's
// live trained set — the slice backing fingerprint.Store.For — since a
// positive update recognition mutates one of its elements in place.
// The error return is non-nil only for the ErrInvalidLabel contract
// violation inside update recognition, per spec §7.
func (d *Detector) Detect(trained []*fingerprint.Fingerprint, newFP *fingerprint.Fingerprint) (bool, error) {
	for _, t := range trained {
		if d.Similar(newFP, t) {
			return false, nil
		}
	}

	if newFP.OutgoingInfo > d.params.OutgoingThreshold {
		isUpdate, err := d.IsUpdate(newFP, trained)
		if err != nil {
			return false, err
		}
		if isUpdate {
			return false, nil
		}
		return true, nil
	}

	return FakeBrowser(newFP.UserAgent[0]), nil
}

// Similar implements spec §4.5's similarity score. Two fingerprints with
// different labels are never similar.
func (d *Detector) Similar(a, b *fingerprint.Fingerprint) bool {
	if a.Label != b.Label {
		return false
	}
	switch a.Label {
	case fingerprint.LabelBackground:
		score := d.hostCheck(a, b) + d.avgSizeCheck(a, b) + d.headerCheck(a, b) + d.uaCheck(a, b)
		return score >= d.params.BackgroundThreshold
	case fingerprint.LabelBrowser:
		score := d.uaCheck(a, b) + d.languageCheck(a, b)
		return score >= d.params.BrowserThreshold
	default:
		return false
	}
}

func (d *Detector) hostCheck(newFP, old *fingerprint.Fingerprint) float64 {
	oldHosts := make(map[string]struct{}, len(old.Hosts))
	for _, hc := range old.Hosts {
		oldHosts[hc.Host] = struct{}{}
	}
	for _, hc := range newFP.Hosts {
		if _, ok := oldHosts[hc.Host]; !ok {
			return 0.0
		}
	}
	return 1.0
}

func (d *Detector) avgSizeCheck(newFP, old *fingerprint.Fingerprint) float64 {
	e := d.params.AvgSizeMargin * old.AvgSize
	diff := newFP.AvgSize - old.AvgSize
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= e:
		return 1.0
	case diff <= 2*e:
		return 0.5
	default:
		return 0.0
	}
}

func (d *Detector) headerCheck(newFP, old *fingerprint.Fingerprint) float64 {
	m := 0
	for name := range newFP.ConstantHeaderFields {
		if _, ok := old.ConstantHeaderFields[name]; ok {
			m++
		}
	}
	oldLen, newLen := len(old.ConstantHeaderFields), len(newFP.ConstantHeaderFields)
	switch {
	case m == oldLen && oldLen == newLen:
		return 1.0
	case m == oldLen && oldLen < newLen:
		return 0.5
	default:
		return 0.0
	}
}

func (d *Detector) uaCheck(a, b *fingerprint.Fingerprint) float64 {
	if a.UserAgent[0] == b.UserAgent[0] {
		return 1.0
	}
	return 0.0
}

func (d *Detector) languageCheck(a, b *fingerprint.Fingerprint) float64 {
	if a.Language == b.Language {
		return 1.0
	}
	return 0.0
}

// IsUpdate implements spec §4.5's update recognition. On a positive match
// it rewrites the trained fingerprint's user-agent in place, matching
// spec's "mutate the matching trained fingerprint" contract.
func (d *Detector) IsUpdate(newFP *fingerprint.Fingerprint, trained []*fingerprint.Fingerprint) (bool, error) {
	for _, t := range trained {
		if t.Method != newFP.Method {
			continue
		}
		dist := textdist.Normalized(newFP.UserAgent[0], t.UserAgent[0])
		if dist > d.params.UpdateThreshold {
			continue
		}
		similar, err := d.nonUASimilar(newFP, t)
		if err != nil {
			return false, err
		}
		if similar {
			t.UserAgent[0] = newFP.UserAgent[0]
			return true, nil
		}
	}
	return false, nil
}

// nonUASimilar re-scores a candidate update excluding the UA check itself,
// per spec §4.5: "re-compute header+avg_size+host checks, add 1.0 base" for
// Background, "language check plus 1.0 base" for Browser. A label outside
// {Background, Browser} is a contract violation, not tolerated data.
func (d *Detector) nonUASimilar(newFP, t *fingerprint.Fingerprint) (bool, error) {
	switch newFP.Label {
	case fingerprint.LabelBackground:
		score := 1.0 + d.hostCheck(newFP, t) + d.avgSizeCheck(newFP, t) + d.headerCheck(newFP, t)
		return score >= d.params.BackgroundThreshold, nil
	case fingerprint.LabelBrowser:
		score := 1.0 + d.languageCheck(newFP, t)
		return score >= d.params.BrowserThreshold, nil
	default:
		return false, ErrInvalidLabel
	}
}

// fakeBrowserMarkers are the user-agent substrings spec §4.5 treats as
// browser impersonation.
var fakeBrowserMarkers = []string{"Firefox", "Chrome", "MSIE", "Edge", "Opera", "Safari"}

// FakeBrowser reports whether ua contains any known-browser substring.
func FakeBrowser(ua string) bool {
	for _, marker := range fakeBrowserMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
