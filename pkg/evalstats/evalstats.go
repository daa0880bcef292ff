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

// Package evalstats tallies precision/recall for a run's raised alerts
// against the is_malicious ground truth carried on Request records, the Go
// analogue of evaluation_utils.py. It is never consulted by the Detector;
// it exists purely for cmd/fpguard-agent -evaluate to report how a run did
// against a labelled log.
package evalstats

// Tally accumulates a confusion matrix over one run.
type Tally struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	TrueNegatives  int
}

// Record folds one (raised, malicious) outcome into the tally.
func (t *Tally) Record(alerted, malicious bool) {
	switch {
	case alerted && malicious:
		t.TruePositives++
	case alerted && !malicious:
		t.FalsePositives++
	case !alerted && malicious:
		t.FalseNegatives++
	default:
		t.TrueNegatives++
	}
}

// Precision is TP / (TP + FP), or 0 when no alert was ever raised.
func (t *Tally) Precision() float64 {
	denom := t.TruePositives + t.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(t.TruePositives) / float64(denom)
}

// Recall is TP / (TP + FN), or 0 when no malicious record existed.
func (t *Tally) Recall() float64 {
	denom := t.TruePositives + t.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(t.TruePositives) / float64(denom)
}

// F1 is the harmonic mean of Precision and Recall, or 0 when both are 0.
func (t *Tally) F1() float64 {
	p, r := t.Precision(), t.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
