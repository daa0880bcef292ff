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

package evalstats

import "testing"

func TestTally_PrecisionRecallF1(t *testing.T) {
	var tally Tally
	tally.Record(true, true)
	tally.Record(true, true)
	tally.Record(true, false)
	tally.Record(false, true)
	tally.Record(false, false)

	if got := tally.Precision(); got != 2.0/3.0 {
		t.Errorf("Precision() = %v, want 2/3", got)
	}
	if got := tally.Recall(); got != 2.0/3.0 {
		t.Errorf("Recall() = %v, want 2/3", got)
	}
	if got := tally.F1(); got != 2.0/3.0 {
		t.Errorf("F1() = %v, want 2/3", got)
	}
}

func TestTally_EmptyIsZero(t *testing.T) {
	var tally Tally
	if tally.Precision() != 0 || tally.Recall() != 0 || tally.F1() != 0 {
		t.Fatalf("empty tally should report all zeros")
	}
}
