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

package lengthdetector

import (
	"testing"
	"time"

	"fpguard/pkg/httprecord"
)

func normalRecord(ts time.Time) *httprecord.Record {
	return &httprecord.Record{
		TS:      ts,
		Method:  httprecord.MethodGET,
		URI:     "/index.html?id=1",
		Headers: map[string]string{"accept": "text/html", "host": "a.example"},
	}
}

func TestExtract_NoPanicOnEmptyRequest(t *testing.T) {
	r := &httprecord.Record{TS: time.Unix(0, 0)}
	v := Extract(r)
	// The Unix epoch fell on a Thursday, so t4 (day-of-week) is 4; every
	// other feature of an empty request at the epoch is 0.
	var want Vector
	want[idxT4] = float64(time.Thursday)
	for i, f := range v {
		if f != want[i] {
			t.Errorf("feature[%d] = %v, want %v for an empty request", i, f, want[i])
		}
	}
}

func TestModel_IsNovel(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var samples []Vector
	for i := 0; i < 20; i++ {
		samples = append(samples, Extract(normalRecord(base.Add(time.Duration(i)*time.Minute))))
	}
	model := Fit(samples)

	normal := Extract(normalRecord(base.Add(21 * time.Minute)))
	if model.IsNovel(normal, 4) {
		t.Errorf("IsNovel() = true for an in-distribution request, want false")
	}

	outlier := &httprecord.Record{
		TS:      base.Add(22 * time.Minute),
		Method:  httprecord.MethodPOST,
		URI:     "/upload",
		BodyLen: 100_000,
		Headers: map[string]string{"accept": "*/*"},
	}
	if !model.IsNovel(Extract(outlier), 4) {
		t.Errorf("IsNovel() = false for a large outlier request, want true")
	}
}

func TestModel_UnfittedNeverNovel(t *testing.T) {
	model := Fit(nil)
	if model.IsNovel(Vector{}, 1) {
		t.Fatalf("an unfitted model must never report novelty")
	}
}
