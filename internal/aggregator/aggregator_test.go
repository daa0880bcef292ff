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

package aggregator

import (
	"testing"
	"time"

	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fpmode"
	"fpguard/pkg/httprecord"
)

func curlRecord(ts time.Time) *httprecord.Record {
	return &httprecord.Record{
		TS:      ts,
		OrigIP:  "10.0.0.1",
		Method:  httprecord.MethodGET,
		URI:     "/x",
		Headers: map[string]string{"user-agent": "curl/7.68", "host": "a.example", "accept": "*/*"},
	}
}

// TestAnalyse_S1_PureTraining matches spec §8 scenario S1.
func TestAnalyse_S1_PureTraining(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var records []*httprecord.Record
	for i := 0; i < 5; i++ {
		records = append(records, curlRecord(base.Add(time.Duration(i)*time.Second)))
	}

	store := fingerprint.NewStore()
	agg := New(store, Params{})
	alerts, err := agg.Analyse(NewSliceStream(records), fpmode.Training)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("Analyse() in training mode returned alerts: %v", alerts)
	}

	trained := store.For("10.0.0.1")
	if len(trained) != 1 {
		t.Fatalf("store has %d fingerprints, want 1", len(trained))
	}
	fp := trained[0]
	if fp.Label != fingerprint.LabelBackground {
		t.Errorf("label = %v, want Background", fp.Label)
	}
	if fp.Method != httprecord.MethodGET {
		t.Errorf("method = %v, want GET", fp.Method)
	}
	if fp.UserAgent[0] != "curl/7.68" {
		t.Errorf("user agent = %q, want curl/7.68", fp.UserAgent[0])
	}
	if len(fp.Hosts) != 1 || fp.Hosts[0].Host != "a.example" || fp.Hosts[0].Count != 5 {
		t.Errorf("hosts = %v, want [(a.example, 5)]", fp.Hosts)
	}
	if fp.OutgoingInfo != 0 {
		t.Errorf("outgoing_info = %d, want 0", fp.OutgoingInfo)
	}
}

// TestAnalyse_S5_WindowedTesting feeds spec §8 scenario S5's input: a
// 25-minute stream with one bucket active throughout a 10-minute tumbling
// window, which Analyse drains 3 times (at minutes 11 and 22, and the
// end-of-stream tail). The drain count itself is not asserted.
func TestAnalyse_S5_WindowedTesting(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var records []*httprecord.Record
	for i := 0; i < 25; i++ {
		records = append(records, curlRecord(base.Add(time.Duration(i)*time.Minute)))
	}

	store := fingerprint.NewStore()
	agg := New(store, Params{})
	_, err := agg.Analyse(NewSliceStream(records), fpmode.Testing)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	// Drains aren't directly observable from the public API beyond their
	// side effects (alerts, store); with an empty store and a non-browser
	// user-agent no drain raises an alert, so this only checks that the
	// windowed pass over all 25 records completes without error.
}

func TestAnalyse_InvalidMode(t *testing.T) {
	store := fingerprint.NewStore()
	agg := New(store, Params{})
	_, err := agg.Analyse(NewSliceStream(nil), fpmode.Mode(99))
	if err != fpmode.ErrInvalidMode {
		t.Fatalf("Analyse() error = %v, want ErrInvalidMode", err)
	}
}

func TestAnalyse_DropsRecordsMissingTimestampOrMethod(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	bad1 := curlRecord(base)
	bad1.TS = time.Time{}
	bad2 := curlRecord(base.Add(time.Second))
	bad2.Method = httprecord.MethodOther
	good := curlRecord(base.Add(2 * time.Second))

	store := fingerprint.NewStore()
	agg := New(store, Params{})
	_, err := agg.Analyse(NewSliceStream([]*httprecord.Record{bad1, bad2, good}), fpmode.Training)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
	trained := store.For("10.0.0.1")
	if len(trained) != 1 || trained[0].Hosts[0].Count != 1 {
		t.Fatalf("expected only the well-formed record to be clustered, got %v", trained)
	}
}
