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

package fplog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fpguard/pkg/httprecord"
)

func TestAppendReadAllRoundTrip(t *testing.T) {
	r := &httprecord.Record{
		UID:      "req-1",
		TS:       time.Unix(1_700_000_000, 0),
		OrigIP:   "10.0.0.1",
		DestIP:   "93.184.216.34",
		DestPort: 443,
		Method:   httprecord.MethodGET,
		URI:      "/x?q=1",
		Version:  "HTTP/1.1",
		Headers:  map[string]string{"user-agent": "curl/7.68", "accept": "a,b"},
		BodyLen:  0,
	}

	var buf bytes.Buffer
	if err := Append(&buf, r); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "training.log")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadAll() returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.OrigIP != r.OrigIP || got.Method != r.Method || got.URI != r.URI {
		t.Errorf("round trip mismatch: got %+v, want orig %+v", got, r)
	}
	if got.UserAgent() != "curl/7.68" {
		t.Errorf("UserAgent() = %q, want curl/7.68", got.UserAgent())
	}
	if a, _ := got.Header("accept"); a != "a,b" {
		t.Errorf("accept header = %q, want %q (comma must round-trip through the escape)", a, "a,b")
	}
}

func TestReadAll_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testing.log")
	content := "not json\n{\"uid\":\"ok\",\"orig_ip\":\"1.2.3.4\",\"method\":\"GET\",\"headers\":\"-\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 1 || records[0].UID != "ok" {
		t.Fatalf("ReadAll() = %+v, want exactly the one well-formed line", records)
	}
}
