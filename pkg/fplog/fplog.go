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

// Package fplog reads the request log format cmd/fpguard-agent trains and
// tests against: one JSON object per line, append-only, matching the
// teacher's JSONL sink idiom (internal/sinks) applied to request records
// instead of S-batches. The header field carries the raw
// "name||value,name||value" encoding from spec §6 and is lower-cased and
// un-escaped through httprecord.ParseHeaders on read.
package fplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"fpguard/pkg/httprecord"
)

// line is the on-disk JSON shape of one logged request.
type line struct {
	UID         string `json:"uid"`
	TSUnixNano  int64  `json:"ts_unix_nano"`
	OrigIP      string `json:"orig_ip"`
	DestIP      string `json:"dest_ip"`
	DestPort    int    `json:"dest_port"`
	Method      string `json:"method"`
	URI         string `json:"uri"`
	Version     string `json:"version"`
	Headers     string `json:"headers"`
	BodyLen     int    `json:"request_body_len"`
	IsMalicious bool   `json:"is_malicious"`
}

// Append writes one Record as a JSON line to w.
func Append(w io.Writer, r *httprecord.Record) error {
	rawHeaders := rawHeaderString(r.Headers)
	l := line{
		UID:         r.UID,
		TSUnixNano:  r.TS.UnixNano(),
		OrigIP:      r.OrigIP,
		DestIP:      r.DestIP,
		DestPort:    r.DestPort,
		Method:      r.Method.String(),
		URI:         r.URI,
		Version:     r.Version,
		Headers:     rawHeaders,
		BodyLen:     r.BodyLen,
		IsMalicious: r.IsMalicious,
	}
	enc := json.NewEncoder(w)
	return enc.Encode(&l)
}

func rawHeaderString(headers map[string]string) string {
	if len(headers) == 0 {
		return "-"
	}
	s := ""
	for name, value := range headers {
		if s != "" {
			s += ","
		}
		s += name + "||" + escapeCommas(value)
	}
	return s
}

func escapeCommas(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, []byte(`\x2c`)...)
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// ReadAll reads every request record from path, in file order, tolerating
// malformed lines by skipping them (the log-file reader is an external
// collaborator per spec §1; a reimplementation is free to be permissive at
// this boundary since the Aggregator itself already drops data errors).
func ReadAll(path string) ([]*httprecord.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*httprecord.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)
	for scanner.Scan() {
		var l line
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			continue
		}
		out = append(out, toRecord(l))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fplog: reading %s: %w", path, err)
	}
	return out, nil
}

func toRecord(l line) *httprecord.Record {
	// A missing ts_unix_nano leaves TS as the zero time, so the aggregator
	// drops the record as a data error instead of clustering it at the epoch.
	var ts time.Time
	if l.TSUnixNano != 0 {
		ts = time.Unix(0, l.TSUnixNano)
	}
	return &httprecord.Record{
		UID:         l.UID,
		TS:          ts,
		OrigIP:      l.OrigIP,
		DestIP:      l.DestIP,
		DestPort:    l.DestPort,
		Method:      httprecord.ParseMethod(l.Method),
		URI:         l.URI,
		Version:     l.Version,
		Headers:     httprecord.ParseHeaders(l.Headers),
		BodyLen:     l.BodyLen,
		IsMalicious: l.IsMalicious,
	}
}
