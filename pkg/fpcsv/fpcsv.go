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

// Package fpcsv round-trips Fingerprints to the stable CSV column layout
// named by spec §6: host, label, method, user-agent, language,
// constant-header-fields, hosts, avg_size, outgoing_info. It is the Go
// analogue of the "external CSV collaborator" spec.md deliberately scopes
// out of the detection core.
package fpcsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"fpguard/pkg/fingerprint"
	"fpguard/pkg/httprecord"
)

var header = []string{"host", "label", "method", "user_agent", "language", "constant_header_fields", "hosts", "avg_size", "outgoing_info"}

// Entry pairs a trained Fingerprint with the host it was trained under, the
// unit of one CSV row.
type Entry struct {
	Host string
	FP   *fingerprint.Fingerprint
}

// Write serialises entries as CSV rows to w, one fingerprint per row.
func Write(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(encodeRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeRow(e Entry) []string {
	fp := e.FP
	return []string{
		e.Host,
		fp.Label.String(),
		fp.Method.String(),
		fp.UserAgent[0],
		fp.Language,
		strings.Join(fp.SortedConstantHeaderFields(), ";"),
		encodeHosts(fp.Hosts),
		strconv.FormatFloat(fp.AvgSize, 'f', -1, 64),
		strconv.Itoa(fp.OutgoingInfo),
	}
}

func encodeHosts(hosts []fingerprint.HostCount) string {
	parts := make([]string, len(hosts))
	for i, hc := range hosts {
		parts[i] = fmt.Sprintf("%s:%d", hc.Host, hc.Count)
	}
	return strings.Join(parts, ";")
}

// Read parses CSV rows produced by Write.
func Read(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entries := make([]Entry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		e, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeRow(row []string) (Entry, error) {
	if len(row) != len(header) {
		return Entry{}, fmt.Errorf("fpcsv: row has %d columns, want %d", len(row), len(header))
	}
	label, err := parseLabel(row[1])
	if err != nil {
		return Entry{}, err
	}
	avgSize, err := strconv.ParseFloat(row[7], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("fpcsv: avg_size: %w", err)
	}
	outgoing, err := strconv.Atoi(row[8])
	if err != nil {
		return Entry{}, fmt.Errorf("fpcsv: outgoing_info: %w", err)
	}

	fp := &fingerprint.Fingerprint{
		Label:                label,
		Method:               httprecord.ParseMethod(row[2]),
		Language:             row[4],
		ConstantHeaderFields: decodeConstantHeaderFields(row[5]),
		Hosts:                decodeHosts(row[6]),
		AvgSize:              avgSize,
		OutgoingInfo:         outgoing,
	}
	fp.UserAgent[0] = row[3]
	return Entry{Host: row[0], FP: fp}, nil
}

func parseLabel(s string) (fingerprint.Label, error) {
	switch s {
	case "Background":
		return fingerprint.LabelBackground, nil
	case "Browser":
		return fingerprint.LabelBrowser, nil
	default:
		return 0, fmt.Errorf("fpcsv: unknown label %q", s)
	}
}

func decodeConstantHeaderFields(s string) map[string]struct{} {
	out := map[string]struct{}{}
	if s == "" {
		return out
	}
	for _, name := range strings.Split(s, ";") {
		out[name] = struct{}{}
	}
	return out
}

func decodeHosts(s string) []fingerprint.HostCount {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]fingerprint.HostCount, 0, len(parts))
	for _, p := range parts {
		idx := strings.LastIndexByte(p, ':')
		if idx < 0 {
			continue
		}
		count, err := strconv.Atoi(p[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, fingerprint.HostCount{Host: p[:idx], Count: count})
	}
	return out
}

// LoadTrainingDir loads every "*training*" CSV in dir, in lexicographic
// filename order, matching the offline detector's file-naming convention
// (spec §6).
func LoadTrainingDir(dir string) ([]Entry, error) {
	return loadMatching(dir, "training")
}

// LoadTestingDir loads every "*testing*" CSV in dir, in lexicographic
// filename order.
func LoadTestingDir(dir string) ([]Entry, error) {
	return loadMatching(dir, "testing")
}

func loadMatching(dir, substr string) ([]Entry, error) {
	names, err := matchingFilenames(dir, substr)
	if err != nil {
		return nil, err
	}
	var all []Entry
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		entries, err := Read(f)
		closeErr := f.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		all = append(all, entries...)
	}
	return all, nil
}

func matchingFilenames(dir, substr string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if strings.Contains(de.Name(), substr) {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
