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

package fingerprint

import "sync"

// hostEntry is a wrapper around one host's trained fingerprints, holding the
// mutex that guards insertion order separately from the sync.Map that
// indexes hosts themselves.
type hostEntry struct {
	mu           sync.Mutex
	fingerprints []*Fingerprint
}

// Store is the per-host mapping from host IP to an ordered collection of
// trained Fingerprints (spec §3). It is populated during training and read
// during testing; the Detector's update-recognition path is the only
// testing-time writer, and it mutates a *Fingerprint already returned by
// the Store rather than going through Insert again.
type Store struct {
	hosts sync.Map // string -> *hostEntry
}

// NewStore returns an empty fingerprint store.
func NewStore() *Store {
	return &Store{}
}

// Insert appends fp to host's ordered collection, creating the host's entry
// on first use.
func (s *Store) Insert(host string, fp *Fingerprint) {
	entry := s.entryFor(host)
	entry.mu.Lock()
	entry.fingerprints = append(entry.fingerprints, fp)
	entry.mu.Unlock()
}

func (s *Store) entryFor(host string) *hostEntry {
	if actual, ok := s.hosts.Load(host); ok {
		return actual.(*hostEntry)
	}
	newEntry := &hostEntry{}
	actual, _ := s.hosts.LoadOrStore(host, newEntry)
	return actual.(*hostEntry)
}

// For returns the live slice of trained fingerprints for host, or nil if
// the host has never been trained. The slice is returned directly (not
// copied) so the Detector's in-place update-recognition rewrite is visible
// to subsequent calls, matching spec §4.5's "mutate the matching trained
// fingerprint in place".
func (s *Store) For(host string) []*Fingerprint {
	actual, ok := s.hosts.Load(host)
	if !ok {
		return nil
	}
	entry := actual.(*hostEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.fingerprints
}

// ForEach iterates every host's trained collection. The callback must not
// retain the slice beyond the call if concurrent inserts are possible.
func (s *Store) ForEach(f func(host string, fingerprints []*Fingerprint)) {
	s.hosts.Range(func(key, value interface{}) bool {
		entry := value.(*hostEntry)
		entry.mu.Lock()
		snapshot := append([]*Fingerprint(nil), entry.fingerprints...)
		entry.mu.Unlock()
		f(key.(string), snapshot)
		return true
	})
}
