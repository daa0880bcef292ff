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

import "testing"

func TestStore_InsertAndFor(t *testing.T) {
	s := NewStore()
	if got := s.For("a.example"); got != nil {
		t.Fatalf("For() on empty store = %v, want nil", got)
	}

	fp1 := &Fingerprint{Label: LabelBackground}
	fp2 := &Fingerprint{Label: LabelBrowser}
	s.Insert("a.example", fp1)
	s.Insert("a.example", fp2)

	got := s.For("a.example")
	if len(got) != 2 || got[0] != fp1 || got[1] != fp2 {
		t.Fatalf("For() = %v, want [fp1, fp2] in insertion order", got)
	}
}

func TestStore_InPlaceMutationVisible(t *testing.T) {
	s := NewStore()
	fp := &Fingerprint{UserAgent: [1]string{"myapp/1.0.0"}}
	s.Insert("a.example", fp)

	got := s.For("a.example")
	got[0].UserAgent[0] = "myapp/1.0.1"

	again := s.For("a.example")
	if again[0].UserAgent[0] != "myapp/1.0.1" {
		t.Fatalf("UserAgent mutation not visible through Store: got %q", again[0].UserAgent[0])
	}
}

func TestStore_ForEach(t *testing.T) {
	s := NewStore()
	s.Insert("a.example", &Fingerprint{Label: LabelBackground})
	s.Insert("b.example", &Fingerprint{Label: LabelBrowser})

	seen := map[string]int{}
	s.ForEach(func(host string, fps []*Fingerprint) {
		seen[host] = len(fps)
	})
	if seen["a.example"] != 1 || seen["b.example"] != 1 {
		t.Fatalf("ForEach() saw %v, want one fingerprint per host", seen)
	}
}
