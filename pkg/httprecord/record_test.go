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

package httprecord

import "testing"

func TestParseHeaders(t *testing.T) {
	t.Run("round trip with escaped comma", func(t *testing.T) {
		got := ParseHeaders(`a||1,b||2\x2c3`)
		want := map[string]string{"a": "1", "b": "2,3"}
		if len(got) != len(want) {
			t.Fatalf("ParseHeaders() = %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("ParseHeaders()[%q] = %q, want %q", k, got[k], v)
			}
		}
	})

	t.Run("dash means empty", func(t *testing.T) {
		got := ParseHeaders("-")
		if len(got) != 0 {
			t.Errorf("ParseHeaders(\"-\") = %v, want empty", got)
		}
	})

	t.Run("empty string means empty", func(t *testing.T) {
		got := ParseHeaders("")
		if len(got) != 0 {
			t.Errorf("ParseHeaders(\"\") = %v, want empty", got)
		}
	})

	t.Run("malformed entry is dropped, not fatal", func(t *testing.T) {
		got := ParseHeaders("a||1,garbage,b||2")
		if got["a"] != "1" || got["b"] != "2" {
			t.Fatalf("ParseHeaders() = %v, want a=1 b=2", got)
		}
		if _, ok := got["garbage"]; ok {
			t.Errorf("malformed entry %q should have been dropped", "garbage")
		}
	})

	t.Run("lower-cases header names but not values", func(t *testing.T) {
		got := ParseHeaders("Host||Example.COM")
		if got["host"] != "Example.COM" {
			t.Errorf("ParseHeaders() = %v, want host=Example.COM", got)
		}
	})
}

func TestParseMethod(t *testing.T) {
	cases := map[string]Method{
		"GET":    MethodGET,
		"get":    MethodGET,
		"POST":   MethodPOST,
		"PUT":    MethodOther,
		"":       MethodOther,
		"DELETE": MethodOther,
	}
	for in, want := range cases {
		if got := ParseMethod(in); got != want {
			t.Errorf("ParseMethod(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	r := &Record{
		URI:     "/upload?d=abc123",
		BodyLen: 10,
		Headers: map[string]string{"host": "a.example.com", "user-agent": "curl/7.68"},
	}
	if got := r.QueryLen(); got != len("d=abc123") {
		t.Errorf("QueryLen() = %d, want %d", got, len("d=abc123"))
	}
	if got := r.Path(); got != "/upload" {
		t.Errorf("Path() = %q, want /upload", got)
	}
	if got := r.Host(); got != "a.example.com" {
		t.Errorf("Host() = %q, want a.example.com", got)
	}
	if got := r.UserAgent(); got != "curl/7.68" {
		t.Errorf("UserAgent() = %q, want curl/7.68", got)
	}
}

func TestHostLabelsMatch(t *testing.T) {
	cases := []struct {
		a, b string
		n    int
		want bool
	}{
		{"http://sub.example.com/path", "example.com", 2, true},
		{"http://sub.example.com/path", "other.com", 2, false},
		{"a.b.example.com", "c.d.example.com", 2, true},
		{"a.b.example.com", "c.d.example.com", 3, false},
	}
	for _, c := range cases {
		if got := HostLabelsMatch(c.a, c.b, c.n); got != c.want {
			t.Errorf("HostLabelsMatch(%q, %q, %d) = %v, want %v", c.a, c.b, c.n, got, c.want)
		}
	}
}
