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

package graph

import (
	"testing"
	"time"

	"fpguard/pkg/httprecord"
)

func rec(ts time.Time, method httprecord.Method, path string, headers map[string]string) *httprecord.Record {
	return &httprecord.Record{
		TS:      ts,
		Method:  method,
		URI:     path,
		Headers: headers,
	}
}

func TestBuild_HeadAndLinkedChain(t *testing.T) {
	base := time.Unix(0, 0)
	cluster := []*httprecord.Record{
		rec(base, httprecord.MethodGET, "/", map[string]string{
			"accept": "text/html", "host": "example.com",
		}),
		rec(base.Add(1*time.Second), httprecord.MethodGET, "/app.js", map[string]string{
			"accept": "*/*", "host": "example.com", "referer": "http://example.com/",
		}),
		rec(base.Add(2*time.Second), httprecord.MethodGET, "/unrelated", map[string]string{
			"accept": "*/*", "host": "other.org",
		}),
	}
	g := Build(cluster, Params{})

	if !g.Connected(0) || !g.Connected(1) {
		t.Fatalf("expected nodes 0 and 1 to be connected, degree=%v", g.degree)
	}
	if g.Connected(2) {
		t.Fatalf("expected node 2 to stay disconnected, degree=%v", g.degree)
	}
}

func TestFaviconException(t *testing.T) {
	base := time.Unix(0, 0)
	cluster := []*httprecord.Record{
		rec(base, httprecord.MethodGET, "/", map[string]string{
			"accept": "text/html", "host": "example.com",
		}),
		rec(base.Add(500*time.Millisecond), httprecord.MethodGET, "/favicon.ico", map[string]string{
			"accept": "*/*", "host": "example.com",
		}),
	}
	g := Build(cluster, Params{})
	if !g.Connected(1) {
		t.Fatalf("expected favicon request to link via favicon exception")
	}
}

func TestTimeThresholdRejectsStaleLink(t *testing.T) {
	base := time.Unix(0, 0)
	cluster := []*httprecord.Record{
		rec(base, httprecord.MethodGET, "/", map[string]string{
			"accept": "text/html", "host": "example.com",
		}),
		rec(base.Add(700*time.Second), httprecord.MethodGET, "/late.js", map[string]string{
			"accept": "*/*", "host": "example.com", "referer": "http://example.com/",
		}),
	}
	g := Build(cluster, Params{TimeThresholdSecs: 600})
	if g.Connected(1) {
		t.Fatalf("expected link beyond time threshold to be rejected")
	}
}

func TestAppendable_DoesNotMutate(t *testing.T) {
	base := time.Unix(0, 0)
	retained := []*httprecord.Record{
		rec(base, httprecord.MethodGET, "/", map[string]string{
			"accept": "text/html", "host": "example.com",
		}),
	}
	g := Build(retained, Params{})
	beforeEdges := len(g.edges)

	fresh := []*httprecord.Record{
		rec(base.Add(1*time.Second), httprecord.MethodGET, "/app.js", map[string]string{
			"accept": "*/*", "host": "example.com", "referer": "http://example.com/",
		}),
	}
	connected, disconnected := g.Appendable(fresh)
	if connected != 1 || disconnected != 0 {
		t.Fatalf("Appendable() = (%d, %d), want (1, 0)", connected, disconnected)
	}
	if len(g.edges) != beforeEdges {
		t.Fatalf("Appendable mutated the retained graph: edges changed from %d to %d", beforeEdges, len(g.edges))
	}
}

func TestDisconnectedIndices(t *testing.T) {
	base := time.Unix(0, 0)
	cluster := []*httprecord.Record{
		rec(base, httprecord.MethodGET, "/a", map[string]string{"accept": "*/*", "host": "x.com"}),
		rec(base.Add(time.Second), httprecord.MethodGET, "/b", map[string]string{"accept": "*/*", "host": "y.com"}),
	}
	g := Build(cluster, Params{})
	got := g.DisconnectedIndices()
	if len(got) != 2 {
		t.Fatalf("DisconnectedIndices() = %v, want both nodes disconnected", got)
	}
}
