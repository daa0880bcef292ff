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

// Package graph builds the per-cluster referrer graph: a DAG over one
// chronologically sorted cluster of requests, linking a "head" request to
// any later request it plausibly initiated. Nodes live in a contiguous
// arena indexed by position-in-cluster, and edges are index pairs, never
// pointers. The aggregator keeps the most recent graph per user-agent for
// appendability checks in later windows.
package graph

import (
	"math"
	"strings"

	"fpguard/pkg/httprecord"
)

// Params bundles the graph's tunables. Zero-value fields are replaced by
// DefaultParams at construction time.
type Params struct {
	Subdomains        int
	TimeThresholdSecs float64
}

// DefaultParams matches spec §6's tunable table: subdomains=2, graph time
// threshold=600s.
var DefaultParams = Params{Subdomains: 2, TimeThresholdSecs: 600}

func (p Params) withDefaults() Params {
	if p.Subdomains <= 0 {
		p.Subdomains = DefaultParams.Subdomains
	}
	if p.TimeThresholdSecs <= 0 {
		p.TimeThresholdSecs = DefaultParams.TimeThresholdSecs
	}
	return p
}

// edge is (head index, child index) into the owned cluster slice.
type edge struct {
	head, child int
}

// Graph is the directed referrer graph over one cluster. It keeps the
// cluster slice it was built from (the records are shared, not copied) so
// it can be retained as its user-agent's latest graph, until a later
// cluster with the same user-agent replaces it, for appendability checks
// without holding the aggregator's live bucket map.
type Graph struct {
	params  Params
	cluster []*httprecord.Record
	edges   []edge
	// degree is the undirected degree of each node, used to answer
	// connected/disconnected queries in O(1) after construction.
	degree []int
}

// Build constructs the referrer graph for a chronologically sorted cluster.
func Build(cluster []*httprecord.Record, params Params) *Graph {
	params = params.withDefaults()
	g := &Graph{
		params:  params,
		cluster: cluster,
		degree:  make([]int, len(cluster)),
	}
	g.link()
	return g
}

// link runs the head-stack construction described in spec §4.2: walk the
// cluster in order, track head candidates on a stack, and attach the first
// (most recent) head that satisfies the linkage rule.
func (g *Graph) link() {
	var heads []int
	for i, r := range g.cluster {
		if isHeadNode(r) {
			heads = append(heads, i)
		}
		for j := len(heads) - 1; j >= 0; j-- {
			h := heads[j]
			if h == i {
				continue
			}
			if linked(g.cluster[h], r, g.params) {
				g.addEdge(h, i)
				break
			}
		}
	}
}

func (g *Graph) addEdge(head, child int) {
	g.edges = append(g.edges, edge{head: head, child: child})
	g.degree[head]++
	g.degree[child]++
}

// headAcceptMarkers are the Accept-header substrings that mark a top-level
// document/asset fetch, per spec §4.2.
var headAcceptMarkers = []string{"html", "css", "javascript", "flash"}

func isHeadNode(r *httprecord.Record) bool {
	accept, _ := r.Header("accept")
	lower := strings.ToLower(accept)
	for _, marker := range headAcceptMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if strings.TrimSpace(lower) != "*/*" {
		return false
	}
	ext := pathExt(r.Path())
	if ext == "" {
		return true
	}
	for _, marker := range headAcceptMarkers {
		if strings.Contains(ext, marker) {
			return true
		}
	}
	return false
}

func pathExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

// linked applies spec §4.2's linkage rule between a candidate head and a
// later request r.
func linked(head, r *httprecord.Record, p Params) bool {
	referrer, _ := r.Header("referer")
	if referrer == "" {
		referrer, _ = r.Header("origin")
	}
	host := head.Host()

	if referrer != "" && host != "" {
		if !httprecord.HostLabelsMatch(referrer, host, p.Subdomains) {
			return false
		}
		return math.Abs(r.TS.Sub(head.TS).Seconds()) < p.TimeThresholdSecs
	}

	return faviconException(head, r, p)
}

// faviconException implements the preserve-exactly rule from spec §9(c):
// linkage for a bare favicon fetch is decided on the candidate head's own
// Host header, not on the referrer.
func faviconException(head, r *httprecord.Record, p Params) bool {
	if r.Method != httprecord.MethodGET {
		return false
	}
	if r.QueryLen() != 0 || r.BodyLen != 0 {
		return false
	}
	path := strings.ToLower(r.Path())
	if !strings.HasSuffix(path, "ico") || !strings.Contains(path, "favicon") {
		return false
	}
	rHost, rOK := r.Header("host")
	hHost, hOK := head.Header("host")
	if !rOK || !hOK || rHost == "" || hHost == "" {
		return false
	}
	return httprecord.HostLabelsMatch(rHost, hHost, p.Subdomains)
}

// Connected reports whether the node at cluster index i has undirected
// degree > 0.
func (g *Graph) Connected(i int) bool {
	return g.degree[i] > 0
}

// ConnectedIndices returns the cluster indices of every connected node.
func (g *Graph) ConnectedIndices() []int {
	var out []int
	for i := range g.cluster {
		if g.degree[i] > 0 {
			out = append(out, i)
		}
	}
	return out
}

// DisconnectedIndices returns the cluster indices of every disconnected
// node (degree 0 in the undirected projection).
func (g *Graph) DisconnectedIndices() []int {
	var out []int
	for i := range g.cluster {
		if g.degree[i] == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Len reports the number of nodes (the size of the owned cluster).
func (g *Graph) Len() int { return len(g.cluster) }

// Appendable rebuilds a combined graph over g's retained cluster followed by
// newCluster, without mutating g, and reports the connected/disconnected
// counts restricted to the indices contributed by newCluster. This is the
// diagnostic the label generator uses to resolve a "Suspected Browser" tag
// (spec §4.3 step 2): g is never touched, only read.
func (g *Graph) Appendable(newCluster []*httprecord.Record) (connected, disconnected int) {
	combinedLen := len(g.cluster) + len(newCluster)
	combined := make([]*httprecord.Record, 0, combinedLen)
	combined = append(combined, g.cluster...)
	combined = append(combined, newCluster...)

	full := Build(combined, g.params)
	offset := len(g.cluster)
	for i := 0; i < len(newCluster); i++ {
		if full.Connected(offset + i) {
			connected++
		} else {
			disconnected++
		}
	}
	return connected, disconnected
}

// Nodes exposes the owned cluster slice by index, read-only, for callers
// (the label generator) that need to map connected/disconnected indices
// back to the original records.
func (g *Graph) Nodes() []*httprecord.Record { return g.cluster }
