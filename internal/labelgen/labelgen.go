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

// Package labelgen turns one (host, user-agent) cluster into labelled
// (method, label) sub-clusters, using a referrer graph plus the heuristic
// filters that separate browser traffic from background traffic and, in
// testing mode, isolate probable exfiltration inside browser-like traffic.
package labelgen

import (
	"net/url"
	"sort"
	"strings"

	"fpguard/internal/graph"
	"fpguard/internal/textdist"
	"fpguard/pkg/fingerprint"
	"fpguard/pkg/fpmode"
	"fpguard/pkg/httprecord"
)

// Params bundles the generator's tunables; zero fields fall back to spec
// defaults.
type Params struct {
	Graph graph.Params

	// ConnectednessRatio is the threshold t = c/(c+d) at or above which a
	// cluster is labelled Browser rather than Background.
	ConnectednessRatio float64

	// SimilarityEditThreshold gates the header-similarity filter used by the
	// malware split.
	SimilarityEditThreshold float64

	// ExfiltrationOutgoingThreshold is the per-group outgoing-information
	// byte threshold used by the malware split.
	ExfiltrationOutgoingThreshold int
}

var DefaultParams = Params{
	ConnectednessRatio:            0.5,
	SimilarityEditThreshold:       0.10,
	ExfiltrationOutgoingThreshold: 500,
}

func (p Params) withDefaults() Params {
	if p.ConnectednessRatio <= 0 {
		p.ConnectednessRatio = DefaultParams.ConnectednessRatio
	}
	if p.SimilarityEditThreshold <= 0 {
		p.SimilarityEditThreshold = DefaultParams.SimilarityEditThreshold
	}
	if p.ExfiltrationOutgoingThreshold <= 0 {
		p.ExfiltrationOutgoingThreshold = DefaultParams.ExfiltrationOutgoingThreshold
	}
	return p
}

// SubClusterKey identifies one emitted sub-cluster.
type SubClusterKey struct {
	Method httprecord.Method
	Label  fingerprint.Label
}

// Result is the generator's output for one cluster: the emitted
// sub-clusters (non-empty only) and the graph just built, which the caller
// retains for one window's worth of appendability checks.
type Result struct {
	SubClusters map[SubClusterKey][]*httprecord.Record
	Graph       *graph.Graph
}

// Generate implements spec §4.3 end to end: type labelling, suspected-
// browser resolution, the browser malware split (testing mode only — see
// DESIGN.md's Open Question resolution), and the method split.
func Generate(
	cluster []*httprecord.Record,
	mode fpmode.Mode,
	knownBrowserUA map[string]struct{},
	prevGraph *graph.Graph,
	params Params,
) Result {
	params = params.withDefaults()
	g := graph.Build(cluster, params.Graph)

	label := typeLabel(g, params.ConnectednessRatio)
	ua := clusterUserAgent(cluster)

	if label == fingerprint.LabelBackground {
		if _, known := knownBrowserUA[ua]; known {
			label = fingerprint.LabelSuspectedBrowser
		}
	}

	if label == fingerprint.LabelSuspectedBrowser {
		label = resolveSuspectedBrowser(cluster, prevGraph, params.ConnectednessRatio)
	}

	var browserNodes, backgroundNodes []*httprecord.Record
	if label == fingerprint.LabelBrowser {
		browserNodes, backgroundNodes = splitMalware(g, cluster, mode, params)
	} else {
		backgroundNodes = cluster
	}

	out := Result{SubClusters: map[SubClusterKey][]*httprecord.Record{}, Graph: g}
	addMethodSplit(out.SubClusters, fingerprint.LabelBrowser, browserNodes)
	addMethodSplit(out.SubClusters, fingerprint.LabelBackground, backgroundNodes)
	return out
}

func typeLabel(g *graph.Graph, ratio float64) fingerprint.Label {
	c := len(g.ConnectedIndices())
	d := len(g.DisconnectedIndices())
	if c+d == 0 {
		return fingerprint.LabelBackground
	}
	t := float64(c) / float64(c+d)
	if t < ratio {
		return fingerprint.LabelBackground
	}
	return fingerprint.LabelBrowser
}

func clusterUserAgent(cluster []*httprecord.Record) string {
	if len(cluster) == 0 {
		return ""
	}
	return cluster[0].UserAgent()
}

// resolveSuspectedBrowser implements spec §4.3 step 2. With no retained
// previous-window graph for this user-agent, d' is taken to be 0 and the
// cluster demotes to Background, matching the plain reading of "if d' > 0
// AND ratio > 0.5".
func resolveSuspectedBrowser(cluster []*httprecord.Record, prevGraph *graph.Graph, ratio float64) fingerprint.Label {
	if prevGraph == nil {
		return fingerprint.LabelBackground
	}
	cPrime, dPrime := prevGraph.Appendable(cluster)
	if dPrime > 0 && float64(cPrime)/float64(dPrime) > ratio {
		return fingerprint.LabelBrowser
	}
	return fingerprint.LabelBackground
}

// splitMalware implements spec §4.3 step 3. In training mode the split is
// skipped entirely: the whole cluster becomes the browser sub-cluster with
// no background extraction (see DESIGN.md's Open Question resolution,
// grounded on original_source/label_generation.py's mode==0 short-circuit).
func splitMalware(g *graph.Graph, cluster []*httprecord.Record, mode fpmode.Mode, params Params) (browser, background []*httprecord.Record) {
	if mode == fpmode.Training {
		return cluster, nil
	}

	connectedIdx := g.ConnectedIndices()
	disconnectedIdx := g.DisconnectedIndices()

	browser = make([]*httprecord.Record, 0, len(connectedIdx))
	for _, i := range connectedIdx {
		browser = append(browser, cluster[i])
	}

	maliciousSet := maliciousDisconnected(cluster, disconnectedIdx, params)
	for _, i := range disconnectedIdx {
		if maliciousSet[i] {
			background = append(background, cluster[i])
		} else {
			browser = append(browser, cluster[i])
		}
	}
	return browser, background
}

func maliciousDisconnected(cluster []*httprecord.Record, disconnectedIdx []int, params Params) map[int]bool {
	exfilCandidate := make(map[int]bool, len(disconnectedIdx))
	for _, i := range disconnectedIdx {
		r := cluster[i]
		if isExfiltrationCandidate(r) {
			exfilCandidate[i] = true
		}
	}

	type groupKey struct {
		method httprecord.Method
		path   string
	}
	groups := map[groupKey][]int{}
	for _, i := range disconnectedIdx {
		r := cluster[i]
		k := groupKey{method: r.Method, path: r.Path()}
		groups[k] = append(groups[k], i)
	}

	similar := make(map[int]bool, len(disconnectedIdx))
	for _, idxs := range groups {
		if isGroupSimilar(cluster, idxs, params.SimilarityEditThreshold) {
			for _, i := range idxs {
				similar[i] = true
			}
		}
	}

	malicious := make(map[int]bool, len(disconnectedIdx))
	for _, idxs := range groups {
		candidates := make([]int, 0, len(idxs))
		for _, i := range idxs {
			if exfilCandidate[i] && similar[i] {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		outgoing := groupOutgoingInformation(cluster, idxs)
		if outgoing == 0 || outgoing > params.ExfiltrationOutgoingThreshold {
			for _, i := range candidates {
				malicious[i] = true
			}
		}
	}
	return malicious
}

func isExfiltrationCandidate(r *httprecord.Record) bool {
	switch r.Method {
	case httprecord.MethodPOST:
		return r.BodyLen > 0
	case httprecord.MethodGET:
		return r.QueryLen() > 0
	default:
		return false
	}
}

// headerExcludedFromSimilarity is excluded because it is a byproduct of
// request size, not an identity-bearing header, per original_source's
// similarity filter.
const headerExcludedFromSimilarity = "content-length"

func isGroupSimilar(cluster []*httprecord.Record, idxs []int, threshold float64) bool {
	if len(idxs) < 2 {
		return false
	}
	tuples := make([]string, len(idxs))
	for n, i := range idxs {
		tuples[n] = sortedHeaderTuple(cluster[i].Headers)
	}
	total := 0
	for n := 0; n < len(tuples)-1; n++ {
		total += textdist.Distance(tuples[n], tuples[n+1])
	}
	avg := float64(total) / float64(len(tuples)-1)
	return avg <= threshold
}

func sortedHeaderTuple(headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		if name == headerExcludedFromSimilarity {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(headers[name])
		b.WriteByte(';')
	}
	return b.String()
}

func groupOutgoingInformation(cluster []*httprecord.Record, idxs []int) int {
	queries := make([]string, len(idxs))
	for n, i := range idxs {
		queries[n] = requestQuery(cluster[i])
	}
	total := len(queries[0])
	for n := 0; n < len(queries)-1; n++ {
		total += textdist.Distance(queries[n], queries[n+1])
	}
	return total
}

func requestQuery(r *httprecord.Record) string {
	u, err := url.Parse(r.URI)
	if err != nil {
		return ""
	}
	return u.RawQuery
}

func addMethodSplit(out map[SubClusterKey][]*httprecord.Record, label fingerprint.Label, nodes []*httprecord.Record) {
	if len(nodes) == 0 {
		return
	}
	var gets, posts []*httprecord.Record
	for _, r := range nodes {
		switch r.Method {
		case httprecord.MethodGET:
			gets = append(gets, r)
		case httprecord.MethodPOST:
			posts = append(posts, r)
		}
	}
	if len(gets) > 0 {
		out[SubClusterKey{Method: httprecord.MethodGET, Label: label}] = gets
	}
	if len(posts) > 0 {
		out[SubClusterKey{Method: httprecord.MethodPOST, Label: label}] = posts
	}
}
