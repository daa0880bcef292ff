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

// Package shard routes a host IP to one of N detector workers via
// rendezvous (highest random weight) hashing, so that adding or removing a
// worker only reshuffles the hosts owned by that one worker instead of every
// host in the fleet. Spec §5 allows, but does not mandate, "one worker per
// host-IP" concurrency; a single-shard Router is the default and reproduces
// the spec's single-threaded model exactly.
package shard

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

func hashSeed(s string, seed uint64) uint64 {
	return xxhash.Sum64String(s) ^ seed
}

// Router assigns a host IP to a worker name out of a fixed set.
type Router struct {
	rv *rendezvous.Rendezvous
}

// NewRouter builds a Router over n workers named "worker-0" .. "worker-(n-1)".
// n <= 1 still returns a valid, single-worker Router.
func NewRouter(n int) *Router {
	if n < 1 {
		n = 1
	}
	workers := make([]string, n)
	for i := range workers {
		workers[i] = workerName(i)
	}
	return &Router{rv: rendezvous.New(workers, hashSeed)}
}

func workerName(i int) string { return "worker-" + strconv.Itoa(i) }

// WorkerFor returns the worker name owning host.
func (r *Router) WorkerFor(host string) string {
	return r.rv.Lookup(host)
}
