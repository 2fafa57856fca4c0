// Copyright 2025 Tom Barlow
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

// Package stateful drives multi-step API workflow sequences.
//
// A sequence is built from rules (one per API operation) that consume
// values from and produce values into named bundles. The state machine
// picks one eligible rule per step, invokes the operation, and records
// the transition; the runner repeats this for a configured number of
// sequences and aggregates coverage.
package stateful

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/tombee/roundtrip/pkg/synth"
)

// Bundle describes one named pool of values flowing between operations.
// Values usually come from response field extraction (a created user's
// id lands in "id_bundle") and are consumed as inputs by later steps.
type Bundle struct {
	// Name identifies the bundle, conventionally "<field>_bundle".
	Name string

	// ValueType describes the values the pool holds, when known.
	ValueType *synth.Descriptor

	// MaxSize caps the pool. Zero means unbounded. When the cap is
	// reached, the oldest value is evicted on append.
	MaxSize int

	// Description is free-form, surfaced by inspection tooling.
	Description string
}

// Store holds the live value pools for every bundle in a sequence.
// Draws are non-destructive: consuming a value leaves it in the pool so
// several steps can reuse the same created resource.
type Store struct {
	mu    sync.RWMutex
	pools map[string][]interface{}
}

// NewStore creates an empty bundle store.
func NewStore() *Store {
	return &Store{pools: make(map[string][]interface{})}
}

// Put appends a value to the named pool. maxSize zero means unbounded;
// otherwise the oldest value is dropped once the pool is full.
func (s *Store) Put(name string, value interface{}, maxSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := append(s.pools[name], value)
	if maxSize > 0 && len(pool) > maxSize {
		pool = pool[len(pool)-maxSize:]
	}
	s.pools[name] = pool
}

// Draw picks a uniformly random value from the named pool without
// removing it. The second return is false when the pool is empty.
func (s *Store) Draw(name string, r *rand.Rand) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool := s.pools[name]
	if len(pool) == 0 {
		return nil, false
	}
	return pool[r.Intn(len(pool))], true
}

// Len returns the current size of the named pool.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pools[name])
}

// Names returns the sorted names of all non-empty pools.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.pools))
	for name, pool := range s.pools {
		if len(pool) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every pool, keyed by bundle name. The
// copy is safe to hand to precondition expressions.
func (s *Store) Snapshot() map[string][]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]interface{}, len(s.pools))
	for name, pool := range s.pools {
		cp := make([]interface{}, len(pool))
		copy(cp, pool)
		out[name] = cp
	}
	return out
}

// Reset empties every pool. The runner calls this between sequences so
// state never leaks from one sequence into the next.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = make(map[string][]interface{})
}
