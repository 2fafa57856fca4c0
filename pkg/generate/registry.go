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

// Package generate maps synthesized types to value-generation strategies.
//
// A Registry holds one generation strategy per type key and supports
// registration, override, unregistration, and scoped temporary override.
// Lookups fall back structurally: optional-of-T, list-of-T and map-of-V
// reuse the element strategy, record types degrade to a build-all-fields
// strategy, and anything else falls back to generic text.
package generate

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/synth"
)

// Generator produces one value for a type descriptor. Generators must be
// deterministic given the same *rand.Rand state, so sequences are
// reproducible from a seed.
type Generator func(r *rand.Rand, d *synth.Descriptor) interface{}

// maxDepth bounds structural recursion when generating values for
// cyclic record types. Optionals beyond the bound resolve to nil,
// collections to empty.
const maxDepth = 8

// Registry is a mapping from type keys to generation strategies.
//
// Registration and override calls are serialized; lookups take a shared
// read lock. Each key holds a stack of generators: Register installs the
// base entry and Temporary pushes on top, so nested temporary overrides
// of the same key restore in LIFO order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]Generator
}

// New creates a registry pre-populated with the default generators for
// every scalar kind.
func New() *Registry {
	g := &Registry{entries: make(map[string][]Generator)}
	for key, gen := range defaultGenerators() {
		g.entries[key] = []Generator{gen}
	}
	return g
}

// NewEmpty creates a registry with no generators installed.
// Mainly useful for tests.
func NewEmpty() *Registry {
	return &Registry{entries: make(map[string][]Generator)}
}

// Register installs a generator for a type key. Fails with
// DuplicateRegistrationError if one is already registered for that key,
// unless override is set.
func (g *Registry) Register(key string, gen Generator, override bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.entries[key]; exists && !override {
		return &errors.DuplicateRegistrationError{Key: key}
	}
	g.entries[key] = []Generator{gen}
	return nil
}

// Unregister removes a type key from the registry, reporting whether an
// entry existed.
func (g *Registry) Unregister(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, existed := g.entries[key]
	delete(g.entries, key)
	return existed
}

// Keys returns the sorted list of registered type keys.
func (g *Registry) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.entries))
	for key := range g.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Temporary installs a generator for the duration of a scope and returns
// the restore function. The restore must run on every exit path (defer
// it); it removes exactly the generator this call pushed, so nested
// temporary overrides of the same key restore in LIFO order. Restoring
// twice is a no-op.
func (g *Registry) Temporary(key string, gen Generator) (restore func()) {
	g.mu.Lock()
	g.entries[key] = append(g.entries[key], gen)
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()

			stack := g.entries[key]
			if len(stack) <= 1 {
				delete(g.entries, key)
				return
			}
			g.entries[key] = stack[:len(stack)-1]
		})
	}
}

// Lookup returns the generation strategy for a type descriptor. The
// strategy resolves registered overrides at call time, so temporary
// overrides installed after Lookup are still honored. Lookup never
// returns nil.
func (g *Registry) Lookup(d *synth.Descriptor) Generator {
	if gen := g.registered(d); gen != nil {
		return gen
	}
	return func(r *rand.Rand, d *synth.Descriptor) interface{} {
		return g.genValue(r, d, 0)
	}
}

// Generate produces one value for the descriptor:
// direct key match, then structural matching for optional/list/map,
// then the build-all-fields record fallback, then generic text.
func (g *Registry) Generate(r *rand.Rand, d *synth.Descriptor) interface{} {
	return g.genValue(r, d, 0)
}

// registered returns the top of the generator stack for the
// descriptor's key, or nil.
func (g *Registry) registered(d *synth.Descriptor) Generator {
	if d == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	stack := g.entries[d.Key()]
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// genValue generates a value structurally. Depth bounds recursion
// through cyclic record types.
func (g *Registry) genValue(r *rand.Rand, d *synth.Descriptor, depth int) interface{} {
	if d == nil {
		return genText(r, nil)
	}

	if gen := g.registered(d); gen != nil {
		return gen(r, d)
	}

	switch d.Kind {
	case synth.KindOptional:
		// Roughly one in four optionals stays nil.
		if depth >= maxDepth || r.Intn(4) == 0 {
			return nil
		}
		return g.genValue(r, d.Elem, depth+1)

	case synth.KindList:
		if depth >= maxDepth {
			return []interface{}{}
		}
		n := r.Intn(maxCollectionSize + 1)
		items := make([]interface{}, n)
		for i := range items {
			items[i] = g.genValue(r, d.Elem, depth+1)
		}
		return items

	case synth.KindMap:
		if depth >= maxDepth {
			return map[string]interface{}{}
		}
		n := r.Intn(maxCollectionSize + 1)
		m := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			m[randomText(r)] = g.genValue(r, d.Elem, depth+1)
		}
		return m

	case synth.KindRecord:
		// No strategy registered under the record name: build every field.
		if depth >= maxDepth {
			return map[string]interface{}{}
		}
		out := make(map[string]interface{}, len(d.Fields))
		for _, f := range d.Fields {
			out[f.Name] = g.genValue(r, f.Type, depth+1)
		}
		return out

	default:
		// Last-resort generic textual fallback.
		return genText(r, d)
	}
}
