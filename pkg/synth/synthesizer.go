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

package synth

import (
	"fmt"
	"sync"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/openapi"
)

// Synthesizer converts normalized schema nodes into type descriptors.
//
// Record descriptors are cached by name: two resolutions of the same
// reference name return the identical descriptor instance. Anonymous
// inline objects receive a unique generated name per call site, so two
// structurally identical anonymous objects from different locations
// yield distinct types. Reference names are the contract for identity.
//
// The cache and counter are scoped to the Synthesizer instance, never
// package-level, so independent schema-processing runs cannot
// contaminate each other. A Synthesizer is safe for concurrent use.
type Synthesizer struct {
	mu      sync.Mutex
	cache   map[string]*Descriptor
	counter int
}

// New creates a synthesizer with an empty type cache.
func New() *Synthesizer {
	return &Synthesizer{cache: make(map[string]*Descriptor)}
}

// SchemaToType converts a normalized schema node into a type descriptor.
//
// Scalar nodes map to shared scalar descriptors, with format hints
// (date-time, date, uuid, email) mapping to dedicated scalar kinds and
// unknown formats falling back to the base JSON type. Arrays map to
// list<T>, recursing on the item schema. Objects map to cached record
// descriptors; required properties become required fields, everything
// else becomes an optional field defaulting to nil.
func (s *Synthesizer) SchemaToType(node *openapi.SchemaNode) (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaToType(node)
}

// Cached returns the cached record descriptor for a name, if present.
func (s *Synthesizer) Cached(name string) (*Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.cache[name]
	return d, ok
}

func (s *Synthesizer) schemaToType(node *openapi.SchemaNode) (*Descriptor, error) {
	if node == nil {
		return String, nil
	}

	switch node.Kind {
	case openapi.KindRef:
		// A cycle placeholder: the referenced record is being synthesized
		// higher up the stack and has already been inserted into the cache.
		if d, ok := s.cache[node.Ref]; ok {
			return d, nil
		}
		return nil, &errors.TypeSynthesisError{
			Schema: node.Ref,
			Reason: "cyclic reference to a schema that was never synthesized",
		}

	case openapi.KindString:
		return stringFormat(node.Format), nil
	case openapi.KindInteger:
		return Integer, nil
	case openapi.KindNumber:
		return Number, nil
	case openapi.KindBoolean:
		return Boolean, nil

	case openapi.KindArray:
		if node.Items == nil {
			// Untyped arrays degrade to a list of strings rather than failing.
			return ListOf(String), nil
		}
		elem, err := s.schemaToType(node.Items)
		if err != nil {
			return nil, err
		}
		return ListOf(elem), nil

	case openapi.KindObject:
		return s.objectToRecord(node)

	default:
		return nil, &errors.TypeSynthesisError{
			Schema: node.Ref,
			Reason: fmt.Sprintf("unsupported schema kind %s", node.Kind),
		}
	}
}

// objectToRecord synthesizes (and caches) a record descriptor for an
// object node. Insertion into the cache happens before fields are
// synthesized so that cyclic references resolve to the record being built.
func (s *Synthesizer) objectToRecord(node *openapi.SchemaNode) (*Descriptor, error) {
	if node.Properties == nil {
		// Objects without declared properties degrade to a generic map.
		return MapOf(String), nil
	}

	name := node.Ref
	if name == "" {
		name = node.Title
	}
	if name == "" {
		s.counter++
		name = fmt.Sprintf("GeneratedModel%d", s.counter)
	}

	if d, ok := s.cache[name]; ok {
		return d, nil
	}

	record := &Descriptor{Kind: KindRecord, Name: name}
	s.cache[name] = record

	for _, prop := range node.Properties {
		fieldType, err := s.schemaToType(prop.Schema)
		if err != nil {
			return nil, err
		}
		if !prop.Required {
			fieldType = OptionalOf(fieldType)
		}
		record.Fields = append(record.Fields, Field{
			Name:     prop.Name,
			Type:     fieldType,
			Required: prop.Required,
		})
	}
	return record, nil
}

// stringFormat maps a string format hint to its dedicated scalar kind.
// Unknown formats fall back to plain string.
func stringFormat(format string) *Descriptor {
	switch format {
	case "date-time":
		return DateTime
	case "date":
		return Date
	case "uuid":
		return UUID
	case "email":
		return Email
	default:
		return String
	}
}
