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

package openapi

import (
	"sort"
	"strings"

	"github.com/tombee/roundtrip/pkg/errors"
)

// SchemaKind classifies a normalized schema node.
type SchemaKind int

const (
	// KindString is a string-typed schema (the JSON Schema default).
	KindString SchemaKind = iota
	// KindInteger is an integer-typed schema.
	KindInteger
	// KindNumber is a floating-point-typed schema.
	KindNumber
	// KindBoolean is a boolean-typed schema.
	KindBoolean
	// KindObject is an object schema, with or without declared properties.
	KindObject
	// KindArray is an array schema.
	KindArray
	// KindRef marks a reference back into a schema that is currently being
	// normalized. It breaks reference cycles; the synthesizer resolves it
	// against its cache.
	KindRef
)

// String returns the kind name for logging and error messages.
func (k SchemaKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// SchemaNode is a normalized schema fragment: composition ($ref, allOf,
// oneOf/anyOf, enum) has been folded away, leaving a plain tree the type
// synthesizer can walk.
type SchemaNode struct {
	Kind   SchemaKind
	Format string
	// Ref holds the reference name when this node was reached through a
	// $ref; it is the identity key for type caching.
	Ref   string
	Title string
	Enum  []interface{}
	// Properties is the ordered field list for object nodes (sorted by
	// name for determinism). Nil for objects without declared properties.
	Properties []Property
	// Items is the element schema for array nodes; nil means untyped.
	Items *SchemaNode
}

// Property is a named object property with its required flag.
type Property struct {
	Name     string
	Schema   *SchemaNode
	Required bool
}

// Resolver resolves local $ref pointers and normalizes schema composition
// against one document. A resolver memoizes normalized ref'd schemas, so
// resolving the same reference twice yields the same node, and tracks
// in-progress references to terminate on cyclic schemas.
type Resolver struct {
	doc        *Document
	resolving  map[string]bool
	normalized map[string]*SchemaNode
}

// NewResolver creates a resolver for the given document.
func NewResolver(doc *Document) *Resolver {
	return &Resolver{
		doc:        doc,
		resolving:  make(map[string]bool),
		normalized: make(map[string]*SchemaNode),
	}
}

// ResolveRef walks a local pointer ("#/components/schemas/User") through
// the document and returns the raw schema it addresses plus the reference
// name (last segment). External references are unsupported.
func (r *Resolver) ResolveRef(ref string) (map[string]interface{}, string, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, "", &errors.SchemaResolutionError{
			Ref:    ref,
			Reason: "only local references are supported",
		}
	}

	segments := strings.Split(ref[2:], "/")
	current := interface{}(r.doc.Root())
	for _, segment := range segments {
		m, ok := asMap(current)
		if !ok {
			return nil, "", &errors.SchemaResolutionError{
				Ref:    ref,
				Reason: "pointer segment " + segment + " addresses a non-object node",
			}
		}
		next, ok := m[segment]
		if !ok {
			return nil, "", &errors.SchemaResolutionError{
				Ref:    ref,
				Reason: "pointer segment " + segment + " not found",
			}
		}
		current = next
	}

	target, ok := asMap(current)
	if !ok {
		return nil, "", &errors.SchemaResolutionError{
			Ref:    ref,
			Reason: "reference target is not a schema object",
		}
	}
	return target, segments[len(segments)-1], nil
}

// Normalize converts a raw schema fragment into a SchemaNode, folding
// $ref, enum, allOf and oneOf/anyOf composition:
//
//   - enum takes the type of its first literal (string when empty)
//   - allOf merges the properties of all object branches into one
//     synthetic object node; scalar and array branches are not merged
//   - oneOf/anyOf select the first branch only
func (r *Resolver) Normalize(schema map[string]interface{}) (*SchemaNode, error) {
	if schema == nil {
		return &SchemaNode{Kind: KindString}, nil
	}

	if ref, ok := schema["$ref"].(string); ok {
		return r.normalizeRef(ref)
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		return normalizeEnum(enum), nil
	}

	if branches, ok := schema["allOf"].([]interface{}); ok {
		return r.mergeAllOf(branches)
	}

	if node, ok, err := r.firstUnionBranch(schema); ok || err != nil {
		return node, err
	}

	schemaType, _ := schema["type"].(string)
	format, _ := schema["format"].(string)
	title, _ := schema["title"].(string)

	switch schemaType {
	case "array":
		node := &SchemaNode{Kind: KindArray, Title: title}
		if items, ok := asMap(schema["items"]); ok {
			elem, err := r.Normalize(items)
			if err != nil {
				return nil, err
			}
			node.Items = elem
		}
		return node, nil

	case "object":
		return r.normalizeObject(schema, title)

	case "integer":
		return &SchemaNode{Kind: KindInteger, Format: format, Title: title}, nil
	case "number":
		return &SchemaNode{Kind: KindNumber, Format: format, Title: title}, nil
	case "boolean":
		return &SchemaNode{Kind: KindBoolean, Format: format, Title: title}, nil
	case "string":
		return &SchemaNode{Kind: KindString, Format: format, Title: title}, nil
	default:
		// Untyped schemas with properties are treated as objects; anything
		// else defaults to string, matching JSON Schema's loose default.
		if _, ok := asMap(schema["properties"]); ok {
			return r.normalizeObject(schema, title)
		}
		return &SchemaNode{Kind: KindString, Format: format, Title: title}, nil
	}
}

// normalizeRef resolves a $ref and normalizes its target, memoizing by
// reference name. Cyclic references produce a KindRef placeholder.
func (r *Resolver) normalizeRef(ref string) (*SchemaNode, error) {
	target, name, err := r.ResolveRef(ref)
	if err != nil {
		return nil, err
	}

	if node, ok := r.normalized[name]; ok {
		return node, nil
	}
	if r.resolving[name] {
		return &SchemaNode{Kind: KindRef, Ref: name}, nil
	}

	r.resolving[name] = true
	defer delete(r.resolving, name)

	node, err := r.Normalize(target)
	if err != nil {
		return nil, err
	}
	node.Ref = name
	r.normalized[name] = node
	return node, nil
}

// normalizeEnum takes the runtime type of the first enum literal.
func normalizeEnum(enum []interface{}) *SchemaNode {
	node := &SchemaNode{Kind: KindString, Enum: enum}
	if len(enum) == 0 {
		return node
	}
	switch enum[0].(type) {
	case bool:
		node.Kind = KindBoolean
	case int, int64, uint64:
		node.Kind = KindInteger
	case float32, float64:
		node.Kind = KindNumber
	case string:
		node.Kind = KindString
	default:
		node.Kind = KindString
	}
	return node
}

// mergeAllOf merges the properties of all object branches into one
// synthetic object node. Scalar and array branches carry no properties
// and are skipped; merging those is a documented limitation.
func (r *Resolver) mergeAllOf(branches []interface{}) (*SchemaNode, error) {
	merged := make(map[string]interface{})
	required := make(map[string]bool)

	for _, branch := range branches {
		raw, ok := asMap(branch)
		if !ok {
			continue
		}
		if ref, ok := raw["$ref"].(string); ok {
			resolved, _, err := r.ResolveRef(ref)
			if err != nil {
				return nil, err
			}
			raw = resolved
		}
		if props, ok := asMap(raw["properties"]); ok {
			for name, prop := range props {
				merged[name] = prop
			}
		}
		if reqs, ok := raw["required"].([]interface{}); ok {
			for _, req := range reqs {
				if s, ok := req.(string); ok {
					required[s] = true
				}
			}
		}
	}

	synthetic := map[string]interface{}{
		"type":       "object",
		"properties": merged,
	}
	if len(required) > 0 {
		reqs := make([]interface{}, 0, len(required))
		for name := range required {
			reqs = append(reqs, name)
		}
		synthetic["required"] = reqs
	}
	return r.Normalize(synthetic)
}

// firstUnionBranch selects the first oneOf/anyOf branch. Generating the
// remaining branches is out of scope; the first-branch selection is a
// documented approximation.
func (r *Resolver) firstUnionBranch(schema map[string]interface{}) (*SchemaNode, bool, error) {
	branches, ok := schema["oneOf"].([]interface{})
	if !ok {
		branches, ok = schema["anyOf"].([]interface{})
	}
	if !ok {
		return nil, false, nil
	}
	if len(branches) == 0 {
		return &SchemaNode{Kind: KindObject}, true, nil
	}
	first, ok := asMap(branches[0])
	if !ok {
		return &SchemaNode{Kind: KindObject}, true, nil
	}
	node, err := r.Normalize(first)
	return node, true, err
}

// normalizeObject normalizes an object schema's properties into an
// ordered list (sorted by name for determinism).
func (r *Resolver) normalizeObject(schema map[string]interface{}, title string) (*SchemaNode, error) {
	node := &SchemaNode{Kind: KindObject, Title: title}

	props, ok := asMap(schema["properties"])
	if !ok {
		return node, nil
	}

	required := make(map[string]bool)
	if reqs, ok := schema["required"].([]interface{}); ok {
		for _, req := range reqs {
			if s, ok := req.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		propSchema, ok := asMap(props[name])
		if !ok {
			propSchema = nil
		}
		child, err := r.Normalize(propSchema)
		if err != nil {
			return nil, err
		}
		node.Properties = append(node.Properties, Property{
			Name:     name,
			Schema:   child,
			Required: required[name],
		})
	}
	return node, nil
}
