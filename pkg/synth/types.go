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

// Package synth converts normalized schema nodes into synthesized type
// descriptors: ordered record-type descriptions the value-generation
// layer consumes. No reflective or runtime type creation is involved; a
// synthesized type is plain data.
package synth

import "fmt"

// Kind classifies a type descriptor.
type Kind int

const (
	// KindString is a plain string type.
	KindString Kind = iota
	// KindInteger is an integer type.
	KindInteger
	// KindNumber is a floating-point type.
	KindNumber
	// KindBoolean is a boolean type.
	KindBoolean
	// KindDateTime is an RFC 3339 timestamp string.
	KindDateTime
	// KindDate is an RFC 3339 full-date string.
	KindDate
	// KindUUID is a UUID string.
	KindUUID
	// KindEmail is an email address string.
	KindEmail
	// KindOptional wraps a type that may be absent (nil).
	KindOptional
	// KindList is an ordered collection of one element type.
	KindList
	// KindMap is a string-keyed mapping with one value type.
	KindMap
	// KindRecord is a named record with ordered fields.
	KindRecord
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "date-time"
	case KindDate:
		return "date"
	case KindUUID:
		return "uuid"
	case KindEmail:
		return "email"
	case KindOptional:
		return "optional"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Descriptor describes a synthesized type. Scalar descriptors are shared
// singletons; record descriptors are cached by name, so the same
// reference always resolves to the same instance.
type Descriptor struct {
	Kind Kind

	// Name is the record name (reference name, schema title, or a
	// generated anonymous name). Empty for non-record types.
	Name string

	// Elem is the element type for optional, list, and map descriptors.
	Elem *Descriptor

	// Fields is the ordered field list for record descriptors.
	Fields []Field
}

// Field is one named record field. Non-required fields carry an optional
// type and default to nil.
type Field struct {
	Name     string
	Type     *Descriptor
	Required bool
}

// Shared scalar descriptors. Using singletons keeps scalar identity
// stable without a cache.
var (
	String   = &Descriptor{Kind: KindString}
	Integer  = &Descriptor{Kind: KindInteger}
	Number   = &Descriptor{Kind: KindNumber}
	Boolean  = &Descriptor{Kind: KindBoolean}
	DateTime = &Descriptor{Kind: KindDateTime}
	Date     = &Descriptor{Kind: KindDate}
	UUID     = &Descriptor{Kind: KindUUID}
	Email    = &Descriptor{Kind: KindEmail}
)

// OptionalOf wraps a type as optional.
func OptionalOf(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: KindOptional, Elem: elem}
}

// ListOf builds a list type with the given element type.
func ListOf(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: KindList, Elem: elem}
}

// MapOf builds a string-keyed map type with the given value type.
func MapOf(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: KindMap, Elem: elem}
}

// Key returns the registry lookup key for this descriptor: the kind name
// for scalars, a structural key for optionals/lists/maps, and the record
// name for records.
func (d *Descriptor) Key() string {
	if d == nil {
		return "string"
	}
	switch d.Kind {
	case KindOptional:
		return fmt.Sprintf("optional<%s>", d.Elem.Key())
	case KindList:
		return fmt.Sprintf("list<%s>", d.Elem.Key())
	case KindMap:
		return fmt.Sprintf("map<%s>", d.Elem.Key())
	case KindRecord:
		return d.Name
	default:
		return d.Kind.String()
	}
}
