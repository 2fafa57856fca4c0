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

// Package openapi provides loading and traversal of OpenAPI documents,
// plus resolution of local schema references and schema composition into
// normalized schema nodes consumable by the type synthesizer.
package openapi

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// methodOrder fixes the iteration order of HTTP methods within a path item.
var methodOrder = []string{"get", "post", "put", "patch", "delete", "options", "head"}

// Document is a parsed OpenAPI document. The underlying representation is
// the raw decoded tree, which is what local $ref pointers resolve against.
type Document struct {
	root map[string]interface{}
}

// New wraps an already-decoded OpenAPI document tree.
func New(root map[string]interface{}) *Document {
	if root == nil {
		root = make(map[string]interface{})
	}
	return &Document{root: root}
}

// Load parses an OpenAPI document from JSON or YAML bytes.
// JSON is a subset of YAML, so a single decoder covers both.
func Load(data []byte) (*Document, error) {
	var root map[string]interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	return New(root), nil
}

// LoadFile reads and parses an OpenAPI document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OpenAPI document %s: %w", path, err)
	}
	return Load(data)
}

// Root returns the raw document tree.
func (d *Document) Root() map[string]interface{} {
	return d.root
}

// Operation is one HTTP operation discovered in the document's paths.
type Operation struct {
	// ID is the operationId, or a generated identifier when absent.
	ID string

	// Method is the upper-case HTTP method.
	Method string

	// Path is the path template as declared (e.g. "/users/{userId}").
	Path string

	// Spec is the raw operation object.
	Spec map[string]interface{}
}

// Parameter is a single declared operation parameter.
type Parameter struct {
	Name     string
	In       string // "path", "query", "header", "cookie"
	Required bool
	Schema   map[string]interface{}
}

// Operations returns every operation in the document in deterministic
// order: paths sorted lexically, methods in fixed method order.
func (d *Document) Operations() []Operation {
	paths, ok := asMap(d.root["paths"])
	if !ok {
		return nil
	}

	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	var ops []Operation
	for _, path := range pathKeys {
		item, ok := asMap(paths[path])
		if !ok {
			continue
		}
		for _, method := range methodOrder {
			spec, ok := asMap(item[method])
			if !ok {
				continue
			}
			id, _ := spec["operationId"].(string)
			if id == "" {
				id = DefaultOperationID(method, path)
			}
			ops = append(ops, Operation{
				ID:     id,
				Method: strings.ToUpper(method),
				Path:   path,
				Spec:   spec,
			})
		}
	}
	return ops
}

// DefaultOperationID derives an operation identifier from method and path
// for operations that do not declare an operationId.
func DefaultOperationID(method, path string) string {
	sanitized := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	sanitized = strings.NewReplacer("{", "", "}", "").Replace(sanitized)
	if sanitized == "" {
		sanitized = "root"
	}
	return strings.ToLower(method) + "_" + sanitized
}

// Parameters returns the operation's declared parameters.
func (o Operation) Parameters() []Parameter {
	raw, ok := o.Spec["parameters"].([]interface{})
	if !ok {
		return nil
	}

	var params []Parameter
	for _, entry := range raw {
		p, ok := asMap(entry)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		in, _ := p["in"].(string)
		required, _ := p["required"].(bool)
		schema, _ := asMap(p["schema"])
		params = append(params, Parameter{Name: name, In: in, Required: required, Schema: schema})
	}
	return params
}

// RequestBodySchema returns the JSON request body schema for the
// operation, or nil when the operation has no JSON body.
func (o Operation) RequestBodySchema() map[string]interface{} {
	body, ok := asMap(o.Spec["requestBody"])
	if !ok {
		return nil
	}
	content, ok := asMap(body["content"])
	if !ok {
		return nil
	}
	jsonContent, ok := asMap(content["application/json"])
	if !ok {
		return nil
	}
	schema, _ := asMap(jsonContent["schema"])
	return schema
}

// Responses returns the operation's declared responses keyed by status.
func (o Operation) Responses() map[string]map[string]interface{} {
	raw, ok := asMap(o.Spec["responses"])
	if !ok {
		return nil
	}
	out := make(map[string]map[string]interface{}, len(raw))
	for status, entry := range raw {
		if resp, ok := asMap(entry); ok {
			out[status] = resp
		}
	}
	return out
}

// asMap normalizes decoded map values. yaml.v3 produces
// map[string]interface{} for string-keyed mappings, but documents built
// programmatically may use other map shapes.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}
