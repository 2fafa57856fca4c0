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

// Package linker turns an OpenAPI document into the state machine's
// rule set. Operations become rules; response links become bundle
// wiring between producer and consumer operations.
package linker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/openapi"
	"github.com/tombee/roundtrip/pkg/stateful"
	"github.com/tombee/roundtrip/pkg/synth"
)

// responseBodyPrefix introduces a runtime expression that selects a
// field from the response body, e.g. "$response.body#/id".
const responseBodyPrefix = "$response.body#/"

// Graph is the linker output: everything the state machine needs.
type Graph struct {
	// Rules by operation id.
	Rules map[string]*stateful.Rule

	// Bundles by name, one per distinct linked response field.
	Bundles map[string]*stateful.Bundle

	// Links are the declared producer/consumer edges.
	Links []stateful.Link

	// Operations lists every operation id, sorted.
	Operations []string
}

// RuleList returns the rules sorted by operation id.
func (g *Graph) RuleList() []*stateful.Rule {
	rules := make([]*stateful.Rule, 0, len(g.Rules))
	for _, rule := range g.Rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].OperationID < rules[j].OperationID })
	return rules
}

// Builder constructs rule graphs from OpenAPI documents.
type Builder struct {
	resolver    *openapi.Resolver
	synthesizer *synth.Synthesizer
}

// NewBuilder creates a builder over shared resolution and synthesis
// state, so descriptor identity holds across every operation's schemas.
func NewBuilder(resolver *openapi.Resolver, synthesizer *synth.Synthesizer) *Builder {
	return &Builder{resolver: resolver, synthesizer: synthesizer}
}

// Build walks the document and produces the rule graph. Operations
// without links still become rules, so an unlinked document degrades
// to independent single-operation transitions.
func (b *Builder) Build(doc *openapi.Document) (*Graph, error) {
	operations := doc.Operations()

	graph := &Graph{
		Rules:   make(map[string]*stateful.Rule, len(operations)),
		Bundles: make(map[string]*stateful.Bundle),
	}

	for _, op := range operations {
		rule, err := b.buildRule(op)
		if err != nil {
			return nil, err
		}
		graph.Rules[op.ID] = rule
		graph.Operations = append(graph.Operations, op.ID)
	}
	sort.Strings(graph.Operations)

	for _, op := range operations {
		if err := b.wireLinks(graph, op); err != nil {
			return nil, err
		}
	}

	sort.Slice(graph.Links, func(i, j int) bool {
		a, bb := graph.Links[i], graph.Links[j]
		if a.From != bb.From {
			return a.From < bb.From
		}
		if a.To != bb.To {
			return a.To < bb.To
		}
		return a.Parameter < bb.Parameter
	})
	return graph, nil
}

// buildRule converts one operation into an unlinked rule: parameter
// and body types synthesized, no bindings yet.
func (b *Builder) buildRule(op openapi.Operation) (*stateful.Rule, error) {
	rule := &stateful.Rule{
		OperationID: op.ID,
		Method:      op.Method,
		Path:        op.Path,
	}

	for _, param := range op.Parameters() {
		desc, err := b.schemaType(param.Schema)
		if err != nil {
			return nil, fmt.Errorf("operation %s parameter %s: %w", op.ID, param.Name, err)
		}
		switch param.In {
		case "path":
			if rule.PathParams == nil {
				rule.PathParams = make(map[string]*synth.Descriptor)
			}
			rule.PathParams[param.Name] = desc
		case "query":
			if rule.QueryParams == nil {
				rule.QueryParams = make(map[string]*synth.Descriptor)
			}
			rule.QueryParams[param.Name] = desc
		}
	}

	if body := op.RequestBodySchema(); body != nil {
		desc, err := b.schemaType(body)
		if err != nil {
			return nil, fmt.Errorf("operation %s request body: %w", op.ID, err)
		}
		rule.BodySchema = desc
	}
	return rule, nil
}

// schemaType normalizes and synthesizes one schema. A nil schema
// defaults to string, matching untyped parameters.
func (b *Builder) schemaType(schema map[string]interface{}) (*synth.Descriptor, error) {
	node, err := b.resolver.Normalize(schema)
	if err != nil {
		return nil, err
	}
	return b.synthesizer.SchemaToType(node)
}

// wireLinks reads the operation's success-response links and wires
// producer output bindings, consumer input bindings, preconditions,
// and the shared bundle for each.
func (b *Builder) wireLinks(graph *Graph, op openapi.Operation) error {
	producer := graph.Rules[op.ID]

	for status, response := range op.Responses() {
		if !successStatus(status) {
			continue
		}
		links, err := b.responseLinks(response)
		if err != nil {
			return fmt.Errorf("operation %s response %s: %w", op.ID, status, err)
		}
		for _, link := range links {
			if err := b.wireLink(graph, producer, link); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolvedLink is one link object with its $ref already chased.
type resolvedLink struct {
	targetOperation string
	parameters      map[string]string
}

// responseLinks extracts the link objects from one response, resolving
// local $ref links against components/links. Link names sort so the
// wiring order is deterministic.
func (b *Builder) responseLinks(response map[string]interface{}) ([]resolvedLink, error) {
	rawLinks, ok := mapValue(response, "links")
	if !ok {
		return nil, nil
	}

	names := make([]string, 0, len(rawLinks))
	for name := range rawLinks {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []resolvedLink
	for _, name := range names {
		link, ok := mapValue(rawLinks, name)
		if !ok {
			continue
		}
		if ref, isRef := link["$ref"].(string); isRef {
			resolved, _, err := b.resolver.ResolveRef(ref)
			if err != nil {
				return nil, err
			}
			link = resolved
		}

		target, _ := link["operationId"].(string)
		if target == "" {
			// operationRef targets need a full document walk; only
			// operationId links participate in wiring.
			continue
		}

		params := make(map[string]string)
		if rawParams, ok := mapValue(link, "parameters"); ok {
			for param, expr := range rawParams {
				if s, isString := expr.(string); isString {
					params[param] = s
				}
			}
		}
		out = append(out, resolvedLink{targetOperation: target, parameters: params})
	}
	return out, nil
}

// wireLink applies one resolved link: each $response.body#/ parameter
// expression creates a bundle named after the field, binds the
// producer's response field into it, and binds the consumer parameter
// to draw from it.
func (b *Builder) wireLink(graph *Graph, producer *stateful.Rule, link resolvedLink) error {
	consumer, ok := graph.Rules[link.targetOperation]
	if !ok {
		return &errors.ValidationError{
			Field:      "links",
			Message:    fmt.Sprintf("link from %s targets unknown operation %q", producer.OperationID, link.targetOperation),
			Suggestion: "check that the linked operationId matches an operation in the document",
		}
	}

	params := make([]string, 0, len(link.parameters))
	for param := range link.parameters {
		params = append(params, param)
	}
	sort.Strings(params)

	for _, param := range params {
		expr := link.parameters[param]
		if !strings.HasPrefix(expr, responseBodyPrefix) {
			// Constant values and request-sourced expressions do not
			// create bundles.
			continue
		}
		pointer := strings.TrimPrefix(expr, responseBodyPrefix)
		if pointer == "" {
			continue
		}
		bundle := BundleName(pointer)

		if _, exists := graph.Bundles[bundle]; !exists {
			graph.Bundles[bundle] = &stateful.Bundle{
				Name:        bundle,
				Description: fmt.Sprintf("values of %s produced by %s", pointer, producer.OperationID),
			}
		}

		if producer.OutputBindings == nil {
			producer.OutputBindings = make(map[string]string)
		}
		producer.OutputBindings[pointer] = bundle

		if consumer.InputBindings == nil {
			consumer.InputBindings = make(map[string]string)
		}
		if _, bound := consumer.InputBindings[param]; !bound {
			consumer.InputBindings[param] = bundle
			consumer.Preconditions = append(consumer.Preconditions, nonEmptyBundle(bundle))
		}

		graph.Links = append(graph.Links, stateful.Link{
			From:      producer.OperationID,
			To:        consumer.OperationID,
			Bundle:    bundle,
			Parameter: param,
		})
	}
	return nil
}

// BundleName derives the bundle name for a response field pointer:
// the last path segment suffixed with "_bundle", so "data/id" and
// "id" both land in "id_bundle".
func BundleName(pointer string) string {
	segments := strings.Split(pointer, "/")
	return segments[len(segments)-1] + "_bundle"
}

func nonEmptyBundle(name string) stateful.Precondition {
	return func(store *stateful.Store) bool { return store.Len(name) > 0 }
}

// successStatus reports whether a response status key is a 2xx code
// or a 2XX range pattern.
func successStatus(status string) bool {
	if strings.EqualFold(status, "2XX") {
		return true
	}
	code, err := strconv.Atoi(status)
	if err != nil {
		return false
	}
	return code >= 200 && code < 300
}

func mapValue(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	switch v := m[key].(type) {
	case map[string]interface{}:
		return v, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	default:
		return nil, false
	}
}
