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

package stateful

import (
	"context"

	"github.com/tombee/roundtrip/pkg/synth"
)

// Precondition gates a rule's eligibility against the current store.
// Link-derived rules get one per consumed bundle (pool must be
// non-empty); user config can add expression-based ones on top.
type Precondition func(store *Store) bool

// Rule describes one API operation as a state machine transition:
// which parameters it needs, where their values come from, and which
// response fields feed back into bundles.
type Rule struct {
	// OperationID is the unique operation name, e.g. "create_user".
	OperationID string

	// Method and Path locate the operation, with path templates intact
	// ("/users/{userId}").
	Method string
	Path   string

	// PathParams and QueryParams map parameter names to their value
	// types, used when no bundle feeds the parameter.
	PathParams  map[string]*synth.Descriptor
	QueryParams map[string]*synth.Descriptor

	// BodySchema is the request body type, nil when the operation takes
	// no body.
	BodySchema *synth.Descriptor

	// InputBindings maps parameter names to the bundle each draws from.
	InputBindings map[string]string

	// OutputBindings maps response body fields, as slash paths ("id",
	// "data/id"), to the bundle each one fills. Distinct fields may
	// feed the same bundle.
	OutputBindings map[string]string

	// Preconditions must all hold for the rule to be eligible.
	Preconditions []Precondition

	// Condition is an optional expression evaluated against the bundle
	// snapshot, e.g. `size(bundles.id_bundle) < 5`. Empty means true.
	Condition string

	// Weight biases random selection among eligible rules. Zero is
	// treated as the default weight of 1.
	Weight float64
}

// EffectiveWeight returns the selection weight, defaulting zero to 1.
func (r *Rule) EffectiveWeight() float64 {
	if r.Weight <= 0 {
		return 1
	}
	return r.Weight
}

// Eligible reports whether every precondition holds for the store.
func (r *Rule) Eligible(store *Store) bool {
	for _, pre := range r.Preconditions {
		if !pre(store) {
			return false
		}
	}
	return true
}

// Link records a producer/consumer edge between two operations, derived
// from response links in the API description.
type Link struct {
	// From produced the value, To consumes it.
	From string
	To   string

	// Bundle is the pool the value travels through.
	Bundle string

	// Parameter is the consumer parameter the bundle feeds.
	Parameter string
}

// Request is one outgoing operation invocation, before parameter
// substitution into the path template.
type Request struct {
	OperationID string
	Method      string
	Path        string
	PathParams  map[string]interface{}
	QueryParams map[string]interface{}
	Body        interface{}
	Headers     map[string]string
}

// Response is the decoded result of an invocation.
type Response struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

// Invoker executes requests against the system under test. The HTTP
// client implements this; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req *Request) (*Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
