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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/synth"
)

// scriptedInvoker replays canned responses per operation and records
// every request it sees.
type scriptedInvoker struct {
	mu       sync.Mutex
	requests []*Request
	handler  func(call int, req *Request) (*Response, error)
	calls    int
}

func (s *scriptedInvoker) Invoke(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	return s.handler(s.calls, req)
}

func (s *scriptedInvoker) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request{}, s.requests...)
}

func bundlePrecondition(name string) Precondition {
	return func(store *Store) bool { return store.Len(name) > 0 }
}

// userRules models the canonical create/get pair: create_user produces
// ids into id_bundle, get_user consumes them.
func userRules() []*Rule {
	return []*Rule{
		{
			OperationID: "create_user",
			Method:      "POST",
			Path:        "/users",
			BodySchema: &synth.Descriptor{
				Kind: synth.KindRecord,
				Name: "CreateUser",
				Fields: []synth.Field{
					{Name: "name", Type: synth.String, Required: true},
				},
			},
			OutputBindings: map[string]string{"id": "id_bundle"},
		},
		{
			OperationID:   "get_user",
			Method:        "GET",
			Path:          "/users/{userId}",
			PathParams:    map[string]*synth.Descriptor{"userId": synth.String},
			InputBindings: map[string]string{"userId": "id_bundle"},
			Preconditions: []Precondition{bundlePrecondition("id_bundle")},
		},
	}
}

func userInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		handler: func(call int, req *Request) (*Response, error) {
			if req.OperationID == "create_user" {
				return &Response{
					StatusCode: 201,
					Body:       map[string]interface{}{"id": fmt.Sprintf("u-%d", call)},
				}, nil
			}
			return &Response{StatusCode: 200, Body: map[string]interface{}{"id": req.PathParams["userId"]}}, nil
		},
	}
}

func TestMachine_ConsumerNeverRunsOnEmptyBundle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 20
	cfg.Seed = 7
	cfg.RecursionLimit = 0

	invoker := userInvoker()
	m := NewMachine(cfg, userRules(), nil, invoker)

	result, err := m.Run(context.Background(), "users")
	require.NoError(t, err)
	require.NotEmpty(t, result.Transitions)

	// The very first step can only be the producer.
	assert.Equal(t, "create_user", result.Transitions[0].OperationID)

	// Every consumed userId must be one some earlier step produced.
	produced := make(map[interface{}]bool)
	for _, rec := range result.Transitions {
		if rec.OperationID == "create_user" {
			require.Contains(t, rec.BundleValuesProduced, "id_bundle")
			produced[rec.BundleValuesProduced["id_bundle"]] = true
			continue
		}
		require.NotEmpty(t, produced, "get_user ran before any id existed")
		assert.True(t, produced[rec.PathParams["userId"]],
			"userId %v was never produced", rec.PathParams["userId"])
	}
}

func TestMachine_HarvestFillsBundles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 1
	cfg.Seed = 1

	m := NewMachine(cfg, userRules(), nil, userInvoker())
	result, err := m.Run(context.Background(), "harvest")
	require.NoError(t, err)

	require.Len(t, result.Transitions, 1)
	rec := result.Transitions[0]
	assert.Equal(t, "create_user", rec.OperationID)
	assert.Equal(t, 201, rec.StatusCode)
	assert.Equal(t, map[string]interface{}{"id_bundle": "u-1"}, rec.BundleValuesProduced)
	assert.Equal(t, 1, m.Store().Len("id_bundle"))
}

func TestMachine_NoEligibleRulesEndsSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 10

	rules := []*Rule{{
		OperationID:   "get_user",
		Method:        "GET",
		Path:          "/users/{userId}",
		Preconditions: []Precondition{bundlePrecondition("id_bundle")},
	}}

	m := NewMachine(cfg, rules, nil, userInvoker())
	result, err := m.Run(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, result.Transitions)
	assert.True(t, result.Passed)
}

func pingRule() []*Rule {
	return []*Rule{{OperationID: "ping", Method: "GET", Path: "/ping"}}
}

func statusScript(statuses ...int) *scriptedInvoker {
	return &scriptedInvoker{
		handler: func(call int, _ *Request) (*Response, error) {
			status := statuses[(call-1)%len(statuses)]
			return &Response{StatusCode: status}, nil
		},
	}
}

func TestMachine_FailedStepContinuesWithoutFailFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 3
	cfg.RecursionLimit = 0
	cfg.FailFast = false
	cfg.Seed = 3

	m := NewMachine(cfg, pingRule(), nil, statusScript(200, 500, 200))
	result, err := m.Run(context.Background(), "flaky")
	require.NoError(t, err)

	assert.Len(t, result.Transitions, 3)
	assert.Equal(t, 3, result.TotalSteps)
	assert.Equal(t, 2, result.SuccessfulSteps)
	assert.Equal(t, 1, result.FailedSteps)
	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "500")
}

func TestMachine_FailFastAborts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 5
	cfg.RecursionLimit = 0
	cfg.FailFast = true
	cfg.Seed = 3

	m := NewMachine(cfg, pingRule(), nil, statusScript(200, 500, 200))
	result, err := m.Run(context.Background(), "flaky")

	require.Error(t, err)
	var abort *errors.WorkflowAbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, 2, abort.Step)

	// The partial result still carries both attempted steps.
	assert.Len(t, result.Transitions, 2)
	assert.False(t, result.Passed)
}

func TestMachine_InvocationErrorIsRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 1

	invoker := &scriptedInvoker{
		handler: func(int, *Request) (*Response, error) {
			return nil, &errors.TimeoutError{Operation: "ping", Duration: time.Second}
		},
	}

	m := NewMachine(cfg, pingRule(), nil, invoker)
	result, err := m.Run(context.Background(), "down")
	require.NoError(t, err)

	require.Len(t, result.Transitions, 1)
	rec := result.Transitions[0]
	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, 0, rec.StatusCode)
	assert.False(t, result.Passed)
}

func TestMachine_RecursionLimitEndsRepetition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 10
	cfg.RecursionLimit = 2

	m := NewMachine(cfg, pingRule(), nil, statusScript(200))
	result, err := m.Run(context.Background(), "loop")
	require.NoError(t, err)

	// ping is the only operation, so once it has run twice in a row
	// nothing is eligible and the sequence ends early.
	assert.Len(t, result.Transitions, 2)
	assert.True(t, result.Passed)
}

func TestMachine_ConditionExpressionGates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 10
	cfg.RecursionLimit = 0
	cfg.Seed = 5

	rules := []*Rule{{
		OperationID:    "create_user",
		Method:         "POST",
		Path:           "/users",
		OutputBindings: map[string]string{"id": "id_bundle"},
		Condition:      `size(bundles.id_bundle) < 2`,
	}}

	invoker := &scriptedInvoker{
		handler: func(call int, _ *Request) (*Response, error) {
			return &Response{
				StatusCode: 201,
				Body:       map[string]interface{}{"id": fmt.Sprintf("u-%d", call)},
			}, nil
		},
	}

	m := NewMachine(cfg, rules, nil, invoker)
	result, err := m.Run(context.Background(), "capped")
	require.NoError(t, err)

	// After two ids exist the condition turns false for good.
	assert.Len(t, result.Transitions, 2)
}

func TestMachine_InitialStateSeedsBundles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 1
	cfg.Seed = 2
	cfg.InitialState = map[string][]interface{}{
		"id_bundle": {"seeded-id"},
	}

	rules := []*Rule{{
		OperationID:   "get_user",
		Method:        "GET",
		Path:          "/users/{userId}",
		PathParams:    map[string]*synth.Descriptor{"userId": synth.String},
		InputBindings: map[string]string{"userId": "id_bundle"},
		Preconditions: []Precondition{bundlePrecondition("id_bundle")},
	}}

	invoker := userInvoker()
	m := NewMachine(cfg, rules, nil, invoker)
	result, err := m.Run(context.Background(), "seeded")
	require.NoError(t, err)

	require.Len(t, result.Transitions, 1)
	assert.Equal(t, "seeded-id", result.Transitions[0].PathParams["userId"])
}

func TestMachine_BundleMaxSizeApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 5
	cfg.RecursionLimit = 0
	cfg.Seed = 4

	bundles := map[string]*Bundle{
		"id_bundle": {Name: "id_bundle", MaxSize: 2},
	}
	rules := []*Rule{{
		OperationID:    "create_user",
		Method:         "POST",
		Path:           "/users",
		OutputBindings: map[string]string{"id": "id_bundle"},
	}}

	invoker := &scriptedInvoker{
		handler: func(call int, _ *Request) (*Response, error) {
			return &Response{StatusCode: 201, Body: map[string]interface{}{"id": call}}, nil
		},
	}

	m := NewMachine(cfg, rules, bundles, invoker)
	_, err := m.Run(context.Background(), "capped-bundle")
	require.NoError(t, err)

	assert.Equal(t, 2, m.Store().Len("id_bundle"))
}

func TestMachine_GlobFiltersDropRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepCount = 5
	cfg.RecursionLimit = 0
	cfg.ExcludeOperations = []string{"create_*"}

	invoker := userInvoker()
	m := NewMachine(cfg, userRules(), nil, invoker)

	// With create_user excluded, get_user's precondition never holds.
	result, err := m.Run(context.Background(), "filtered")
	require.NoError(t, err)
	assert.Empty(t, result.Transitions)
}

func TestMachine_DeterministicForSeed(t *testing.T) {
	run := func() []string {
		cfg := DefaultConfig()
		cfg.StepCount = 8
		cfg.RecursionLimit = 0
		cfg.Seed = 1234

		m := NewMachine(cfg, userRules(), nil, userInvoker())
		result, err := m.Run(context.Background(), "repro")
		require.NoError(t, err)

		ops := make([]string, 0, len(result.Transitions))
		for _, rec := range result.Transitions {
			ops = append(ops, rec.OperationID)
		}
		return ops
	}

	assert.Equal(t, run(), run())
}

func TestMachine_Hooks(t *testing.T) {
	var setup, before, after, teardown int

	cfg := DefaultConfig()
	cfg.StepCount = 2
	cfg.RecursionLimit = 0
	cfg.Hooks = &Hooks{
		Setup: func(_ context.Context, store *Store) error {
			setup++
			store.Put("id_bundle", "hook-id", 0)
			return nil
		},
		BeforeCall: func(_ context.Context, req *Request) error {
			before++
			if req.Headers == nil {
				req.Headers = map[string]string{}
			}
			req.Headers["X-Test"] = "1"
			return nil
		},
		AfterCall: func(_ context.Context, _ *Request, _ *Response) error {
			after++
			return nil
		},
		Teardown: func(_ context.Context, _ *Store) error {
			teardown++
			return nil
		},
	}

	invoker := statusScript(200)
	m := NewMachine(cfg, pingRule(), nil, invoker)
	result, err := m.Run(context.Background(), "hooked")
	require.NoError(t, err)

	assert.Equal(t, 1, setup)
	assert.Equal(t, 2, before)
	assert.Equal(t, 2, after)
	assert.Equal(t, 1, teardown)
	assert.Equal(t, "hook-id", m.Store().pools["id_bundle"][0])
	assert.True(t, result.Passed)

	for _, req := range invoker.Requests() {
		assert.Equal(t, "1", req.Headers["X-Test"])
	}
}

func TestMachine_SetupFailureAborts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hooks = &Hooks{
		Setup: func(context.Context, *Store) error {
			return fmt.Errorf("fixture unavailable")
		},
	}

	m := NewMachine(cfg, pingRule(), nil, statusScript(200))
	result, err := m.Run(context.Background(), "broken-setup")

	require.Error(t, err)
	var abort *errors.WorkflowAbortError
	require.True(t, errors.As(err, &abort))
	assert.Empty(t, result.Transitions)
	assert.False(t, result.Passed)
}

func TestMachine_OnErrorHookFires(t *testing.T) {
	var captured error

	cfg := DefaultConfig()
	cfg.StepCount = 1
	cfg.Hooks = &Hooks{
		OnError: func(_ context.Context, _ *Request, err error) { captured = err },
	}

	invoker := &scriptedInvoker{
		handler: func(int, *Request) (*Response, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	m := NewMachine(cfg, pingRule(), nil, invoker)
	_, err := m.Run(context.Background(), "down")
	require.NoError(t, err)
	require.Error(t, captured)
	assert.Contains(t, captured.Error(), "connection refused")
}
