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

import "time"

// TransitionRecord captures one executed step, successful or not.
// Every attempted invocation produces a record; failures carry the
// error text alongside whatever response arrived.
type TransitionRecord struct {
	StepNumber  int                    `json:"step_number"`
	OperationID string                 `json:"operation_id"`
	Method      string                 `json:"method"`
	Path        string                 `json:"path"`
	PathParams  map[string]interface{} `json:"path_params,omitempty"`
	QueryParams map[string]interface{} `json:"query_params,omitempty"`
	Body        interface{}            `json:"body,omitempty"`

	StatusCode   int         `json:"status_code"`
	ResponseBody interface{} `json:"response_body,omitempty"`
	DurationMS   int64       `json:"duration_ms"`

	// BundleValuesUsed maps parameter names to the bundle values drawn
	// for them; BundleValuesProduced maps bundle names to the values
	// extracted from the response.
	BundleValuesUsed     map[string]interface{} `json:"bundle_values_used,omitempty"`
	BundleValuesProduced map[string]interface{} `json:"bundle_values_produced,omitempty"`

	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Succeeded reports whether the step completed without error and with
// a non-server-error status.
func (t *TransitionRecord) Succeeded() bool {
	return t.Error == "" && t.StatusCode > 0 && t.StatusCode < 500
}

// Result aggregates one sequence run.
type Result struct {
	TestName        string             `json:"test_name"`
	Passed          bool               `json:"passed"`
	Transitions     []TransitionRecord `json:"transitions"`
	TotalSteps      int                `json:"total_steps"`
	SuccessfulSteps int                `json:"successful_steps"`
	FailedSteps     int                `json:"failed_steps"`
	DurationMS      int64              `json:"duration_ms"`
	Errors          []string           `json:"errors,omitempty"`
	Coverage        map[string]float64 `json:"coverage,omitempty"`
	Seed            int64              `json:"seed"`
}

// NewResult creates an empty result for the named sequence.
func NewResult(testName string, seed int64) *Result {
	return &Result{
		TestName: testName,
		Passed:   true,
		Seed:     seed,
	}
}

// AddTransition appends a record and updates the step counters. A
// failed step flips Passed and collects the error text.
func (r *Result) AddTransition(rec TransitionRecord) {
	r.Transitions = append(r.Transitions, rec)
	r.TotalSteps++
	if rec.Succeeded() {
		r.SuccessfulSteps++
		return
	}
	r.FailedSteps++
	r.Passed = false
	if rec.Error != "" {
		r.Errors = append(r.Errors, rec.Error)
	}
}
