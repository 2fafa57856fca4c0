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
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/roundtrip/pkg/errors"
)

// Defaults applied by DefaultConfig.
const (
	DefaultStepCount      = 10
	DefaultMaxExamples    = 10
	DefaultRecursionLimit = 3
	DefaultTimeoutPerStep = 30 * time.Second
	DefaultTimeoutTotal   = 5 * time.Minute
	DefaultHookTimeout    = 10 * time.Second

	// minStepTimeout is the floor for a step deadline once the total
	// budget is nearly spent.
	minStepTimeout = time.Second
)

// Hooks are optional user callbacks around sequence execution. Each
// runs under HookTimeout; a hook error aborts the sequence.
type Hooks struct {
	// Setup runs once before a sequence's first step.
	Setup func(ctx context.Context, store *Store) error

	// Teardown runs after a sequence ends, pass or fail.
	Teardown func(ctx context.Context, store *Store) error

	// BeforeCall runs before each invocation and may mutate the request.
	BeforeCall func(ctx context.Context, req *Request) error

	// AfterCall runs after each successful invocation.
	AfterCall func(ctx context.Context, req *Request, resp *Response) error

	// OnError runs when an invocation fails. It observes, it cannot
	// recover the step.
	OnError func(ctx context.Context, req *Request, err error)

	// Timeout bounds each hook call. Zero uses DefaultHookTimeout.
	Timeout time.Duration
}

// EffectiveTimeout returns the deadline for one hook call.
func (h *Hooks) EffectiveTimeout() time.Duration {
	if h == nil || h.Timeout <= 0 {
		return DefaultHookTimeout
	}
	return h.Timeout
}

// Config controls sequence execution.
type Config struct {
	// StepCount is the number of steps per sequence.
	StepCount int

	// MaxExamples is the number of sequences the runner executes.
	MaxExamples int

	// RecursionLimit caps consecutive invocations of the same
	// operation. Once an operation has run that many times in a row it
	// becomes ineligible until a different operation runs.
	RecursionLimit int

	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64

	// TimeoutPerStep bounds one invocation, TimeoutTotal bounds a whole
	// sequence. The per-step deadline shrinks as the total budget runs
	// out, never below one second.
	TimeoutPerStep time.Duration
	TimeoutTotal   time.Duration

	// FailFast aborts the sequence on the first failed step.
	FailFast bool

	// CollectCoverage enables coverage aggregation across sequences.
	CollectCoverage bool

	// IncludeOperations and ExcludeOperations filter operations by
	// glob pattern ("get_*", "admin_**"). Empty include means all.
	// Exclude wins over include.
	IncludeOperations []string
	ExcludeOperations []string

	// InitialState seeds bundle pools before the first step, keyed by
	// bundle name.
	InitialState map[string][]interface{}

	// Weights overrides per-operation selection weights.
	Weights map[string]float64

	// Hooks are optional lifecycle callbacks.
	Hooks *Hooks
}

// DefaultConfig returns a config with standard limits.
func DefaultConfig() *Config {
	return &Config{
		StepCount:       DefaultStepCount,
		MaxExamples:     DefaultMaxExamples,
		RecursionLimit:  DefaultRecursionLimit,
		TimeoutPerStep:  DefaultTimeoutPerStep,
		TimeoutTotal:    DefaultTimeoutTotal,
		CollectCoverage: true,
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.StepCount <= 0 {
		return &errors.ValidationError{
			Field:      "step_count",
			Message:    "must be positive",
			Suggestion: "set step_count to at least 1",
		}
	}
	if c.MaxExamples <= 0 {
		return &errors.ValidationError{
			Field:      "max_examples",
			Message:    "must be positive",
			Suggestion: "set max_examples to at least 1",
		}
	}
	if c.RecursionLimit < 0 {
		return &errors.ValidationError{
			Field:      "recursion_limit",
			Message:    "must not be negative",
			Suggestion: "use 0 to disable the limit",
		}
	}
	if c.TimeoutPerStep < 0 || c.TimeoutTotal < 0 {
		return &errors.ValidationError{
			Field:      "timeout",
			Message:    "timeouts must not be negative",
			Suggestion: "use 0 to fall back to the defaults",
		}
	}
	for _, pattern := range append(append([]string{}, c.IncludeOperations...), c.ExcludeOperations...) {
		if !doublestar.ValidatePattern(pattern) {
			return &errors.ValidationError{
				Field:      "operations",
				Message:    "invalid glob pattern: " + pattern,
				Suggestion: "use patterns like \"get_*\" or \"admin_**\"",
			}
		}
	}
	return nil
}

// EffectiveTimeout returns the deadline for the given 1-based step,
// clamping the per-step budget to what remains of the total budget.
// The result never drops below one second so a step at the edge of the
// budget still gets a chance to complete.
func (c *Config) EffectiveTimeout(step int) time.Duration {
	per := c.TimeoutPerStep
	if per <= 0 {
		per = DefaultTimeoutPerStep
	}
	total := c.TimeoutTotal
	if total <= 0 {
		return per
	}

	remaining := total - time.Duration(step-1)*per
	if remaining < minStepTimeout {
		remaining = minStepTimeout
	}
	if per < remaining {
		return per
	}
	return remaining
}

// ShouldInclude reports whether the operation passes the
// include/exclude glob filters. Exclusion wins.
func (c *Config) ShouldInclude(operationID string) bool {
	for _, pattern := range c.ExcludeOperations {
		if ok, _ := doublestar.Match(pattern, operationID); ok {
			return false
		}
	}
	if len(c.IncludeOperations) == 0 {
		return true
	}
	for _, pattern := range c.IncludeOperations {
		if ok, _ := doublestar.Match(pattern, operationID); ok {
			return true
		}
	}
	return false
}

// Merge overlays non-zero fields of other onto a copy of c. Command
// line flags merge over file config this way.
func (c *Config) Merge(other *Config) *Config {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.StepCount > 0 {
		merged.StepCount = other.StepCount
	}
	if other.MaxExamples > 0 {
		merged.MaxExamples = other.MaxExamples
	}
	if other.RecursionLimit > 0 {
		merged.RecursionLimit = other.RecursionLimit
	}
	if other.Seed != 0 {
		merged.Seed = other.Seed
	}
	if other.TimeoutPerStep > 0 {
		merged.TimeoutPerStep = other.TimeoutPerStep
	}
	if other.TimeoutTotal > 0 {
		merged.TimeoutTotal = other.TimeoutTotal
	}
	if other.FailFast {
		merged.FailFast = true
	}
	if other.CollectCoverage {
		merged.CollectCoverage = true
	}
	if len(other.IncludeOperations) > 0 {
		merged.IncludeOperations = other.IncludeOperations
	}
	if len(other.ExcludeOperations) > 0 {
		merged.ExcludeOperations = other.ExcludeOperations
	}
	if len(other.InitialState) > 0 {
		merged.InitialState = other.InitialState
	}
	if len(other.Weights) > 0 {
		merged.Weights = other.Weights
	}
	if other.Hooks != nil {
		merged.Hooks = other.Hooks
	}
	return &merged
}
