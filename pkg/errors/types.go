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

package errors

import (
	"fmt"
	"time"
)

// SchemaResolutionError represents a failure to resolve a schema reference.
// Use this when a $ref pointer is missing, malformed, or non-local.
// Schema resolution failures are fatal to schema processing.
type SchemaResolutionError struct {
	// Ref is the reference string that failed to resolve (e.g., "#/components/schemas/User")
	Ref string

	// Reason explains why resolution failed
	Reason string
}

// Error implements the error interface.
func (e *SchemaResolutionError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("schema resolution failed for %s: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("schema resolution failed: %s", e.Reason)
}

// TypeSynthesisError represents a schema shape that cannot be turned into
// a type descriptor. The synthesizer degrades to generic fallback types
// wherever possible, so this error is reserved for genuinely
// unrepresentable schemas.
type TypeSynthesisError struct {
	// Schema identifies the schema fragment (ref name or generated name)
	Schema string

	// Reason explains what made the schema unrepresentable
	Reason string
}

// Error implements the error interface.
func (e *TypeSynthesisError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("cannot synthesize type for %s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("cannot synthesize type: %s", e.Reason)
}

// DuplicateRegistrationError represents an attempt to register a value
// generator for a type key that already has one, without override set.
type DuplicateRegistrationError struct {
	// Key is the type key that was already registered
	Key string
}

// Error implements the error interface.
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("generator for %q already registered (use override to replace)", e.Key)
}

// InvocationError represents a failed operation invocation: a timeout,
// a transport failure, or a server error response (status >= 500).
// Whether it propagates or is only recorded depends on fail_fast.
type InvocationError struct {
	// OperationID identifies the operation that failed
	OperationID string

	// StatusCode is the HTTP status code, if a response was received
	StatusCode int

	// Message is the human-readable error description
	Message string

	// Cause is the underlying error (transport or timeout), if any
	Cause error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("invoking %s failed", e.OperationID)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// WorkflowAbortError represents a sequence aborted mid-run because a
// step, time, or recursion budget was exhausted while fail_fast was set.
type WorkflowAbortError struct {
	// Sequence names the aborted sequence
	Sequence string

	// Step is the step number at which the sequence aborted
	Step int

	// Reason explains which budget was exhausted or which step failed
	Reason string

	// Cause is the underlying error, if the abort was triggered by one
	Cause error
}

// Error implements the error interface.
func (e *WorkflowAbortError) Error() string {
	return fmt.Sprintf("sequence %s aborted at step %d: %s", e.Sequence, e.Step, e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *WorkflowAbortError) Unwrap() error {
	return e.Cause
}

// ValidationError represents user input validation failures.
// Use this for invalid configuration values, malformed expressions,
// or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "stateful.step_count")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "hook", "step")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
