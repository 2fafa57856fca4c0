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

// Package jq provides jq-based extraction of fields from response bodies.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout is the default execution time for extraction queries (1 second)
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the default maximum response body size for extraction (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor evaluates field-extraction queries against decoded response
// bodies with timeout and size limits. Compiled queries are cached, so
// repeated extraction of the same field across workflow steps does not
// re-parse the expression.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates a new extraction executor with the given configuration.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
}

// ExtractField extracts the value at the given field pointer from a decoded
// response body. The pointer is a slash-separated path relative to the body
// root, as it appears in OpenAPI runtime expressions ("id", "data/id").
//
// Returns the extracted value and whether it was present. A null value in
// the body is treated as absent.
func (e *Executor) ExtractField(ctx context.Context, pointer string, body interface{}) (interface{}, bool, error) {
	if pointer == "" {
		return nil, false, fmt.Errorf("field pointer cannot be empty")
	}

	if err := e.validateInputSize(body); err != nil {
		return nil, false, err
	}

	code, err := e.compile(pointer)
	if err != nil {
		return nil, false, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	iter := code.RunWithContext(execCtx, body)
	v, ok := iter.Next()
	if !ok {
		return nil, false, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, false, fmt.Errorf("extraction error for %q: %w", pointer, err)
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// compile builds and caches the gojq program for a field pointer.
// "data/id" compiles to `.["data"]["id"]?` so missing intermediate
// objects yield null instead of a runtime error.
func (e *Executor) compile(pointer string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[pointer]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	var b strings.Builder
	b.WriteString(".")
	for _, segment := range strings.Split(pointer, "/") {
		if segment == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(strconv.Quote(segment))
		b.WriteString("]")
	}
	b.WriteString("?")

	query, err := gojq.Parse(b.String())
	if err != nil {
		return nil, fmt.Errorf("parse error for pointer %q: %w", pointer, err)
	}

	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile error for pointer %q: %w", pointer, err)
	}

	e.mu.Lock()
	e.cache[pointer] = code
	e.mu.Unlock()

	return code, nil
}

// validateInputSize checks that the body does not exceed the configured limit.
func (e *Executor) validateInputSize(body interface{}) error {
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		// Not JSON-serializable; size cannot be checked, let extraction decide
		return nil
	}
	if int64(len(data)) > e.maxInputSize {
		return fmt.Errorf("response body size %d exceeds maximum %d", len(data), e.maxInputSize)
	}
	return nil
}
