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

package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/roundtrip/pkg/errors"
)

func bundleCtx(bundles map[string][]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"bundles": bundles,
		"state":   map[string]interface{}{},
		"step":    1,
	}
}

func TestEvaluate_EmptyExpressionDefaultsTrue(t *testing.T) {
	e := New()

	result, err := e.Evaluate("", nil)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_BundleSize(t *testing.T) {
	e := New()
	ctx := bundleCtx(map[string][]interface{}{
		"id_bundle": {"1", "2"},
	})

	result, err := e.Evaluate(`size(bundles.id_bundle) > 0`, ctx)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = e.Evaluate(`size(bundles.id_bundle) > 5`, ctx)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluate_Has(t *testing.T) {
	e := New()
	ctx := bundleCtx(map[string][]interface{}{
		"status_bundle": {"active", "deleted"},
	})

	result, err := e.Evaluate(`has(bundles.status_bundle, "active")`, ctx)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = e.Evaluate(`has(bundles.status_bundle, "archived")`, ctx)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluate_StateAndStep(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"bundles": map[string][]interface{}{},
		"state":   map[string]interface{}{"tenant": "acme"},
		"step":    3,
	}

	result, err := e.Evaluate(`state.tenant == "acme" && step < 10`, ctx)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_CompileError(t *testing.T) {
	e := New()

	_, err := e.Evaluate(`size(`, bundleCtx(nil))
	require.Error(t, err)

	var valErr *errors.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "precondition", valErr.Field)
	assert.NotEmpty(t, valErr.Suggestion)
}

func TestEvaluate_CachesCompiledPrograms(t *testing.T) {
	e := New()
	ctx := bundleCtx(map[string][]interface{}{"id_bundle": {"1"}})

	_, err := e.Evaluate(`size(bundles.id_bundle) > 0`, ctx)
	require.NoError(t, err)
	_, err = e.Evaluate(`size(bundles.id_bundle) > 0`, ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluate_MissingBundleIsNil(t *testing.T) {
	e := New()

	// Referencing an absent bundle must not panic; size(nil) is 0.
	result, err := e.Evaluate(`size(bundles.missing) == 0`, bundleCtx(map[string][]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result)
}
