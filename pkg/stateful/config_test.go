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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/roundtrip/pkg/errors"
)

func TestEffectiveTimeout_ClampsToRemainingBudget(t *testing.T) {
	cfg := &Config{
		TimeoutPerStep: 30 * time.Second,
		TimeoutTotal:   100 * time.Second,
	}

	tests := []struct {
		step int
		want time.Duration
	}{
		{1, 30 * time.Second},
		{2, 30 * time.Second},
		{3, 30 * time.Second},
		{4, 10 * time.Second}, // only 10s of the 100s budget left
		{5, time.Second},      // budget exhausted, floor applies
		{6, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.EffectiveTimeout(tt.step), "step %d", tt.step)
	}
}

func TestEffectiveTimeout_NoTotalBudget(t *testing.T) {
	cfg := &Config{TimeoutPerStep: 7 * time.Second}
	assert.Equal(t, 7*time.Second, cfg.EffectiveTimeout(100))
}

func TestEffectiveTimeout_Defaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultTimeoutPerStep, cfg.EffectiveTimeout(1))
}

func TestShouldInclude(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		op      string
		want    bool
	}{
		{"no filters", nil, nil, "get_users", true},
		{"include match", []string{"get_*"}, nil, "get_users", true},
		{"include miss", []string{"get_*"}, nil, "create_user", false},
		{"exclude match", nil, []string{"delete_*"}, "delete_user", false},
		{"exclude wins over include", []string{"*"}, []string{"delete_*"}, "delete_user", false},
		{"multiple includes", []string{"get_*", "create_*"}, nil, "create_user", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				IncludeOperations: tt.include,
				ExcludeOperations: tt.exclude,
			}
			assert.Equal(t, tt.want, cfg.ShouldInclude(tt.op))
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.StepCount = 0
	err := cfg.Validate()
	require.Error(t, err)
	var valErr *errors.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "step_count", valErr.Field)

	cfg = DefaultConfig()
	cfg.IncludeOperations = []string{"[bad"}
	require.Error(t, cfg.Validate())
}

func TestMerge_OverlayWins(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		StepCount: 25,
		Seed:      99,
		FailFast:  true,
	}

	merged := base.Merge(overlay)

	assert.Equal(t, 25, merged.StepCount)
	assert.Equal(t, int64(99), merged.Seed)
	assert.True(t, merged.FailFast)
	// Untouched fields keep the base values.
	assert.Equal(t, DefaultMaxExamples, merged.MaxExamples)
	assert.Equal(t, DefaultTimeoutPerStep, merged.TimeoutPerStep)

	// The base itself is not mutated.
	assert.Equal(t, DefaultStepCount, base.StepCount)
}

func TestMerge_NilOverlay(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(nil)
	assert.Equal(t, base.StepCount, merged.StepCount)
}
