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

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/roundtrip/pkg/stateful"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(name string, passed bool) *stateful.Result {
	r := stateful.NewResult(name, 42)
	r.AddTransition(stateful.TransitionRecord{
		StepNumber:  1,
		OperationID: "create_user",
		Method:      "POST",
		Path:        "/users",
		StatusCode:  201,
		Timestamp:   time.Now().UTC(),
	})
	if !passed {
		r.AddTransition(stateful.TransitionRecord{
			StepNumber:  2,
			OperationID: "get_user",
			StatusCode:  500,
			Error:       "server error",
		})
	}
	return r
}

func TestSaveAndGetRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.SaveResult(ctx, sampleResult("sequence_000", true))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sequence_000", loaded.TestName)
	assert.True(t, loaded.Passed)
	require.Len(t, loaded.Transitions, 1)
	assert.Equal(t, "create_user", loaded.Transitions[0].OperationID)
	assert.Equal(t, int64(42), loaded.Seed)
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SaveResult(ctx, sampleResult("sequence_000", true))
	require.NoError(t, err)
	_, err = store.SaveResult(ctx, sampleResult("sequence_001", false))
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	names := []string{runs[0].TestName, runs[1].TestName}
	assert.ElementsMatch(t, []string{"sequence_000", "sequence_001"}, names)

	for _, run := range runs {
		if run.TestName == "sequence_001" {
			assert.False(t, run.Passed)
			assert.Equal(t, 2, run.TotalSteps)
		}
	}
}

func TestListRuns_Limit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.SaveResult(ctx, sampleResult("seq", true))
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestGetRun_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRun(context.Background(), "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
