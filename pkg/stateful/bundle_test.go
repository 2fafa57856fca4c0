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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestStore_DrawFromEmptyPool(t *testing.T) {
	s := NewStore()

	_, ok := s.Draw("id_bundle", testRand())
	assert.False(t, ok)
}

func TestStore_DrawIsNonDestructive(t *testing.T) {
	s := NewStore()
	s.Put("id_bundle", "42", 0)

	for i := 0; i < 5; i++ {
		v, ok := s.Draw("id_bundle", testRand())
		require.True(t, ok)
		assert.Equal(t, "42", v)
	}
	assert.Equal(t, 1, s.Len("id_bundle"))
}

func TestStore_DrawCoversWholePool(t *testing.T) {
	s := NewStore()
	s.Put("id_bundle", "a", 0)
	s.Put("id_bundle", "b", 0)
	s.Put("id_bundle", "c", 0)

	r := testRand()
	seen := make(map[interface{}]bool)
	for i := 0; i < 100; i++ {
		v, ok := s.Draw("id_bundle", r)
		require.True(t, ok)
		seen[v] = true
	}
	assert.Len(t, seen, 3)
}

func TestStore_MaxSizeEvictsOldest(t *testing.T) {
	s := NewStore()
	for _, v := range []string{"a", "b", "c", "d"} {
		s.Put("id_bundle", v, 3)
	}

	assert.Equal(t, 3, s.Len("id_bundle"))

	snapshot := s.Snapshot()
	assert.Equal(t, []interface{}{"b", "c", "d"}, snapshot["id_bundle"])
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.Put("id_bundle", "42", 0)
	s.Put("name_bundle", "alice", 0)

	s.Reset()

	assert.Equal(t, 0, s.Len("id_bundle"))
	assert.Empty(t, s.Names())
}

func TestStore_NamesSkipsEmptyPools(t *testing.T) {
	s := NewStore()
	s.Put("b_bundle", 1, 0)
	s.Put("a_bundle", 2, 0)

	assert.Equal(t, []string{"a_bundle", "b_bundle"}, s.Names())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Put("id_bundle", "42", 0)

	snapshot := s.Snapshot()
	snapshot["id_bundle"][0] = "mutated"

	v, ok := s.Draw("id_bundle", testRand())
	require.True(t, ok)
	assert.Equal(t, "42", v)
}
