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

package generate

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/roundtrip/pkg/synth"
)

// maxCollectionSize bounds generated lists and maps.
const maxCollectionSize = 10

const textAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// dateRange bounds generated dates to a plausible window: the thirty
// years starting at 2000-01-01 UTC.
var dateRangeStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const dateRangeSeconds = 30 * 365 * 24 * 60 * 60

// defaultGenerators returns the built-in strategy for every scalar kind.
func defaultGenerators() map[string]Generator {
	return map[string]Generator{
		synth.String.Key():   genText,
		synth.Integer.Key():  genInteger,
		synth.Number.Key():   genNumber,
		synth.Boolean.Key():  genBoolean,
		synth.UUID.Key():     genUUID,
		synth.DateTime.Key(): genDateTime,
		synth.Date.Key():     genDate,
		synth.Email.Key():    genEmail,
	}
}

func genText(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return randomText(r)
}

func genInteger(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return r.Intn(2001) - 1000
}

func genNumber(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return r.Float64()*2000 - 1000
}

func genBoolean(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return r.Intn(2) == 1
}

func genUUID(r *rand.Rand, _ *synth.Descriptor) interface{} {
	// Drawing the bytes from r keeps generated UUIDs reproducible per seed.
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func genDateTime(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return randomTime(r).Format(time.RFC3339)
}

func genDate(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return randomTime(r).Format("2006-01-02")
}

func genEmail(r *rand.Rand, _ *synth.Descriptor) interface{} {
	return fmt.Sprintf("%s@example.com", randomText(r))
}

func randomTime(r *rand.Rand) time.Time {
	return dateRangeStart.Add(time.Duration(r.Int63n(dateRangeSeconds)) * time.Second)
}

// randomText produces 1 to 20 characters from a plain alphanumeric
// alphabet, small enough to keep request logs readable.
func randomText(r *rand.Rand) string {
	n := 1 + r.Intn(20)
	b := make([]byte, n)
	for i := range b {
		b[i] = textAlphabet[r.Intn(len(textAlphabet))]
	}
	return string(b)
}
