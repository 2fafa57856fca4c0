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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes sequence execution counters. A nil *Metrics is valid
// and records nothing, so embedded use stays optional.
type Metrics struct {
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	sequencesRun  prometheus.Counter
	bundleSamples *prometheus.CounterVec
}

// NewMetrics registers execution metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roundtrip_steps_total",
			Help: "Steps executed, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roundtrip_step_duration_seconds",
			Help:    "Wall time per step, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sequencesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "roundtrip_sequences_total",
			Help: "Sequences executed.",
		}),
		bundleSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roundtrip_bundle_values_total",
			Help: "Values appended to bundles, by bundle name.",
		}, []string{"bundle"}),
	}
}

func (m *Metrics) observeStep(operation string, success bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.stepsTotal.WithLabelValues(operation, outcome).Inc()
	m.stepDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) observeSequence() {
	if m == nil {
		return
	}
	m.sequencesRun.Inc()
}

func (m *Metrics) observeBundlePut(bundle string) {
	if m == nil {
		return
	}
	m.bundleSamples.WithLabelValues(bundle).Inc()
}
