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
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tombee/roundtrip/pkg/generate"
)

// Runner executes a batch of sequences over the same rule set. Each
// sequence gets a fresh machine and a seed derived from the configured
// one, so sequence i is reproducible in isolation.
type Runner struct {
	cfg       *Config
	rules     []*Rule
	bundles   map[string]*Bundle
	links     []Link
	invoker   Invoker
	generator *generate.Registry
	logger    *slog.Logger
	metrics   *Metrics

	results   []*Result
	collector *Collector
}

// RunnerOption customizes a runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger passed down to machines.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRunnerMetrics attaches metrics passed down to machines.
func WithRunnerMetrics(metrics *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = metrics }
}

// WithRunnerGenerator overrides the value generator registry.
func WithRunnerGenerator(g *generate.Registry) RunnerOption {
	return func(r *Runner) { r.generator = g }
}

// NewRunner builds a runner over the rule set.
func NewRunner(cfg *Config, rules []*Rule, bundles map[string]*Bundle, links []Link, invoker Invoker, opts ...RunnerOption) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	operations := make([]string, 0, len(rules))
	for _, rule := range rules {
		if cfg.ShouldInclude(rule.OperationID) {
			operations = append(operations, rule.OperationID)
		}
	}

	r := &Runner{
		cfg:       cfg,
		rules:     rules,
		bundles:   bundles,
		links:     links,
		invoker:   invoker,
		generator: generate.New(),
		logger:    slog.Default(),
		collector: NewCollector(operations, links),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cfg.MaxExamples sequences. A sequence abort under
// FailFast stops the whole batch; other failures are recorded in the
// per-sequence results and the batch continues.
func (r *Runner) Run(ctx context.Context) error {
	baseSeed := r.cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	for i := 0; i < r.cfg.MaxExamples; i++ {
		seed := baseSeed + int64(i)
		testName := fmt.Sprintf("sequence_%03d", i)

		cfg := *r.cfg
		cfg.Seed = seed

		machine := NewMachine(&cfg, r.rules, r.bundles, r.invoker,
			WithLogger(r.logger),
			WithMetrics(r.metrics),
			WithGenerator(r.generator),
			WithRand(rand.New(rand.NewSource(seed))))

		result, err := machine.Run(ctx, testName)
		if r.cfg.CollectCoverage && result != nil {
			result.Coverage = nil // filled from the aggregate below
			r.collector.Record(result)
		}
		if result != nil {
			r.results = append(r.results, result)
		}
		if err != nil {
			if r.cfg.FailFast {
				return err
			}
			r.logger.Warn("sequence aborted",
				slog.String("test_name", testName),
				slog.String("error", err.Error()))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if r.cfg.CollectCoverage {
		metrics := r.collector.Metrics()
		for _, result := range r.results {
			result.Coverage = metrics
		}
	}
	return nil
}

// Reset discards accumulated results and coverage so the runner can
// execute another independent batch over the same rule set.
func (r *Runner) Reset() {
	r.results = nil
	r.collector.Reset()
}

// Results returns the per-sequence results in execution order.
func (r *Runner) Results() []*Result {
	return r.results
}

// Coverage returns the aggregate coverage collector.
func (r *Runner) Coverage() *Collector {
	return r.collector
}

// Passed reports whether every executed sequence passed.
func (r *Runner) Passed() bool {
	for _, result := range r.results {
		if !result.Passed {
			return false
		}
	}
	return true
}
