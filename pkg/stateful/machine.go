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
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/roundtrip/internal/jq"
	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/generate"
	"github.com/tombee/roundtrip/pkg/stateful/expression"
	"github.com/tombee/roundtrip/pkg/synth"
)

const tracerName = "github.com/tombee/roundtrip/pkg/stateful"

// Machine executes one sequence: it repeatedly picks an eligible rule,
// invokes its operation, and feeds extracted response values back into
// the bundle store. Machines are single-sequence and not safe for
// concurrent use; the runner creates one per sequence.
type Machine struct {
	cfg       *Config
	rules     []*Rule
	bundles   map[string]*Bundle
	store     *Store
	invoker   Invoker
	generator *generate.Registry
	evaluator *expression.Evaluator
	extractor *jq.Executor
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	rng       *rand.Rand

	sequenceID string

	// Consecutive-invocation tracking for the recursion limit.
	lastOperation string
	consecutive   int
}

// MachineOption customizes a machine.
type MachineOption func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = logger }
}

// WithMetrics attaches execution metrics.
func WithMetrics(metrics *Metrics) MachineOption {
	return func(m *Machine) { m.metrics = metrics }
}

// WithGenerator overrides the value generator registry.
func WithGenerator(g *generate.Registry) MachineOption {
	return func(m *Machine) { m.generator = g }
}

// WithRand overrides the random source. The runner uses this to give
// each sequence a seed derived from the configured one.
func WithRand(r *rand.Rand) MachineOption {
	return func(m *Machine) { m.rng = r }
}

// NewMachine builds a machine over the given rules. Rules filtered out
// by the config's include/exclude globs are dropped up front.
func NewMachine(cfg *Config, rules []*Rule, bundles map[string]*Bundle, invoker Invoker, opts ...MachineOption) *Machine {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	kept := make([]*Rule, 0, len(rules))
	for _, rule := range rules {
		if cfg.ShouldInclude(rule.OperationID) {
			kept = append(kept, rule)
		}
	}
	// Deterministic iteration order regardless of caller ordering.
	sort.Slice(kept, func(i, j int) bool { return kept[i].OperationID < kept[j].OperationID })

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Machine{
		cfg:        cfg,
		rules:      kept,
		bundles:    bundles,
		store:      NewStore(),
		invoker:    invoker,
		generator:  generate.New(),
		evaluator:  expression.New(),
		extractor:  jq.NewExecutor(5*time.Second, 10<<20),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		rng:        rand.New(rand.NewSource(seed)),
		sequenceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for name, values := range cfg.InitialState {
		for _, v := range values {
			m.store.Put(name, v, m.bundleMaxSize(name))
		}
	}
	return m
}

// Store exposes the machine's bundle store, mainly for hooks and tests.
func (m *Machine) Store() *Store {
	return m.store
}

// Run executes up to cfg.StepCount steps and returns the sequence
// result. With FailFast set, the first failed step aborts the sequence
// and the error wraps the failing step; the partial result is still
// returned.
func (m *Machine) Run(ctx context.Context, testName string) (*Result, error) {
	result := NewResult(testName, m.cfg.Seed)
	started := time.Now()
	defer func() {
		result.DurationMS = time.Since(started).Milliseconds()
		m.metrics.observeSequence()
	}()

	if err := m.runSetup(ctx); err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, err.Error())
		return result, &errors.WorkflowAbortError{Sequence: testName, Step: 0, Reason: "setup hook failed", Cause: err}
	}
	defer m.runTeardown(testName)

	for step := 1; step <= m.cfg.StepCount; step++ {
		rule, ok := m.selectRule(step)
		if !ok {
			m.logger.Debug("no eligible operations, ending sequence",
				slog.String("sequence_id", m.sequenceID),
				slog.Int("step", step))
			break
		}

		rec := m.executeStep(ctx, step, rule)
		result.AddTransition(rec)

		if !rec.Succeeded() && m.cfg.FailFast {
			return result, &errors.WorkflowAbortError{
				Sequence: testName,
				Step:     step,
				Reason:   fmt.Sprintf("step failed: %s %s returned %d", rec.Method, rec.Path, rec.StatusCode),
			}
		}
	}
	return result, nil
}

// selectRule picks the next rule: glob-filtered rules whose
// preconditions, condition expression, and recursion limit all pass,
// chosen by weighted random draw. Returns false when nothing is
// eligible.
func (m *Machine) selectRule(step int) (*Rule, bool) {
	var eligible []*Rule
	var snapshot map[string][]interface{}

	for _, rule := range m.rules {
		if m.cfg.RecursionLimit > 0 &&
			rule.OperationID == m.lastOperation &&
			m.consecutive >= m.cfg.RecursionLimit {
			continue
		}
		if !rule.Eligible(m.store) {
			continue
		}
		if rule.Condition != "" {
			if snapshot == nil {
				snapshot = m.store.Snapshot()
			}
			ok, err := m.evaluator.Evaluate(rule.Condition, map[string]interface{}{
				"bundles": snapshot,
				"state":   map[string]interface{}{},
				"step":    step,
			})
			if err != nil {
				m.logger.Warn("condition evaluation failed, skipping operation",
					slog.String("operation_id", rule.OperationID),
					slog.String("error", err.Error()))
				continue
			}
			if !ok {
				continue
			}
		}
		eligible = append(eligible, rule)
	}

	if len(eligible) == 0 {
		return nil, false
	}
	return m.weightedPick(eligible), true
}

// weightedPick draws one rule proportionally to its weight. Eligible
// rules arrive sorted by operation id, which keeps the draw
// deterministic for a given seed.
func (m *Machine) weightedPick(eligible []*Rule) *Rule {
	total := 0.0
	for _, rule := range eligible {
		total += m.ruleWeight(rule)
	}

	target := m.rng.Float64() * total
	for _, rule := range eligible {
		target -= m.ruleWeight(rule)
		if target < 0 {
			return rule
		}
	}
	return eligible[len(eligible)-1]
}

func (m *Machine) ruleWeight(rule *Rule) float64 {
	if w, ok := m.cfg.Weights[rule.OperationID]; ok && w > 0 {
		return w
	}
	return rule.EffectiveWeight()
}

// executeStep builds the request, invokes the operation under the
// step deadline, and harvests response values into bundles. Every
// attempt produces a transition record.
func (m *Machine) executeStep(ctx context.Context, step int, rule *Rule) TransitionRecord {
	rec := TransitionRecord{
		StepNumber:  step,
		OperationID: rule.OperationID,
		Method:      rule.Method,
		Path:        rule.Path,
		Timestamp:   time.Now().UTC(),
	}

	req := &Request{
		OperationID: rule.OperationID,
		Method:      rule.Method,
		Path:        rule.Path,
	}
	used := make(map[string]interface{})

	req.PathParams = m.fillParams(rule, rule.PathParams, used)
	req.QueryParams = m.fillParams(rule, rule.QueryParams, used)
	if rule.BodySchema != nil {
		req.Body = m.generator.Generate(m.rng, rule.BodySchema)
	}

	rec.PathParams = req.PathParams
	rec.QueryParams = req.QueryParams
	rec.Body = req.Body
	if len(used) > 0 {
		rec.BundleValuesUsed = used
	}

	stepCtx, cancel := context.WithTimeout(ctx, m.cfg.EffectiveTimeout(step))
	defer cancel()

	stepCtx, span := m.tracer.Start(stepCtx, "stateful.step",
		trace.WithAttributes(
			attribute.String("operation.id", rule.OperationID),
			attribute.String("http.method", rule.Method),
			attribute.Int("step.number", step),
		))
	defer span.End()

	if err := m.runBeforeCall(stepCtx, req); err != nil {
		rec.Error = err.Error()
		m.trackConsecutive(rule.OperationID)
		m.metrics.observeStep(rule.OperationID, false, 0)
		return rec
	}

	started := time.Now()
	resp, err := m.invoker.Invoke(stepCtx, req)
	rec.DurationMS = time.Since(started).Milliseconds()

	logger := m.logger.With(
		slog.String("sequence_id", m.sequenceID),
		slog.String("operation_id", rule.OperationID),
		slog.Int("step", step))

	if err != nil {
		rec.Error = err.Error()
		span.SetAttributes(attribute.Bool("step.failed", true))
		logger.Warn("invocation failed", slog.String("error", err.Error()))
		m.runOnError(stepCtx, req, err)
		m.trackConsecutive(rule.OperationID)
		m.metrics.observeStep(rule.OperationID, false, float64(rec.DurationMS)/1000)
		return rec
	}

	rec.StatusCode = resp.StatusCode
	rec.ResponseBody = resp.Body
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 500 {
		rec.Error = fmt.Sprintf("server error: %s %s returned %d", rule.Method, rule.Path, resp.StatusCode)
		logger.Warn("server error response", slog.Int("status_code", resp.StatusCode))
	} else {
		produced := m.harvest(stepCtx, rule, resp)
		if len(produced) > 0 {
			rec.BundleValuesProduced = produced
		}
		logger.Debug("step completed",
			slog.Int("status_code", resp.StatusCode),
			slog.Int64("duration_ms", rec.DurationMS))
		m.runAfterCall(stepCtx, req, resp)
	}

	m.trackConsecutive(rule.OperationID)
	m.metrics.observeStep(rule.OperationID, rec.Succeeded(), float64(rec.DurationMS)/1000)
	return rec
}

// fillParams resolves one parameter map: bundle-bound parameters draw
// from their pool, the rest are generated from the parameter type.
func (m *Machine) fillParams(rule *Rule, params map[string]*synth.Descriptor, used map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]interface{}, len(params))
	for _, name := range names {
		if bundle, bound := rule.InputBindings[name]; bound {
			if value, ok := m.store.Draw(bundle, m.rng); ok {
				out[name] = value
				used[name] = value
				continue
			}
		}
		out[name] = m.generator.Generate(m.rng, params[name])
	}
	return out
}

// harvest extracts output-bound response fields into bundles. Missing
// fields are skipped quietly; extraction errors are logged but never
// fail the step.
func (m *Machine) harvest(ctx context.Context, rule *Rule, resp *Response) map[string]interface{} {
	if len(rule.OutputBindings) == 0 || resp.Body == nil {
		return nil
	}

	fields := make([]string, 0, len(rule.OutputBindings))
	for field := range rule.OutputBindings {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	produced := make(map[string]interface{})
	for _, pointer := range fields {
		bundle := rule.OutputBindings[pointer]
		value, found, err := m.extractor.ExtractField(ctx, pointer, resp.Body)
		if err != nil {
			m.logger.Warn("response field extraction failed",
				slog.String("operation_id", rule.OperationID),
				slog.String("field", pointer),
				slog.String("error", err.Error()))
			continue
		}
		if !found {
			continue
		}
		m.store.Put(bundle, value, m.bundleMaxSize(bundle))
		m.metrics.observeBundlePut(bundle)
		produced[bundle] = value
	}
	return produced
}

func (m *Machine) bundleMaxSize(name string) int {
	if b, ok := m.bundles[name]; ok {
		return b.MaxSize
	}
	return 0
}

// trackConsecutive updates the consecutive-invocation counter backing
// the recursion limit.
func (m *Machine) trackConsecutive(operationID string) {
	if operationID == m.lastOperation {
		m.consecutive++
		return
	}
	m.lastOperation = operationID
	m.consecutive = 1
}

func (m *Machine) runSetup(ctx context.Context) error {
	hooks := m.cfg.Hooks
	if hooks == nil || hooks.Setup == nil {
		return nil
	}
	hookCtx, cancel := context.WithTimeout(ctx, hooks.EffectiveTimeout())
	defer cancel()
	return hooks.Setup(hookCtx, m.store)
}

// runTeardown uses a fresh context so teardown still runs after the
// sequence context is cancelled.
func (m *Machine) runTeardown(testName string) {
	hooks := m.cfg.Hooks
	if hooks == nil || hooks.Teardown == nil {
		return
	}
	hookCtx, cancel := context.WithTimeout(context.Background(), hooks.EffectiveTimeout())
	defer cancel()
	if err := hooks.Teardown(hookCtx, m.store); err != nil {
		m.logger.Warn("teardown hook failed",
			slog.String("sequence_id", m.sequenceID),
			slog.String("test_name", testName),
			slog.String("error", err.Error()))
	}
}

func (m *Machine) runBeforeCall(ctx context.Context, req *Request) error {
	hooks := m.cfg.Hooks
	if hooks == nil || hooks.BeforeCall == nil {
		return nil
	}
	hookCtx, cancel := context.WithTimeout(ctx, hooks.EffectiveTimeout())
	defer cancel()
	if err := hooks.BeforeCall(hookCtx, req); err != nil {
		return fmt.Errorf("before-call hook: %w", err)
	}
	return nil
}

func (m *Machine) runAfterCall(ctx context.Context, req *Request, resp *Response) {
	hooks := m.cfg.Hooks
	if hooks == nil || hooks.AfterCall == nil {
		return
	}
	hookCtx, cancel := context.WithTimeout(ctx, hooks.EffectiveTimeout())
	defer cancel()
	if err := hooks.AfterCall(hookCtx, req, resp); err != nil {
		m.logger.Warn("after-call hook failed",
			slog.String("operation_id", req.OperationID),
			slog.String("error", err.Error()))
	}
}

func (m *Machine) runOnError(ctx context.Context, req *Request, cause error) {
	hooks := m.cfg.Hooks
	if hooks == nil || hooks.OnError == nil {
		return
	}
	hookCtx, cancel := context.WithTimeout(ctx, hooks.EffectiveTimeout())
	defer cancel()
	hooks.OnError(hookCtx, req, cause)
}

// transitionKey identifies an executed edge for coverage accounting.
func transitionKey(from, to string) string {
	return strings.Join([]string{from, to}, " -> ")
}
