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

// Package run implements the run command: build the rule graph from an
// OpenAPI document and execute test sequences against a live API.
package run

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/roundtrip/internal/config"
	"github.com/tombee/roundtrip/internal/history"
	"github.com/tombee/roundtrip/pkg/httpclient"
	"github.com/tombee/roundtrip/pkg/linker"
	"github.com/tombee/roundtrip/pkg/openapi"
	"github.com/tombee/roundtrip/pkg/stateful"
	"github.com/tombee/roundtrip/pkg/synth"
)

type flags struct {
	schema         string
	baseURL        string
	steps          int
	sequences      int
	recursionLimit int
	seed           int64
	failFast       bool
	include        []string
	exclude        []string
	timeoutPerStep time.Duration
	timeoutTotal   time.Duration
	saveHistory    bool
	jsonOutput     bool
}

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute generated test sequences against an API",
		Long: `Run builds the operation rule graph from the OpenAPI document and
executes randomized multi-step sequences against the API at the base
URL. Response link values flow between steps through bundles.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := assembleConfig(cmd, &f)
			if err != nil {
				return err
			}
			return execute(cmd, cfg, &f)
		},
	}

	registerFlags(cmd.Flags(), &f)
	return cmd
}

func registerFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVar(&f.schema, "schema", "", "path to the OpenAPI document")
	fs.StringVar(&f.baseURL, "base-url", "", "base URL of the API under test")
	fs.IntVar(&f.steps, "steps", 0, "steps per sequence")
	fs.IntVar(&f.sequences, "sequences", 0, "number of sequences to run")
	fs.IntVar(&f.recursionLimit, "recursion-limit", 0, "max consecutive invocations of one operation")
	fs.Int64Var(&f.seed, "seed", 0, "random seed (0 = derive from clock)")
	fs.BoolVar(&f.failFast, "fail-fast", false, "abort on the first failed step")
	fs.StringSliceVar(&f.include, "include", nil, "operation glob patterns to include")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "operation glob patterns to exclude")
	fs.DurationVar(&f.timeoutPerStep, "timeout-per-step", 0, "per-step timeout")
	fs.DurationVar(&f.timeoutTotal, "timeout-total", 0, "per-sequence timeout budget")
	fs.BoolVar(&f.saveHistory, "save-history", false, "persist results to the history database")
	fs.BoolVar(&f.jsonOutput, "json", false, "output results as JSON")
}

// assembleConfig layers command line flags over the optional config
// file; flags win.
func assembleConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.InheritedFlags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overlay := &config.Config{
		Schema:  f.schema,
		BaseURL: f.baseURL,
		Stateful: config.StatefulConfig{
			StepCount:         f.steps,
			MaxExamples:       f.sequences,
			RecursionLimit:    f.recursionLimit,
			Seed:              f.seed,
			FailFast:          f.failFast,
			IncludeOperations: f.include,
			ExcludeOperations: f.exclude,
			TimeoutPerStep:    config.Duration(f.timeoutPerStep),
			TimeoutTotal:      config.Duration(f.timeoutTotal),
		},
	}
	if f.saveHistory {
		overlay.History.Enabled = true
	}

	merged := cfg.Merge(overlay)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func execute(cmd *cobra.Command, cfg *config.Config, f *flags) error {
	doc, err := openapi.LoadFile(cfg.Schema)
	if err != nil {
		return err
	}

	builder := linker.NewBuilder(openapi.NewResolver(doc), synth.New())
	graph, err := builder.Build(doc)
	if err != nil {
		return err
	}
	if len(graph.Rules) == 0 {
		return fmt.Errorf("document %s declares no operations", cfg.Schema)
	}

	invoker, err := httpclient.NewInvoker(cfg.HTTPClientConfig())
	if err != nil {
		return err
	}

	statefulCfg := cfg.StatefulConfig()
	runner := stateful.NewRunner(statefulCfg, graph.RuleList(), graph.Bundles, graph.Links, invoker,
		stateful.WithRunnerLogger(slog.Default()))

	slog.Info("starting run",
		"schema", cfg.Schema,
		"base_url", cfg.BaseURL,
		"operations", len(graph.Operations),
		"links", len(graph.Links),
		"sequences", statefulCfg.MaxExamples,
		"steps", statefulCfg.StepCount)

	runErr := runner.Run(cmd.Context())

	results := runner.Results()
	if cfg.History.Enabled {
		if err := persistResults(cmd, cfg.HistoryPath(), results); err != nil {
			slog.Warn("failed to persist history", "error", err.Error())
		}
	}

	if f.jsonOutput {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
	} else {
		printSummary(cmd, runner)
	}

	if runErr != nil {
		return runErr
	}
	if !runner.Passed() {
		return fmt.Errorf("run failed: %d of %d sequences had failing steps",
			failedCount(results), len(results))
	}
	return nil
}

func persistResults(cmd *cobra.Command, path string, results []*stateful.Result) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, result := range results {
		if _, err := store.SaveResult(cmd.Context(), result); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(cmd *cobra.Command, runner *stateful.Runner) {
	results := runner.Results()

	for _, result := range results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		cmd.Printf("%-4s %s: %d steps (%d ok, %d failed) in %dms\n",
			status, result.TestName, result.TotalSteps,
			result.SuccessfulSteps, result.FailedSteps, result.DurationMS)
		for _, errMsg := range result.Errors {
			cmd.Printf("       %s\n", errMsg)
		}
	}

	coverage := runner.Coverage().Metrics()
	cmd.Printf("\n%d sequences, operation coverage %.1f%%, link coverage %.1f%%\n",
		len(results),
		coverage[stateful.MetricOperationCoveragePct],
		coverage[stateful.MetricLinkCoveragePct])
	if untested := runner.Coverage().UntestedOperations(); len(untested) > 0 {
		cmd.Printf("untested operations: %v\n", untested)
	}
}

func failedCount(results []*stateful.Result) int {
	n := 0
	for _, result := range results {
		if !result.Passed {
			n++
		}
	}
	return n
}
