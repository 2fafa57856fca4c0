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

// Package config loads the roundtrip configuration file and merges it
// with command line flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/httpclient"
	"github.com/tombee/roundtrip/pkg/stateful"
)

// Config is the file-level configuration.
type Config struct {
	// Schema is the path to the OpenAPI document.
	Schema string `yaml:"schema"`

	// BaseURL is the root of the API under test.
	BaseURL string `yaml:"base_url"`

	Stateful StatefulConfig `yaml:"stateful"`
	HTTP     HTTPConfig     `yaml:"http"`
	History  HistoryConfig  `yaml:"history"`

	Log LogConfig `yaml:"log"`
}

// StatefulConfig mirrors stateful.Config in file form.
type StatefulConfig struct {
	StepCount         int                      `yaml:"step_count"`
	MaxExamples       int                      `yaml:"max_examples"`
	RecursionLimit    int                      `yaml:"recursion_limit"`
	Seed              int64                    `yaml:"seed"`
	TimeoutPerStep    Duration                 `yaml:"timeout_per_step"`
	TimeoutTotal      Duration                 `yaml:"timeout_total"`
	FailFast          bool                     `yaml:"fail_fast"`
	CollectCoverage   *bool                    `yaml:"collect_coverage"`
	IncludeOperations []string                 `yaml:"include_operations"`
	ExcludeOperations []string                 `yaml:"exclude_operations"`
	InitialState      map[string][]interface{} `yaml:"initial_state"`
	Weights           map[string]float64       `yaml:"weights"`
}

// HTTPConfig mirrors httpclient.Config in file form.
type HTTPConfig struct {
	Timeout           Duration          `yaml:"timeout"`
	RetryAttempts     int               `yaml:"retry_attempts"`
	RetryBackoff      Duration          `yaml:"retry_backoff"`
	MaxBackoff        Duration          `yaml:"max_backoff"`
	UserAgent         string            `yaml:"user_agent"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Headers           map[string]string `yaml:"headers"`
}

// HistoryConfig controls the run history store.
type HistoryConfig struct {
	// Enabled turns run persistence on.
	Enabled bool `yaml:"enabled"`

	// Path is the history database file. Defaults to
	// "roundtrip-history.db" in the working directory.
	Path string `yaml:"path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns an empty configuration; absent values fall back to
// package defaults at assembly time.
func Default() *Config {
	return &Config{}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "config",
			Reason: fmt.Sprintf("reading %s", path),
			Cause:  err,
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ConfigError{
			Key:    "config",
			Reason: fmt.Sprintf("parsing %s", path),
			Cause:  err,
		}
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Schema == "" {
		return &errors.ConfigError{Key: "schema", Reason: "path to the OpenAPI document is required"}
	}
	if c.BaseURL == "" {
		return &errors.ConfigError{Key: "base_url", Reason: "base URL of the API under test is required"}
	}
	return c.StatefulConfig().Validate()
}

// StatefulConfig assembles the execution config, with file values
// overlaid on the package defaults.
func (c *Config) StatefulConfig() *stateful.Config {
	cfg := stateful.DefaultConfig()
	overlay := &stateful.Config{
		StepCount:         c.Stateful.StepCount,
		MaxExamples:       c.Stateful.MaxExamples,
		RecursionLimit:    c.Stateful.RecursionLimit,
		Seed:              c.Stateful.Seed,
		TimeoutPerStep:    c.Stateful.TimeoutPerStep.Std(),
		TimeoutTotal:      c.Stateful.TimeoutTotal.Std(),
		FailFast:          c.Stateful.FailFast,
		IncludeOperations: c.Stateful.IncludeOperations,
		ExcludeOperations: c.Stateful.ExcludeOperations,
		InitialState:      c.Stateful.InitialState,
		Weights:           c.Stateful.Weights,
	}
	merged := cfg.Merge(overlay)
	if c.Stateful.CollectCoverage != nil {
		merged.CollectCoverage = *c.Stateful.CollectCoverage
	}
	return merged
}

// HTTPClientConfig assembles the HTTP client config.
func (c *Config) HTTPClientConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	if c.HTTP.Timeout > 0 {
		cfg.Timeout = c.HTTP.Timeout.Std()
	}
	if c.HTTP.RetryAttempts > 0 {
		cfg.RetryAttempts = c.HTTP.RetryAttempts
	}
	if c.HTTP.RetryBackoff > 0 {
		cfg.RetryBackoff = c.HTTP.RetryBackoff.Std()
	}
	if c.HTTP.MaxBackoff > 0 {
		cfg.MaxBackoff = c.HTTP.MaxBackoff.Std()
	}
	if c.HTTP.UserAgent != "" {
		cfg.UserAgent = c.HTTP.UserAgent
	}
	if c.HTTP.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = c.HTTP.RequestsPerSecond
	}
	if len(c.HTTP.Headers) > 0 {
		cfg.Headers = c.HTTP.Headers
	}
	return cfg
}

// HistoryPath returns the history database path, applying the default.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return "roundtrip-history.db"
}

// Merge overlays non-zero fields of other onto a copy of c. The
// command line produces an overlay config, so flags win over the file.
func (c *Config) Merge(other *Config) *Config {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.Schema != "" {
		merged.Schema = other.Schema
	}
	if other.BaseURL != "" {
		merged.BaseURL = other.BaseURL
	}

	s := &merged.Stateful
	o := other.Stateful
	if o.StepCount > 0 {
		s.StepCount = o.StepCount
	}
	if o.MaxExamples > 0 {
		s.MaxExamples = o.MaxExamples
	}
	if o.RecursionLimit > 0 {
		s.RecursionLimit = o.RecursionLimit
	}
	if o.Seed != 0 {
		s.Seed = o.Seed
	}
	if o.TimeoutPerStep > 0 {
		s.TimeoutPerStep = o.TimeoutPerStep
	}
	if o.TimeoutTotal > 0 {
		s.TimeoutTotal = o.TimeoutTotal
	}
	if o.FailFast {
		s.FailFast = true
	}
	if o.CollectCoverage != nil {
		s.CollectCoverage = o.CollectCoverage
	}
	if len(o.IncludeOperations) > 0 {
		s.IncludeOperations = o.IncludeOperations
	}
	if len(o.ExcludeOperations) > 0 {
		s.ExcludeOperations = o.ExcludeOperations
	}
	if len(o.InitialState) > 0 {
		s.InitialState = o.InitialState
	}
	if len(o.Weights) > 0 {
		s.Weights = o.Weights
	}

	h := &merged.HTTP
	oh := other.HTTP
	if oh.Timeout > 0 {
		h.Timeout = oh.Timeout
	}
	if oh.RetryAttempts > 0 {
		h.RetryAttempts = oh.RetryAttempts
	}
	if oh.RetryBackoff > 0 {
		h.RetryBackoff = oh.RetryBackoff
	}
	if oh.MaxBackoff > 0 {
		h.MaxBackoff = oh.MaxBackoff
	}
	if oh.UserAgent != "" {
		h.UserAgent = oh.UserAgent
	}
	if oh.RequestsPerSecond > 0 {
		h.RequestsPerSecond = oh.RequestsPerSecond
	}
	if len(oh.Headers) > 0 {
		h.Headers = oh.Headers
	}

	if other.History.Enabled {
		merged.History.Enabled = true
	}
	if other.History.Path != "" {
		merged.History.Path = other.History.Path
	}
	if other.Log.Level != "" {
		merged.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		merged.Log.Format = other.Log.Format
	}
	return &merged
}
