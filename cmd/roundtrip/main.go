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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/roundtrip/internal/commands/history"
	"github.com/tombee/roundtrip/internal/commands/inspect"
	"github.com/tombee/roundtrip/internal/commands/run"
	versioncmd "github.com/tombee/roundtrip/internal/commands/version"
	"github.com/tombee/roundtrip/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "Schema-driven API workflow testing",
		Long: `roundtrip generates and executes multi-step API test sequences from
an OpenAPI document. Response links wire operations together: values a
response produces feed the parameters of later requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg := log.FromEnv()
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				cfg.Level = level
			}
			if format, _ := cmd.Flags().GetString("log-format"); format != "" {
				cfg.Format = log.Format(format)
			}
			log.SetDefault(log.New(cfg))
		},
	}

	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")

	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(inspect.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand(version, commit, buildDate))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
