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

// Package history implements the history command group over the local
// run store.
package history

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tombee/roundtrip/internal/history"
)

// NewCommand creates the history command group.
func NewCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted run results",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "roundtrip-history.db", "history database path")

	cmd.AddCommand(newListCommand(&dbPath))
	cmd.AddCommand(newShowCommand(&dbPath))
	return cmd
}

func newListCommand(dbPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				cmd.Println("no runs recorded")
				return nil
			}
			for _, run := range runs {
				status := "PASS"
				if !run.Passed {
					status = "FAIL"
				}
				cmd.Printf("%s  %s  %-4s  %-20s  steps=%d  seed=%d  %dms\n",
					run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), status,
					run.TestName, run.TotalSteps, run.Seed, run.DurationMS)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newShowCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full result of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
