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

// Package inspect implements the inspect command: it shows what the
// linker derives from an OpenAPI document without executing anything.
package inspect

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/roundtrip/pkg/linker"
	"github.com/tombee/roundtrip/pkg/openapi"
	"github.com/tombee/roundtrip/pkg/synth"
)

// report is the JSON shape of the inspection output.
type report struct {
	Operations []operationReport `json:"operations"`
	Bundles    []bundleReport    `json:"bundles"`
	Links      []linkReport      `json:"links"`
}

type operationReport struct {
	OperationID string            `json:"operation_id"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Consumes    map[string]string `json:"consumes,omitempty"`
	Produces    map[string]string `json:"produces,omitempty"`
}

type bundleReport struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type linkReport struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Bundle    string `json:"bundle"`
	Parameter string `json:"parameter"`
}

// NewCommand creates the inspect command.
func NewCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <openapi-document>",
		Short: "Show the operations, bundles and links derived from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := openapi.LoadFile(args[0])
			if err != nil {
				return err
			}

			builder := linker.NewBuilder(openapi.NewResolver(doc), synth.New())
			graph, err := builder.Build(doc)
			if err != nil {
				return err
			}

			rep := buildReport(graph)
			if jsonOutput {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			printReport(cmd, rep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func buildReport(graph *linker.Graph) report {
	var rep report

	for _, rule := range graph.RuleList() {
		op := operationReport{
			OperationID: rule.OperationID,
			Method:      rule.Method,
			Path:        rule.Path,
		}
		if len(rule.InputBindings) > 0 {
			op.Consumes = rule.InputBindings
		}
		if len(rule.OutputBindings) > 0 {
			op.Produces = rule.OutputBindings
		}
		rep.Operations = append(rep.Operations, op)
	}

	names := make([]string, 0, len(graph.Bundles))
	for name := range graph.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bundle := graph.Bundles[name]
		rep.Bundles = append(rep.Bundles, bundleReport{
			Name:        bundle.Name,
			Description: bundle.Description,
		})
	}

	for _, link := range graph.Links {
		rep.Links = append(rep.Links, linkReport{
			From:      link.From,
			To:        link.To,
			Bundle:    link.Bundle,
			Parameter: link.Parameter,
		})
	}
	return rep
}

func printReport(cmd *cobra.Command, rep report) {
	cmd.Printf("Operations (%d):\n", len(rep.Operations))
	for _, op := range rep.Operations {
		cmd.Printf("  %-24s %-6s %s\n", op.OperationID, op.Method, op.Path)
		for param, bundle := range op.Consumes {
			cmd.Printf("    consumes %s from %s\n", param, bundle)
		}
		for field, bundle := range op.Produces {
			cmd.Printf("    produces %s into %s\n", field, bundle)
		}
	}

	cmd.Printf("\nBundles (%d):\n", len(rep.Bundles))
	for _, bundle := range rep.Bundles {
		if bundle.Description != "" {
			cmd.Printf("  %s: %s\n", bundle.Name, bundle.Description)
		} else {
			cmd.Printf("  %s\n", bundle.Name)
		}
	}

	cmd.Printf("\nLinks (%d):\n", len(rep.Links))
	for _, link := range rep.Links {
		cmd.Printf("  %s -> %s (%s via %s)\n", link.From, link.To, link.Parameter, link.Bundle)
	}
	if len(rep.Links) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  (none; operations run independently)")
	}
}
