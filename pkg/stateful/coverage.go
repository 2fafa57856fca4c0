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
	"sort"
	"sync"
)

// Coverage metric keys reported by Collector.Metrics.
const (
	MetricOperationCoveragePct  = "operation_coverage_pct"
	MetricTransitionCoveragePct = "transition_coverage_pct"
	MetricLinkCoveragePct       = "link_coverage_pct"
	MetricTransitionsCount      = "transitions_count"
	MetricUniqueTransitions     = "unique_transitions"
	MetricTotalOperations       = "total_operations"
	MetricTotalLinks            = "total_links"
)

// Collector aggregates coverage across sequences: which operations
// ran, which operation-to-operation transitions occurred, and which
// declared links were actually exercised.
type Collector struct {
	mu sync.Mutex

	operations map[string]bool
	links      []Link

	tested      map[string]bool
	transitions map[string]int
	linksHit    map[string]bool
}

// NewCollector creates a collector over the given operation universe
// and declared links.
func NewCollector(operations []string, links []Link) *Collector {
	ops := make(map[string]bool, len(operations))
	for _, op := range operations {
		ops[op] = true
	}
	return &Collector{
		operations:  ops,
		links:       links,
		tested:      make(map[string]bool),
		transitions: make(map[string]int),
		linksHit:    make(map[string]bool),
	}
}

// Record folds one sequence result into the aggregate.
func (c *Collector) Record(result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := ""
	for _, rec := range result.Transitions {
		c.tested[rec.OperationID] = true
		if prev != "" {
			key := transitionKey(prev, rec.OperationID)
			c.transitions[key]++
			for _, link := range c.links {
				if link.From == prev && link.To == rec.OperationID {
					c.linksHit[transitionKey(link.From, link.To)] = true
				}
			}
		}
		prev = rec.OperationID
	}
}

// Reset clears the recorded coverage while keeping the operation
// universe and declared links.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tested = make(map[string]bool)
	c.transitions = make(map[string]int)
	c.linksHit = make(map[string]bool)
}

// Metrics returns the aggregate coverage percentages and counts.
func (c *Collector) Metrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0.0
	for _, rec := range c.transitions {
		total += float64(rec)
	}

	metrics := map[string]float64{
		MetricTransitionsCount:  total,
		MetricUniqueTransitions: float64(len(c.transitions)),
		MetricTotalOperations:   float64(len(c.operations)),
		MetricTotalLinks:        float64(len(c.links)),
	}

	if len(c.operations) > 0 {
		metrics[MetricOperationCoveragePct] = 100 * float64(len(c.tested)) / float64(len(c.operations))
	} else {
		metrics[MetricOperationCoveragePct] = 0
	}

	// Transition coverage measures observed unique edges against the
	// complete directed graph over the operation universe.
	possible := len(c.operations) * len(c.operations)
	if possible > 0 {
		metrics[MetricTransitionCoveragePct] = 100 * float64(len(c.transitions)) / float64(possible)
	} else {
		metrics[MetricTransitionCoveragePct] = 0
	}

	if len(c.links) > 0 {
		metrics[MetricLinkCoveragePct] = 100 * float64(len(c.linksHit)) / float64(c.uniqueLinkCount())
	} else {
		metrics[MetricLinkCoveragePct] = 0
	}

	return metrics
}

// uniqueLinkCount deduplicates declared links by edge; several
// parameters may ride the same producer/consumer pair.
func (c *Collector) uniqueLinkCount() int {
	edges := make(map[string]bool, len(c.links))
	for _, link := range c.links {
		edges[transitionKey(link.From, link.To)] = true
	}
	return len(edges)
}

// TestedOperations returns the sorted operations seen in any sequence.
func (c *Collector) TestedOperations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.tested)
}

// UntestedOperations returns the sorted operations never executed.
func (c *Collector) UntestedOperations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	missing := make(map[string]bool)
	for op := range c.operations {
		if !c.tested[op] {
			missing[op] = true
		}
	}
	return sortedKeys(missing)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
