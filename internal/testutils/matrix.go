package testutils

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ScenarioMatrix collects cell results per candidate and scenario. It is safe
// for concurrent use so candidates can be evaluated in parallel.
type ScenarioMatrix struct {
	scenarios []Scenario
	order     []string
	cells     map[string]map[int]CellResult

	mu sync.RWMutex
}

// NewScenarioMatrix creates a matrix over the given scenarios.
func NewScenarioMatrix(scenarios []Scenario) *ScenarioMatrix {
	return &ScenarioMatrix{
		scenarios: slices.Clone(scenarios),
		cells:     make(map[string]map[int]CellResult),
	}
}

// Record stores a cell result. Candidates are reported in the order their
// first cell was recorded unless SetOrder overrides it.
func (m *ScenarioMatrix) Record(cell CellResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.cells[cell.Candidate]
	if !ok {
		row = make(map[int]CellResult)
		m.cells[cell.Candidate] = row
		m.order = append(m.order, cell.Candidate)
	}
	row[cell.ScenarioIndex] = cell
}

// SetOrder fixes the row order of the report. Unknown candidates are ignored.
func (m *ScenarioMatrix) SetOrder(candidates []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := m.cells[c]; ok {
			order = append(order, c)
		}
	}
	m.order = order
}

// Cell returns the result for candidate on the scenario with index idx.
func (m *ScenarioMatrix) Cell(candidate string, idx int) (CellResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cell, ok := m.cells[candidate][idx]
	return cell, ok
}

// CheckRankingConsistency fails every scale-heterogeneity cell whose score
// ranking differs from the reference candidate's. It returns the reference
// ranking, or nil when the reference has no such cell.
func (m *ScenarioMatrix) CheckRankingConsistency(reference string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	const idx = 5
	ref, ok := m.cells[reference][idx]
	if !ok {
		return nil
	}
	for _, row := range m.cells {
		cell, ok := row[idx]
		if !ok {
			continue
		}
		if !slices.Equal(cell.Ranking, ref.Ranking) {
			cell.Passed = false
			cell.PassReason += "; ranking mismatch across candidates"
			row[idx] = cell
		}
	}
	return slices.Clone(ref.Ranking)
}

// PassCount returns how many scenarios candidate passed.
func (m *ScenarioMatrix) PassCount(candidate string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, cell := range m.cells[candidate] {
		if cell.Passed {
			n++
		}
	}
	return n
}

// Markdown renders the candidate-by-scenario table. Pipes inside summaries
// are replaced so they cannot break the table.
func (m *ScenarioMatrix) Markdown() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("| Candidate |")
	for _, s := range m.scenarios {
		fmt.Fprintf(&b, " S%d %s |", s.Index, s.Name)
	}
	b.WriteString("\n|")
	b.WriteString(strings.Repeat(" --- |", len(m.scenarios)+1))
	b.WriteString("\n")

	for _, candidate := range m.order {
		fmt.Fprintf(&b, "| %s |", candidate)
		for _, s := range m.scenarios {
			cell, ok := m.cells[candidate][s.Index]
			if !ok {
				b.WriteString(" n/a |")
				continue
			}
			glyph := "FAIL"
			if cell.Passed {
				glyph = "PASS"
			}
			fmt.Fprintf(&b, " %s (%s) |", strings.ReplaceAll(cell.Summary, "|", "/"), glyph)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// GenerateReport renders a plain-text report with the pass count and the
// per-scenario margin of every candidate, followed by the pass criteria.
func (m *ScenarioMatrix) GenerateReport() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := "=== Scenario Matrix Report ===\n\n"

	for _, candidate := range m.order {
		row := m.cells[candidate]
		passed := 0
		for _, cell := range row {
			if cell.Passed {
				passed++
			}
		}
		report += fmt.Sprintf("%s: %d/%d passed\n", candidate, passed, len(m.scenarios))
		for _, s := range m.scenarios {
			cell, ok := row[s.Index]
			if !ok {
				continue
			}
			status := "FAIL"
			if cell.Passed {
				status = "PASS"
			}
			report += fmt.Sprintf("  S%d %-28s %s  margin=%+.6f  %s\n",
				s.Index, s.Name, status, cell.Margin, cell.Summary)
			if len(cell.Skipped) > 0 {
				report += fmt.Sprintf("      skipped: %s\n", strings.Join(cell.Skipped, ", "))
			}
		}
		report += "\n"
	}

	report += "Pass Criteria:\n"
	for _, s := range m.scenarios {
		report += fmt.Sprintf("  S%d %s: %s\n", s.Index, s.Name, s.PassCriterion)
	}
	return report
}
