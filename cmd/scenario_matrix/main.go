// Command scenario_matrix runs every candidate of an aggregation suite over
// the seven scenario fixtures and prints the pass/fail matrix.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/infrastructure/units"
	"github.com/ahrav/go-concord/internal/application"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/testutils"
)

// defaultSuite compares all built-in candidates with the custom sigmoids
// the fixtures rely on.
const defaultSuite = `
version: "1.0.0"
metadata:
  name: default
normalization:
  custom_sigmoids:
    s2.custom.1: {k: 2.2, x0: 0.0}
    s6.custom.1: {k: 1.8, x0: 0.3}
candidates:
  - {id: ivw, type: IVW-CDF}
  - {id: htg_max, type: HTG-Max}
  - {id: htg_lse, type: HTG-Max-LSE}
  - {id: htg_soft, type: HTG-Max-SoftSum}
  - {id: fisher, type: Fisher-UP}
  - {id: hybrid, type: Hybrid}
`

func main() {
	var (
		suitePath  = flag.String("suite", "", "Suite YAML file (defaults to all built-in candidates)")
		outputPath = flag.String("output", "", "Write the per-cell results as JSON to this path")
		markdown   = flag.Bool("markdown", true, "Print the Markdown matrix")
		reference  = flag.String("reference", units.CandidateHybrid, "Candidate whose S5 ranking the others must match")
		verbose    = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), logger, *suitePath, *outputPath, *reference, *markdown); err != nil {
		log.Fatalf("scenario matrix failed: %v", err)
	}
}

func run(ctx context.Context, logger *slog.Logger, suitePath, outputPath, reference string, markdown bool) error {
	loader, err := application.NewSuiteLoader(application.NewDefaultAggregatorRegistry())
	if err != nil {
		return err
	}

	var suite *application.Suite
	if suitePath != "" {
		suite, err = loader.LoadFromFile(ctx, suitePath)
	} else {
		suite, err = loader.LoadFromReader(ctx, strings.NewReader(defaultSuite))
	}
	if err != nil {
		return fmt.Errorf("load suite: %w", err)
	}

	metrics, err := middleware.NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	suite = suite.Wrap(func(next domain.Aggregator) domain.Aggregator {
		return middleware.NewInstrumentedAggregator(next, metrics, logger)
	})

	scenarios := testutils.Scenarios()
	matrix := testutils.NewScenarioMatrix(scenarios)

	candidates := suite.Candidates()
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		name := c.Type
		if namer, ok := c.Aggregator.(domain.CandidateNamer); ok {
			name = namer.Candidate()
		}
		if slices.Contains(order, name) {
			return fmt.Errorf("candidate %s reports %s, which another candidate already uses", c.ID, name)
		}
		order = append(order, name)
	}

	var g errgroup.Group
	for _, c := range candidates {
		g.Go(func() error {
			for _, s := range scenarios {
				matrix.Record(testutils.Evaluate(s, c.Aggregator))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	matrix.SetOrder(order)

	if slices.Contains(order, reference) {
		for _, m := range matrix.CheckRankingConsistency(reference) {
			logger.Warn("ranking mismatch", slog.String("detail", m))
		}
	}

	if markdown {
		fmt.Println(matrix.Markdown())
	}
	fmt.Print(matrix.GenerateReport())

	if outputPath != "" {
		if err := writeCells(outputPath, matrix, order, scenarios); err != nil {
			return err
		}
		logger.Info("wrote results", slog.String("path", outputPath))
	}
	return nil
}

// writeCells saves every recorded cell as indented JSON.
func writeCells(path string, matrix *testutils.ScenarioMatrix, order []string, scenarios []testutils.Scenario) error {
	cells := make([]testutils.CellResult, 0, len(order)*len(scenarios))
	for _, name := range order {
		for _, s := range scenarios {
			if cell, ok := matrix.Cell(name, s.Index); ok {
				cells = append(cells, cell)
			}
		}
	}

	data, err := json.MarshalIndent(cells, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
