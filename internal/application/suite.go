package application

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-concord/internal/domain"
)

// Candidate is one named aggregator of a suite.
type Candidate struct {
	// ID is the candidate's identifier within the suite.
	ID string
	// Type is the registered aggregator type the candidate was built from.
	Type string
	// Aggregator performs the aggregation.
	Aggregator domain.Aggregator
}

// CandidateResult pairs a candidate with the result it produced.
type CandidateResult struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Result domain.AggregateResult `json:"result"`
}

// contextAggregator is implemented by decorators that accept a parent
// context, such as the instrumented aggregator.
type contextAggregator interface {
	AggregateContext(ctx context.Context, components []domain.MetricComponent) domain.AggregateResult
}

// Suite is an immutable, ordered set of candidates that are run over the
// same components. A Suite is safe for concurrent use.
type Suite struct {
	name        string
	version     string
	candidates  []Candidate
	concurrency int
}

// NewSuite builds a suite from candidates in report order. Candidate IDs
// must be non-empty and unique and every candidate needs an aggregator.
func NewSuite(name string, candidates []Candidate) (*Suite, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("suite %q has no candidates", name)
	}

	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if c.ID == "" {
			return nil, fmt.Errorf("candidate %d: id cannot be empty", i)
		}
		if c.Aggregator == nil {
			return nil, fmt.Errorf("candidate %q: aggregator cannot be nil", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate candidate id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return &Suite{
		name:        name,
		candidates:  append([]Candidate(nil), candidates...),
		concurrency: runtime.GOMAXPROCS(0),
	}, nil
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// Version returns the schema version the suite was loaded from, if any.
func (s *Suite) Version() string { return s.version }

// Candidates returns a copy of the suite's candidates in report order.
func (s *Suite) Candidates() []Candidate {
	return append([]Candidate(nil), s.candidates...)
}

// Aggregator returns the aggregator registered under id.
func (s *Suite) Aggregator(id string) (domain.Aggregator, bool) {
	for _, c := range s.candidates {
		if c.ID == id {
			return c.Aggregator, true
		}
	}
	return nil, false
}

// WithConcurrency returns a copy of the suite that runs at most n
// candidates at once. Values below one are treated as one.
func (s *Suite) WithConcurrency(n int) *Suite {
	cp := *s
	cp.concurrency = max(1, n)
	return &cp
}

// Wrap returns a copy of the suite whose aggregators are decorated by
// decorate. The receiver is not modified.
func (s *Suite) Wrap(decorate func(domain.Aggregator) domain.Aggregator) *Suite {
	cp := *s
	cp.candidates = make([]Candidate, len(s.candidates))
	for i, c := range s.candidates {
		c.Aggregator = decorate(c.Aggregator)
		cp.candidates[i] = c
	}
	return &cp
}

// AggregateAll runs every candidate over components concurrently and
// returns the results in candidate order. Aggregation itself cannot fail;
// the only error is cancellation of ctx, in which case no results are
// returned.
func (s *Suite) AggregateAll(
	ctx context.Context,
	components []domain.MetricComponent,
) ([]CandidateResult, error) {
	results := make([]CandidateResult, len(s.candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, c := range s.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var res domain.AggregateResult
			if ca, ok := c.Aggregator.(contextAggregator); ok {
				res = ca.AggregateContext(gctx, components)
			} else {
				res = c.Aggregator.Aggregate(components)
			}

			results[i] = CandidateResult{ID: c.ID, Type: c.Type, Result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("suite %s: %w", s.name, err)
	}
	return results, nil
}
