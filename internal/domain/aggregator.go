package domain

// Aggregator combines the per-component scores of a set of metric components
// into one bounded consensus score with an auditable weight decomposition.
//
// Implementations must be pure: the result depends only on the components
// and the aggregator's immutable configuration, so a single Aggregator may
// be shared by concurrent callers without synchronization.
//
// Aggregate never fails. Components that cannot be normalized are reported
// in AggregateResult.Skipped, and an input with no usable components yields
// an aggregate of 0 with no contributions.
//
// Example:
//
//	result := aggregator.Aggregate(components)
//	fmt.Printf("%s: %.4f (skipped %v)\n", result.Candidate, result.AggregateScore, result.Skipped)
type Aggregator interface {
	// Name returns the identifier of this aggregator instance. The algorithm
	// name is reported separately in AggregateResult.Candidate.
	Name() string

	// Aggregate combines components in input order.
	Aggregate(components []MetricComponent) AggregateResult
}

// CandidateNamer is implemented by aggregators that can report the name
// they put in AggregateResult.Candidate without aggregating.
type CandidateNamer interface {
	Candidate() string
}
