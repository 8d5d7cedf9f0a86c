package domain

import "math"

// Diagnostics is an open map of per-component audit values such as the raw
// score, the direction mode, or the gating precision. It is informational
// only; no aggregation logic reads it back.
type Diagnostics map[string]any

// ComponentContribution is the audit record for one component that took part
// in an aggregation.
type ComponentContribution struct {
	// Index is the component's position in the input sequence.
	Index int `json:"index"`

	// MethodRef identifies the component.
	MethodRef string `json:"method_ref"`

	// Kind is the component's divergence kind.
	Kind DivergenceKind `json:"kind"`

	// Score is the normalized per-component score.
	Score float64 `json:"score"`

	// Weight is the weight assigned by the aggregator.
	Weight float64 `json:"weight"`

	// Contribution equals Weight × Score.
	Contribution float64 `json:"contribution"`

	// Diagnostics holds algorithm-specific audit values.
	Diagnostics Diagnostics `json:"diagnostics,omitempty"`
}

// AggregateResult is the outcome of one aggregation call.
// It is created once per call and never mutated afterwards.
type AggregateResult struct {
	// Candidate names the aggregation algorithm, e.g. "IVW-CDF".
	Candidate string `json:"candidate"`

	// AggregateScore is the bounded consensus score.
	AggregateScore float64 `json:"aggregate_score"`

	// Contributions lists every component that produced a score, in input order.
	Contributions []ComponentContribution `json:"contributions"`

	// Skipped lists the method refs of components excluded from aggregation.
	Skipped []string `json:"skipped"`

	// Warnings collects human-readable notes raised while normalizing.
	Warnings []string `json:"warnings"`
}

// NewEmptyResult returns the result of aggregating zero usable components.
func NewEmptyResult(candidate string, skipped, warnings []string) AggregateResult {
	return AggregateResult{
		Candidate:      candidate,
		AggregateScore: 0,
		Contributions:  []ComponentContribution{},
		Skipped:        nonNil(skipped),
		Warnings:       nonNil(warnings),
	}
}

// ContributionSum returns Σ contribution_i in input order.
func (r AggregateResult) ContributionSum() float64 {
	var sum float64
	for _, c := range r.Contributions {
		sum += c.Contribution
	}
	return sum
}

// ReconstructionError returns |Σ contribution_i − aggregate|.
func (r AggregateResult) ReconstructionError() float64 {
	return math.Abs(r.ContributionSum() - r.AggregateScore)
}

// DominantContribution returns the contribution with the largest value and
// its share of the contribution sum. It returns false when there are no
// contributions.
func (r AggregateResult) DominantContribution() (ComponentContribution, float64, bool) {
	if len(r.Contributions) == 0 {
		return ComponentContribution{}, 0, false
	}

	best := r.Contributions[0]
	for _, c := range r.Contributions[1:] {
		if c.Contribution > best.Contribution {
			best = c
		}
	}

	total := r.ContributionSum()
	if total <= 0 {
		return best, 0, true
	}
	return best, best.Contribution / total, true
}

// Contribution looks up the contribution recorded for methodRef.
func (r AggregateResult) Contribution(methodRef string) (ComponentContribution, bool) {
	for _, c := range r.Contributions {
		if c.MethodRef == methodRef {
			return c, true
		}
	}
	return ComponentContribution{}, false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
