package testutils

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/ahrav/go-concord/internal/domain"
)

// Tolerances and thresholds used by the scenario pass criteria.
const (
	orderingTolerance       = 1e-12
	unanimityFactor         = 1.5
	missingDataMaxDelta     = 0.20
	heterogeneityLowerBound = 0.3
	heterogeneityUpperBound = 0.991
	reconstructionTolerance = 1e-8
	dominantShareThreshold  = 0.35
)

// CellResult is the outcome of running one aggregator against one scenario.
type CellResult struct {
	ScenarioIndex int                `json:"scenario_index"`
	ScenarioName  string             `json:"scenario_name"`
	Candidate     string             `json:"candidate"`
	Passed        bool               `json:"passed"`
	Bounded       bool               `json:"bounded"`
	RawScores     map[string]float64 `json:"raw_scores"`
	// Margin is positive when the criterion holds and measures by how much.
	Margin         float64                                   `json:"margin"`
	Summary        string                                    `json:"score_summary"`
	PassReason     string                                    `json:"pass_reason"`
	Warnings       []string                                  `json:"warnings"`
	Skipped        []string                                  `json:"skipped"`
	Ranking        []string                                  `json:"ranking,omitempty"`
	Decompositions map[string][]domain.ComponentContribution `json:"decompositions"`
}

// IsBounded reports whether score is a finite value in [0, 1].
func IsBounded(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= 0 && score <= 1
}

// Evaluate runs agg on every dataset of s and checks the scenario's pass
// criterion. A cell passes only when the criterion holds and every
// aggregate it computed is bounded.
func Evaluate(s Scenario, agg domain.Aggregator) CellResult {
	cell := CellResult{
		ScenarioIndex:  s.Index,
		ScenarioName:   s.Name,
		RawScores:      map[string]float64{},
		Warnings:       []string{},
		Skipped:        []string{},
		Decompositions: map[string][]domain.ComponentContribution{},
	}

	run := func(dataset string) domain.AggregateResult {
		res := agg.Aggregate(s.Datasets[dataset])
		cell.Warnings = append(cell.Warnings, res.Warnings...)
		cell.Skipped = append(cell.Skipped, res.Skipped...)
		cell.Decompositions[dataset] = res.Contributions
		if cell.Candidate == "" {
			cell.Candidate = res.Candidate
		}
		return res
	}

	var passed bool
	switch s.Index {
	case 1:
		base := run(DatasetBase).AggregateScore
		doubled := run(DatasetDoubled).AggregateScore
		cell.RawScores = map[string]float64{"base": base, "doubled": doubled}
		passed = doubled <= base+orderingTolerance
		cell.Margin = base - doubled
		cell.PassReason = "doubled <= base"
		cell.Bounded = IsBounded(base) && IsBounded(doubled)
		cell.Summary = fmt.Sprintf("base=%.4f, doubled=%.4f", base, doubled)

	case 2:
		aggregate := run(DatasetUnanimous).AggregateScore
		cell.Bounded = IsBounded(aggregate)
		var maxSingle float64
		for _, c := range s.Datasets[DatasetUnanimous] {
			single := agg.Aggregate([]domain.MetricComponent{c}).AggregateScore
			cell.Bounded = cell.Bounded && IsBounded(single)
			maxSingle = math.Max(maxSingle, single)
		}
		threshold := unanimityFactor * maxSingle
		cell.RawScores = map[string]float64{
			"aggregate":  aggregate,
			"max_single": maxSingle,
			"threshold":  threshold,
		}
		passed = aggregate >= threshold
		if maxSingle > 0 {
			cell.Margin = (aggregate/maxSingle)/unanimityFactor - 1.0
		} else {
			cell.Margin = aggregate
		}
		cell.PassReason = "aggregate >= 1.5 * max_single"
		cell.Summary = fmt.Sprintf("agg=%.4f, max1=%.4f, target=%.4f", aggregate, maxSingle, threshold)

	case 3:
		mixed := run(DatasetMixed).AggregateScore
		allC := run(DatasetAllContradiction).AggregateScore
		allA := run(DatasetAllAgreement).AggregateScore
		lo, hi := math.Min(allA, allC), math.Max(allA, allC)
		cell.RawScores = map[string]float64{
			"mixed":             mixed,
			"all_contradiction": allC,
			"all_agreement":     allA,
		}
		passed = lo-orderingTolerance <= mixed && mixed <= hi+orderingTolerance
		cell.Margin = math.Min(mixed-lo, hi-mixed)
		cell.PassReason = "all_agreement <= mixed <= all_contradiction"
		cell.Bounded = IsBounded(mixed) && IsBounded(allC) && IsBounded(allA)
		cell.Summary = fmt.Sprintf("mixed=%.4f, allC=%.4f, allA=%.4f", mixed, allC, allA)

	case 4:
		missing := run(DatasetMissing).AggregateScore
		baseline := run(DatasetBaselineFull).AggregateScore
		delta := math.Abs(missing - baseline)
		if baseline > orderingTolerance {
			delta /= baseline
		}
		cell.RawScores = map[string]float64{
			"missing":        missing,
			"baseline_full":  baseline,
			"relative_delta": delta,
		}
		passed = isFinite(missing) && isFinite(baseline) && delta <= missingDataMaxDelta
		cell.Margin = missingDataMaxDelta - delta
		cell.PassReason = "finite and <=20% delta from baseline"
		cell.Bounded = IsBounded(missing) && IsBounded(baseline)
		cell.Summary = fmt.Sprintf("missing=%.4f, baseline=%.4f, delta=%.3f", missing, baseline, delta)

	case 5:
		res := run(DatasetHeterogeneous)
		cell.RawScores = map[string]float64{"aggregate": res.AggregateScore}
		lo, hi := math.Inf(1), math.Inf(-1)
		scores := make([]string, len(res.Contributions))
		for i, c := range res.Contributions {
			cell.RawScores[c.MethodRef] = c.Score
			lo, hi = math.Min(lo, c.Score), math.Max(hi, c.Score)
			scores[i] = fmt.Sprintf("%.4f", c.Score)
		}
		passed = lo >= heterogeneityLowerBound && hi <= heterogeneityUpperBound
		if len(res.Contributions) > 0 {
			cell.Margin = math.Min(lo-heterogeneityLowerBound, heterogeneityUpperBound-hi)
		}
		cell.Ranking = RankByScore(res.Contributions)
		cell.PassReason = "component scores in [0.3, 0.99] with tolerance; ranking checked post-pass"
		cell.Bounded = IsBounded(res.AggregateScore)
		cell.Summary = fmt.Sprintf("agg=%.4f, scores=%v", res.AggregateScore, scores)

	case 6:
		res := run(DatasetCalibration)
		recon := res.ContributionSum()
		var dominant float64
		for _, c := range res.Contributions {
			dominant = math.Max(dominant, c.Contribution)
		}
		var share float64
		if res.AggregateScore > orderingTolerance {
			share = dominant / res.AggregateScore
		}
		reconErr := math.Abs(recon - res.AggregateScore)
		cell.RawScores = map[string]float64{
			"aggregate":      res.AggregateScore,
			"reconstructed":  recon,
			"dominant_share": share,
		}
		passed = reconErr <= reconstructionTolerance && share >= dominantShareThreshold
		cell.Margin = math.Min(share-dominantShareThreshold, reconstructionTolerance-reconErr)
		cell.PassReason = "sum(weight*score) reconstructs aggregate and dominant component is identifiable"
		cell.Bounded = IsBounded(res.AggregateScore)
		cell.Summary = fmt.Sprintf("agg=%.4f, recon=%.4f, dom_share=%.3f", res.AggregateScore, recon, share)

	case 7:
		boundary := run(DatasetBoundary).AggregateScore
		nonBoundary := run(DatasetNonBoundary).AggregateScore
		cell.RawScores = map[string]float64{"boundary": boundary, "non_boundary": nonBoundary}
		passed = boundary < nonBoundary-orderingTolerance
		cell.Margin = nonBoundary - boundary
		cell.PassReason = "boundary < non_boundary for same values with lower uncertainty comparator"
		cell.Bounded = IsBounded(boundary) && IsBounded(nonBoundary)
		cell.Summary = fmt.Sprintf("boundary=%.4f, non_boundary=%.4f", boundary, nonBoundary)

	default:
		cell.PassReason = fmt.Sprintf("unsupported scenario index %d", s.Index)
		cell.Summary = "n/a"
	}

	if cell.Candidate == "" {
		cell.Candidate = agg.Name()
	}
	cell.Passed = passed && cell.Bounded
	return cell
}

// RankByScore returns method refs ordered by descending normalized score.
// Equal scores keep their input order.
func RankByScore(contributions []domain.ComponentContribution) []string {
	sorted := slices.Clone(contributions)
	slices.SortStableFunc(sorted, func(a, b domain.ComponentContribution) int {
		return cmp.Compare(b.Score, a.Score)
	})
	refs := make([]string, len(sorted))
	for i, c := range sorted {
		refs[i] = c.MethodRef
	}
	return refs
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
