// Package testutils provides shared fixtures for exercising aggregators:
// seven behavioral scenarios with their pass criteria, an evaluator that
// scores an aggregator against them, and a matrix that collects the results.
package testutils

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ahrav/go-concord/internal/domain"
)

// Dataset names used by the scenarios.
const (
	DatasetBase             = "base"
	DatasetDoubled          = "doubled"
	DatasetUnanimous        = "unanimous"
	DatasetMixed            = "mixed"
	DatasetAllContradiction = "all_contradiction"
	DatasetAllAgreement     = "all_agreement"
	DatasetMissing          = "missing"
	DatasetBaselineFull     = "baseline_full"
	DatasetHeterogeneous    = "heterogeneous"
	DatasetCalibration      = "calibration"
	DatasetBoundary         = "boundary"
	DatasetNonBoundary      = "non_boundary"
)

// Scenario is a named set of component datasets and the property an
// aggregator should satisfy on them.
type Scenario struct {
	Index         int
	Name          string
	WhatItTests   string
	PassCriterion string
	Datasets      map[string][]domain.MetricComponent
}

// DatasetNames returns the scenario's dataset names in sorted order.
func (s Scenario) DatasetNames() []string {
	return slices.Sorted(maps.Keys(s.Datasets))
}

// DefaultCustomSigmoids returns the per-method sigmoids the Custom-kind
// components in the scenarios need. Each call returns a fresh map.
func DefaultCustomSigmoids() map[string]domain.SigmoidParams {
	return map[string]domain.SigmoidParams{
		"s2.custom.1": {K: 2.2, X0: 0.0},
		"s6.custom.1": {K: 1.8, X0: 0.3},
	}
}

// metric builds a component whose uncertainty is a Summary when se is set
// and absent otherwise.
func metric(
	kind domain.DivergenceKind,
	value float64,
	direction domain.EffectDirection,
	sampleSize int,
	se float64,
	methodRef string,
) domain.MetricComponent {
	return domain.MetricComponent{
		Kind:      kind,
		Value:     value,
		Direction: direction,
		Uncertainty: domain.NewSummaryUncertainty(
			domain.IntPtr(sampleSize),
			domain.FloatPtr(se),
			fmt.Sprintf("%s.unc", methodRef),
		),
		MethodRef: methodRef,
	}
}

func withUnits(c domain.MetricComponent, units string) domain.MetricComponent {
	c.Units = units
	return c
}

const (
	contra = domain.DirectionContradiction
	agree  = domain.DirectionAgreement
)

// Scenarios returns fresh copies of the seven scenarios in index order.
func Scenarios() []Scenario {
	return []Scenario{
		noisyTV(),
		unanimousWeakSignal(),
		mixedSignal(),
		missingData(),
		scaleHeterogeneity(),
		calibrationDecomposability(),
		boundarySeeking(),
	}
}

// ScenarioByIndex returns the scenario with the given 1-based index.
func ScenarioByIndex(idx int) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Index == idx {
			return s, true
		}
	}
	return Scenario{}, false
}

func noisyTV() Scenario {
	return Scenario{
		Index:         1,
		Name:          "Noisy TV",
		WhatItTests:   "One metric with high divergence and high uncertainty; inflation should be suppressed.",
		PassCriterion: "score(value*2, se*2) <= score(value, se)",
		Datasets: map[string][]domain.MetricComponent{
			DatasetBase: {
				withUnits(metric(domain.KindAbsoluteDifference, 0.0012, contra, 80, 0.30, "s1.absdiff.base"), "eV"),
			},
			DatasetDoubled: {
				withUnits(metric(domain.KindAbsoluteDifference, 0.0024, contra, 80, 0.60, "s1.absdiff.doubled"), "eV"),
			},
		},
	}
}

func unanimousWeakSignal() Scenario {
	return Scenario{
		Index:         2,
		Name:          "Unanimous weak signal",
		WhatItTests:   "Eight weak but consistent contradiction metrics.",
		PassCriterion: "aggregate >= 1.5 * max(single_metric_scores)",
		Datasets: map[string][]domain.MetricComponent{
			DatasetUnanimous: {
				metric(domain.KindZScore, 0.30, contra, 120, 0.25, "s2.z.1"),
				metric(domain.KindEffectSize, 0.25, contra, 140, 0.23, "s2.d.1"),
				metric(domain.KindKLDivergence, 0.10, contra, 150, 0.21, "s2.kl.1"),
				withUnits(metric(domain.KindAbsoluteDifference, 0.0003, contra, 160, 0.20, "s2.abs.1"), "eV"),
				metric(domain.KindZScore, 0.34, contra, 110, 0.26, "s2.z.2"),
				metric(domain.KindEffectSize, 0.28, contra, 130, 0.24, "s2.d.2"),
				metric(domain.KindKLDivergence, 0.12, contra, 115, 0.25, "s2.kl.2"),
				metric(domain.KindCustom, 0.15, contra, 125, 0.22, "s2.custom.1"),
			},
		},
	}
}

func mixedSignal() Scenario {
	set := func(d1, d2 domain.EffectDirection) []domain.MetricComponent {
		return []domain.MetricComponent{
			metric(domain.KindZScore, 1.5, d1, 100, 0.22, "s3.z.c1"),
			metric(domain.KindKLDivergence, 0.8, d1, 95, 0.24, "s3.kl.c1"),
			withUnits(metric(domain.KindAbsoluteDifference, 0.0011, d1, 110, 0.26, "s3.abs.c1"), "eV"),
			metric(domain.KindZScore, 1.4, d2, 100, 0.22, "s3.z.a1"),
			metric(domain.KindKLDivergence, 0.7, d2, 95, 0.24, "s3.kl.a1"),
			withUnits(metric(domain.KindAbsoluteDifference, 0.0010, d2, 110, 0.26, "s3.abs.a1"), "eV"),
		}
	}

	return Scenario{
		Index:         3,
		Name:          "Mixed signal",
		WhatItTests:   "Three contradiction + three agreement metrics.",
		PassCriterion: "all_agreement <= mixed <= all_contradiction",
		Datasets: map[string][]domain.MetricComponent{
			DatasetMixed:            set(contra, agree),
			DatasetAllContradiction: set(contra, contra),
			DatasetAllAgreement:     set(agree, agree),
		},
	}
}

func missingData() Scenario {
	missing := []domain.MetricComponent{
		{
			Kind:        domain.KindZScore,
			Value:       1.1,
			Direction:   contra,
			Uncertainty: domain.NewNoUncertainty("simulator omitted SE"),
			SampleSize:  domain.IntPtr(90),
			MethodRef:   "s4.z.1",
		},
		{
			Kind:        domain.KindEffectSize,
			Value:       0.8,
			Direction:   contra,
			Uncertainty: domain.NewSummaryUncertainty(domain.IntPtr(85), nil, "s4.d.1.unc"),
			MethodRef:   "s4.d.1",
		},
		{
			Kind:       domain.KindKLDivergence,
			Value:      0.4,
			Direction:  contra,
			SampleSize: domain.IntPtr(92),
			MethodRef:  "s4.kl.1",
		},
		{
			Kind:        domain.KindAbsoluteDifference,
			Value:       0.0008,
			Direction:   contra,
			Uncertainty: domain.NewSummaryUncertainty(domain.IntPtr(80), domain.FloatPtr(0.24), "s4.abs.1.unc"),
			Units:       "eV",
			MethodRef:   "s4.abs.1",
		},
	}

	return Scenario{
		Index:         4,
		Name:          "Missing data",
		WhatItTests:   "Partial uncertainty payloads and NoUncertainty variants.",
		PassCriterion: "finite score and within 20% of full-uncertainty baseline",
		Datasets: map[string][]domain.MetricComponent{
			DatasetMissing: missing,
			DatasetBaselineFull: {
				metric(domain.KindZScore, 1.1, contra, 90, 0.20, "s4.z.1"),
				metric(domain.KindEffectSize, 0.8, contra, 85, 0.21, "s4.d.1"),
				metric(domain.KindKLDivergence, 0.4, contra, 92, 0.18, "s4.kl.1"),
				metric(domain.KindAbsoluteDifference, 0.0008, contra, 80, 0.24, "s4.abs.1"),
			},
		},
	}
}

func scaleHeterogeneity() Scenario {
	return Scenario{
		Index:         5,
		Name:          "Scale heterogeneity",
		WhatItTests:   "Z=2.0, BF=100, AbsDiff=0.001eV normalization behavior.",
		PassCriterion: "all normalized scores in [0.3, 0.99] (with tolerance) and stable ranking",
		Datasets: map[string][]domain.MetricComponent{
			DatasetHeterogeneous: {
				metric(domain.KindZScore, 2.0, contra, 120, 0.20, "s5.z.1"),
				metric(domain.KindBayesFactor, 100.0, contra, 120, 0.20, "s5.bf.1"),
				withUnits(metric(domain.KindAbsoluteDifference, 0.0010, contra, 120, 0.20, "s5.abs.1"), "eV"),
			},
		},
	}
}

func calibrationDecomposability() Scenario {
	return Scenario{
		Index:         6,
		Name:          "Calibration decomposability",
		WhatItTests:   "Per-component decomposition should reconstruct aggregate and expose dominant term.",
		PassCriterion: "sum(w_i*u_i) ~= aggregate and one component clearly dominates",
		Datasets: map[string][]domain.MetricComponent{
			DatasetCalibration: {
				metric(domain.KindZScore, 3.0, contra, 220, 0.10, "s6.z.strong"),
				metric(domain.KindEffectSize, 0.9, contra, 140, 0.18, "s6.d.mid"),
				metric(domain.KindKLDivergence, 0.3, contra, 130, 0.24, "s6.kl.weak"),
				metric(domain.KindAbsoluteDifference, 0.0009, contra, 110, 0.26, "s6.abs.mid"),
				metric(domain.KindBayesFactor, 12.0, contra, 160, 0.16, "s6.bf.strong"),
				metric(domain.KindCustom, 0.85, contra, 125, 0.25, "s6.custom.1"),
			},
		},
	}
}

func boundarySeeking() Scenario {
	return Scenario{
		Index:         7,
		Name:          "Boundary-seeking",
		WhatItTests:   "High contradiction near parameter bounds with inflated uncertainty.",
		PassCriterion: "boundary_case < equivalent_non_boundary_case",
		Datasets: map[string][]domain.MetricComponent{
			DatasetBoundary: {
				metric(domain.KindZScore, 3.2, contra, 100, 1.20, "s7.z.boundary"),
				metric(domain.KindKLDivergence, 0.9, contra, 100, 0.20, "s7.kl.boundary"),
				metric(domain.KindEffectSize, 1.0, contra, 100, 0.25, "s7.d.boundary"),
			},
			DatasetNonBoundary: {
				metric(domain.KindZScore, 3.2, contra, 100, 0.20, "s7.z.boundary"),
				metric(domain.KindKLDivergence, 0.9, contra, 100, 0.20, "s7.kl.boundary"),
				metric(domain.KindEffectSize, 1.0, contra, 100, 0.25, "s7.d.boundary"),
			},
		},
	}
}
