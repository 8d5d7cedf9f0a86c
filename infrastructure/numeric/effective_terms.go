package numeric

import (
	"errors"
	"fmt"

	mstats "github.com/montanaflynn/stats"
)

// ErrInsufficientSamples is returned when an estimate needs more observations.
var ErrInsufficientSamples = errors.New("insufficient samples")

// EffectiveTerms is a variance-matched replacement for the independent
// component count used when summed log-evidence comes from correlated
// components. Under independence the sum of k Fisher terms is chi-square
// with 2k degrees of freedom and variance 4k; matching the observed variance
// gives effective_df = 2k² / var(T).
type EffectiveTerms struct {
	// Components is the nominal component count k.
	Components int `json:"components"`

	// Variance is the sample variance of the observed totals.
	Variance float64 `json:"variance"`

	// EffectiveDF is the variance-matched degrees of freedom.
	EffectiveDF float64 `json:"effective_df"`

	// NTerms is the series length to pass to ChiSquareCDFEvenDF,
	// clamped to [1, MaxSeriesTerms].
	NTerms int `json:"n_terms"`
}

// EstimateEffectiveTerms derives the effective series length from observed
// totals of per-component log-evidence across repeated draws.
// A zero variance falls back to the independent value 2k.
func EstimateEffectiveTerms(totals []float64, components int) (EffectiveTerms, error) {
	if components <= 0 {
		return EffectiveTerms{}, fmt.Errorf("component count must be positive, got %d", components)
	}
	if len(totals) == 0 {
		return EffectiveTerms{}, fmt.Errorf("estimate effective terms: %w", ErrInsufficientSamples)
	}

	var variance float64
	if len(totals) >= 2 {
		v, err := mstats.SampleVariance(totals)
		if err != nil {
			return EffectiveTerms{}, fmt.Errorf("sample variance: %w", err)
		}
		variance = v
	}

	k := float64(components)
	df := 2.0 * k
	if variance > 0 {
		df = 2.0 * k * k / variance
	}

	nTerms := MaxSeriesTerms
	if half := df / 2.0; half < MaxSeriesTerms {
		nTerms = max(1, int(half))
	}

	return EffectiveTerms{
		Components:  components,
		Variance:    variance,
		EffectiveDF: df,
		NTerms:      nTerms,
	}, nil
}

// CDF evaluates the chi-square CDF of total using the effective series length.
func (e EffectiveTerms) CDF(total float64) float64 {
	return ChiSquareCDFEvenDF(total, e.NTerms)
}
