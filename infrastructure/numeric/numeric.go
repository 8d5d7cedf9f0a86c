// Package numeric holds the small, pure numerical kernels shared by the
// normalization engine and every aggregator: the logistic curve, the
// open-unit-interval clip, the standard normal CDF, and the chi-square CDF
// for even degrees of freedom.
package numeric

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultEpsilon is the clip margin used when no configuration supplies one.
const DefaultEpsilon = 1e-12

// MaxSeriesTerms caps the number of series terms ChiSquareCDFEvenDF sums.
const MaxSeriesTerms = 1000

// Above this half-statistic the running product can overflow a float64
// before exp(-x/2) brings it back down, so the series switches to log space.
const directSeriesLimit = 700.0

// Sigmoid evaluates the logistic curve 1 / (1 + exp(-k·(x-x0))).
// Extreme arguments saturate to 0 or 1 instead of overflowing.
func Sigmoid(x, k, x0 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-k*(x-x0)))
}

// Clip bounds x to the closed interval [eps, 1-eps].
func Clip(x, eps float64) float64 {
	return math.Min(1.0-eps, math.Max(eps, x))
}

// ClipRange bounds x to [lo, hi].
func ClipRange(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}

// NormalCDF returns Φ(z) for the standard normal distribution.
func NormalCDF(z float64) float64 {
	return distuv.UnitNormal.CDF(z)
}

// TwoSidedNormalScore maps a standardized statistic onto [0,1) as 2Φ(|z|)-1,
// the probability mass within |z| of the mean.
func TwoSidedNormalScore(z float64) float64 {
	return 2.0*NormalCDF(math.Abs(z)) - 1.0
}

// ChiSquareCDFEvenDF returns the chi-square CDF with 2·nTerms degrees of
// freedom at x, using the closed form
//
//	CDF(x) = 1 - exp(-x/2) · Σ_{k=0}^{nTerms-1} (x/2)^k / k!
//
// Each series term is derived from the previous one by a running product, so
// no factorial or power is formed explicitly. Negative x is treated as 0.
// The result is clipped to [DefaultEpsilon, 1-DefaultEpsilon].
// nTerms <= 0 returns 0; nTerms above MaxSeriesTerms is capped.
func ChiSquareCDFEvenDF(x float64, nTerms int) float64 {
	if nTerms <= 0 {
		return 0
	}
	if nTerms > MaxSeriesTerms {
		nTerms = MaxSeriesTerms
	}

	halfX := math.Max(0, x) / 2.0
	if math.IsInf(halfX, 1) {
		return Clip(1, DefaultEpsilon)
	}

	var tail float64
	if halfX < directSeriesLimit {
		term, series := 1.0, 1.0
		for k := 1; k < nTerms; k++ {
			term *= halfX / float64(k)
			series += term
		}
		tail = math.Exp(-halfX) * series
	} else {
		// log((x/2)^k / k!) - x/2, accumulated one term at a time.
		logHalf := math.Log(halfX)
		logTerm := -halfX
		tail = math.Exp(logTerm)
		for k := 1; k < nTerms; k++ {
			logTerm += logHalf - math.Log(float64(k))
			tail += math.Exp(logTerm)
		}
	}

	return Clip(1.0-tail, DefaultEpsilon)
}
