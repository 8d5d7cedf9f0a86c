package normalization

import (
	"math"

	"github.com/ahrav/go-concord/internal/domain"
)

// Sample size sources recorded in UncertaintySnapshot.Source.
const (
	SourceComponentSampleSize   = "component.sample_size"
	SourceUncertaintySampleSize = "uncertainty.point.sample_size"
)

// UncertaintySnapshot is the resolved view of a component's uncertainty.
type UncertaintySnapshot struct {
	// SampleSize prefers the component-level override over the summary's value.
	SampleSize *int

	// StandardError comes from the Summary point, if any.
	StandardError *float64

	// Present is true only when the point is a Summary.
	Present bool

	// Source records where SampleSize came from.
	Source string
}

// ExtractUncertainty resolves the sample size and standard error of c.
// Negative sample sizes and negative or non-finite standard errors are
// treated as absent.
func ExtractUncertainty(c domain.MetricComponent) UncertaintySnapshot {
	summary, hasSummary := c.Uncertainty.SummaryPoint()

	snap := UncertaintySnapshot{
		SampleSize: usableSampleSize(c.SampleSize),
		Source:     SourceComponentSampleSize,
		Present:    hasSummary,
	}
	if snap.SampleSize == nil && hasSummary {
		snap.SampleSize = usableSampleSize(summary.SampleSize)
		snap.Source = SourceUncertaintySampleSize
	}
	if hasSummary {
		snap.StandardError = usableStandardError(summary.StandardError)
	}
	if c.Uncertainty.IsNoUncertainty() {
		snap.Present = false
	}
	return snap
}

// Precision returns n / (se² + eps) when the snapshot carries both values.
func (s UncertaintySnapshot) Precision(eps float64) (float64, bool) {
	if !s.Present || s.SampleSize == nil || s.StandardError == nil {
		return 0, false
	}
	se := *s.StandardError
	return float64(*s.SampleSize) / (se*se + eps), true
}

// InverseVarianceWeight returns n / (se² + eps), or wDefault when the
// component lacks a usable sample size or standard error.
func InverseVarianceWeight(c domain.MetricComponent, eps, wDefault float64) (float64, UncertaintySnapshot) {
	snap := ExtractUncertainty(c)
	if w, ok := snap.Precision(eps); ok {
		return w, snap
	}
	return wDefault, snap
}

// GatePrecision returns log1p(n / (se² + eps)), the log-compressed
// precision used to gate scores. The bool is false when precision is
// unavailable.
func GatePrecision(c domain.MetricComponent, eps float64) (float64, bool) {
	p, ok := ExtractUncertainty(c).Precision(eps)
	if !ok {
		return 0, false
	}
	return math.Log1p(p), true
}

func usableSampleSize(n *int) *int {
	if n == nil || *n < 0 {
		return nil
	}
	return n
}

func usableStandardError(se *float64) *float64 {
	if se == nil || *se < 0 || math.IsNaN(*se) || math.IsInf(*se, 0) {
		return nil
	}
	return se
}
