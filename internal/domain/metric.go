// Package domain defines the value types exchanged by the consensus engine:
// metric components describing one divergence measurement, the uncertainty
// attached to them, and the auditable results produced by aggregators.
// All types are plain values; nothing in this package holds mutable state.
package domain

import "fmt"

// DivergenceKind identifies the statistical family of a raw divergence value.
// The kind selects which normalization formula maps the value onto (0,1).
type DivergenceKind string

// Supported divergence kinds.
const (
	// KindAbsoluteDifference is a raw absolute difference in the measurement's units.
	KindAbsoluteDifference DivergenceKind = "AbsoluteDifference"
	// KindZScore is a standardized z statistic.
	KindZScore DivergenceKind = "ZScore"
	// KindBayesFactor is a Bayes factor in favor of divergence.
	KindBayesFactor DivergenceKind = "BayesFactor"
	// KindKLDivergence is a Kullback-Leibler divergence in nats.
	KindKLDivergence DivergenceKind = "KLDivergence"
	// KindEffectSize is a standardized effect size such as Cohen's d.
	KindEffectSize DivergenceKind = "EffectSize"
	// KindCustom is a method-specific score normalized by a per-method sigmoid.
	KindCustom DivergenceKind = "Custom"
)

// DivergenceKinds lists every supported kind in declaration order.
var DivergenceKinds = []DivergenceKind{
	KindAbsoluteDifference,
	KindZScore,
	KindBayesFactor,
	KindKLDivergence,
	KindEffectSize,
	KindCustom,
}

// String returns the string tag of the kind.
func (k DivergenceKind) String() string { return string(k) }

// IsValid reports whether k is one of the supported kinds.
func (k DivergenceKind) IsValid() bool {
	for _, known := range DivergenceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// EffectDirection states whether a measurement indicates disagreement,
// consistency, or carries no direction at all.
// The zero value DirectionUnset means the producer did not supply a direction,
// which is distinct from DirectionNone.
type EffectDirection string

// Supported effect directions.
const (
	// DirectionUnset means no direction was supplied.
	DirectionUnset EffectDirection = ""
	// DirectionContradiction means the measurement indicates disagreement.
	DirectionContradiction EffectDirection = "Contradiction"
	// DirectionAgreement means the measurement indicates consistency.
	DirectionAgreement EffectDirection = "Agreement"
	// DirectionNone means the producer explicitly declared the value unsigned.
	DirectionNone EffectDirection = "None"
)

// String returns the string tag of the direction.
func (d EffectDirection) String() string { return string(d) }

// IsSet reports whether a direction was supplied.
func (d EffectDirection) IsSet() bool { return d != DirectionUnset }

// IsValid reports whether d is unset or one of the three named directions.
func (d EffectDirection) IsValid() bool {
	switch d {
	case DirectionUnset, DirectionContradiction, DirectionAgreement, DirectionNone:
		return true
	default:
		return false
	}
}

// SigmoidParams parameterizes the logistic curve 1 / (1 + exp(-k·(t-x0))).
type SigmoidParams struct {
	// K is the slope of the curve.
	K float64 `yaml:"k" json:"k"`
	// X0 is the midpoint where the curve crosses 0.5.
	X0 float64 `yaml:"x0" json:"x0"`
}

// MetricComponent is one divergence measurement produced by an evaluation
// method, together with its optional uncertainty and direction.
// Components are values: aggregators never modify the components they receive.
type MetricComponent struct {
	// Kind selects the normalization family.
	Kind DivergenceKind `json:"kind" validate:"required"`

	// Value is the raw measurement in the units natural to Kind.
	Value float64 `json:"value"`

	// Direction is optional; DirectionUnset and DirectionNone both mean the
	// value is treated as unsigned.
	Direction EffectDirection `json:"direction,omitempty"`

	// Uncertainty is the optional uncertainty summary computed by the producer.
	Uncertainty *UncertaintySummary `json:"uncertainty,omitempty"`

	// SampleSize overrides the sample size found in Uncertainty when set.
	SampleSize *int `json:"sample_size,omitempty"`

	// Units is a display label only.
	Units string `json:"units,omitempty"`

	// MethodRef uniquely identifies the producing method and keys the
	// aggregation diagnostics and custom sigmoid lookups.
	MethodRef string `json:"method_ref" validate:"required"`
}

// String returns a compact description used in warnings and logs.
func (c MetricComponent) String() string {
	return fmt.Sprintf("%s(%s=%g)", c.MethodRef, c.Kind, c.Value)
}

// WithValue returns a copy of c with Value replaced.
func (c MetricComponent) WithValue(value float64) MetricComponent {
	c.Value = value
	return c
}

// IntPtr returns a pointer to n. It keeps optional integer fields readable
// in component literals.
func IntPtr(n int) *int { return &n }

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 { return &f }
