// Package normalization maps raw, unit-heterogeneous divergence values onto
// a canonical score in the open unit interval. Each divergence kind has its
// own raw-score formula; sign handling, clipping, direction inversion, and
// optional standard-error dampening are shared by all kinds so that every
// aggregator sees identical boundary behavior.
package normalization

import (
	"fmt"
	"maps"
	"math"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-concord/infrastructure/numeric"
	"github.com/ahrav/go-concord/internal/domain"
)

// Direction modes recorded in Outcome.DirectionMode.
const (
	// ModeUnsigned means the absolute value was normalized.
	ModeUnsigned = "unsigned"
)

// Diagnostic keys written by Outcome.Diagnostics.
const (
	DiagRawScore         = "raw_score"
	DiagDirectionMode    = "direction_mode"
	DiagTransformedValue = "transformed_value"
)

// Outcome is the result of normalizing one component.
// When OK is false the component must be excluded from aggregation.
type Outcome struct {
	// Score is the final normalized score. Meaningful only when OK.
	Score float64

	// OK is false when the component was excluded.
	OK bool

	// Warnings explains exclusions.
	Warnings []string

	// RawScore is the clipped kind-specific score before direction inversion.
	RawScore float64

	// DirectionMode is ModeUnsigned or the name of the supplied direction.
	DirectionMode string

	// TransformedValue is the value fed to the kind-specific formula.
	TransformedValue float64
}

// Diagnostics returns the audit fields of the outcome. raw_score is nil
// for excluded components.
func (o Outcome) Diagnostics() domain.Diagnostics {
	d := domain.Diagnostics{
		DiagRawScore:         nil,
		DiagDirectionMode:    o.DirectionMode,
		DiagTransformedValue: o.TransformedValue,
	}
	if o.OK {
		d[DiagRawScore] = o.RawScore
	}
	return d
}

// Normalizer applies a validated Config. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	config      Config
	bayesFactor BayesFactorFunc
	customRefs  []string
}

// New validates config and returns a Normalizer for it. A negative custom
// sigmoid midpoint fails with a *domain.GuardrailError.
func New(config Config) (*Normalizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	bf, err := config.bayesFactor()
	if err != nil {
		return nil, err
	}

	// Detach from the caller's map so later edits cannot leak in.
	config.CustomSigmoids = maps.Clone(config.CustomSigmoids)

	return &Normalizer{
		config:      config,
		bayesFactor: bf,
		customRefs:  config.customRefs(),
	}, nil
}

// Config returns the configuration the normalizer was built from.
func (n *Normalizer) Config() Config { return n.config }

// ClipEpsilon returns the configured clip margin.
func (n *Normalizer) ClipEpsilon() float64 { return n.config.ClipEpsilon }

// WithBayesFactor returns a normalizer that shares n's configuration but
// normalizes Bayes factors with fn. A nil fn returns n unchanged.
func (n *Normalizer) WithBayesFactor(fn BayesFactorFunc) *Normalizer {
	if fn == nil {
		return n
	}
	clone := *n
	clone.bayesFactor = fn
	clone.config = n.config.WithBayesFactorNormalizer(fn)
	return &clone
}

// Normalize maps c onto (0,1).
//
// The direction is resolved first: an unset or None direction normalizes
// |value|, otherwise the signed value is kept. The kind-specific raw score is
// clipped to [eps, 1-eps], inverted for Agreement, and clipped again. When
// dampening is enabled and a positive standard error exists, the score is
// multiplied by sigmoid(|value|/se; k, x0) and clipped once more.
//
// Custom components without a configured sigmoid, unknown kinds or
// directions, and non-finite values are excluded with a warning.
func (n *Normalizer) Normalize(c domain.MetricComponent) Outcome {
	eps := n.config.ClipEpsilon

	out := Outcome{DirectionMode: ModeUnsigned, TransformedValue: c.Value}
	switch c.Direction {
	case domain.DirectionUnset, domain.DirectionNone:
		out.TransformedValue = math.Abs(c.Value)
	case domain.DirectionAgreement, domain.DirectionContradiction:
		out.DirectionMode = c.Direction.String()
	default:
		out.DirectionMode = c.Direction.String()
		return out.exclude(fmt.Sprintf("Excluded metric '%s': unsupported direction '%s'", c.MethodRef, c.Direction))
	}

	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return out.exclude(fmt.Sprintf("Excluded metric '%s': non-finite value %v", c.MethodRef, c.Value))
	}

	x := out.TransformedValue
	var raw float64
	switch c.Kind {
	case domain.KindZScore, domain.KindEffectSize:
		raw = numeric.TwoSidedNormalScore(x)
	case domain.KindBayesFactor:
		raw = n.bayesFactor(math.Max(x, 0))
	case domain.KindKLDivergence:
		raw = 1.0 - math.Exp(-math.Max(x, 0))
	case domain.KindAbsoluteDifference:
		p := n.config.AbsoluteDifferenceSigmoid
		raw = numeric.Sigmoid(math.Abs(x), p.K, p.X0)
	case domain.KindCustom:
		p, ok := n.config.CustomSigmoids[c.MethodRef]
		if !ok {
			return out.exclude(n.missingCustomWarning(c.MethodRef))
		}
		raw = numeric.Sigmoid(x, p.K, p.X0)
	default:
		return out.exclude(fmt.Sprintf("Unsupported metric kind '%s'", c.Kind))
	}

	if math.IsNaN(raw) {
		return out.exclude(fmt.Sprintf("Excluded metric '%s': %s normalization produced NaN", c.MethodRef, c.Kind))
	}

	out.RawScore = numeric.Clip(raw, eps)
	score := out.RawScore
	if c.Direction == domain.DirectionAgreement {
		score = 1.0 - out.RawScore
	}
	score = numeric.Clip(score, eps)

	if n.config.SEDampening.Enabled {
		snap := ExtractUncertainty(c)
		if snap.StandardError != nil && *snap.StandardError > 0 {
			snr := math.Abs(c.Value) / *snap.StandardError
			score *= numeric.Sigmoid(snr, n.config.SEDampening.K, n.config.SEDampening.X0)
			// A steep sigmoid underflows to 0 for weak signals.
			score = numeric.Clip(score, eps)
		}
	}

	out.Score = score
	out.OK = true
	return out
}

func (o Outcome) exclude(warning string) Outcome {
	o.OK = false
	o.Score = 0
	o.Warnings = append(o.Warnings, warning)
	return o
}

// missingCustomWarning names the method and, when a configured method ref
// is a near miss, suggests it.
func (n *Normalizer) missingCustomWarning(ref string) string {
	msg := fmt.Sprintf("Excluded Custom metric '%s': missing required sigmoid params (k, x0)", ref)

	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	folded := fold.String(ref)
	best, bestDist := "", -1
	for _, candidate := range n.customRefs {
		d := levenshtein.ComputeDistance(folded, fold.String(candidate))
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if best != ref && bestDist >= 0 && bestDist <= max(2, len(ref)/4) {
		msg += fmt.Sprintf("; did you mean '%s'?", best)
	}
	return msg
}
