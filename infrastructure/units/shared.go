// Package units provides the aggregation units of the go-concord engine.
// Each unit implements domain.Aggregator: it normalizes an ordered sequence
// of metric components and combines the resulting scores into one bounded
// consensus score whose per-component contributions sum back to it.
package units

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/normalization"
	"github.com/ahrav/go-concord/internal/domain"
)

// Candidate names reported in domain.AggregateResult.Candidate.
const (
	CandidateIVWCDF        = "IVW-CDF"
	CandidateHTGMax        = "HTG-Max"
	CandidateHTGMaxLSE     = "HTG-Max-LSE"
	CandidateHTGMaxSoftSum = "HTG-Max-SoftSum"
	CandidateFisherUP      = "Fisher-UP"
	CandidateHybrid        = "Hybrid"
)

// Diagnostic keys shared by several units.
const (
	diagSampleSize    = "sample_size"
	diagStandardError = "standard_error"
	diagPrecision     = "precision"
	diagConfidence    = "confidence"
	diagGatedScore    = "gated_score"
	diagPValue        = "p_value"
	diagLogEvidence   = "log_evidence"
)

// Common errors returned by aggregation units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// staged is a component that survived normalization.
type staged struct {
	index     int
	component domain.MetricComponent
	score     float64
	outcome   normalization.Outcome
}

// normalizeAll normalizes components in input order, collecting the
// survivors and the method refs and warnings of the excluded ones.
func normalizeAll(
	n *normalization.Normalizer,
	components []domain.MetricComponent,
) (kept []staged, skipped []string, warnings []string) {
	kept = make([]staged, 0, len(components))
	skipped = []string{}
	warnings = []string{}

	for i, c := range components {
		out := n.Normalize(c)
		warnings = append(warnings, out.Warnings...)
		if !out.OK {
			skipped = append(skipped, c.MethodRef)
			continue
		}
		kept = append(kept, staged{index: i, component: c, score: out.Score, outcome: out})
	}
	return kept, skipped, warnings
}

// contribution builds the audit record for s. The normalization diagnostics
// raw_score and direction_mode are always included.
func (s staged) contribution(weight float64, diag domain.Diagnostics) domain.ComponentContribution {
	if diag == nil {
		diag = domain.Diagnostics{}
	}
	diag[normalization.DiagRawScore] = s.outcome.RawScore
	diag[normalization.DiagDirectionMode] = s.outcome.DirectionMode

	return domain.ComponentContribution{
		Index:        s.index,
		MethodRef:    s.component.MethodRef,
		Kind:         s.component.Kind,
		Score:        s.score,
		Weight:       weight,
		Contribution: weight * s.score,
		Diagnostics:  diag,
	}
}

// optionalInt and optionalFloat render absent values as nil diagnostics.
func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// reconstructionScale returns aggregate / reconstructed, the factor that
// makes back-solved weights sum to the aggregate. It is 0 when reconstructed
// is not positive or the ratio is not finite.
func reconstructionScale(aggregate, reconstructed float64) float64 {
	if !(reconstructed > 0) {
		return 0
	}
	scale := aggregate / reconstructed
	if math.IsInf(scale, 0) || math.IsNaN(scale) {
		return 0
	}
	return scale
}

// overlayConfig decodes a configuration map on top of defaults. It is the
// shared boundary adapter behind the New*FromConfig factories.
func overlayConfig[T any](config map[string]any, defaults T) (T, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return defaults, fmt.Errorf("marshal config: %w", err)
	}

	cfg := defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return defaults, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// decodeParameters strictly decodes a YAML parameter node on top of
// defaults and validates the result.
func decodeParameters[T any](params yaml.Node, defaults T) (T, error) {
	cfg := defaults
	if err := params.Decode(&cfg); err != nil {
		return defaults, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return defaults, fmt.Errorf("parameter validation failed: %w", err)
	}
	return cfg, nil
}

// newNormalizer validates a unit configuration's struct tags and builds the
// normalizer for its embedded normalization settings.
func newNormalizer(config any, norm normalization.Config) (*normalization.Normalizer, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	n, err := normalization.New(norm)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return n, nil
}
