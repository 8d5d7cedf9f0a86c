package units

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/normalization"
	"github.com/ahrav/go-concord/infrastructure/numeric"
	"github.com/ahrav/go-concord/internal/domain"
)

var (
	_ domain.Aggregator     = (*IVWCDFUnit)(nil)
	_ domain.CandidateNamer = (*IVWCDFUnit)(nil)
)

// IVWCDFUnit pools normalized scores with inverse-variance weights.
//
// Algorithm: each surviving component gets a raw weight n/(se²+eps), or
// WDefault when its sample size or standard error is unavailable. The
// aggregate is the weighted mean Σw·s/Σw, clipped to the open unit interval.
// Per-component weights are the raw weights divided by Σw, so the
// contributions sum to the weighted mean.
//
// Multiplicity bonus: when enabled and more than one component survives, the
// aggregate is multiplied by 1 + scale·concordance·ln(k), where concordance
// is the fraction of scores above Threshold. The bonus scales only the
// aggregate; weights are not redistributed, so with the bonus on the
// contributions reconstruct the pre-bonus mean rather than the reported
// aggregate.
//
// Concurrency: Aggregate is pure and safe for concurrent use. Reconfiguring
// via UnmarshalParameters must not race with Aggregate.
type IVWCDFUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config IVWCDFConfig
	// normalizer applies config.Normalization.
	normalizer *normalization.Normalizer
}

// MultiplicityBonus configures the IVW-CDF concordance bonus.
type MultiplicityBonus struct {
	// Enabled turns the bonus on. Disabled by default.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the score above which a component counts as concordant.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0,max=1"`

	// Scale multiplies concordance·ln(k).
	Scale float64 `yaml:"scale" json:"scale" validate:"gte=0"`
}

// IVWCDFConfig controls inverse-variance pooling.
type IVWCDFConfig struct {
	// Epsilon guards the inverse-variance division.
	Epsilon float64 `yaml:"eps" json:"eps" validate:"gt=0"`

	// WDefault is the weight given to components without usable uncertainty.
	WDefault float64 `yaml:"w_default" json:"w_default" validate:"gte=0"`

	// MultiplicityBonus configures the optional concordance bonus.
	MultiplicityBonus MultiplicityBonus `yaml:"multiplicity_bonus" json:"multiplicity_bonus"`

	// Normalization configures per-component normalization.
	Normalization normalization.Config `yaml:"normalization" json:"normalization"`
}

// DefaultIVWCDFConfig returns eps 1e-12, a default weight of 1, and the
// multiplicity bonus disabled with threshold 0.1 and scale 0.5.
func DefaultIVWCDFConfig() IVWCDFConfig {
	return IVWCDFConfig{
		Epsilon:  1e-12,
		WDefault: 1.0,
		MultiplicityBonus: MultiplicityBonus{
			Enabled:   false,
			Threshold: 0.1,
			Scale:     0.5,
		},
		Normalization: normalization.DefaultConfig(),
	}
}

// NewIVWCDFUnit creates an IVWCDFUnit with a validated configuration.
// Returns ErrEmptyUnitName if name is empty, or a validation error,
// including the custom-sigmoid guardrail, if config is invalid.
func NewIVWCDFUnit(name string, config IVWCDFConfig) (*IVWCDFUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	n, err := newNormalizer(config, config.Normalization)
	if err != nil {
		return nil, err
	}

	return &IVWCDFUnit{
		name:       name,
		config:     config,
		normalizer: n,
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *IVWCDFUnit) Name() string { return u.name }

// Config returns the unit's configuration.
func (u *IVWCDFUnit) Config() IVWCDFConfig { return u.config }

// Candidate returns the candidate name reported in results.
func (u *IVWCDFUnit) Candidate() string { return CandidateIVWCDF }

// Aggregate pools components with inverse-variance weights.
func (u *IVWCDFUnit) Aggregate(components []domain.MetricComponent) domain.AggregateResult {
	kept, skipped, warnings := normalizeAll(u.normalizer, components)
	if len(kept) == 0 {
		return domain.NewEmptyResult(CandidateIVWCDF, skipped, warnings)
	}

	type weighted struct {
		raw  float64
		snap normalization.UncertaintySnapshot
	}
	weights := make([]weighted, len(kept))

	var numerator, denominator float64
	for i, s := range kept {
		w, snap := normalization.InverseVarianceWeight(s.component, u.config.Epsilon, u.config.WDefault)
		weights[i] = weighted{raw: w, snap: snap}
		numerator += w * s.score
		denominator += w
	}

	var aggregate float64
	if denominator > 0 {
		aggregate = numerator / denominator
	}
	if bonus := u.config.MultiplicityBonus; bonus.Enabled && len(kept) > 1 {
		concordant := 0
		for _, s := range kept {
			if s.score > bonus.Threshold {
				concordant++
			}
		}
		concordance := float64(concordant) / float64(len(kept))
		aggregate *= 1.0 + bonus.Scale*concordance*math.Log(float64(len(kept)))
	}
	aggregate = numeric.Clip(aggregate, u.normalizer.ClipEpsilon())

	contributions := make([]domain.ComponentContribution, len(kept))
	for i, s := range kept {
		var weight float64
		if denominator > 0 {
			weight = weights[i].raw / denominator
		}
		contributions[i] = s.contribution(weight, domain.Diagnostics{
			"raw_weight":      weights[i].raw,
			diagSampleSize:    optionalInt(weights[i].snap.SampleSize),
			diagStandardError: optionalFloat(weights[i].snap.StandardError),
			"weight_source":   weights[i].snap.Source,
		})
	}

	return domain.AggregateResult{
		Candidate:      CandidateIVWCDF,
		AggregateScore: aggregate,
		Contributions:  contributions,
		Skipped:        skipped,
		Warnings:       warnings,
	}
}

// Validate verifies the unit's configuration.
func (u *IVWCDFUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return u.config.Normalization.Validate()
}

// UnmarshalParameters decodes YAML parameters over the defaults, validates
// them, and rebuilds the normalizer. The unit is unchanged on error.
func (u *IVWCDFUnit) UnmarshalParameters(params yaml.Node) error {
	config, err := decodeParameters(params, DefaultIVWCDFConfig())
	if err != nil {
		return err
	}
	n, err := normalization.New(config.Normalization)
	if err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	u.config = config
	u.normalizer = n
	return nil
}

// NewIVWCDFFromConfig creates an IVWCDFUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewIVWCDFFromConfig(id string, config map[string]any) (domain.Aggregator, error) {
	cfg, err := overlayConfig(config, DefaultIVWCDFConfig())
	if err != nil {
		return nil, err
	}
	unit, err := NewIVWCDFUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
