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
	_ domain.Aggregator     = (*HybridUnit)(nil)
	_ domain.CandidateNamer = (*HybridUnit)(nil)
)

// HybridUnit gates scores by precision the way HTG-Max does and then
// combines the gated scores with a single-term Fisher combination.
//
// Confidence is CMissing when precision is unavailable, otherwise
// max(CFloor, sigmoid(precision; Alpha, Tau)), clipped to the unit interval.
// The gated score becomes p = clip(1 - gated, PEpsilon, 1) and log-evidence
// -2·ln(p). The aggregate is the chi-square CDF of the summed log-evidence
// with the series fixed at one term, so adding components never adds degrees
// of freedom.
//
// Weights follow the Fisher-UP back-solve and are zero only when
// Σ log_evidence·score is zero.
//
// The Bayes-factor curve can be replaced per call with AggregateWith.
type HybridUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config HybridConfig
	// normalizer applies config.Normalization.
	normalizer *normalization.Normalizer
}

// HybridConfig controls gating and evidence combination.
type HybridConfig struct {
	// Alpha is the slope of the confidence sigmoid.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0"`

	// Tau is the log-precision at which the sigmoid reaches 0.5.
	Tau float64 `yaml:"tau" json:"tau"`

	// CFloor is the lowest confidence a component with precision can get.
	CFloor float64 `yaml:"c_floor" json:"c_floor" validate:"min=0,max=1"`

	// CMissing is the confidence of components without precision.
	CMissing float64 `yaml:"c_missing" json:"c_missing" validate:"min=0,max=1"`

	// Epsilon guards the precision division.
	Epsilon float64 `yaml:"eps" json:"eps" validate:"gt=0"`

	// PEpsilon is the smallest p-value considered.
	PEpsilon float64 `yaml:"p_eps" json:"p_eps" validate:"gt=0,lt=1"`

	// Normalization configures per-component normalization.
	Normalization normalization.Config `yaml:"normalization" json:"normalization"`
}

// DefaultHybridConfig returns alpha 1.5, tau 5, a confidence floor of 0.15,
// a missing-precision confidence of 0.7, and eps and p_eps of 1e-12.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Alpha:         1.5,
		Tau:           5.0,
		CFloor:        0.15,
		CMissing:      0.7,
		Epsilon:       1e-12,
		PEpsilon:      1e-12,
		Normalization: normalization.DefaultConfig(),
	}
}

// NewHybridUnit creates a HybridUnit with a validated configuration.
func NewHybridUnit(name string, config HybridConfig) (*HybridUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	n, err := newNormalizer(config, config.Normalization)
	if err != nil {
		return nil, err
	}

	return &HybridUnit{
		name:       name,
		config:     config,
		normalizer: n,
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *HybridUnit) Name() string { return u.name }

// Config returns the unit's configuration.
func (u *HybridUnit) Config() HybridConfig { return u.config }

// Candidate returns the candidate name reported in results.
func (u *HybridUnit) Candidate() string { return CandidateHybrid }

// Aggregate combines components with the configured Bayes-factor curve.
func (u *HybridUnit) Aggregate(components []domain.MetricComponent) domain.AggregateResult {
	return u.AggregateWith(components, nil)
}

// AggregateWith combines components, normalizing Bayes factors with bf.
// A nil bf uses the configured curve.
func (u *HybridUnit) AggregateWith(
	components []domain.MetricComponent,
	bf normalization.BayesFactorFunc,
) domain.AggregateResult {
	normalizer := u.normalizer.WithBayesFactor(bf)
	kept, skipped, warnings := normalizeAll(normalizer, components)
	if len(kept) == 0 {
		return domain.NewEmptyResult(CandidateHybrid, skipped, warnings)
	}

	cfg := u.config
	eps := normalizer.ClipEpsilon()

	type hybridEvidence struct {
		staged
		precision    float64
		hasPrecision bool
		confidence   float64
		gated        float64
		pValue       float64
		logEvidence  float64
	}
	evidence := make([]hybridEvidence, len(kept))

	var total float64
	for i, s := range kept {
		e := hybridEvidence{staged: s, confidence: cfg.CMissing}
		e.precision, e.hasPrecision = normalization.GatePrecision(s.component, cfg.Epsilon)
		if e.hasPrecision {
			e.confidence = math.Max(cfg.CFloor, numeric.Sigmoid(e.precision, cfg.Alpha, cfg.Tau))
		}
		e.confidence = numeric.Clip(e.confidence, eps)
		e.gated = s.score * e.confidence
		e.pValue = numeric.ClipRange(1.0-e.gated, cfg.PEpsilon, 1.0)
		e.logEvidence = -2.0 * math.Log(e.pValue)

		total += e.logEvidence
		evidence[i] = e
	}

	aggregate := numeric.ChiSquareCDFEvenDF(total, 1)
	aggregate = numeric.Clip(aggregate, eps)

	var denom float64
	for _, e := range evidence {
		denom += e.logEvidence * e.score
	}
	scale := reconstructionScale(aggregate, denom)

	contributions := make([]domain.ComponentContribution, len(evidence))
	for i, e := range evidence {
		var precision any
		if e.hasPrecision {
			precision = e.precision
		}
		contributions[i] = e.contribution(e.logEvidence*scale, domain.Diagnostics{
			diagPrecision:   precision,
			diagConfidence:  e.confidence,
			diagGatedScore:  e.gated,
			diagPValue:      e.pValue,
			diagLogEvidence: e.logEvidence,
		})
	}

	return domain.AggregateResult{
		Candidate:      CandidateHybrid,
		AggregateScore: aggregate,
		Contributions:  contributions,
		Skipped:        skipped,
		Warnings:       warnings,
	}
}

// Validate verifies the unit's configuration.
func (u *HybridUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return u.config.Normalization.Validate()
}

// UnmarshalParameters decodes YAML parameters over the defaults, validates
// them, and rebuilds the normalizer. The unit is unchanged on error.
func (u *HybridUnit) UnmarshalParameters(params yaml.Node) error {
	config, err := decodeParameters(params, DefaultHybridConfig())
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

// NewHybridFromConfig creates a HybridUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewHybridFromConfig(id string, config map[string]any) (domain.Aggregator, error) {
	cfg, err := overlayConfig(config, DefaultHybridConfig())
	if err != nil {
		return nil, err
	}
	unit, err := NewHybridUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
