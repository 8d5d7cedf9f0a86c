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
	_ domain.Aggregator     = (*FisherUPUnit)(nil)
	_ domain.CandidateNamer = (*FisherUPUnit)(nil)
)

// FisherUPUnit combines evidence with Fisher's method after discounting each
// component's p-value by its reliability.
//
// Each score becomes a one-sided p-value p = clip(1 - score, PEpsilon, 1).
// Reliability is min(1, n/NRef) when uncertainty is present and RFloor
// otherwise, optionally multiplied by sigmoid(|value|/se; k, x0). The
// adjusted p-value p^reliability is clipped to [PEpsilon, 1] and turned into
// log-evidence -2·ln(p_adj). The aggregate is the chi-square CDF of the
// summed log-evidence with one series term per contributing component.
//
// When Correlation carries totals observed on correlated components, the
// series length is scaled by EffectiveDF / 2k from numeric.EstimateEffectiveTerms,
// so k contributing components use the estimated NTerms instead of k.
//
// Weights are back-solved so the contributions sum to the aggregate:
// weight_i = log_evidence_i · aggregate / Σ log_evidence_j·score_j, or 0 when
// that denominator is not positive.
type FisherUPUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config FisherUPConfig
	// normalizer applies config.Normalization.
	normalizer *normalization.Normalizer
	// termRatio scales the number of series terms; 1 without calibration.
	termRatio float64
}

// CorrelationCalibration holds summed log-evidence totals observed across
// repeated draws of Components correlated components. It is unused when
// Totals is empty.
type CorrelationCalibration struct {
	// Totals are the observed sums of per-component log-evidence.
	Totals []float64 `yaml:"totals,omitempty" json:"totals,omitempty"`

	// Components is the number of components summed in each total.
	Components int `yaml:"components,omitempty" json:"components,omitempty" validate:"min=0"`
}

// termRatio returns EffectiveDF / 2k for the calibration, or 1 when it has
// no totals.
func (c CorrelationCalibration) termRatio() (float64, error) {
	if len(c.Totals) == 0 {
		return 1.0, nil
	}
	est, err := numeric.EstimateEffectiveTerms(c.Totals, c.Components)
	if err != nil {
		return 0, fmt.Errorf("correlation calibration: %w", err)
	}
	return est.EffectiveDF / (2.0 * float64(c.Components)), nil
}

// SEReliability scales reliability by a signal-to-noise sigmoid.
type SEReliability struct {
	// Enabled turns the factor on. Disabled by default.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// K is the slope of the signal-to-noise sigmoid.
	K float64 `yaml:"k" json:"k" validate:"gt=0"`

	// X0 is the signal-to-noise ratio at which reliability is halved.
	X0 float64 `yaml:"x0" json:"x0"`
}

// FisherUPConfig controls reliability discounting.
type FisherUPConfig struct {
	// NRef is the sample size at which reliability saturates at 1.
	NRef float64 `yaml:"n_ref" json:"n_ref" validate:"gt=0"`

	// RFloor is the reliability of components without uncertainty.
	RFloor float64 `yaml:"r_floor" json:"r_floor" validate:"min=0,max=1"`

	// PEpsilon is the smallest p-value considered.
	PEpsilon float64 `yaml:"p_eps" json:"p_eps" validate:"gt=0,lt=1"`

	// SEReliability configures the optional signal-to-noise factor.
	SEReliability SEReliability `yaml:"se_reliability" json:"se_reliability"`

	// Correlation optionally replaces the independent series length.
	Correlation CorrelationCalibration `yaml:"correlation,omitempty" json:"correlation,omitempty"`

	// Normalization configures per-component normalization.
	Normalization normalization.Config `yaml:"normalization" json:"normalization"`
}

// DefaultFisherUPConfig returns n_ref 100, a reliability floor of 0.1,
// p_eps 1e-12, and the signal-to-noise factor disabled with k=3, x0=2.
func DefaultFisherUPConfig() FisherUPConfig {
	return FisherUPConfig{
		NRef:     100.0,
		RFloor:   0.1,
		PEpsilon: 1e-12,
		SEReliability: SEReliability{
			Enabled: false,
			K:       3.0,
			X0:      2.0,
		},
		Normalization: normalization.DefaultConfig(),
	}
}

// NewFisherUPUnit creates a FisherUPUnit with a validated configuration.
func NewFisherUPUnit(name string, config FisherUPConfig) (*FisherUPUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	n, err := newNormalizer(config, config.Normalization)
	if err != nil {
		return nil, err
	}
	ratio, err := config.Correlation.termRatio()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &FisherUPUnit{
		name:       name,
		config:     config,
		normalizer: n,
		termRatio:  ratio,
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *FisherUPUnit) Name() string { return u.name }

// Config returns the unit's configuration.
func (u *FisherUPUnit) Config() FisherUPConfig { return u.config }

// Candidate returns the candidate name reported in results.
func (u *FisherUPUnit) Candidate() string { return CandidateFisherUP }

type fisherEvidence struct {
	staged
	snap        normalization.UncertaintySnapshot
	pValue      float64
	pAdjusted   float64
	reliability float64
	logEvidence float64
}

// Aggregate combines reliability-adjusted evidence.
func (u *FisherUPUnit) Aggregate(components []domain.MetricComponent) domain.AggregateResult {
	kept, skipped, warnings := normalizeAll(u.normalizer, components)
	if len(kept) == 0 {
		return domain.NewEmptyResult(CandidateFisherUP, skipped, warnings)
	}

	cfg := u.config
	evidence := make([]fisherEvidence, len(kept))
	var total float64
	for i, s := range kept {
		e := fisherEvidence{staged: s, snap: normalization.ExtractUncertainty(s.component)}
		e.pValue = numeric.ClipRange(1.0-s.score, cfg.PEpsilon, 1.0)

		e.reliability = cfg.RFloor
		if e.snap.Present {
			var n float64
			if e.snap.SampleSize != nil {
				n = float64(*e.snap.SampleSize)
			}
			e.reliability = math.Min(1.0, n/cfg.NRef)
		}
		if cfg.SEReliability.Enabled && e.snap.StandardError != nil && *e.snap.StandardError > 0 {
			snr := math.Abs(s.component.Value) / *e.snap.StandardError
			e.reliability *= numeric.Sigmoid(snr, cfg.SEReliability.K, cfg.SEReliability.X0)
		}

		e.pAdjusted = 1.0
		if e.reliability > 0 {
			e.pAdjusted = math.Pow(e.pValue, e.reliability)
		}
		e.pAdjusted = numeric.ClipRange(e.pAdjusted, cfg.PEpsilon, 1.0)
		e.logEvidence = -2.0 * math.Log(e.pAdjusted)

		total += e.logEvidence
		evidence[i] = e
	}

	nTerms := u.seriesTerms(len(evidence))
	aggregate := numeric.ChiSquareCDFEvenDF(total, nTerms)
	aggregate = numeric.Clip(aggregate, u.normalizer.ClipEpsilon())

	var denom float64
	for _, e := range evidence {
		denom += e.logEvidence * e.score
	}
	scale := reconstructionScale(aggregate, denom)

	contributions := make([]domain.ComponentContribution, len(evidence))
	for i, e := range evidence {
		contributions[i] = e.contribution(e.logEvidence*scale, domain.Diagnostics{
			diagPValue:        e.pValue,
			"p_adj":           e.pAdjusted,
			diagLogEvidence:   e.logEvidence,
			"reliability":     e.reliability,
			diagSampleSize:    optionalInt(e.snap.SampleSize),
			diagStandardError: optionalFloat(e.snap.StandardError),
			"n_terms":         nTerms,
		})
	}

	return domain.AggregateResult{
		Candidate:      CandidateFisherUP,
		AggregateScore: aggregate,
		Contributions:  contributions,
		Skipped:        skipped,
		Warnings:       warnings,
	}
}

// seriesTerms returns the chi-square series length for k contributing
// components, clamped to [1, numeric.MaxSeriesTerms].
func (u *FisherUPUnit) seriesTerms(k int) int {
	if u.termRatio == 1.0 {
		return k
	}
	scaled := u.termRatio * float64(k)
	if scaled >= numeric.MaxSeriesTerms {
		return numeric.MaxSeriesTerms
	}
	return max(1, int(scaled))
}

// Validate verifies the unit's configuration.
func (u *FisherUPUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return u.config.Normalization.Validate()
}

// UnmarshalParameters decodes YAML parameters over the defaults, validates
// them, and rebuilds the normalizer. The unit is unchanged on error.
func (u *FisherUPUnit) UnmarshalParameters(params yaml.Node) error {
	config, err := decodeParameters(params, DefaultFisherUPConfig())
	if err != nil {
		return err
	}
	n, err := normalization.New(config.Normalization)
	if err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	ratio, err := config.Correlation.termRatio()
	if err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	u.config = config
	u.normalizer = n
	u.termRatio = ratio
	return nil
}

// NewFisherUPFromConfig creates a FisherUPUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewFisherUPFromConfig(id string, config map[string]any) (domain.Aggregator, error) {
	cfg, err := overlayConfig(config, DefaultFisherUPConfig())
	if err != nil {
		return nil, err
	}
	unit, err := NewFisherUPUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
