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
	_ domain.Aggregator     = (*HTGMaxUnit)(nil)
	_ domain.CandidateNamer = (*HTGMaxUnit)(nil)
)

// HTGMode selects how HTG-Max combines the per-kind winners.
type HTGMode string

// Supported HTG-Max combination modes.
const (
	// HTGModeHardMax reports the largest winner's gated score.
	HTGModeHardMax HTGMode = "hard_max"

	// HTGModeLSERebound reports 1 - exp(-LSE_β(gated)), a smooth maximum
	// rebounded into the unit interval.
	HTGModeLSERebound HTGMode = "lse_rebound"

	// HTGModeSoftSum reports the winners' mean gated score times a boost.
	HTGModeSoftSum HTGMode = "soft_sum"
)

// HTGMaxUnit implements hierarchical type-gated max pooling.
//
// Gating: every surviving component gets a confidence from its log-compressed
// precision, sigmoid(log1p(n/(se²+eps)); Alpha, Tau), or CFloor when the
// precision is unavailable. The gated score is score × confidence.
//
// Type winners: within each divergence kind, the component with the strictly
// greatest gated score wins; the first one seen wins ties. Only winners
// receive weight.
//
// Decomposition: a winner's weight is share × scale × confidence, where
// share is its mode-specific share (1 for the hard-max winner, softmax for
// lse_rebound, uniform for soft_sum) and scale = aggregate / Σ share·gated.
// The contributions therefore sum to the aggregate in every mode.
//
// Concurrency: Aggregate is pure and safe for concurrent use.
type HTGMaxUnit struct {
	// name is the unique identifier for this unit instance.
	name string
	// config contains the validated configuration parameters.
	config HTGMaxConfig
	// normalizer applies config.Normalization.
	normalizer *normalization.Normalizer
}

// HTGMaxConfig controls precision gating and winner combination.
type HTGMaxConfig struct {
	// Alpha is the slope of the confidence sigmoid.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0"`

	// Tau is the log-precision at which confidence reaches 0.5.
	Tau float64 `yaml:"tau" json:"tau"`

	// CFloor is the confidence assigned when precision is unavailable.
	CFloor float64 `yaml:"c_floor" json:"c_floor" validate:"min=0,max=1"`

	// Epsilon guards the precision division.
	Epsilon float64 `yaml:"eps" json:"eps" validate:"gt=0"`

	// LSEBeta is the sharpness of the lse_rebound smooth maximum.
	LSEBeta float64 `yaml:"lse_beta" json:"lse_beta" validate:"gt=0"`

	// Mode selects the winner combination.
	Mode HTGMode `yaml:"mode" json:"mode" validate:"required,oneof=hard_max lse_rebound soft_sum"`

	// SoftSumBoost multiplies the soft_sum mean.
	SoftSumBoost float64 `yaml:"soft_sum_boost" json:"soft_sum_boost" validate:"gt=0"`

	// Normalization configures per-component normalization.
	Normalization normalization.Config `yaml:"normalization" json:"normalization"`
}

// DefaultHTGMaxConfig returns alpha 1.5, tau 7.8, a confidence floor of 0.15,
// eps 1e-12, beta 8, hard_max mode, and a soft-sum boost of 2.
func DefaultHTGMaxConfig() HTGMaxConfig {
	return HTGMaxConfig{
		Alpha:         1.5,
		Tau:           7.8,
		CFloor:        0.15,
		Epsilon:       1e-12,
		LSEBeta:       8.0,
		Mode:          HTGModeHardMax,
		SoftSumBoost:  2.0,
		Normalization: normalization.DefaultConfig(),
	}
}

// NewHTGMaxUnit creates an HTGMaxUnit with a validated configuration.
func NewHTGMaxUnit(name string, config HTGMaxConfig) (*HTGMaxUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	n, err := newNormalizer(config, config.Normalization)
	if err != nil {
		return nil, err
	}

	return &HTGMaxUnit{
		name:       name,
		config:     config,
		normalizer: n,
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *HTGMaxUnit) Name() string { return u.name }

// Config returns the unit's configuration.
func (u *HTGMaxUnit) Config() HTGMaxConfig { return u.config }

// Candidate returns the candidate name for the configured mode.
func (u *HTGMaxUnit) Candidate() string {
	switch u.config.Mode {
	case HTGModeLSERebound:
		return CandidateHTGMaxLSE
	case HTGModeSoftSum:
		return CandidateHTGMaxSoftSum
	default:
		return CandidateHTGMax
	}
}

type gatedComponent struct {
	staged
	precision    float64
	hasPrecision bool
	confidence   float64
	gated        float64
}

// Aggregate gates, selects per-kind winners, and combines them.
func (u *HTGMaxUnit) Aggregate(components []domain.MetricComponent) domain.AggregateResult {
	kept, skipped, warnings := normalizeAll(u.normalizer, components)
	if len(kept) == 0 {
		return domain.NewEmptyResult(u.Candidate(), skipped, warnings)
	}

	eps := u.normalizer.ClipEpsilon()
	gated := make([]gatedComponent, len(kept))
	for i, s := range kept {
		g := gatedComponent{staged: s, confidence: u.config.CFloor}
		g.precision, g.hasPrecision = normalization.GatePrecision(s.component, u.config.Epsilon)
		if g.hasPrecision {
			g.confidence = numeric.Sigmoid(g.precision, u.config.Alpha, u.config.Tau)
		}
		g.confidence = numeric.Clip(g.confidence, eps)
		g.gated = s.score * g.confidence
		gated[i] = g
	}

	winners := typeWinners(gated)
	aggregate, shares := u.combine(gated, winners)
	aggregate = numeric.Clip(aggregate, eps)

	var reconstructed float64
	for _, w := range winners {
		reconstructed += shares[w] * gated[w].gated
	}
	scale := reconstructionScale(aggregate, reconstructed)

	contributions := make([]domain.ComponentContribution, len(gated))
	for i, g := range gated {
		share := shares[i]
		var precision any
		if g.hasPrecision {
			precision = g.precision
		}
		contributions[i] = g.contribution(share*scale*g.confidence, domain.Diagnostics{
			diagConfidence: g.confidence,
			diagGatedScore: g.gated,
			diagPrecision:  precision,
			"winner_gate":  share,
			"share_scale":  scale,
			"mode":         string(u.config.Mode),
		})
	}

	return domain.AggregateResult{
		Candidate:      u.Candidate(),
		AggregateScore: aggregate,
		Contributions:  contributions,
		Skipped:        skipped,
		Warnings:       warnings,
	}
}

// typeWinners returns the index of each kind's winner, ordered by the first
// appearance of the kind.
func typeWinners(gated []gatedComponent) []int {
	var order []domain.DivergenceKind
	best := make(map[domain.DivergenceKind]int)
	for i, g := range gated {
		kind := g.component.Kind
		cur, seen := best[kind]
		if !seen {
			order = append(order, kind)
			best[kind] = i
			continue
		}
		if g.gated > gated[cur].gated {
			best[kind] = i
		}
	}

	winners := make([]int, len(order))
	for i, kind := range order {
		winners[i] = best[kind]
	}
	return winners
}

// combine returns the unclipped aggregate and each component's share. Only
// winners have a non-zero share.
func (u *HTGMaxUnit) combine(gated []gatedComponent, winners []int) (float64, []float64) {
	shares := make([]float64, len(gated))

	switch u.config.Mode {
	case HTGModeLSERebound:
		beta := u.config.LSEBeta
		peak := math.Inf(-1)
		for _, w := range winners {
			peak = math.Max(peak, gated[w].gated)
		}
		// Shift by the peak so exp never overflows.
		var sum float64
		for _, w := range winners {
			shares[w] = math.Exp(beta * (gated[w].gated - peak))
			sum += shares[w]
		}
		for _, w := range winners {
			shares[w] /= sum
		}
		lse := peak + math.Log(sum)/beta
		return 1.0 - math.Exp(-lse), shares

	case HTGModeSoftSum:
		var sum float64
		for _, w := range winners {
			sum += gated[w].gated
			shares[w] = 1.0 / float64(len(winners))
		}
		return sum / float64(len(winners)) * u.config.SoftSumBoost, shares

	default:
		top := winners[0]
		for _, w := range winners[1:] {
			if gated[w].gated > gated[top].gated {
				top = w
			}
		}
		shares[top] = 1.0
		return gated[top].gated, shares
	}
}

// Validate verifies the unit's configuration.
func (u *HTGMaxUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return u.config.Normalization.Validate()
}

// UnmarshalParameters decodes YAML parameters over the defaults, validates
// them, and rebuilds the normalizer. The unit is unchanged on error.
func (u *HTGMaxUnit) UnmarshalParameters(params yaml.Node) error {
	config, err := decodeParameters(params, DefaultHTGMaxConfig())
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

// NewHTGMaxFromConfig creates an HTGMaxUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
func NewHTGMaxFromConfig(id string, config map[string]any) (domain.Aggregator, error) {
	cfg, err := overlayConfig(config, DefaultHTGMaxConfig())
	if err != nil {
		return nil, err
	}
	unit, err := NewHTGMaxUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
