package normalization

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-concord/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// SEDampening scales a normalized score by sigmoid(|value|/se; K, X0) so that
// measurements with a weak signal-to-noise ratio score lower.
type SEDampening struct {
	// Enabled turns dampening on. Disabled by default.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// K is the slope of the signal-to-noise sigmoid.
	K float64 `yaml:"k" json:"k" validate:"gt=0"`

	// X0 is the signal-to-noise ratio at which the score is halved.
	X0 float64 `yaml:"x0" json:"x0"`
}

// Config controls how raw divergence values are mapped onto (0,1).
// A Config is treated as immutable once handed to New; the With* helpers
// return modified copies.
type Config struct {
	// AbsoluteDifferenceSigmoid normalizes AbsoluteDifference components.
	AbsoluteDifferenceSigmoid domain.SigmoidParams `yaml:"absolute_difference_sigmoid" json:"absolute_difference_sigmoid"`

	// CustomSigmoids maps a method_ref to the sigmoid used for its Custom
	// components. Every X0 must be non-negative.
	CustomSigmoids map[string]domain.SigmoidParams `yaml:"custom_sigmoids,omitempty" json:"custom_sigmoids,omitempty"`

	// BayesFactorCurve selects the Bayes-factor normalization curve.
	BayesFactorCurve BayesFactorCurve `yaml:"bayes_factor_curve" json:"bayes_factor_curve"`

	// ClipEpsilon is the margin used to keep scores inside (0,1).
	ClipEpsilon float64 `yaml:"clip_eps" json:"clip_eps" validate:"gt=0,lt=0.5"`

	// SEDampening configures optional standard-error dampening.
	SEDampening SEDampening `yaml:"se_dampening" json:"se_dampening"`

	// bayesFactorFn overrides BayesFactorCurve when set.
	bayesFactorFn BayesFactorFunc
}

// DefaultConfig returns the calibrated defaults: an absolute-difference
// sigmoid with k=1200 and x0=7e-4, the log-scaled Bayes-factor curve,
// a clip epsilon of 1e-12, and dampening disabled.
func DefaultConfig() Config {
	return Config{
		AbsoluteDifferenceSigmoid: domain.SigmoidParams{K: 1200.0, X0: 7e-4},
		BayesFactorCurve:          DefaultBayesFactorCurve(),
		ClipEpsilon:               1e-12,
		SEDampening: SEDampening{
			Enabled: false,
			K:       5.0,
			X0:      2.0,
		},
	}
}

// WithCustomSigmoid returns a copy of c with params registered for methodRef.
// The receiver's map is left untouched.
func (c Config) WithCustomSigmoid(methodRef string, params domain.SigmoidParams) Config {
	custom := make(map[string]domain.SigmoidParams, len(c.CustomSigmoids)+1)
	maps.Copy(custom, c.CustomSigmoids)
	custom[methodRef] = params
	c.CustomSigmoids = custom
	return c
}

// WithBayesFactorNormalizer returns a copy of c that normalizes Bayes
// factors with fn instead of BayesFactorCurve. A nil fn restores the curve.
func (c Config) WithBayesFactorNormalizer(fn BayesFactorFunc) Config {
	c.bayesFactorFn = fn
	return c
}

// Validate checks struct constraints and then the custom-sigmoid guardrail.
// Guardrail failures are returned as *domain.GuardrailError.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("normalization config validation failed: %w", err)
	}

	for _, ref := range slices.Sorted(maps.Keys(c.CustomSigmoids)) {
		params := c.CustomSigmoids[ref]
		if params.X0 < 0 {
			return domain.NewGuardrailError(
				domain.GuardrailCustomSigmoidX0NonNeg,
				fmt.Sprintf("custom_sigmoids[%q] has x0=%g; expected x0 >= 0", ref, params.X0),
			)
		}
	}

	if _, err := c.bayesFactor(); err != nil {
		return fmt.Errorf("normalization config validation failed: %w", err)
	}
	return nil
}

func (c Config) bayesFactor() (BayesFactorFunc, error) {
	if c.bayesFactorFn != nil {
		return c.bayesFactorFn, nil
	}
	return c.BayesFactorCurve.Func()
}

// customRefs returns the configured Custom method refs in sorted order.
func (c Config) customRefs() []string {
	return slices.Sorted(maps.Keys(c.CustomSigmoids))
}
