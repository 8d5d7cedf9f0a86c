package normalization

import (
	"fmt"
	"math"
)

// BayesFactorFunc maps a non-negative Bayes factor onto a score that the
// normalizer then clips to the open unit interval. It must be pure.
type BayesFactorFunc func(bf float64) float64

// BayesFactorFamily names a built-in Bayes-factor curve.
type BayesFactorFamily string

// Built-in Bayes-factor curve families.
const (
	// FamilyLogScaled is log1p(bf) / (log1p(bf) + c).
	FamilyLogScaled BayesFactorFamily = "log_scaled"
	// FamilyPowerLaw is 1 - (1+bf)^(-alpha).
	FamilyPowerLaw BayesFactorFamily = "power_law"
	// FamilyExpDecay is 1 - exp(-bf/k).
	FamilyExpDecay BayesFactorFamily = "exp_decay"
	// FamilyReciprocal is 1 - 1/(1+bf). It has no free parameter.
	FamilyReciprocal BayesFactorFamily = "reciprocal"
)

const (
	// DefaultLogScaledC is the log-scaled constant calibrated so the curve
	// reaches CalibrationCeiling at ReferenceBayesFactor.
	DefaultLogScaledC = 0.083647

	// ReferenceBayesFactor is the Bayes-factor magnitude used for calibration.
	ReferenceBayesFactor = 10000.0

	// CalibrationCeiling is the score a calibrated curve reaches at the
	// reference Bayes factor.
	CalibrationCeiling = 0.991
)

// BayesFactorCurve declares a Bayes-factor curve in configuration.
// A zero Param selects the family's curve calibrated at ReferenceBayesFactor.
type BayesFactorCurve struct {
	// Family selects the curve shape. Empty means log_scaled.
	Family BayesFactorFamily `yaml:"family" json:"family" validate:"omitempty,oneof=log_scaled power_law exp_decay reciprocal"`

	// Param is c for log_scaled, alpha for power_law, and k for exp_decay.
	Param float64 `yaml:"param,omitempty" json:"param,omitempty" validate:"gte=0"`
}

// DefaultBayesFactorCurve returns the log-scaled curve with DefaultLogScaledC.
func DefaultBayesFactorCurve() BayesFactorCurve {
	return BayesFactorCurve{Family: FamilyLogScaled, Param: DefaultLogScaledC}
}

// Func resolves the curve into a BayesFactorFunc.
func (c BayesFactorCurve) Func() (BayesFactorFunc, error) {
	switch c.Family {
	case FamilyLogScaled, "":
		param := c.Param
		if param == 0 {
			param = DefaultLogScaledC
		}
		return LogScaled(param), nil
	case FamilyPowerLaw:
		param := c.Param
		if param == 0 {
			param = CalibratePowerLaw(ReferenceBayesFactor)
		}
		return PowerLaw(param), nil
	case FamilyExpDecay:
		param := c.Param
		if param == 0 {
			param = CalibrateExpDecay(ReferenceBayesFactor)
		}
		return ExpDecay(param), nil
	case FamilyReciprocal:
		return Reciprocal(), nil
	default:
		return nil, fmt.Errorf("unknown bayes factor family %q", c.Family)
	}
}

// LogScaled returns log1p(bf) / (log1p(bf) + c).
func LogScaled(c float64) BayesFactorFunc {
	return func(bf float64) float64 {
		l := math.Log1p(bf)
		return l / (l + c)
	}
}

// PowerLaw returns 1 - (1+bf)^(-alpha).
func PowerLaw(alpha float64) BayesFactorFunc {
	return func(bf float64) float64 {
		return 1.0 - math.Pow(1.0+bf, -alpha)
	}
}

// ExpDecay returns 1 - exp(-bf/k).
func ExpDecay(k float64) BayesFactorFunc {
	return func(bf float64) float64 {
		return 1.0 - math.Exp(-bf/k)
	}
}

// Reciprocal returns 1 - 1/(1+bf).
func Reciprocal() BayesFactorFunc {
	return func(bf float64) float64 {
		return 1.0 - 1.0/(1.0+bf)
	}
}

// CalibrateLogScaled returns the c that puts LogScaled at CalibrationCeiling
// when bf = bfMax.
func CalibrateLogScaled(bfMax float64) float64 {
	return math.Log1p(bfMax) * (1.0 - CalibrationCeiling) / CalibrationCeiling
}

// CalibratePowerLaw returns the alpha that puts PowerLaw at
// CalibrationCeiling when bf = bfMax.
func CalibratePowerLaw(bfMax float64) float64 {
	return math.Log(1.0-CalibrationCeiling) / math.Log(1.0/(1.0+bfMax))
}

// CalibrateExpDecay returns the k that puts ExpDecay at CalibrationCeiling
// when bf = bfMax.
func CalibrateExpDecay(bfMax float64) float64 {
	return -bfMax / math.Log(1.0-CalibrationCeiling)
}
