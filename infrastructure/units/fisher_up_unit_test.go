package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-concord/infrastructure/normalization"
	"github.com/ahrav/go-concord/infrastructure/numeric"
	"github.com/ahrav/go-concord/internal/domain"
)

func TestFisherUPUnit_Aggregate(t *testing.T) {
	unit, err := NewFisherUPUnit("fisher", DefaultFisherUPConfig())
	require.NoError(t, err)

	res := unit.Aggregate(gatingFixture())
	assert.Equal(t, CandidateFisherUP, res.Candidate)
	assert.InDelta(t, 0.4642788524552782, res.AggregateScore, 1e-12)
	require.Len(t, res.Contributions, 3)

	tests := []struct {
		ref         string
		weight      float64
		reliability float64
		logEvidence float64
	}{
		// n=100 saturates reliability at n_ref.
		{"z1", 0.4206969330350226, 1.0, 4.025594440527889},
		// n=10 gives a reliability of 0.1.
		{"z2", 0.09172453804205405, 0.1, 0.8777002193437485},
		// No uncertainty falls back to the reliability floor.
		{"kl", 0.01672088688516195, 0.1, 0.16000000000000006},
	}
	for i, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			c := res.Contributions[i]
			assert.Equal(t, tt.ref, c.MethodRef)
			assert.InDelta(t, tt.weight, c.Weight, 1e-12)
			assert.InDelta(t, tt.reliability, c.Diagnostics["reliability"], 1e-12)
			assert.InDelta(t, tt.logEvidence, c.Diagnostics[diagLogEvidence], 1e-12)

			p := c.Diagnostics[diagPValue].(float64)
			assert.InDelta(t, 1.0-c.Score, p, 1e-12)
			pAdj := c.Diagnostics["p_adj"].(float64)
			assert.InDelta(t, math.Pow(p, tt.reliability), pAdj, 1e-12)
		})
	}

	requireReconstructs(t, res)
}

func TestFisherUPUnit_SEReliability(t *testing.T) {
	cfg := DefaultFisherUPConfig()
	cfg.SEReliability.Enabled = true
	unit, err := NewFisherUPUnit("fisher_se", cfg)
	require.NoError(t, err)

	res := unit.Aggregate(gatingFixture())
	assert.InDelta(t, 0.4437101622914974, res.AggregateScore, 1e-12)

	// The KL component has no standard error, so its reliability is untouched.
	kl, ok := res.Contribution("kl")
	require.True(t, ok)
	assert.InDelta(t, 0.1, kl.Diagnostics["reliability"], 1e-12)

	// z1 has |1.5|/0.2 = 7.5 signal-to-noise, so the factor is close to 1.
	z1, ok := res.Contribution("z1")
	require.True(t, ok)
	assert.InDelta(t, 1.0/(1.0+math.Exp(-3.0*(7.5-2.0))), z1.Diagnostics["reliability"], 1e-12)

	requireReconstructs(t, res)
}

func TestFisherUPUnit_CorrelationCalibration(t *testing.T) {
	tests := []struct {
		name          string
		calibration   CorrelationCalibration
		expectedTerms int
		expectedScore float64
	}{
		{
			name:          "uncalibrated uses one term per component",
			expectedTerms: 3,
			expectedScore: 0.4642788524552782,
		},
		{
			// var 20/3 gives effective_df 4.8 for k=4, a ratio of 0.6.
			name:          "correlated totals shrink the series",
			calibration:   CorrelationCalibration{Totals: []float64{2, 4, 6, 8}, Components: 4},
			expectedTerms: 1,
			expectedScore: 0.9204720963770241,
		},
		{
			name:          "constant totals keep the independent length",
			calibration:   CorrelationCalibration{Totals: []float64{5, 5, 5}, Components: 2},
			expectedTerms: 3,
			expectedScore: 0.4642788524552782,
		},
		{
			// var 0.125 gives effective_df 64 for k=2, a ratio of 16.
			name:          "tight totals lengthen the series",
			calibration:   CorrelationCalibration{Totals: []float64{10, 10.5}, Components: 2},
			expectedTerms: 48,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFisherUPConfig()
			cfg.Correlation = tt.calibration
			unit, err := NewFisherUPUnit("fisher_corr", cfg)
			require.NoError(t, err)

			res := unit.Aggregate(gatingFixture())
			for _, c := range res.Contributions {
				assert.Equal(t, tt.expectedTerms, c.Diagnostics["n_terms"])
			}
			if tt.expectedScore != 0 {
				assert.InDelta(t, tt.expectedScore, res.AggregateScore, 1e-9)
			}
			requireReconstructs(t, res)
		})
	}
}

func TestFisherUPUnit_SeriesTermsClamp(t *testing.T) {
	unit := &FisherUPUnit{termRatio: 0.01}
	assert.Equal(t, 1, unit.seriesTerms(3))

	unit.termRatio = 1e9
	assert.Equal(t, numeric.MaxSeriesTerms, unit.seriesTerms(3))
}

func TestFisherUPUnit_Properties(t *testing.T) {
	unit, err := NewFisherUPUnit("fisher", DefaultFisherUPConfig())
	require.NoError(t, err)

	t.Run("empty input", func(t *testing.T) {
		res := unit.Aggregate(nil)
		assert.Zero(t, res.AggregateScore)
		assert.Empty(t, res.Contributions)
		assert.Equal(t, CandidateFisherUP, res.Candidate)
	})

	t.Run("zero reliability contributes no evidence", func(t *testing.T) {
		c := measured(domain.KindZScore, 2.0, 0, 0.3, "n0")
		res := unit.Aggregate([]domain.MetricComponent{c})
		require.Len(t, res.Contributions, 1)
		assert.Zero(t, res.Contributions[0].Diagnostics["reliability"])
		assert.Equal(t, 1.0, res.Contributions[0].Diagnostics["p_adj"])
		assert.Zero(t, res.Contributions[0].Diagnostics[diagLogEvidence])
		// No evidence means an aggregate at the lower clip bound and no weight.
		assert.InDelta(t, 0.0, res.AggregateScore, 1e-11)
		assert.Zero(t, res.Contributions[0].Weight)
	})

	t.Run("near-certain scores stay bounded", func(t *testing.T) {
		res := unit.Aggregate([]domain.MetricComponent{
			measured(domain.KindZScore, 40, 500, 0.01, "a"),
			measured(domain.KindZScore, 40, 500, 0.01, "b"),
		})
		assert.Less(t, res.AggregateScore, 1.0)
		assert.Greater(t, res.AggregateScore, 0.999)
		requireReconstructs(t, res)
	})

	t.Run("agreement lowers the aggregate", func(t *testing.T) {
		c := measured(domain.KindZScore, 2.0, 100, 0.2, "z")
		a := c
		a.Direction = agreement
		contra := unit.Aggregate([]domain.MetricComponent{c}).AggregateScore
		agree := unit.Aggregate([]domain.MetricComponent{a}).AggregateScore
		assert.Less(t, agree, contra)
	})
}

func TestNewFisherUPUnit(t *testing.T) {
	tests := []struct {
		name          string
		unitName      string
		mutate        func(*FisherUPConfig)
		expectedError string
	}{
		{name: "valid defaults", unitName: "fisher"},
		{name: "empty name", expectedError: "unit name cannot be empty"},
		{
			name:          "zero reference sample size",
			unitName:      "fisher",
			mutate:        func(c *FisherUPConfig) { c.NRef = 0 },
			expectedError: "configuration validation failed",
		},
		{
			name:          "reliability floor above one",
			unitName:      "fisher",
			mutate:        func(c *FisherUPConfig) { c.RFloor = 2 },
			expectedError: "configuration validation failed",
		},
		{
			name:          "p epsilon of one",
			unitName:      "fisher",
			mutate:        func(c *FisherUPConfig) { c.PEpsilon = 1 },
			expectedError: "configuration validation failed",
		},
		{
			name:          "non-positive se reliability slope",
			unitName:      "fisher",
			mutate:        func(c *FisherUPConfig) { c.SEReliability.K = 0 },
			expectedError: "configuration validation failed",
		},
		{
			name:     "correlation totals without a component count",
			unitName: "fisher",
			mutate: func(c *FisherUPConfig) {
				c.Correlation = CorrelationCalibration{Totals: []float64{1, 2}}
			},
			expectedError: "correlation calibration",
		},
		{
			name:     "unknown bayes factor family",
			unitName: "fisher",
			mutate: func(c *FisherUPConfig) {
				c.Normalization.BayesFactorCurve.Family = "sqrt"
			},
			expectedError: "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFisherUPConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			unit, err := NewFisherUPUnit(tt.unitName, cfg)
			if tt.expectedError == "" {
				require.NoError(t, err)
				assert.NoError(t, unit.Validate())
				return
			}
			require.Error(t, err)
			assert.Nil(t, unit)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewFisherUPFromConfig(t *testing.T) {
	agg, err := NewFisherUPFromConfig("fisher", map[string]any{
		"n_ref":   50.0,
		"r_floor": 0.2,
		"se_reliability": map[string]any{
			"enabled": true,
		},
	})
	require.NoError(t, err)

	unit := agg.(*FisherUPUnit)
	cfg := unit.Config()
	assert.Equal(t, 1.0, unit.termRatio)
	assert.Equal(t, 50.0, cfg.NRef)
	assert.Equal(t, 0.2, cfg.RFloor)
	assert.True(t, cfg.SEReliability.Enabled)
	assert.Equal(t, 3.0, cfg.SEReliability.K)
	assert.Equal(t, 2.0, cfg.SEReliability.X0)
}

func TestNewFisherUPFromConfig_Correlation(t *testing.T) {
	agg, err := NewFisherUPFromConfig("fisher", map[string]any{
		"correlation": map[string]any{
			"totals":     []any{2.0, 4.0, 6.0, 8.0},
			"components": 4,
		},
	})
	require.NoError(t, err)

	unit := agg.(*FisherUPUnit)
	assert.Equal(t, 4, unit.Config().Correlation.Components)
	assert.InDelta(t, 0.6, unit.termRatio, 1e-12)
}

func TestFisherUPUnit_UnmarshalParameters(t *testing.T) {
	unit, err := NewFisherUPUnit("fisher", DefaultFisherUPConfig())
	require.NoError(t, err)

	require.NoError(t, unit.UnmarshalParameters(yamlNode(t, `
n_ref: 250
p_eps: 1.0e-9
normalization:
  bayes_factor_curve:
    family: power_law
`)))
	assert.Equal(t, 250.0, unit.config.NRef)
	assert.Equal(t, 1e-9, unit.config.PEpsilon)
	assert.Equal(t, normalization.FamilyPowerLaw, unit.config.Normalization.BayesFactorCurve.Family)

	before := unit.config
	err = unit.UnmarshalParameters(yamlNode(t, `r_floor: -0.5`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter validation failed")
	assert.Equal(t, before, unit.config)
}

func TestDefaultFisherUPConfig(t *testing.T) {
	cfg := DefaultFisherUPConfig()

	assert.Equal(t, 100.0, cfg.NRef)
	assert.Equal(t, 0.1, cfg.RFloor)
	assert.Equal(t, 1e-12, cfg.PEpsilon)
	assert.False(t, cfg.SEReliability.Enabled)
	assert.Equal(t, 3.0, cfg.SEReliability.K)
	assert.Equal(t, 2.0, cfg.SEReliability.X0)
}
