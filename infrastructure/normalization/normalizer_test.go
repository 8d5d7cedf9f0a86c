package normalization

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-concord/internal/domain"
)

func newTestNormalizer(t *testing.T, mutate ...func(*Config)) *Normalizer {
	t.Helper()
	cfg := DefaultConfig().WithCustomSigmoid("s2.custom.1", domain.SigmoidParams{K: 2.2, X0: 0})
	for _, m := range mutate {
		m(&cfg)
	}
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

func TestNormalizeKinds(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name      string
		component domain.MetricComponent
		want      float64
		wantMode  string
	}{
		{
			name:      "z score",
			component: domain.MetricComponent{Kind: domain.KindZScore, Value: 1.5, MethodRef: "z"},
			want:      0.8663855974622838,
			wantMode:  ModeUnsigned,
		},
		{
			name:      "negative effect size is unsigned",
			component: domain.MetricComponent{Kind: domain.KindEffectSize, Value: -0.4, MethodRef: "es"},
			want:      0.31084348322064836,
			wantMode:  ModeUnsigned,
		},
		{
			name:      "bayes factor log scaled",
			component: domain.MetricComponent{Kind: domain.KindBayesFactor, Value: 12, MethodRef: "bf"},
			want:      0.9684183662926393,
			wantMode:  ModeUnsigned,
		},
		{
			name: "signed negative bayes factor floors at epsilon",
			component: domain.MetricComponent{
				Kind: domain.KindBayesFactor, Value: -3, Direction: domain.DirectionContradiction, MethodRef: "bf",
			},
			want:     1e-12,
			wantMode: "Contradiction",
		},
		{
			name:      "kl divergence",
			component: domain.MetricComponent{Kind: domain.KindKLDivergence, Value: 0.25, MethodRef: "kl"},
			want:      0.22119921692859512,
			wantMode:  ModeUnsigned,
		},
		{
			name:      "absolute difference above midpoint",
			component: domain.MetricComponent{Kind: domain.KindAbsoluteDifference, Value: 0.001, MethodRef: "ad"},
			want:      0.5890404340586651,
			wantMode:  ModeUnsigned,
		},
		{
			name:      "absolute difference below midpoint",
			component: domain.MetricComponent{Kind: domain.KindAbsoluteDifference, Value: -0.0004, MethodRef: "ad"},
			want:      0.41095956594133487,
			wantMode:  ModeUnsigned,
		},
		{
			name:      "custom sigmoid",
			component: domain.MetricComponent{Kind: domain.KindCustom, Value: 0.8, MethodRef: "s2.custom.1"},
			want:      0.8532096601986177,
			wantMode:  ModeUnsigned,
		},
		{
			name: "custom sigmoid keeps sign when direction given",
			component: domain.MetricComponent{
				Kind: domain.KindCustom, Value: -0.8, Direction: domain.DirectionContradiction, MethodRef: "s2.custom.1",
			},
			want:     0.14679033980138237,
			wantMode: "Contradiction",
		},
		{
			name: "agreement inverts",
			component: domain.MetricComponent{
				Kind: domain.KindZScore, Value: 2, Direction: domain.DirectionAgreement, MethodRef: "z",
			},
			want:     0.04550026389635842,
			wantMode: "Agreement",
		},
		{
			name: "none direction is unsigned",
			component: domain.MetricComponent{
				Kind: domain.KindEffectSize, Value: -0.4, Direction: domain.DirectionNone, MethodRef: "es",
			},
			want:     0.31084348322064836,
			wantMode: ModeUnsigned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := n.Normalize(tt.component)
			require.True(t, out.OK, out.Warnings)
			assert.Empty(t, out.Warnings)
			assert.InDelta(t, tt.want, out.Score, 1e-12)
			assert.Equal(t, tt.wantMode, out.DirectionMode)

			diag := out.Diagnostics()
			assert.Equal(t, tt.wantMode, diag[DiagDirectionMode])
			assert.NotNil(t, diag[DiagRawScore])
		})
	}
}

func TestNormalizeDirectionSymmetry(t *testing.T) {
	n := newTestNormalizer(t)

	for _, kind := range domain.DivergenceKinds {
		for _, v := range []float64{0.0002, 0.01, 0.5, 1.7, 4, 30} {
			ref := "m"
			if kind == domain.KindCustom {
				ref = "s2.custom.1"
			}
			base := domain.MetricComponent{Kind: kind, Value: v, MethodRef: ref}

			contra := base
			contra.Direction = domain.DirectionContradiction
			agree := base
			agree.Direction = domain.DirectionAgreement

			c := n.Normalize(contra)
			a := n.Normalize(agree)
			require.True(t, c.OK)
			require.True(t, a.OK)
			assert.InDelta(t, 1-c.Score, a.Score, 2e-12, "kind=%s v=%v", kind, v)
		}
	}
}

func TestNormalizeExclusions(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name        string
		component   domain.MetricComponent
		wantWarning string
	}{
		{
			name:        "custom without sigmoid",
			component:   domain.MetricComponent{Kind: domain.KindCustom, Value: 1, MethodRef: "other.metric"},
			wantWarning: "Excluded Custom metric 'other.metric': missing required sigmoid params (k, x0)",
		},
		{
			name:        "unsupported kind",
			component:   domain.MetricComponent{Kind: "Hellinger", Value: 1, MethodRef: "h"},
			wantWarning: "Unsupported metric kind 'Hellinger'",
		},
		{
			name:        "NaN value",
			component:   domain.MetricComponent{Kind: domain.KindZScore, Value: math.NaN(), MethodRef: "nan"},
			wantWarning: "Excluded metric 'nan': non-finite value",
		},
		{
			name:        "infinite value",
			component:   domain.MetricComponent{Kind: domain.KindKLDivergence, Value: math.Inf(1), MethodRef: "inf"},
			wantWarning: "Excluded metric 'inf': non-finite value",
		},
		{
			name: "unknown direction",
			component: domain.MetricComponent{
				Kind: domain.KindZScore, Value: 1, Direction: "Sideways", MethodRef: "dir",
			},
			wantWarning: "Excluded metric 'dir': unsupported direction 'Sideways'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := n.Normalize(tt.component)
			assert.False(t, out.OK)
			require.Len(t, out.Warnings, 1)
			assert.True(t, strings.HasPrefix(out.Warnings[0], tt.wantWarning), out.Warnings[0])
			assert.Nil(t, out.Diagnostics()[DiagRawScore])
		})
	}
}

func TestNormalizeCustomSuggestsNearMiss(t *testing.T) {
	n := newTestNormalizer(t)

	out := n.Normalize(domain.MetricComponent{Kind: domain.KindCustom, Value: 1, MethodRef: "s2.custom.2"})
	require.False(t, out.OK)
	assert.Contains(t, out.Warnings[0], "did you mean 's2.custom.1'?")

	out = n.Normalize(domain.MetricComponent{Kind: domain.KindCustom, Value: 1, MethodRef: "S2.Custom.1"})
	require.False(t, out.OK)
	assert.Contains(t, out.Warnings[0], "did you mean 's2.custom.1'?")

	out = n.Normalize(domain.MetricComponent{Kind: domain.KindCustom, Value: 1, MethodRef: "unrelated.metric.name"})
	require.False(t, out.OK)
	assert.NotContains(t, out.Warnings[0], "did you mean")
}

func TestNormalizeSEDampening(t *testing.T) {
	c := domain.MetricComponent{
		Kind:        domain.KindZScore,
		Value:       1.5,
		Direction:   domain.DirectionContradiction,
		Uncertainty: domain.NewSummaryUncertainty(domain.IntPtr(50), domain.FloatPtr(0.5), "x"),
		MethodRef:   "z",
	}

	plain := newTestNormalizer(t).Normalize(c)
	damped := newTestNormalizer(t, func(cfg *Config) { cfg.SEDampening.Enabled = true }).Normalize(c)

	assert.InDelta(t, 0.8663855974622838, plain.Score, 1e-12)
	assert.InDelta(t, 0.8605870078155214, damped.Score, 1e-12)

	noSE := c
	noSE.Uncertainty = domain.NewSummaryUncertainty(domain.IntPtr(50), nil, "x")
	undamped := newTestNormalizer(t, func(cfg *Config) { cfg.SEDampening.Enabled = true }).Normalize(noSE)
	assert.InDelta(t, plain.Score, undamped.Score, 1e-15)
}

func TestNormalizeSEDampeningUnderflow(t *testing.T) {
	n := newTestNormalizer(t, func(cfg *Config) {
		cfg.SEDampening.Enabled = true
		cfg.SEDampening.K = 500
	})

	for _, kind := range []domain.DivergenceKind{domain.KindZScore, domain.KindKLDivergence} {
		t.Run(string(kind), func(t *testing.T) {
			// sigmoid(1e-4; 500, 2) underflows to exactly 0.
			out := n.Normalize(domain.MetricComponent{
				Kind:        kind,
				Value:       1e-4,
				Direction:   domain.DirectionContradiction,
				Uncertainty: domain.NewSummaryUncertainty(domain.IntPtr(100), domain.FloatPtr(1.0), "x"),
				MethodRef:   "weak",
			})
			require.True(t, out.OK)
			assert.Equal(t, 1e-12, out.Score)
		})
	}
}

func TestNormalizeBoundedForExtremes(t *testing.T) {
	n := newTestNormalizer(t)
	for _, kind := range domain.DivergenceKinds {
		for _, v := range []float64{-1e300, -50, 0, 1e-9, 50, 1e300} {
			ref := "m"
			if kind == domain.KindCustom {
				ref = "s2.custom.1"
			}
			out := n.Normalize(domain.MetricComponent{Kind: kind, Value: v, MethodRef: ref})
			require.True(t, out.OK)
			assert.GreaterOrEqual(t, out.Score, 1e-12, "kind=%s v=%v", kind, v)
			assert.LessOrEqual(t, out.Score, 1-1e-12, "kind=%s v=%v", kind, v)
		}
	}
}

func TestNewGuardrail(t *testing.T) {
	cfg := DefaultConfig().WithCustomSigmoid("m", domain.SigmoidParams{K: 2.0, X0: -0.2})

	n, err := New(cfg)
	require.Error(t, err)
	assert.Nil(t, n)
	assert.Contains(t, err.Error(), "GR-S2-CUSTOM-SIGMOID-X0-NONNEG")
	assert.True(t, errors.Is(err, domain.ErrGuardrailViolation))

	var gerr *domain.GuardrailError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, domain.GuardrailCustomSigmoidX0NonNeg, gerr.ID)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero clip epsilon", func(c *Config) { c.ClipEpsilon = 0 }},
		{"clip epsilon too large", func(c *Config) { c.ClipEpsilon = 0.5 }},
		{"unknown bayes factor family", func(c *Config) { c.BayesFactorCurve.Family = "sigmoid" }},
		{"negative curve param", func(c *Config) { c.BayesFactorCurve.Param = -1 }},
		{"zero dampening slope", func(c *Config) { c.SEDampening.K = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewDetachesCustomSigmoids(t *testing.T) {
	cfg := DefaultConfig().WithCustomSigmoid("a", domain.SigmoidParams{K: 1, X0: 0})
	n, err := New(cfg)
	require.NoError(t, err)

	cfg.CustomSigmoids["b"] = domain.SigmoidParams{K: 1, X0: 0}
	out := n.Normalize(domain.MetricComponent{Kind: domain.KindCustom, Value: 1, MethodRef: "b"})
	assert.False(t, out.OK)
}

func TestWithBayesFactor(t *testing.T) {
	n := newTestNormalizer(t)
	c := domain.MetricComponent{Kind: domain.KindBayesFactor, Value: 3, MethodRef: "bf"}

	recip := n.WithBayesFactor(Reciprocal())
	assert.InDelta(t, 0.75, recip.Normalize(c).Score, 1e-12)
	assert.Same(t, n, n.WithBayesFactor(nil))

	// The original normalizer keeps its curve.
	assert.InDelta(t, LogScaled(DefaultLogScaledC)(3), n.Normalize(c).Score, 1e-12)

	viaConfig, err := New(DefaultConfig().WithBayesFactorNormalizer(PowerLaw(1)))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, viaConfig.Normalize(c).Score, 1e-12)
}

func TestNormalizerConcurrentUse(t *testing.T) {
	n := newTestNormalizer(t)
	c := domain.MetricComponent{Kind: domain.KindZScore, Value: 1.5, MethodRef: "z"}
	want := n.Normalize(c).Score

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, want, n.Normalize(c).Score)
			}
		}()
	}
	wg.Wait()
}
