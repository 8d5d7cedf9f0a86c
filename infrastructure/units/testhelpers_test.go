package units

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/normalization"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/testutils"
)

const (
	contradiction = domain.DirectionContradiction
	agreement     = domain.DirectionAgreement
)

// measured builds a component with a Summary uncertainty.
func measured(kind domain.DivergenceKind, value float64, n int, se float64, ref string) domain.MetricComponent {
	return domain.MetricComponent{
		Kind:        kind,
		Value:       value,
		Direction:   contradiction,
		Uncertainty: domain.NewSummaryUncertainty(domain.IntPtr(n), domain.FloatPtr(se), ref+".unc"),
		MethodRef:   ref,
	}
}

// bare builds a component without any uncertainty.
func bare(kind domain.DivergenceKind, value float64, ref string) domain.MetricComponent {
	return domain.MetricComponent{
		Kind:      kind,
		Value:     value,
		Direction: contradiction,
		MethodRef: ref,
	}
}

// gatingFixture mixes a precise Z-score, an imprecise Z-score of the same
// kind, and a KL divergence without uncertainty.
func gatingFixture() []domain.MetricComponent {
	return []domain.MetricComponent{
		measured(domain.KindZScore, 1.5, 100, 0.2, "z1"),
		measured(domain.KindZScore, 2.5, 10, 1.0, "z2"),
		bare(domain.KindKLDivergence, 0.8, "kl"),
	}
}

// scenarioNormalization returns the default normalization with the custom
// sigmoids the scenario fixtures need.
func scenarioNormalization() normalization.Config {
	cfg := normalization.DefaultConfig()
	cfg.CustomSigmoids = testutils.DefaultCustomSigmoids()
	return cfg
}

// yamlNode parses content and returns its document body, or an empty
// mapping for empty content.
func yamlNode(t *testing.T, content string) yaml.Node {
	t.Helper()

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(content), &node))
	if len(node.Content) == 0 {
		return yaml.Node{Kind: yaml.MappingNode}
	}
	return *node.Content[0]
}

// requireReconstructs asserts that the contributions sum to the aggregate.
func requireReconstructs(t *testing.T, res domain.AggregateResult) {
	t.Helper()
	require.LessOrEqual(t, res.ReconstructionError(), 1e-8,
		"contributions sum to %v, aggregate is %v", res.ContributionSum(), res.AggregateScore)
}
