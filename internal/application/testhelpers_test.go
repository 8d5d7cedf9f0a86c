package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fullSuiteYAML declares every built-in candidate with the scenario
// custom sigmoids as the shared normalization block.
const fullSuiteYAML = `
version: "1.0.0"
metadata:
  name: candidate-comparison
  description: All aggregation candidates over the scenario fixtures.
  tags: [aggregation, scenarios]
normalization:
  custom_sigmoids:
    s2.custom.1: {k: 2.2, x0: 0.0}
    s6.custom.1: {k: 1.8, x0: 0.3}
candidates:
  - id: ivw
    type: IVW-CDF
  - id: htg_max
    type: HTG-Max
  - id: htg_lse
    type: HTG-Max-LSE
    parameters:
      lse_beta: 6.0
  - id: htg_soft
    type: HTG-Max-SoftSum
  - id: fisher
    type: Fisher-UP
    parameters:
      n_ref: 100
  - id: hybrid
    type: Hybrid
    parameters:
      tau: 5.0
`

func newTestLoader(t *testing.T) *SuiteLoader {
	t.Helper()
	loader, err := NewSuiteLoader(NewDefaultAggregatorRegistry())
	require.NoError(t, err)
	return loader
}

func loadSuite(t *testing.T, doc string) *Suite {
	t.Helper()
	suite, err := newTestLoader(t).LoadFromReader(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	return suite
}
