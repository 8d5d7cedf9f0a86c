package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMetricsError verifies that the error message names the metric and
// the failed operation.
func TestMetricsError(t *testing.T) {
	err := NewMetricsError("concord_aggregate_score", "Register", errors.New("duplicate metrics collector registration attempted"))

	assert.Equal(t, "metrics error: operation=Register, metric=concord_aggregate_score, err=duplicate metrics collector registration attempted", err.Error())
	assert.Equal(t, "concord_aggregate_score", err.Metric)
	assert.Equal(t, "Register", err.Operation)
}

// TestConfigError verifies that the error message carries the key.
func TestConfigError(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		err     error
		wantMsg string
	}{
		{
			name:    "missing suite file",
			key:     "suite.yaml",
			err:     ErrConfigNotFound,
			wantMsg: "config error: key=suite.yaml, err=configuration not found",
		},
		{
			name:    "unknown candidate type",
			key:     "candidates[2]",
			err:     ErrUnsupportedAggregatorType,
			wantMsg: "config error: key=candidates[2], err=unsupported aggregator type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.key, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.key, err.ConfigKey)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

// TestErrorUnwrapping ensures every error type exposes its cause.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewMetricsError("metric", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		assert.Equal(t, baseErr, err.Unwrap(), "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
