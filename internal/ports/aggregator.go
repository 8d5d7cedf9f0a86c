package ports

import (
	"github.com/ahrav/go-concord/internal/domain"
)

// AggregatorFactory builds a configured aggregator from an identifier and a
// parameter map decoded from YAML. Missing parameters take the aggregator's
// defaults; invalid ones fail construction.
type AggregatorFactory func(id string, config map[string]any) (domain.Aggregator, error)

// AggregatorRegistry maps aggregator type names to their factories.
// Implementations must be safe for concurrent use.
type AggregatorRegistry interface {
	// CreateAggregator builds an aggregator of the given type.
	// Unknown types return an error wrapping ErrUnsupportedAggregatorType.
	CreateAggregator(aggregatorType, id string, config map[string]any) (domain.Aggregator, error)

	// RegisterAggregatorFactory adds or replaces the factory for a type.
	RegisterAggregatorFactory(aggregatorType string, factory AggregatorFactory) error

	// GetSupportedTypes returns the registered type names in sorted order.
	GetSupportedTypes() []string
}
