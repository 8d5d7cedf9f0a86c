package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-concord/infrastructure/units"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.AggregatorRegistry = (*DefaultAggregatorRegistry)(nil)

// DefaultAggregatorRegistry implements the AggregatorRegistry interface,
// creating aggregators from their type name and a parameter map.
type DefaultAggregatorRegistry struct {
	// factories maps aggregator type names to their factory functions.
	factories map[string]ports.AggregatorFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultAggregatorRegistry creates a registry with the built-in
// candidates pre-registered.
func NewDefaultAggregatorRegistry() *DefaultAggregatorRegistry {
	registry := &DefaultAggregatorRegistry{
		factories: make(map[string]ports.AggregatorFactory),
	}
	registry.registerBuiltinFactories()
	return registry
}

// registerBuiltinFactories registers IVW-CDF, the three HTG-Max modes,
// Fisher-UP, and Hybrid.
func (r *DefaultAggregatorRegistry) registerBuiltinFactories() {
	r.factories[units.CandidateIVWCDF] = units.NewIVWCDFFromConfig
	r.factories[units.CandidateHTGMax] = htgMaxFactory(units.HTGModeHardMax)
	r.factories[units.CandidateHTGMaxLSE] = htgMaxFactory(units.HTGModeLSERebound)
	r.factories[units.CandidateHTGMaxSoftSum] = htgMaxFactory(units.HTGModeSoftSum)
	r.factories[units.CandidateFisherUP] = units.NewFisherUPFromConfig
	r.factories[units.CandidateHybrid] = units.NewHybridFromConfig
}

// htgMaxFactory pins the HTG-Max mode implied by the type name. A "mode"
// parameter that disagrees with the type is rejected.
func htgMaxFactory(mode units.HTGMode) ports.AggregatorFactory {
	return func(id string, config map[string]any) (domain.Aggregator, error) {
		if m, ok := config["mode"]; ok && fmt.Sprint(m) != string(mode) {
			return nil, fmt.Errorf("mode %q conflicts with aggregator type mode %q", m, mode)
		}
		merged := make(map[string]any, len(config)+1)
		maps.Copy(merged, config)
		merged["mode"] = string(mode)
		return units.NewHTGMaxFromConfig(id, merged)
	}
}

// CreateAggregator creates a new aggregator based on the provided type,
// identifier, and configuration.
func (r *DefaultAggregatorRegistry) CreateAggregator(
	aggregatorType string,
	id string,
	config map[string]any,
) (domain.Aggregator, error) {
	r.mu.RLock()
	factory, exists := r.factories[aggregatorType]
	r.mu.RUnlock()

	if !exists {
		if suggestion := r.suggestType(aggregatorType); suggestion != "" {
			return nil, fmt.Errorf("%w: %s (did you mean %s?)", ports.ErrUnsupportedAggregatorType, aggregatorType, suggestion)
		}
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedAggregatorType, aggregatorType)
	}

	if id == "" {
		return nil, fmt.Errorf("aggregator ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	agg, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator %s of type %s: %w", id, aggregatorType, err)
	}

	return agg, nil
}

// suggestType returns the registered type closest to name, or "" when
// nothing is within a small edit distance.
func (r *DefaultAggregatorRegistry) suggestType(name string) string {
	best, bestDist := "", -1
	for _, t := range r.GetSupportedTypes() {
		d := levenshtein.ComputeDistance(name, t)
		if bestDist < 0 || d < bestDist {
			best, bestDist = t, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/4) {
		return ""
	}
	return best
}

// RegisterAggregatorFactory registers a new factory function for a specific
// aggregator type, replacing any existing registration.
func (r *DefaultAggregatorRegistry) RegisterAggregatorFactory(
	aggregatorType string,
	factory ports.AggregatorFactory,
) error {
	if aggregatorType == "" {
		return fmt.Errorf("aggregator type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[aggregatorType] = factory
	return nil
}

// GetSupportedTypes returns all registered aggregator types, sorted.
func (r *DefaultAggregatorRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}
