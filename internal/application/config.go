// Package application loads aggregation suites from YAML and runs every
// configured candidate over the same metric components.
package application

import (
	"gopkg.in/yaml.v3"
)

// SuiteConfig defines a set of aggregation candidates that are evaluated
// side by side over the same components.
type SuiteConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the suite.
	Metadata Metadata `yaml:"metadata"`
	// Normalization holds suite-wide normalization settings. They are
	// applied to every candidate that does not declare its own
	// normalization block.
	Normalization yaml.Node `yaml:"normalization,omitempty"`
	// Candidates lists the aggregators of the suite in report order.
	Candidates []CandidateConfig `yaml:"candidates" validate:"required,min=1,dive"`
}

// Metadata provides descriptive information about a suite.
type Metadata struct {
	// Name is the human-readable identifier for this suite.
	Name string `yaml:"name" validate:"max=255"`
	// Description explains what the suite compares.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels for filtering suites.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
}

// CandidateConfig defines one aggregator of a suite.
type CandidateConfig struct {
	// ID is the unique identifier of the candidate within the suite.
	ID string `yaml:"id" validate:"required,candidateid"`
	// Type selects the registered aggregator factory, e.g. "IVW-CDF".
	Type string `yaml:"type" validate:"required"`
	// Parameters contains type-specific configuration decoded over the
	// aggregator's defaults.
	Parameters yaml.Node `yaml:"parameters,omitempty"`
}
