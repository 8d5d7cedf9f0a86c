package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/infrastructure/normalization"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

const normalizationKey = "normalization"

// SuiteLoader parses, validates, and caches aggregation suites described
// in YAML.
// Use SuiteLoader to load suites from files or readers; identical
// documents are built once and shared.
type SuiteLoader struct {
	// validator performs struct field validation with the suite's
	// custom rules registered.
	validator *validator.Validate
	// registry builds aggregators from their type name and parameters.
	registry ports.AggregatorRegistry
	// cache stores built suites indexed by the SHA256 hash of their
	// normalized configuration. Suites are immutable, so sharing is safe.
	cache map[string]*Suite
	// cacheMu guards cache.
	cacheMu sync.RWMutex
	// sf prevents duplicate suite construction when multiple goroutines
	// request the same suite simultaneously.
	sf singleflight.Group
}

// NewSuiteLoader creates a loader that builds candidates through registry.
// NewSuiteLoader returns an error if validator registration fails.
func NewSuiteLoader(registry ports.AggregatorRegistry) (*SuiteLoader, error) {
	if registry == nil {
		return nil, fmt.Errorf("aggregator registry cannot be nil")
	}

	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &SuiteLoader{
		validator: v,
		registry:  registry,
		cache:     make(map[string]*Suite),
	}, nil
}

// LoadSuiteConfig reads and validates a suite configuration file without
// building its candidates.
func LoadSuiteConfig(path string) (*SuiteConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	loader, err := NewSuiteLoader(NewDefaultAggregatorRegistry())
	if err != nil {
		return nil, err
	}

	config, err := loader.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := loader.validateConfig(config); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return config, nil
}

// load is the common implementation for loading suites from byte data.
func (sl *SuiteLoader) load(ctx context.Context, data []byte) (*Suite, error) {
	config, err := sl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := sl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		if suite, ok := sl.getCachedSuite(hash); ok {
			return suite, nil
		}

		if err := sl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		suite, err := sl.buildSuite(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build suite: %w", err)
		}

		sl.cacheSuite(hash, suite)
		return suite, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Suite), nil
}

// LoadFromFile loads and builds a suite from a YAML file.
func (sl *SuiteLoader) LoadFromFile(ctx context.Context, path string) (*Suite, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return sl.load(ctx, data)
}

// LoadFromReader loads and builds a suite from an io.Reader.
func (sl *SuiteLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Suite, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return sl.load(ctx, data)
}

// parseYAML strictly decodes data into a SuiteConfig; unknown top-level
// fields are rejected so typos are not silently ignored.
func (sl *SuiteLoader) parseYAML(data []byte) (*SuiteConfig, error) {
	var config SuiteConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct validation and then the semantic checks.
func (sl *SuiteLoader) validateConfig(config *SuiteConfig) error {
	if err := sl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := sl.validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics enforces unique candidate IDs and a valid suite-wide
// normalization block, including the custom-sigmoid guardrail. Every
// duplicate is reported, not just the first.
func (sl *SuiteLoader) validateSemantics(config *SuiteConfig) error {
	verr := domain.NewValidationError("suite")
	ids := make(map[string]int, len(config.Candidates))
	for i, c := range config.Candidates {
		if prev, exists := ids[c.ID]; exists {
			verr.AddError(fmt.Sprintf("candidates[%d]: duplicate ID %q: already used by candidates[%d]", i, c.ID, prev))
			continue
		}
		ids[c.ID] = i
	}

	var errs []error
	if verr.HasErrors() {
		errs = append(errs, verr)
	}
	if _, err := decodeNormalization(config.Normalization); err != nil {
		errs = append(errs, ports.NewConfigError(normalizationKey, err))
	}
	return errors.Join(errs...)
}

// decodeNormalization decodes a suite-wide normalization node over the
// defaults and validates it. An absent node yields the defaults.
func decodeNormalization(node yaml.Node) (normalization.Config, error) {
	cfg := normalization.DefaultConfig()
	if node.Kind == 0 {
		return cfg, nil
	}
	if err := node.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode normalization: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildSuite creates every candidate through the registry.
func (sl *SuiteLoader) buildSuite(ctx context.Context, config *SuiteConfig) (*Suite, error) {
	var shared map[string]any
	if config.Normalization.Kind != 0 {
		if err := config.Normalization.Decode(&shared); err != nil {
			return nil, fmt.Errorf("failed to decode normalization: %w", err)
		}
	}

	candidates := make([]Candidate, 0, len(config.Candidates))
	for i, cc := range config.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		agg, err := sl.createAggregator(cc, shared)
		if err != nil {
			return nil, ports.NewConfigError(fmt.Sprintf("candidates[%d]", i), err)
		}
		candidates = append(candidates, Candidate{ID: cc.ID, Type: cc.Type, Aggregator: agg})
	}

	suite, err := NewSuite(config.Metadata.Name, candidates)
	if err != nil {
		return nil, err
	}
	suite.version = config.Version
	return suite, nil
}

// createAggregator decodes a candidate's parameters, injects the shared
// normalization block when the candidate has none, and delegates to the
// registry.
func (sl *SuiteLoader) createAggregator(config CandidateConfig, shared map[string]any) (domain.Aggregator, error) {
	params := make(map[string]any)
	if config.Parameters.Kind != 0 {
		if err := config.Parameters.Decode(&params); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
		if params == nil {
			params = make(map[string]any)
		}
	}

	if _, ok := params[normalizationKey]; !ok && shared != nil {
		params[normalizationKey] = shared
	}

	return sl.registry.CreateAggregator(config.Type, config.ID, params)
}

// calculateConfigHash computes the SHA256 hash of a normalized
// SuiteConfig so that formatting differences share a cache entry.
func (sl *SuiteLoader) calculateConfigHash(config *SuiteConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedSuite returns a previously built suite.
func (sl *SuiteLoader) getCachedSuite(hash string) (*Suite, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()

	suite, ok := sl.cache[hash]
	return suite, ok
}

// cacheSuite stores a built suite under hash.
func (sl *SuiteLoader) cacheSuite(hash string, suite *Suite) {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache[hash] = suite
}

// ClearCache removes all cached suites, forcing subsequent loads to
// rebuild from source.
func (sl *SuiteLoader) ClearCache() {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache = make(map[string]*Suite)
}
