// Package config loads Skim's runtime configuration, overlaying YAML files
// onto defaults and validating the result before anything runs with it.
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/logging"
	"github.com/go-skim/skim/reservoir"
	"github.com/go-skim/skim/spill"
)

// SpillConfig configures where and how aggregate state spills when group
// counts outgrow memory
type SpillConfig struct {
	// Enabled turns spilling on
	Enabled bool `yaml:"enabled"`
	// Dir is the directory receiving spill files
	Dir string `yaml:"dir"`
	// CacheSize is the total entry budget of the spill cache's memory tiers
	CacheSize int `yaml:"cache_size"`
	// CompressedFraction is the fraction of CacheSize held compressed
	CompressedFraction float32 `yaml:"compressed_fraction"`
	// Codec names the spill compression: none, lz4 or zstd
	Codec string `yaml:"codec"`
}

// Config is Skim's runtime configuration
type Config struct {
	// Capacity is the per-group sample capacity of quantile aggregations
	Capacity int `yaml:"capacity"`
	// PromoteToFloat controls whether quantile results promote to Float64
	PromoteToFloat bool `yaml:"promote_to_float"`
	// SketchAccuracy is the relative accuracy of sketch aggregations
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
	// Shards is the number of concurrent aggregation workers
	Shards int `yaml:"shards"`
	// LogLevel names the least critical level emitted: trace through fatal
	LogLevel string `yaml:"log_level"`
	// Spill configures state spilling
	Spill SpillConfig `yaml:"spill"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Capacity:       reservoir.DefaultCapacity,
		PromoteToFloat: true,
		SketchAccuracy: 0.01,
		Shards:         runtime.NumCPU(),
		LogLevel:       "info",
		Spill: SpillConfig{
			Enabled:            false,
			CacheSize:          64,
			CompressedFraction: 0.5,
			Codec:              "zstd",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// Validate reports every configuration violation at once
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Capacity <= 0 || c.Capacity > math.MaxUint32 {
		result = multierror.Append(result, errors.CapacityError{Capacity: c.Capacity})
	}
	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("sketch accuracy %f is not within (0, 1)", c.SketchAccuracy)})
	}
	if c.Shards < 1 {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("shard count %d must be at least 1", c.Shards)})
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, errors.ConfigurationError{Reason: err.Error()})
	}
	if c.Spill.Enabled {
		if c.Spill.Dir == "" {
			result = multierror.Append(result, errors.ConfigurationError{Reason: "spill dir must not be empty when spilling is enabled"})
		}
		if c.Spill.CacheSize < 5 {
			result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("spill cache size %d must be at least 5", c.Spill.CacheSize)})
		}
		if c.Spill.CompressedFraction < 0 || c.Spill.CompressedFraction > 1 {
			result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("spill compressed fraction %f must be between 0 and 1", c.Spill.CompressedFraction)})
		}
		if _, err := spill.ParseCodec(c.Spill.Codec); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// SpillCacheConfig maps the spill section onto the spill cache's own
// configuration. Call after Validate.
func (c *Config) SpillCacheConfig() (*spill.Config, error) {
	codec, err := spill.ParseCodec(c.Spill.Codec)
	if err != nil {
		return nil, err
	}
	return &spill.Config{
		Size:               c.Spill.CacheSize,
		CompressedFraction: c.Spill.CompressedFraction,
		DiskPath:           c.Spill.Dir,
		Codec:              codec,
	}, nil
}
