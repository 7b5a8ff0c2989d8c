// Package config provides configuration loading and management for pftmaps.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pftmaps/pkg/tissue"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Mask derivation parameters
	Masks struct {
		// Threshold is the minimum gm and wm PVE for a voxel to be in the interface
		Threshold float64 `yaml:"threshold"`

		// SCIncludeVal is the sub-cortical include value: 0 is like white matter, 1 is like gray matter
		SCIncludeVal float64 `yaml:"scIncludeVal"`

		// RangeTolerance is how far outside [0,1] an input PVE may go before a warning is logged
		RangeTolerance float64 `yaml:"rangeTolerance"`
	} `yaml:"masks"`

	// Output parameters
	Output struct {
		// Overwrite allows existing output files to be replaced
		Overwrite bool `yaml:"overwrite"`

		// QCDir receives quality-control slices and histograms when set
		QCDir string `yaml:"qcDir"`

		// QCAllSlices also writes every axial slice of each map under QCDir
		QCAllSlices bool `yaml:"qcAllSlices"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Masks.Threshold = tissue.DefaultThreshold
	cfg.Masks.SCIncludeVal = tissue.DefaultSCIncludeVal
	cfg.Masks.RangeTolerance = 1e-3

	cfg.Output.Overwrite = false
	cfg.Output.QCDir = ""
	cfg.Output.QCAllSlices = false

	return cfg
}

// MaskParams returns the derivation parameters held by the config
func (c *Config) MaskParams() tissue.Params {
	return tissue.Params{
		Threshold:    c.Masks.Threshold,
		SCIncludeVal: c.Masks.SCIncludeVal,
	}
}

// Validate checks the mask parameters and tolerances
func (c *Config) Validate() error {
	if err := c.MaskParams().Validate(); err != nil {
		return err
	}
	if c.Masks.RangeTolerance < 0 {
		return fmt.Errorf("rangeTolerance must be non-negative, got %v", c.Masks.RangeTolerance)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
