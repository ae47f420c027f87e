package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/birch"
)

// Config is the YAML form of the clustering options. Zero values mean
// "keep the default"; explicit flags override the file.
type Config struct {
	K               int     `yaml:"k"`
	BranchingFactor int     `yaml:"branching_factor"`
	LeafCapacity    int     `yaml:"leaf_capacity"`
	MaxLeafEntries  int     `yaml:"max_leaf_entries"`
	Threshold       float64 `yaml:"threshold"`
	MaxRebuilds     int     `yaml:"max_rebuilds"`
	MaxIterations   int     `yaml:"max_iterations"`
	RandomSeed      int64   `yaml:"random_seed"`
	Workers         int     `yaml:"workers"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply copies the non-zero config values onto the options.
func (c *Config) Apply(o *birch.Options) {
	if c.K != 0 {
		o.K = c.K
	}
	if c.BranchingFactor != 0 {
		o.BranchingFactor = c.BranchingFactor
	}
	if c.LeafCapacity != 0 {
		o.LeafCapacity = c.LeafCapacity
	}
	if c.MaxLeafEntries != 0 {
		o.MaxLeafEntries = c.MaxLeafEntries
	}
	if c.Threshold != 0 {
		o.Threshold = c.Threshold
	}
	if c.MaxRebuilds != 0 {
		o.MaxRebuilds = c.MaxRebuilds
	}
	if c.MaxIterations != 0 {
		o.MaxIterations = c.MaxIterations
	}
	if c.RandomSeed != 0 {
		o.RandomSeed = c.RandomSeed
	}
	if c.Workers != 0 {
		o.NumWorkers = c.Workers
	}
}
