package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"offerctr/domain/ensemble"
)

// LoadEnsemble reads an ensemble configuration from a YAML file. An empty
// path falls back to the built-in dual-model setup.
func LoadEnsemble(path string) (ensemble.Config, error) {
	if path == "" {
		return DefaultEnsemble(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ensemble.Config{}, fmt.Errorf("read ensemble config: %w", err)
	}

	var cfg ensemble.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ensemble.Config{}, fmt.Errorf("parse ensemble config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ensemble.Config{}, fmt.Errorf("invalid ensemble config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultEnsemble pairs a deeper, slower-learning model with a shallower,
// faster one, each fit under three seeds.
func DefaultEnsemble() ensemble.Config {
	return ensemble.Config{
		Models: []ensemble.ModelConfig{
			{
				Name:          "deep",
				Rounds:        120,
				MaxDepth:      5,
				LearningRate:  0.08,
				Subsample:     0.9,
				ColSubsample:  0.8,
				MinLeafWeight: 1,
			},
			{
				Name:          "shallow",
				Rounds:        80,
				MaxDepth:      3,
				LearningRate:  0.15,
				Subsample:     1,
				ColSubsample:  1,
				MinLeafWeight: 1,
			},
		},
		Seeds:    3,
		BaseSeed: 17,
	}
}
