// Package ensemble holds the model ensemble domain: member configuration,
// fitted member identity, and score combination. Model fitting itself is an
// external collaborator behind a port.
package ensemble

import (
	"fmt"

	"offerctr/domain/core"
)

// ModelConfig is one gradient-boosted-tree configuration. The dual-model
// setup pairs a deeper, slower-learning config with a shallower, faster one;
// each is fit under several seeds.
type ModelConfig struct {
	Name          string  `json:"name" yaml:"name"`
	Rounds        int     `json:"rounds" yaml:"rounds"`
	MaxDepth      int     `json:"max_depth" yaml:"max_depth"`
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate"`
	Subsample     float64 `json:"subsample" yaml:"subsample"`
	ColSubsample  float64 `json:"col_subsample" yaml:"col_subsample"`
	MinLeafWeight float64 `json:"min_leaf_weight" yaml:"min_leaf_weight"`
}

// Validate checks hyperparameter ranges
func (c ModelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model config name cannot be empty")
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("model %s: rounds must be positive, got %d", c.Name, c.Rounds)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("model %s: max_depth must be positive, got %d", c.Name, c.MaxDepth)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("model %s: learning_rate must be in (0,1], got %v", c.Name, c.LearningRate)
	}
	if c.Subsample <= 0 || c.Subsample > 1 {
		return fmt.Errorf("model %s: subsample must be in (0,1], got %v", c.Name, c.Subsample)
	}
	if c.ColSubsample <= 0 || c.ColSubsample > 1 {
		return fmt.Errorf("model %s: col_subsample must be in (0,1], got %v", c.Name, c.ColSubsample)
	}
	if c.MinLeafWeight < 0 {
		return fmt.Errorf("model %s: min_leaf_weight cannot be negative, got %v", c.Name, c.MinLeafWeight)
	}
	return nil
}

// Params renders the config as a map for fingerprinting
func (c ModelConfig) Params() map[string]interface{} {
	return map[string]interface{}{
		"name":            c.Name,
		"rounds":          c.Rounds,
		"max_depth":       c.MaxDepth,
		"learning_rate":   c.LearningRate,
		"subsample":       c.Subsample,
		"col_subsample":   c.ColSubsample,
		"min_leaf_weight": c.MinLeafWeight,
	}
}

// Config describes the whole ensemble: the model configs, how many seeded
// instances of each to fit, and optional per-config combination weights.
type Config struct {
	Models   []ModelConfig      `json:"models" yaml:"models"`
	Seeds    int                `json:"seeds" yaml:"seeds"`
	BaseSeed int64              `json:"base_seed" yaml:"base_seed"`
	Weights  map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// Validate checks the ensemble shape and weight references
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("ensemble needs at least one model config")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model config name %s", m.Name)
		}
		seen[m.Name] = true
	}
	if c.Seeds <= 0 {
		return fmt.Errorf("ensemble seeds must be positive, got %d", c.Seeds)
	}
	for name, w := range c.Weights {
		if !seen[name] {
			return fmt.Errorf("weight references unknown model config %s", name)
		}
		if w < 0 {
			return fmt.Errorf("weight for %s cannot be negative, got %v", name, w)
		}
	}
	return nil
}

// Members enumerates every (config, seed) pair the ensemble will fit
func (c Config) Members() []MemberSpec {
	specs := make([]MemberSpec, 0, len(c.Models)*c.Seeds)
	for _, m := range c.Models {
		for s := 0; s < c.Seeds; s++ {
			seed := c.BaseSeed + int64(s)
			specs = append(specs, MemberSpec{
				ID:     core.NewModelID(m.Name, seed),
				Config: m,
				Seed:   seed,
			})
		}
	}
	return specs
}

// MemberWeight returns the combination weight for a config name, defaulting
// to 1 so unset weights mean equal weighting
func (c Config) MemberWeight(configName string) float64 {
	if c.Weights == nil {
		return 1
	}
	if w, ok := c.Weights[configName]; ok {
		return w
	}
	return 1
}

// MemberSpec identifies one ensemble member before fitting
type MemberSpec struct {
	ID     core.ModelID
	Config ModelConfig
	Seed   int64
}

// Hash fingerprints the full ensemble configuration
func (c Config) Hash() core.ConfigHash {
	params := map[string]interface{}{
		"seeds":     c.Seeds,
		"base_seed": c.BaseSeed,
	}
	for _, m := range c.Models {
		params["model:"+m.Name] = m.Params()
	}
	for name, w := range c.Weights {
		params["weight:"+name] = w
	}
	return core.ComputeConfigHash(params)
}
