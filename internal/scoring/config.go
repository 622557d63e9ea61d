package scoring

import (
	"errors"
	"fmt"
)

// Constants are the fixed parameters of the forgetfulness curve.
type Constants struct {
	// BaseLambda is the decay rate for importance 1. Higher importance
	// decays by BaseLambda / importance².
	BaseLambda float64 `yaml:"base_lambda" json:"base_lambda"`
	// Importance5Floor is the minimum score of an importance-5 event.
	Importance5Floor float64 `yaml:"importance5_floor" json:"importance5_floor"`
}

// Settings are the user-tunable parameters of the relevance bonuses.
type Settings struct {
	VectorSimilarityThreshold float64 `yaml:"vector_similarity_threshold" json:"vector_similarity_threshold"`
	// Alpha splits CombinedBoostWeight between the vector bonus (Alpha) and
	// the BM25 bonus (1-Alpha).
	Alpha               float64 `yaml:"alpha" json:"alpha"`
	CombinedBoostWeight float64 `yaml:"combined_boost_weight" json:"combined_boost_weight"`
}

// DefaultConstants returns the standard curve parameters.
func DefaultConstants() Constants {
	return Constants{
		BaseLambda:       0.05,
		Importance5Floor: 5,
	}
}

// DefaultSettings returns the standard bonus parameters.
func DefaultSettings() Settings {
	return Settings{
		VectorSimilarityThreshold: 0.5,
		Alpha:                     0.7,
		CombinedBoostWeight:       15,
	}
}

// Validate reports out-of-range constants.
func (c Constants) Validate() error {
	var errs []error
	if c.BaseLambda < 0 {
		errs = append(errs, fmt.Errorf("scoring: base_lambda must be >= 0, got %v", c.BaseLambda))
	}
	if c.Importance5Floor < 0 {
		errs = append(errs, fmt.Errorf("scoring: importance5_floor must be >= 0, got %v", c.Importance5Floor))
	}
	return errors.Join(errs...)
}

// Validate reports out-of-range settings. Scoring itself never fails on bad
// settings; it sanitizes them. Validate exists for configuration checks.
func (s Settings) Validate() error {
	var errs []error
	if s.Alpha < 0 || s.Alpha > 1 {
		errs = append(errs, fmt.Errorf("scoring: alpha must be in [0,1], got %v", s.Alpha))
	}
	if s.CombinedBoostWeight < 0 {
		errs = append(errs, fmt.Errorf("scoring: combined_boost_weight must be >= 0, got %v", s.CombinedBoostWeight))
	}
	if s.VectorSimilarityThreshold < 0 || s.VectorSimilarityThreshold >= 1 {
		errs = append(errs, fmt.Errorf("scoring: vector_similarity_threshold must be in [0,1), got %v", s.VectorSimilarityThreshold))
	}
	return errors.Join(errs...)
}

// sanitized clamps settings into the ranges the bonus cap relies on.
func (s Settings) sanitized() Settings {
	s.Alpha = min(max(s.Alpha, 0), 1)
	s.CombinedBoostWeight = max(s.CombinedBoostWeight, 0)
	s.VectorSimilarityThreshold = min(max(s.VectorSimilarityThreshold, 0), 0.999)
	return s
}
