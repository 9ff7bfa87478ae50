package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-dedup/internal/config"
)

// DefaultConfig returns a config.ScoreConfig with the production defaults.
// Weights sum to 1.0.
func DefaultConfig() config.ScoreConfig {
	return config.ScoreConfig{
		CoordinateWeight: 0.20,
		AddressWeight:    0.15,
		FeaturesWeight:   0.65,
		CoordinateDecayM: 200.0,
		SizeTolerance:    0.05,
		SizeZero:         0.15,
	}
}

// WeightSum returns the sum of the component weights.
func WeightSum(c config.ScoreConfig) float64 {
	return c.CoordinateWeight + c.AddressWeight + c.FeaturesWeight
}

// ValidateConfig checks that a ScoreConfig is internally consistent.
func ValidateConfig(c config.ScoreConfig) error {
	var errs []string

	weights := map[string]float64{
		"coordinate_weight": c.CoordinateWeight,
		"address_weight":    c.AddressWeight,
		"features_weight":   c.FeaturesWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if math.Abs(WeightSum(c)-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.4f", WeightSum(c)))
	}

	if c.CoordinateDecayM <= 0 {
		errs = append(errs, "coordinate_decay_m must be > 0")
	}
	if c.SizeTolerance < 0 {
		errs = append(errs, "size_tolerance must be >= 0")
	}
	if c.SizeZero <= c.SizeTolerance {
		errs = append(errs, "size_zero must be > size_tolerance")
	}

	if len(errs) > 0 {
		return eris.Errorf("score: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
