// Package score implements pairwise listing similarity scoring.
package score

import (
	"math"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/model"
)

// Scores holds the per-dimension similarity components for a listing pair,
// each in [0,1].
type Scores struct {
	Coordinate float64 `json:"coordinate"`
	Address    float64 `json:"address"`
	Features   float64 `json:"features"`
}

// Engine computes similarity scores between two listings. All methods are
// pure; the engine performs no I/O.
type Engine struct {
	cfg config.ScoreConfig
}

// NewEngine creates an Engine with the given config.
func NewEngine(cfg config.ScoreConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score computes the component scores for a listing pair.
func (e *Engine) Score(a, b *model.Listing) Scores {
	return Scores{
		Coordinate: e.scoreCoordinate(a, b),
		Address:    scoreAddress(a, b),
		Features:   e.scoreFeatures(a, b),
	}
}

// Overall combines component scores into the weighted overall score,
// rounded to 4 decimal places. Features dominates intentionally: listings
// at the same address with different bedroom/size counts are different
// units, so structural mismatch must outweigh location agreement.
func (e *Engine) Overall(s Scores) float64 {
	total := e.cfg.CoordinateWeight*s.Coordinate +
		e.cfg.AddressWeight*s.Address +
		e.cfg.FeaturesWeight*s.Features
	return math.Round(total*10000) / 10000
}

// scoreCoordinate returns 1.0 at zero distance, decaying linearly to 0 at
// the configured decay radius.
func (e *Engine) scoreCoordinate(a, b *model.Listing) float64 {
	if !a.Searchable() || !b.Searchable() {
		return 0
	}
	d := a.Coordinates.DistanceM(*b.Coordinates)
	if d >= e.cfg.CoordinateDecayM {
		return 0
	}
	return 1 - d/e.cfg.CoordinateDecayM
}

// scoreFeatures averages per-dimension similarity over the structural
// dimensions both listings report. Returns 0.5 (neutral) when the pair has
// no comparable dimension.
func (e *Engine) scoreFeatures(a, b *model.Listing) float64 {
	var components []float64

	if a.Bedrooms != nil && b.Bedrooms != nil {
		components = append(components, scoreCount(*a.Bedrooms, *b.Bedrooms))
	}
	if a.Bathrooms != nil && b.Bathrooms != nil {
		components = append(components, scoreCount(*a.Bathrooms, *b.Bathrooms))
	}
	if a.BuiltSizeM2 != nil && b.BuiltSizeM2 != nil {
		components = append(components, e.scoreSize(*a.BuiltSizeM2, *b.BuiltSizeM2))
	}
	if a.LotSizeM2 != nil && b.LotSizeM2 != nil {
		components = append(components, e.scoreSize(*a.LotSizeM2, *b.LotSizeM2))
	}

	if len(components) == 0 {
		return 0.5 // neutral when data unavailable
	}

	var sum float64
	for _, c := range components {
		sum += c
	}
	return sum / float64(len(components))
}

// scoreCount scores room counts: equal 1.0, off by one 0.5, else 0.
func scoreCount(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0.0
	}
}

// scoreSize scores built/lot sizes by relative difference against the
// smaller value: within SizeTolerance scores 1.0, then decays linearly to 0
// at SizeZero. Even single-digit percentage differences in small properties
// indicate genuinely different units, so the curve must drop well below
// match confidence before the hard-reject bound is reached.
func (e *Engine) scoreSize(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	smaller := math.Min(a, b)
	rel := math.Abs(a-b) / smaller

	switch {
	case rel <= e.cfg.SizeTolerance:
		return 1.0
	case rel >= e.cfg.SizeZero:
		return 0.0
	default:
		return 1 - (rel-e.cfg.SizeTolerance)/(e.cfg.SizeZero-e.cfg.SizeTolerance)
	}
}
