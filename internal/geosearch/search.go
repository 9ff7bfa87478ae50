// Package geosearch finds listings located near a given listing's
// coordinates, independent of any scoring.
package geosearch

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/model"
)

// Store is the persistence port the search needs: geocoded listings inside
// a bounding box. The box is a cheap prefilter; exact distance is checked
// here.
type Store interface {
	ListGeocodedWithin(ctx context.Context, bounds *geom.Bounds, excludeID string, limit int) ([]model.Listing, error)
}

// Search returns listings within a bounded radius of a listing's point.
type Search struct {
	store Store
	cfg   config.GeoConfig
}

// New creates a Search with the given store and config.
func New(store Store, cfg config.GeoConfig) *Search {
	return &Search{store: store, cfg: cfg}
}

// FindNearby returns other geocoded listings within the configured radius.
// A listing without usable coordinates yields an empty result, not an error.
func (s *Search) FindNearby(ctx context.Context, listing *model.Listing) ([]model.Listing, error) {
	if !listing.Searchable() {
		return nil, nil
	}

	center := *listing.Coordinates
	bounds := BoundsAround(center, s.cfg.RadiusM)

	rows, err := s.store.ListGeocodedWithin(ctx, bounds, listing.ID, s.cfg.MaxCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "geosearch: list within bounds")
	}

	// Bounding box corners exceed the radius; keep only exact hits.
	nearby := rows[:0]
	for _, r := range rows {
		if r.Coordinates == nil {
			continue
		}
		if center.DistanceM(*r.Coordinates) <= s.cfg.RadiusM {
			nearby = append(nearby, r)
		}
	}

	zap.L().Debug("geosearch: nearby listings",
		zap.String("listing_id", listing.ID),
		zap.Int("in_box", len(rows)),
		zap.Int("in_radius", len(nearby)),
	)

	return nearby, nil
}

// BoundsAround returns a WGS84 bounding box covering a circle of radiusM
// meters around the given point. Longitude degrees shrink with latitude, so
// the box widens toward the poles.
func BoundsAround(c model.Coordinates, radiusM float64) *geom.Bounds {
	const metersPerDegree = 111320.0

	dLat := radiusM / metersPerDegree

	cosLat := math.Cos(c.Latitude * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLng := radiusM / (metersPerDegree * cosLat)

	return geom.NewBounds(geom.XY).Set(
		c.Longitude-dLng, c.Latitude-dLat,
		c.Longitude+dLng, c.Latitude+dLat,
	)
}
