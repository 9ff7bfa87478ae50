package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/listing-dedup/internal/model"
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

func testListing(mutate func(*model.Listing)) *model.Listing {
	l := &model.Listing{
		ID:            "l1",
		Platform:      "inmuebles24",
		Coordinates:   &model.Coordinates{Latitude: 20.6736, Longitude: -103.344},
		GeocodeStatus: model.GeocodeSuccess,
		PropertyType:  "house",
		OperationType: model.OperationSale,
		Price:         2_500_000,
		Currency:      "MXN",
		BuiltSizeM2:   ptrFloat64(120),
		LotSizeM2:     ptrFloat64(200),
		Bedrooms:      ptrInt(3),
		Bathrooms:     ptrInt(2),
		Address:       "Av. Hidalgo 123",
		Colonia:       "Centro",
		City:          "Guadalajara",
		DedupStatus:   model.DedupStatusProcessing,
	}
	if mutate != nil {
		mutate(l)
	}
	return l
}

func TestOverallWeighting(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name   string
		scores Scores
		want   float64
	}{
		{"all perfect", Scores{Coordinate: 1, Address: 1, Features: 1}, 1.0},
		{"all zero", Scores{}, 0.0},
		{"features only", Scores{Features: 1}, 0.65},
		{"location only", Scores{Coordinate: 1, Address: 1}, 0.35},
		{"coordinate only", Scores{Coordinate: 1}, 0.20},
		{"address only", Scores{Address: 1}, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.Overall(tt.scores), 0.0001)
		})
	}
}

func TestOverallRounding(t *testing.T) {
	e := NewEngine(DefaultConfig())

	got := e.Overall(Scores{Coordinate: 0.333333, Address: 0.333333, Features: 0.333333})
	assert.InDelta(t, 0.3333, got, 0.00001)
}

func TestScoreCoordinate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a := testListing(nil)

	tests := []struct {
		name    string
		offsetM float64 // shift applied due north
		want    float64
	}{
		{"same point", 0, 1.0},
		{"50m apart", 50, 0.75},
		{"100m apart", 100, 0.5},
		{"at decay radius", 200, 0.0},
		{"beyond decay radius", 500, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testListing(func(l *model.Listing) {
				l.ID = "l2"
				l.Coordinates = &model.Coordinates{
					Latitude:  a.Coordinates.Latitude + tt.offsetM/111320.0,
					Longitude: a.Coordinates.Longitude,
				}
			})
			assert.InDelta(t, tt.want, e.scoreCoordinate(a, b), 0.01)
		})
	}
}

func TestScoreCoordinateUnusable(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a := testListing(nil)

	b := testListing(func(l *model.Listing) {
		l.ID = "l2"
		l.GeocodeStatus = model.GeocodeFailed
	})
	assert.Equal(t, 0.0, e.scoreCoordinate(a, b))

	c := testListing(func(l *model.Listing) {
		l.ID = "l3"
		l.Coordinates = nil
		l.GeocodeStatus = model.GeocodeNotAttempted
	})
	assert.Equal(t, 0.0, e.scoreCoordinate(a, c))
}

func TestScoreCount(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want float64
	}{
		{"equal", 3, 3, 1.0},
		{"off by one", 3, 4, 0.5},
		{"off by one reversed", 4, 3, 0.5},
		{"off by two", 2, 4, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreCount(tt.a, tt.b))
		})
	}
}

func TestScoreSize(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"identical", 100, 100, 1.0},
		{"within tolerance", 100, 104, 1.0},
		{"at zero bound", 100, 115, 0.0},
		{"beyond zero bound", 100, 150, 0.0},
		{"midway", 100, 110, 0.5},
		{"relative to smaller", 104, 100, 1.0},
		{"invalid size", 0, 100, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.scoreSize(tt.a, tt.b), 0.01)
		})
	}
}

func TestScoreFeaturesNeutralWithoutData(t *testing.T) {
	e := NewEngine(DefaultConfig())

	a := testListing(func(l *model.Listing) {
		l.BuiltSizeM2, l.LotSizeM2, l.Bedrooms, l.Bathrooms = nil, nil, nil, nil
	})
	b := testListing(func(l *model.Listing) {
		l.ID = "l2"
		l.BuiltSizeM2, l.LotSizeM2, l.Bedrooms, l.Bathrooms = nil, nil, nil, nil
	})

	assert.Equal(t, 0.5, e.scoreFeatures(a, b))
}

func TestScoreFeaturesSkipsMissingDimensions(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// Only bedrooms comparable on both sides.
	a := testListing(func(l *model.Listing) {
		l.BuiltSizeM2, l.LotSizeM2, l.Bathrooms = nil, nil, nil
	})
	b := testListing(func(l *model.Listing) {
		l.ID = "l2"
		l.LotSizeM2, l.Bedrooms = nil, ptrInt(3)
		l.BuiltSizeM2 = ptrFloat64(500) // not comparable: a has none
		l.Bathrooms = nil
	})

	assert.Equal(t, 1.0, e.scoreFeatures(a, b))
}

// Two otherwise identical small apartments differing 22 vs 24 m² must not
// reach confirmed-match confidence: single-digit square meters separate
// genuinely different units in small buildings.
func TestSmallSizeDifferenceStaysBelowConfirmThreshold(t *testing.T) {
	e := NewEngine(DefaultConfig())

	a := testListing(func(l *model.Listing) {
		l.BuiltSizeM2 = ptrFloat64(22)
		l.LotSizeM2 = nil
		l.Bedrooms = ptrInt(1)
		l.Bathrooms = ptrInt(1)
	})
	b := testListing(func(l *model.Listing) {
		l.ID = "l2"
		l.BuiltSizeM2 = ptrFloat64(24)
		l.LotSizeM2 = nil
		l.Bedrooms = ptrInt(1)
		l.Bathrooms = ptrInt(1)
	})

	scores := e.Score(a, b)
	overall := e.Overall(scores)

	assert.InDelta(t, 1.0, scores.Coordinate, 0.0001)
	assert.InDelta(t, 1.0, scores.Address, 0.0001)
	assert.InDelta(t, 0.8636, scores.Features, 0.001)
	assert.InDelta(t, 0.9114, overall, 0.001)
	assert.Less(t, overall, 0.92)
	assert.GreaterOrEqual(t, overall, 0.65)
}
