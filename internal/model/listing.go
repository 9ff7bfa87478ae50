package model

import (
	"math"
	"time"
)

// DedupStatus represents where a listing sits in the deduplication lifecycle.
type DedupStatus string

const (
	DedupStatusPending    DedupStatus = "pending"
	DedupStatusProcessing DedupStatus = "processing"
	DedupStatusUnique     DedupStatus = "unique"
	DedupStatusGrouped    DedupStatus = "grouped"
	DedupStatusWaiting    DedupStatus = "waiting"
	DedupStatusCompleted  DedupStatus = "completed"
)

// GeocodeStatus records the outcome of the (external) geocoding lookup.
type GeocodeStatus string

const (
	GeocodeNotAttempted GeocodeStatus = "not_attempted"
	GeocodeSuccess      GeocodeStatus = "success"
	GeocodeFailed       GeocodeStatus = "failed"
)

// OperationType distinguishes sale listings from rentals.
type OperationType string

const (
	OperationSale OperationType = "sale"
	OperationRent OperationType = "rent"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance to other in meters.
func (c Coordinates) DistanceM(other Coordinates) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLng := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Listing is one scraped ad instance from one platform, already normalized
// by the extraction pipeline into the engine's fixed schema.
type Listing struct {
	ID            string        `json:"id"`
	Platform      string        `json:"platform"`
	Coordinates   *Coordinates  `json:"coordinates,omitempty"`
	GeocodeStatus GeocodeStatus `json:"geocode_status"`

	PropertyType  string        `json:"property_type"`
	OperationType OperationType `json:"operation_type"`
	Price         float64       `json:"price"`
	Currency      string        `json:"currency"`
	BuiltSizeM2   *float64      `json:"built_size_m2,omitempty"`
	LotSizeM2     *float64      `json:"lot_size_m2,omitempty"`
	Bedrooms      *int          `json:"bedrooms,omitempty"`
	Bathrooms     *int          `json:"bathrooms,omitempty"`
	Address       string        `json:"address"`
	Colonia       string        `json:"colonia"`
	City          string        `json:"city"`
	State         string        `json:"state"`

	DedupStatus       DedupStatus `json:"dedup_status"`
	GroupID           *string     `json:"listing_group_id,omitempty"`
	WaitingForGroupID *string     `json:"waiting_for_group_id,omitempty"`
	PrimaryInGroup    bool        `json:"is_primary_in_group"`
	PropertyID        *string     `json:"property_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Searchable reports whether the listing has usable coordinates. Listings
// that were never geocoded or failed geocoding cannot form candidates.
func (l *Listing) Searchable() bool {
	return l.Coordinates != nil && l.GeocodeStatus == GeocodeSuccess
}
