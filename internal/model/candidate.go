package model

import "time"

// CandidateStatus is the derived verdict of a pairwise comparison.
type CandidateStatus string

const (
	CandidateConfirmedMatch     CandidateStatus = "confirmed_match"
	CandidateNeedsReview        CandidateStatus = "needs_review"
	CandidateConfirmedDifferent CandidateStatus = "confirmed_different"
)

// DedupCandidate is a direction-free scored comparison between two listings.
// The pair is stored in canonical order so at most one row exists per pair.
type DedupCandidate struct {
	ID         string `json:"id"`
	ListingAID string `json:"listing_a_id"`
	ListingBID string `json:"listing_b_id"`

	CoordinateScore float64 `json:"coordinate_score"`
	AddressScore    float64 `json:"address_score"`
	FeaturesScore   float64 `json:"features_score"`
	OverallScore    float64 `json:"overall_score"`

	Status CandidateStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairKey returns the two listing ids in canonical (lexicographic) order.
// Both processing directions of the same pair resolve to the same key, which
// is what makes concurrent candidate creation race-free.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Matches reports whether the candidate still supports the two listings
// being the same property.
func (c *DedupCandidate) Matches() bool {
	return c.Status != CandidateConfirmedDifferent
}

// CounterpartID returns the other listing of the pair.
func (c *DedupCandidate) CounterpartID(listingID string) string {
	if c.ListingAID == listingID {
		return c.ListingBID
	}
	return c.ListingAID
}
