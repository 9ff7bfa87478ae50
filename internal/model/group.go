package model

import "time"

// GroupStatus represents the review/unification state of a listing group.
type GroupStatus string

const (
	GroupPendingReview GroupStatus = "pending_review"
	GroupPendingAI     GroupStatus = "pending_ai"
	GroupProcessingAI  GroupStatus = "processing_ai"
	GroupCompleted     GroupStatus = "completed"
	GroupRejected      GroupStatus = "rejected"
)

// ListingGroup is a cluster of listings believed to describe one physical
// property, pending confirmation by a reviewer or the unification worker.
type ListingGroup struct {
	ID     string      `json:"id"`
	Status GroupStatus `json:"status"`

	// MatchScore is the confidence of the weakest pairwise link that
	// justified the current membership.
	MatchScore float64 `json:"match_score"`

	// MatchedPropertyID is set when the group was seeded against a listing
	// already attached to a completed property, so the reviewer/AI sees it
	// as a potential addition rather than a new cluster.
	MatchedPropertyID *string `json:"matched_property_id,omitempty"`

	// PropertyID is set once unification has produced a canonical property.
	PropertyID *string `json:"property_id,omitempty"`

	RejectionReason *string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Property is the canonical record produced by the external unification
// step. The dedup engine only ever flips its reanalysis flag.
type Property struct {
	ID              string    `json:"id"`
	NeedsReanalysis bool      `json:"needs_reanalysis"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
