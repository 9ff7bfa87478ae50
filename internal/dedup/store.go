// Package dedup implements the listing deduplication and grouping engine:
// candidate matching, group consistency resolution, and the listing/group
// state machine.
package dedup

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/listing-dedup/internal/model"
)

// Store defines the persistence boundary for the dedup engine. The
// Postgres implementation is the production backend; an in-memory
// implementation backs the engine tests.
//
// Methods that change a group's status are conditional on the current
// status and return ErrGroupStatusConflict (or ErrGroupNotClaimable for
// the AI claim) when the precondition fails, so concurrent workers never
// double-apply a transition.
type Store interface {
	// Listings
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// ClaimPendingListings atomically moves up to limit Pending listings to
	// Processing and returns them. Concurrent workers never claim the same
	// listing twice.
	ClaimPendingListings(ctx context.Context, limit int) ([]model.Listing, error)

	// ReleaseListing returns a Processing listing to Pending (worker error
	// path; the next sweep retries it).
	ReleaseListing(ctx context.Context, id string) error

	// RequeueWaiting moves Waiting listings older than the given age back to
	// Pending so the next pass re-evaluates them.
	RequeueWaiting(ctx context.Context, olderThan time.Duration) (int64, error)

	MarkListingUnique(ctx context.Context, id string) error
	MarkListingCompleted(ctx context.Context, id string) error
	MarkListingWaiting(ctx context.Context, id, groupID string) error
	AttachListingToGroup(ctx context.Context, listingID, groupID string, primary bool) error

	ListGroupMembers(ctx context.Context, groupID string) ([]model.Listing, error)
	ListPropertyListings(ctx context.Context, propertyID string) ([]model.Listing, error)
	ListGeocodedWithin(ctx context.Context, bounds *geom.Bounds, excludeID string, limit int) ([]model.Listing, error)

	// Candidates
	//
	// UpsertCandidate is idempotent on the canonical pair: a second write
	// for the same pair refreshes scores and returns the original row. A
	// pair already ConfirmedDifferent keeps that status.
	UpsertCandidate(ctx context.Context, c *model.DedupCandidate) (*model.DedupCandidate, error)

	// GetCandidate returns the candidate for a pair (ids in any order), or
	// nil when the pair was never compared.
	GetCandidate(ctx context.Context, aID, bID string) (*model.DedupCandidate, error)

	ListCandidatesFor(ctx context.Context, listingID string) ([]model.DedupCandidate, error)

	// Groups
	//
	// CreateGroup inserts the group and attaches the member listings
	// (status Grouped, waiting reference cleared) in one transaction.
	CreateGroup(ctx context.Context, g *model.ListingGroup, memberIDs []string, primaryID string) error

	GetGroup(ctx context.Context, id string) (*model.ListingGroup, error)
	ListGroupsByStatus(ctx context.Context, status model.GroupStatus, limit int) ([]model.ListingGroup, error)
	UpdateGroupMatchScore(ctx context.Context, id string, score float64) error

	// ClaimGroupForProcessing does the single conditional
	// PendingAi->ProcessingAi update; ErrGroupNotClaimable when the group
	// was already claimed.
	ClaimGroupForProcessing(ctx context.Context, id string) error

	// SetGroupStatus transitions from->to, optionally recording a rejection
	// reason. ErrGroupStatusConflict when the group is not in from.
	SetGroupStatus(ctx context.Context, id string, from, to model.GroupStatus, reason *string) error

	// CompleteGroup moves a ProcessingAi group to Completed, links it and
	// its member listings to the produced property.
	CompleteGroup(ctx context.Context, groupID, propertyID string) error

	// ApproveGroup moves a PendingReview group to PendingAi and upgrades
	// every NeedsReview candidate among its member pairs to ConfirmedMatch.
	ApproveGroup(ctx context.Context, groupID string) error

	// RejectGroup moves a PendingReview group to Rejected with the reason,
	// resets every member listing to Pending with group references cleared,
	// and marks the member-pair candidates ConfirmedDifferent. When the
	// group carries matched_property_id, candidates between members and
	// that property's listings are marked ConfirmedDifferent too.
	RejectGroup(ctx context.Context, groupID, reason string) error

	// Properties
	MarkPropertyNeedsReanalysis(ctx context.Context, propertyID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
