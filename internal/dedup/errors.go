package dedup

import "github.com/rotisserie/eris"

// Precondition errors. Callers must not retry these without re-fetching
// state first.
var (
	// ErrGroupNotClaimable is returned when a PendingAi->ProcessingAi claim
	// finds the group already claimed (or not in PendingAi at all).
	ErrGroupNotClaimable = eris.New("dedup: group not available for processing")

	// ErrGroupStatusConflict is returned when a group operation requires a
	// status the group is no longer in (e.g. approving a group that has
	// already been approved).
	ErrGroupStatusConflict = eris.New("dedup: group not in required status")

	ErrListingNotFound = eris.New("dedup: listing not found")
	ErrGroupNotFound   = eris.New("dedup: group not found")
)
