package dedup

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/model"
)

// ResolutionKind is the action the resolver chose for a listing.
type ResolutionKind string

const (
	// ResolutionJoinGroup attaches the listing to an existing active group.
	ResolutionJoinGroup ResolutionKind = "join_group"
	// ResolutionWait parks the listing until a busy group finishes
	// unification; the scheduler re-queues it afterwards.
	ResolutionWait ResolutionKind = "wait"
	// ResolutionSeedGroup creates a new group, either with an ungrouped peer
	// or against a completed property's listing.
	ResolutionSeedGroup ResolutionKind = "seed_group"
	// ResolutionUnique means no usable match; the listing stands alone.
	ResolutionUnique ResolutionKind = "unique"
)

// Resolution is the resolver's decision for one listing.
type Resolution struct {
	Kind ResolutionKind

	// Group is the join or wait target.
	Group *model.ListingGroup

	// Peer is the ungrouped listing to seed a new group with. Nil when the
	// seed is against a completed property.
	Peer *model.Listing

	// MatchedPropertyID marks a seeded group as a proposed addition to an
	// existing property.
	MatchedPropertyID *string

	// GroupStatus is the initial status for a seeded group: PendingAI when
	// the link is a confirmed match, PendingReview otherwise.
	GroupStatus model.GroupStatus

	// MatchScore is the weakest pairwise link justifying the membership.
	MatchScore float64
}

// Resolver turns a listing's matching candidates into a single consistent
// group action. It never lets one listing end up in two groups and never
// mutates a group that the unification worker currently holds.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Kind precedence when candidates point at different outcomes. Joining an
// existing cluster beats waiting on one, which beats creating a new one.
func resolutionRank(k ResolutionKind) int {
	switch k {
	case ResolutionJoinGroup:
		return 4
	case ResolutionWait:
		return 3
	case ResolutionSeedGroup:
		return 2
	default:
		return 1
	}
}

// Resolve decides what to do with a listing given its matching candidates,
// strongest first. With no candidates the listing is Unique.
func (r *Resolver) Resolve(ctx context.Context, listing *model.Listing, candidates []model.DedupCandidate) (*Resolution, error) {
	best := &Resolution{Kind: ResolutionUnique}

	for i := range candidates {
		c := &candidates[i]
		if !c.Matches() {
			continue
		}

		res, err := r.resolveCandidate(ctx, listing, c)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		// Candidates arrive strongest first, so within a rank the first
		// hit wins.
		if resolutionRank(res.Kind) > resolutionRank(best.Kind) {
			best = res
		}
	}

	zap.L().Debug("resolver: decision",
		zap.String("listing_id", listing.ID),
		zap.String("kind", string(best.Kind)),
		zap.Int("candidates", len(candidates)),
	)
	return best, nil
}

// resolveCandidate maps one candidate to a possible action, or nil when the
// counterpart is unusable (mid-processing, stale references, transitive
// conflict).
func (r *Resolver) resolveCandidate(ctx context.Context, listing *model.Listing, c *model.DedupCandidate) (*Resolution, error) {
	other, err := r.store.GetListing(ctx, c.CounterpartID(listing.ID))
	if err != nil {
		if eris.Is(err, ErrListingNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "resolver: load counterpart")
	}

	if other.GroupID != nil {
		return r.resolveAgainstGroup(ctx, listing, c, *other.GroupID)
	}

	if other.PropertyID != nil {
		// The counterpart already belongs to a unified property. The new
		// listing cannot join it directly; it seeds a group proposed as an
		// addition to that property.
		return &Resolution{
			Kind:              ResolutionSeedGroup,
			MatchedPropertyID: other.PropertyID,
			GroupStatus:       seedStatus(c.Status),
			MatchScore:        c.OverallScore,
		}, nil
	}

	switch other.DedupStatus {
	case model.DedupStatusPending, model.DedupStatusUnique, model.DedupStatusWaiting:
		peer := *other
		return &Resolution{
			Kind:        ResolutionSeedGroup,
			Peer:        &peer,
			GroupStatus: seedStatus(c.Status),
			MatchScore:  c.OverallScore,
		}, nil
	default:
		// Another worker holds the counterpart right now; its pass will pick
		// up the stored candidate against this listing.
		return nil, nil
	}
}

func (r *Resolver) resolveAgainstGroup(ctx context.Context, listing *model.Listing, c *model.DedupCandidate, groupID string) (*Resolution, error) {
	g, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		if eris.Is(err, ErrGroupNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "resolver: load group")
	}

	switch g.Status {
	case model.GroupProcessingAI:
		// Unification is running; membership is frozen until it finishes.
		return &Resolution{Kind: ResolutionWait, Group: g}, nil
	case model.GroupPendingReview, model.GroupPendingAI:
		ok, err := r.consistentWithMembers(ctx, listing, c.CounterpartID(listing.ID), groupID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Evidence against some member is missing or negative. The
			// listing parks until the group settles; a later pass can fill
			// in the missing comparisons or find the group dissolved.
			return &Resolution{Kind: ResolutionWait, Group: g}, nil
		}
		return &Resolution{
			Kind:       ResolutionJoinGroup,
			Group:      g,
			MatchScore: math.Min(g.MatchScore, c.OverallScore),
		}, nil
	default:
		// Completed or rejected groups are closed clusters.
		return nil, nil
	}
}

// consistentWithMembers requires direct pairwise evidence for the join: every
// member beyond the matched counterpart must carry a stored matching verdict
// against the listing. A ConfirmedDifferent verdict or a pair that was never
// compared blocks the join; group membership is never inferred transitively.
func (r *Resolver) consistentWithMembers(ctx context.Context, listing *model.Listing, counterpartID, groupID string) (bool, error) {
	members, err := r.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return false, eris.Wrap(err, "resolver: list group members")
	}
	for i := range members {
		if members[i].ID == counterpartID {
			continue
		}
		mc, err := r.store.GetCandidate(ctx, listing.ID, members[i].ID)
		if err != nil {
			return false, eris.Wrap(err, "resolver: member candidate lookup")
		}
		if mc == nil || !mc.Matches() {
			return false, nil
		}
	}
	return true, nil
}

// seedStatus maps the seeding candidate's verdict to the new group's initial
// status. Confirmed matches skip human review.
func seedStatus(s model.CandidateStatus) model.GroupStatus {
	if s == model.CandidateConfirmedMatch {
		return model.GroupPendingAI
	}
	return model.GroupPendingReview
}
