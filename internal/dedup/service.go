package dedup

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/model"
	"github.com/sells-group/listing-dedup/internal/resilience"
)

// Service orchestrates the deduplication pass for a listing and the group
// lifecycle operations exposed to reviewers and the unification worker.
type Service struct {
	store    Store
	matcher  *CandidateMatcher
	resolver *Resolver
}

// NewService creates a Service.
func NewService(store Store, matcher *CandidateMatcher, resolver *Resolver) *Service {
	return &Service{store: store, matcher: matcher, resolver: resolver}
}

// ProcessListing runs one full dedup pass for a listing: candidate matching,
// resolution, and the resulting state change. The listing is expected to be
// in Processing (claimed by the caller).
func (s *Service) ProcessListing(ctx context.Context, listingID string) error {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return eris.Wrap(err, "dedup: load listing")
	}

	// A re-scraped listing already linked to a property needs no matching;
	// it only has to leave the queue.
	if listing.PropertyID != nil && listing.GroupID == nil {
		if err := s.store.MarkListingCompleted(ctx, listing.ID); err != nil {
			return eris.Wrap(err, "dedup: complete linked listing")
		}
		return nil
	}

	candidates, err := s.matcher.FindCandidates(ctx, listing)
	if err != nil {
		return eris.Wrap(err, "dedup: find candidates")
	}

	res, err := s.resolver.Resolve(ctx, listing, candidates)
	if err != nil {
		return eris.Wrap(err, "dedup: resolve")
	}

	if err := s.apply(ctx, listing, res); err != nil {
		return err
	}

	zap.L().Info("listing processed",
		zap.String("listing_id", listing.ID),
		zap.String("resolution", string(res.Kind)),
		zap.Int("candidates", len(candidates)),
	)
	return nil
}

func (s *Service) apply(ctx context.Context, listing *model.Listing, res *Resolution) error {
	switch res.Kind {
	case ResolutionUnique:
		return eris.Wrap(s.store.MarkListingUnique(ctx, listing.ID), "dedup: mark unique")

	case ResolutionWait:
		return eris.Wrap(s.store.MarkListingWaiting(ctx, listing.ID, res.Group.ID), "dedup: mark waiting")

	case ResolutionJoinGroup:
		if err := s.store.AttachListingToGroup(ctx, listing.ID, res.Group.ID, false); err != nil {
			return eris.Wrap(err, "dedup: join group")
		}
		// The group's confidence is its weakest link.
		if res.MatchScore < res.Group.MatchScore {
			if err := s.store.UpdateGroupMatchScore(ctx, res.Group.ID, res.MatchScore); err != nil {
				return eris.Wrap(err, "dedup: update group score")
			}
		}
		return nil

	case ResolutionSeedGroup:
		group := &model.ListingGroup{
			ID:                uuid.NewString(),
			Status:            res.GroupStatus,
			MatchScore:        res.MatchScore,
			MatchedPropertyID: res.MatchedPropertyID,
		}
		memberIDs := []string{listing.ID}
		if res.Peer != nil {
			memberIDs = append(memberIDs, res.Peer.ID)
		}
		if err := s.store.CreateGroup(ctx, group, memberIDs, listing.ID); err != nil {
			return eris.Wrap(err, "dedup: seed group")
		}
		// A proposed addition to a unified property invalidates that
		// property's analysis until the proposal is settled.
		if res.MatchedPropertyID != nil {
			if err := s.store.MarkPropertyNeedsReanalysis(ctx, *res.MatchedPropertyID); err != nil {
				return eris.Wrap(err, "dedup: flag property reanalysis")
			}
		}
		return nil

	default:
		return eris.Errorf("dedup: unknown resolution kind %q", res.Kind)
	}
}

// ApproveGroup moves a PendingReview group to PendingAI and confirms its
// member-pair candidates.
func (s *Service) ApproveGroup(ctx context.Context, groupID string) error {
	if err := s.store.ApproveGroup(ctx, groupID); err != nil {
		return eris.Wrap(err, "dedup: approve group")
	}
	zap.L().Info("group approved", zap.String("group_id", groupID))
	return nil
}

// RejectGroup dissolves a PendingReview group: members return to Pending and
// the rejected pairings are remembered as ConfirmedDifferent.
func (s *Service) RejectGroup(ctx context.Context, groupID, reason string) error {
	if err := s.store.RejectGroup(ctx, groupID, reason); err != nil {
		return eris.Wrap(err, "dedup: reject group")
	}
	zap.L().Info("group rejected",
		zap.String("group_id", groupID),
		zap.String("reason", reason),
	)
	return nil
}

// ClaimGroup hands a PendingAI group to the unification worker. Exactly one
// concurrent caller wins; the rest get ErrGroupNotClaimable.
func (s *Service) ClaimGroup(ctx context.Context, groupID string) error {
	return s.store.ClaimGroupForProcessing(ctx, groupID)
}

// CompleteGroup records a successful unification: the group and its members
// are linked to the produced property.
func (s *Service) CompleteGroup(ctx context.Context, groupID, propertyID string) error {
	if err := s.store.CompleteGroup(ctx, groupID, propertyID); err != nil {
		return eris.Wrap(err, "dedup: complete group")
	}
	zap.L().Info("group completed",
		zap.String("group_id", groupID),
		zap.String("property_id", propertyID),
	)
	return nil
}

// HandleUnificationFailure routes a failed unification attempt: transient
// causes put the group back in the AI queue, permanent ones send it to human
// review with the cause recorded.
func (s *Service) HandleUnificationFailure(ctx context.Context, groupID string, cause error) error {
	if resilience.IsTransient(cause) {
		if err := s.store.SetGroupStatus(ctx, groupID, model.GroupProcessingAI, model.GroupPendingAI, nil); err != nil {
			return eris.Wrap(err, "dedup: requeue failed group")
		}
		zap.L().Warn("unification failed, requeued",
			zap.String("group_id", groupID),
			zap.Error(cause),
		)
		return nil
	}

	reason := cause.Error()
	if err := s.store.SetGroupStatus(ctx, groupID, model.GroupProcessingAI, model.GroupPendingReview, &reason); err != nil {
		return eris.Wrap(err, "dedup: demote failed group")
	}
	zap.L().Error("unification failed, sent to review",
		zap.String("group_id", groupID),
		zap.Error(cause),
	)
	return nil
}
