package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/listing-dedup/internal/model"
)

// MemoryStore is an in-memory Store used by the engine tests. It mirrors the
// Postgres semantics (claim atomicity, candidate idempotency, conditional
// group transitions) under a single mutex.
type MemoryStore struct {
	mu         sync.Mutex
	listings   map[string]*model.Listing
	candidates map[string]*model.DedupCandidate // keyed by canonical "a|b"
	groups     map[string]*model.ListingGroup
	reanalysis map[string]bool // property id -> needs_reanalysis
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		listings:   make(map[string]*model.Listing),
		candidates: make(map[string]*model.DedupCandidate),
		groups:     make(map[string]*model.ListingGroup),
		reanalysis: make(map[string]bool),
	}
}

// PutListing inserts or replaces a listing (test seeding).
func (s *MemoryStore) PutListing(l *model.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.listings[l.ID] = &cp
}

// NeedsReanalysis reports whether a property was flagged (test inspection).
func (s *MemoryStore) NeedsReanalysis(propertyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reanalysis[propertyID]
}

func pairMapKey(a, b string) string {
	a, b = model.PairKey(a, b)
	return a + "|" + b
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, eris.Wrapf(ErrListingNotFound, "id %s", id)
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ClaimPendingListings(_ context.Context, limit int) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*model.Listing
	for _, l := range s.listings {
		if l.DedupStatus == model.DedupStatusPending {
			pending = append(pending, l)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]model.Listing, 0, len(pending))
	for _, l := range pending {
		l.DedupStatus = model.DedupStatusProcessing
		l.UpdatedAt = time.Now()
		out = append(out, *l)
	}
	return out, nil
}

func (s *MemoryStore) ReleaseListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok && l.DedupStatus == model.DedupStatusProcessing {
		l.DedupStatus = model.DedupStatusPending
		l.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) RequeueWaiting(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, l := range s.listings {
		if l.DedupStatus == model.DedupStatusWaiting && l.UpdatedAt.Before(cutoff) {
			l.DedupStatus = model.DedupStatusPending
			l.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkListingUnique(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return eris.Wrapf(ErrListingNotFound, "id %s", id)
	}
	l.DedupStatus = model.DedupStatusUnique
	l.GroupID = nil
	l.WaitingForGroupID = nil
	l.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkListingCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return eris.Wrapf(ErrListingNotFound, "id %s", id)
	}
	l.DedupStatus = model.DedupStatusCompleted
	l.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkListingWaiting(_ context.Context, id, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return eris.Wrapf(ErrListingNotFound, "id %s", id)
	}
	l.DedupStatus = model.DedupStatusWaiting
	l.WaitingForGroupID = &groupID
	l.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AttachListingToGroup(_ context.Context, listingID, groupID string, primary bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return eris.Wrapf(ErrListingNotFound, "id %s", listingID)
	}
	l.DedupStatus = model.DedupStatusGrouped
	l.GroupID = &groupID
	l.WaitingForGroupID = nil
	l.PrimaryInGroup = primary
	l.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListGroupMembers(_ context.Context, groupID string) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Listing
	for _, l := range s.listings {
		if l.GroupID != nil && *l.GroupID == groupID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListPropertyListings(_ context.Context, propertyID string) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Listing
	for _, l := range s.listings {
		if l.PropertyID != nil && *l.PropertyID == propertyID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListGeocodedWithin(_ context.Context, bounds *geom.Bounds, excludeID string, limit int) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Listing
	for _, l := range s.listings {
		if l.ID == excludeID || !l.Searchable() {
			continue
		}
		lat, lng := l.Coordinates.Latitude, l.Coordinates.Longitude
		if lat < bounds.Min(1) || lat > bounds.Max(1) || lng < bounds.Min(0) || lng > bounds.Max(0) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertCandidate(_ context.Context, c *model.DedupCandidate) (*model.DedupCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aID, bID := model.PairKey(c.ListingAID, c.ListingBID)
	key := aID + "|" + bID

	existing, ok := s.candidates[key]
	if !ok {
		cp := *c
		cp.ListingAID, cp.ListingBID = aID, bID
		cp.CreatedAt = time.Now()
		cp.UpdatedAt = cp.CreatedAt
		s.candidates[key] = &cp
		out := cp
		return &out, nil
	}

	existing.CoordinateScore = c.CoordinateScore
	existing.AddressScore = c.AddressScore
	existing.FeaturesScore = c.FeaturesScore
	existing.OverallScore = c.OverallScore
	if existing.Status != model.CandidateConfirmedDifferent {
		existing.Status = c.Status
	}
	existing.UpdatedAt = time.Now()
	out := *existing
	return &out, nil
}

func (s *MemoryStore) GetCandidate(_ context.Context, aID, bID string) (*model.DedupCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[pairMapKey(aID, bID)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCandidatesFor(_ context.Context, listingID string) ([]model.DedupCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.DedupCandidate
	for _, c := range s.candidates {
		if c.ListingAID == listingID || c.ListingBID == listingID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverallScore > out[j].OverallScore })
	return out, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, g *model.ListingGroup, memberIDs []string, primaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *g
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.groups[g.ID] = &cp

	for _, id := range memberIDs {
		l, ok := s.listings[id]
		if !ok {
			return eris.Wrapf(ErrListingNotFound, "id %s", id)
		}
		l.DedupStatus = model.DedupStatusGrouped
		gid := g.ID
		l.GroupID = &gid
		l.WaitingForGroupID = nil
		l.PrimaryInGroup = id == primaryID
		l.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*model.ListingGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, eris.Wrapf(ErrGroupNotFound, "id %s", id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListGroupsByStatus(_ context.Context, status model.GroupStatus, limit int) ([]model.ListingGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ListingGroup
	for _, g := range s.groups {
		if g.Status == status {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateGroupMatchScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return eris.Wrapf(ErrGroupNotFound, "id %s", id)
	}
	g.MatchScore = score
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClaimGroupForProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok || g.Status != model.GroupPendingAI {
		return eris.Wrapf(ErrGroupNotClaimable, "group %s", id)
	}
	g.Status = model.GroupProcessingAI
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetGroupStatus(_ context.Context, id string, from, to model.GroupStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok || g.Status != from {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s: %s -> %s", id, from, to)
	}
	g.Status = to
	if reason != nil {
		g.RejectionReason = reason
	}
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CompleteGroup(_ context.Context, groupID, propertyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.Status != model.GroupProcessingAI {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s not in processing_ai", groupID)
	}
	g.Status = model.GroupCompleted
	g.PropertyID = &propertyID
	g.UpdatedAt = time.Now()

	for _, l := range s.listings {
		if l.GroupID != nil && *l.GroupID == groupID {
			l.DedupStatus = model.DedupStatusCompleted
			pid := propertyID
			l.PropertyID = &pid
			l.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) ApproveGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.Status != model.GroupPendingReview {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s not in pending_review", groupID)
	}
	g.Status = model.GroupPendingAI
	g.UpdatedAt = time.Now()

	members := s.memberSetLocked(groupID)
	for _, c := range s.candidates {
		if c.Status == model.CandidateNeedsReview && members[c.ListingAID] && members[c.ListingBID] {
			c.Status = model.CandidateConfirmedMatch
			c.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) RejectGroup(_ context.Context, groupID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.Status != model.GroupPendingReview {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s not in pending_review", groupID)
	}
	g.Status = model.GroupRejected
	g.RejectionReason = &reason
	g.UpdatedAt = time.Now()

	members := s.memberSetLocked(groupID)

	for _, c := range s.candidates {
		if members[c.ListingAID] && members[c.ListingBID] {
			c.Status = model.CandidateConfirmedDifferent
			c.UpdatedAt = time.Now()
		}
	}

	// Members are also confirmed different from every listing of the
	// property this group was proposed against, scored or not.
	if g.MatchedPropertyID != nil {
		for _, l := range s.listings {
			if l.PropertyID == nil || *l.PropertyID != *g.MatchedPropertyID {
				continue
			}
			for mid := range members {
				if mid == l.ID {
					continue
				}
				s.downgradePairLocked(mid, l.ID)
			}
		}
	}

	for id := range members {
		l := s.listings[id]
		l.DedupStatus = model.DedupStatusPending
		l.GroupID = nil
		l.WaitingForGroupID = nil
		l.PrimaryInGroup = false
		l.UpdatedAt = time.Now()
	}
	return nil
}

// downgradePairLocked records a ConfirmedDifferent verdict for the pair,
// creating the candidate row when the pair was never scored.
func (s *MemoryStore) downgradePairLocked(a, b string) {
	key := pairMapKey(a, b)
	if c, ok := s.candidates[key]; ok {
		c.Status = model.CandidateConfirmedDifferent
		c.UpdatedAt = time.Now()
		return
	}
	aID, bID := model.PairKey(a, b)
	now := time.Now()
	s.candidates[key] = &model.DedupCandidate{
		ID: uuid.NewString(), ListingAID: aID, ListingBID: bID,
		Status:    model.CandidateConfirmedDifferent,
		CreatedAt: now, UpdatedAt: now,
	}
}

func (s *MemoryStore) memberSetLocked(groupID string) map[string]bool {
	members := map[string]bool{}
	for _, l := range s.listings {
		if l.GroupID != nil && *l.GroupID == groupID {
			members[l.ID] = true
		}
	}
	return members
}

func (s *MemoryStore) MarkPropertyNeedsReanalysis(_ context.Context, propertyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reanalysis[propertyID] = true
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
