package dedup

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/geosearch"
	"github.com/sells-group/listing-dedup/internal/model"
	"github.com/sells-group/listing-dedup/internal/score"
)

// CandidateMatcher finds nearby listings, filters obvious mismatches, scores
// the survivors, and persists the resulting candidates.
type CandidateMatcher struct {
	store  Store
	search *geosearch.Search
	engine *score.Engine
	cfg    config.DedupConfig
}

// NewMatcher creates a CandidateMatcher.
func NewMatcher(store Store, search *geosearch.Search, engine *score.Engine, cfg config.DedupConfig) *CandidateMatcher {
	return &CandidateMatcher{store: store, search: search, engine: engine, cfg: cfg}
}

// FindCandidates evaluates the given listing against every nearby geocoded
// listing and returns the stored candidate rows that qualify as matches,
// best score first. Every scored pair is persisted, including those below
// the review threshold (as ConfirmedDifferent), so a negative comparison is
// never repeated and the resolver can count it as direct evidence. Pairs
// already marked ConfirmedDifferent are skipped without re-scoring, so a
// rejected match stays rejected. A listing without usable coordinates
// produces no candidates.
func (m *CandidateMatcher) FindCandidates(ctx context.Context, listing *model.Listing) ([]model.DedupCandidate, error) {
	nearby, err := m.search.FindNearby(ctx, listing)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: nearby search")
	}

	var out []model.DedupCandidate
	for i := range nearby {
		other := &nearby[i]

		existing, err := m.store.GetCandidate(ctx, listing.ID, other.ID)
		if err != nil {
			return nil, eris.Wrap(err, "matcher: lookup existing candidate")
		}
		if existing != nil && existing.Status == model.CandidateConfirmedDifferent {
			continue
		}

		if reason, rejected := m.hardReject(listing, other); rejected {
			zap.L().Debug("matcher: hard reject",
				zap.String("listing_id", listing.ID),
				zap.String("other_id", other.ID),
				zap.String("reason", reason),
			)
			continue
		}

		scores := m.engine.Score(listing, other)
		overall := m.engine.Overall(scores)

		aID, bID := model.PairKey(listing.ID, other.ID)
		saved, err := m.store.UpsertCandidate(ctx, &model.DedupCandidate{
			ID:              uuid.NewString(),
			ListingAID:      aID,
			ListingBID:      bID,
			CoordinateScore: scores.Coordinate,
			AddressScore:    scores.Address,
			FeaturesScore:   scores.Features,
			OverallScore:    overall,
			Status:          m.deriveStatus(overall),
		})
		if err != nil {
			return nil, eris.Wrap(err, "matcher: upsert candidate")
		}
		if saved.Status == model.CandidateConfirmedDifferent {
			continue
		}
		out = append(out, *saved)
	}

	// Strongest link first; the resolver evaluates in this order.
	sort.Slice(out, func(i, j int) bool { return out[i].OverallScore > out[j].OverallScore })

	zap.L().Debug("matcher: candidates found",
		zap.String("listing_id", listing.ID),
		zap.Int("nearby", len(nearby)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// hardReject applies the disqualifiers that no score can overcome. The
// returned reason is for logging only.
func (m *CandidateMatcher) hardReject(a, b *model.Listing) (string, bool) {
	if a.PropertyType != b.PropertyType {
		return "property type mismatch", true
	}
	if a.OperationType != b.OperationType {
		return "operation type mismatch", true
	}

	// Prices are only comparable in the same currency; a cross-currency
	// pair skips the price check rather than guessing an exchange rate.
	if a.Currency == b.Currency && a.Price > 0 && b.Price > 0 {
		lower := math.Min(a.Price, b.Price)
		if math.Abs(a.Price-b.Price)/lower > m.cfg.MaxPriceDiff {
			return fmt.Sprintf("price differs more than %.0f%%", m.cfg.MaxPriceDiff*100), true
		}
	}

	if sizeDiffExceeds(a.BuiltSizeM2, b.BuiltSizeM2, m.cfg.MaxSizeDiff) {
		return "built size mismatch", true
	}
	if sizeDiffExceeds(a.LotSizeM2, b.LotSizeM2, m.cfg.MaxSizeDiff) {
		return "lot size mismatch", true
	}

	return "", false
}

// sizeDiffExceeds compares two optional sizes relative to the smaller one.
// A missing value on either side is not a disqualifier.
func sizeDiffExceeds(a, b *float64, maxDiff float64) bool {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return false
	}
	smaller := math.Min(*a, *b)
	return math.Abs(*a-*b)/smaller > maxDiff
}

// deriveStatus maps an overall score to a candidate verdict.
func (m *CandidateMatcher) deriveStatus(overall float64) model.CandidateStatus {
	switch {
	case overall >= m.cfg.ConfirmThreshold:
		return model.CandidateConfirmedMatch
	case overall >= m.cfg.ReviewThreshold:
		return model.CandidateNeedsReview
	default:
		return model.CandidateConfirmedDifferent
	}
}
