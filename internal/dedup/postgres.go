package dedup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/db"
	"github.com/sells-group/listing-dedup/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (tests use pgxmock here).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk listing import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	needs_reanalysis BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listing_groups (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status              TEXT NOT NULL DEFAULT 'pending_review',
	match_score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	matched_property_id TEXT REFERENCES properties(id),
	property_id         TEXT REFERENCES properties(id),
	rejection_reason    TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	id                   TEXT PRIMARY KEY,
	platform             TEXT NOT NULL,
	latitude             DOUBLE PRECISION,
	longitude            DOUBLE PRECISION,
	geocode_status       TEXT NOT NULL DEFAULT 'not_attempted',
	property_type        TEXT NOT NULL DEFAULT '',
	operation_type       TEXT NOT NULL DEFAULT '',
	price                DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency             TEXT NOT NULL DEFAULT '',
	built_size_m2        DOUBLE PRECISION,
	lot_size_m2          DOUBLE PRECISION,
	bedrooms             INTEGER,
	bathrooms            INTEGER,
	address              TEXT NOT NULL DEFAULT '',
	colonia              TEXT NOT NULL DEFAULT '',
	city                 TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT '',
	dedup_status         TEXT NOT NULL DEFAULT 'pending',
	listing_group_id     TEXT REFERENCES listing_groups(id),
	waiting_for_group_id TEXT REFERENCES listing_groups(id),
	is_primary_in_group  BOOLEAN NOT NULL DEFAULT false,
	property_id          TEXT REFERENCES properties(id),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_dedup_status ON listings(dedup_status);
CREATE INDEX IF NOT EXISTS idx_listings_group ON listings(listing_group_id);
CREATE INDEX IF NOT EXISTS idx_listings_property ON listings(property_id);
CREATE INDEX IF NOT EXISTS idx_listings_geo ON listings(latitude, longitude) WHERE geocode_status = 'success';

CREATE TABLE IF NOT EXISTS dedup_candidates (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_a_id     TEXT NOT NULL REFERENCES listings(id),
	listing_b_id     TEXT NOT NULL REFERENCES listings(id),
	coordinate_score DOUBLE PRECISION NOT NULL,
	address_score    DOUBLE PRECISION NOT NULL,
	features_score   DOUBLE PRECISION NOT NULL,
	overall_score    DOUBLE PRECISION NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT dedup_candidates_pair UNIQUE (listing_a_id, listing_b_id),
	CONSTRAINT dedup_candidates_pair_order CHECK (listing_a_id < listing_b_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_listing_b ON dedup_candidates(listing_b_id);
CREATE INDEX IF NOT EXISTS idx_groups_status ON listing_groups(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const listingColumns = `id, platform, latitude, longitude, geocode_status,
	property_type, operation_type, price, currency,
	built_size_m2, lot_size_m2, bedrooms, bathrooms,
	address, colonia, city, state,
	dedup_status, listing_group_id, waiting_for_group_id, is_primary_in_group, property_id,
	created_at, updated_at`

// scanListing scans one listing row; latitude/longitude fold into the
// Coordinates pointer.
func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var lat, lng *float64
	err := row.Scan(
		&l.ID, &l.Platform, &lat, &lng, &l.GeocodeStatus,
		&l.PropertyType, &l.OperationType, &l.Price, &l.Currency,
		&l.BuiltSizeM2, &l.LotSizeM2, &l.Bedrooms, &l.Bathrooms,
		&l.Address, &l.Colonia, &l.City, &l.State,
		&l.DedupStatus, &l.GroupID, &l.WaitingForGroupID, &l.PrimaryInGroup, &l.PropertyID,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		l.Coordinates = &model.Coordinates{Latitude: *lat, Longitude: *lng}
	}
	return &l, nil
}

func scanListings(rows pgx.Rows) ([]model.Listing, error) {
	defer rows.Close()
	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate listings")
	}
	return out, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrListingNotFound, "id %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get listing")
	}
	return l, nil
}

func (s *PostgresStore) ClaimPendingListings(ctx context.Context, limit int) ([]model.Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin claim tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// FOR UPDATE SKIP LOCKED lets concurrent workers claim disjoint batches.
	rows, err := tx.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE dedup_status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending listings")
	}

	claimed, err := scanListings(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, eris.Wrap(tx.Commit(ctx), "postgres: commit empty claim")
	}

	ids := make([]string, len(claimed))
	for i := range claimed {
		ids[i] = claimed[i].ID
	}
	_, err = tx.Exec(ctx, `
		UPDATE listings SET dedup_status = 'processing', updated_at = now()
		WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark listings processing")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit claim")
	}

	for i := range claimed {
		claimed[i].DedupStatus = model.DedupStatusProcessing
	}
	return claimed, nil
}

func (s *PostgresStore) ReleaseListing(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET dedup_status = 'pending', updated_at = now()
		WHERE id = $1 AND dedup_status = 'processing'`,
		id,
	)
	return eris.Wrap(err, "postgres: release listing")
}

func (s *PostgresStore) RequeueWaiting(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET dedup_status = 'pending', updated_at = now()
		WHERE dedup_status = 'waiting' AND updated_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: requeue waiting listings")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) MarkListingUnique(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'unique', listing_group_id = NULL, waiting_for_group_id = NULL, updated_at = now()
		WHERE id = $1`,
		id,
	)
	return eris.Wrap(err, "postgres: mark listing unique")
}

func (s *PostgresStore) MarkListingCompleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET dedup_status = 'completed', updated_at = now()
		WHERE id = $1`,
		id,
	)
	return eris.Wrap(err, "postgres: mark listing completed")
}

func (s *PostgresStore) MarkListingWaiting(ctx context.Context, id, groupID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'waiting', waiting_for_group_id = $2, updated_at = now()
		WHERE id = $1`,
		id, groupID,
	)
	return eris.Wrap(err, "postgres: mark listing waiting")
}

func (s *PostgresStore) AttachListingToGroup(ctx context.Context, listingID, groupID string, primary bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'grouped', listing_group_id = $2, waiting_for_group_id = NULL,
		    is_primary_in_group = $3, updated_at = now()
		WHERE id = $1`,
		listingID, groupID, primary,
	)
	return eris.Wrap(err, "postgres: attach listing to group")
}

func (s *PostgresStore) ListGroupMembers(ctx context.Context, groupID string) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE listing_group_id = $1
		ORDER BY created_at`,
		groupID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list group members")
	}
	return scanListings(rows)
}

func (s *PostgresStore) ListPropertyListings(ctx context.Context, propertyID string) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE property_id = $1
		ORDER BY created_at`,
		propertyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list property listings")
	}
	return scanListings(rows)
}

func (s *PostgresStore) ListGeocodedWithin(ctx context.Context, bounds *geom.Bounds, excludeID string, limit int) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE geocode_status = 'success'
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND id != $1
		  AND latitude BETWEEN $2 AND $3
		  AND longitude BETWEEN $4 AND $5
		LIMIT $6`,
		excludeID,
		bounds.Min(1), bounds.Max(1),
		bounds.Min(0), bounds.Max(0),
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list geocoded within bounds")
	}
	return scanListings(rows)
}

const candidateColumns = `id, listing_a_id, listing_b_id,
	coordinate_score, address_score, features_score, overall_score, status,
	created_at, updated_at`

func scanCandidate(row pgx.Row) (*model.DedupCandidate, error) {
	var c model.DedupCandidate
	err := row.Scan(
		&c.ID, &c.ListingAID, &c.ListingBID,
		&c.CoordinateScore, &c.AddressScore, &c.FeaturesScore, &c.OverallScore, &c.Status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCandidate(ctx context.Context, c *model.DedupCandidate) (*model.DedupCandidate, error) {
	aID, bID := model.PairKey(c.ListingAID, c.ListingBID)

	// Idempotent on the canonical pair: the losing side of a concurrent
	// double-evaluation refreshes scores instead of inserting a duplicate.
	// A pair already marked confirmed_different keeps that verdict.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO dedup_candidates
			(id, listing_a_id, listing_b_id, coordinate_score, address_score, features_score, overall_score, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (listing_a_id, listing_b_id) DO UPDATE SET
			coordinate_score = EXCLUDED.coordinate_score,
			address_score    = EXCLUDED.address_score,
			features_score   = EXCLUDED.features_score,
			overall_score    = EXCLUDED.overall_score,
			status = CASE
				WHEN dedup_candidates.status = 'confirmed_different' THEN dedup_candidates.status
				ELSE EXCLUDED.status
			END,
			updated_at = now()
		RETURNING `+candidateColumns,
		c.ID, aID, bID,
		c.CoordinateScore, c.AddressScore, c.FeaturesScore, c.OverallScore, c.Status,
	)

	saved, err := scanCandidate(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert candidate")
	}
	return saved, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, aID, bID string) (*model.DedupCandidate, error) {
	aID, bID = model.PairKey(aID, bID)
	row := s.pool.QueryRow(ctx, `
		SELECT `+candidateColumns+` FROM dedup_candidates
		WHERE listing_a_id = $1 AND listing_b_id = $2`,
		aID, bID,
	)
	c, err := scanCandidate(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get candidate")
	}
	return c, nil
}

func (s *PostgresStore) ListCandidatesFor(ctx context.Context, listingID string) ([]model.DedupCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+candidateColumns+` FROM dedup_candidates
		WHERE listing_a_id = $1 OR listing_b_id = $1
		ORDER BY overall_score DESC`,
		listingID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.DedupCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate candidates")
	}
	return out, nil
}

const groupColumns = `id, status, match_score, matched_property_id, property_id, rejection_reason, created_at, updated_at`

func scanGroup(row pgx.Row) (*model.ListingGroup, error) {
	var g model.ListingGroup
	err := row.Scan(
		&g.ID, &g.Status, &g.MatchScore, &g.MatchedPropertyID, &g.PropertyID, &g.RejectionReason,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g *model.ListingGroup, memberIDs []string, primaryID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create group tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO listing_groups (id, status, match_score, matched_property_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		g.ID, g.Status, g.MatchScore, g.MatchedPropertyID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert group")
	}

	_, err = tx.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'grouped', listing_group_id = $1, waiting_for_group_id = NULL,
		    is_primary_in_group = (id = $2), updated_at = now()
		WHERE id = ANY($3)`,
		g.ID, primaryID, memberIDs,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: attach group members")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit create group")
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*model.ListingGroup, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM listing_groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrGroupNotFound, "id %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get group")
	}
	return g, nil
}

func (s *PostgresStore) ListGroupsByStatus(ctx context.Context, status model.GroupStatus, limit int) ([]model.ListingGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+groupColumns+` FROM listing_groups
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list groups by status")
	}
	defer rows.Close()

	var out []model.ListingGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan group")
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate groups")
	}
	return out, nil
}

func (s *PostgresStore) UpdateGroupMatchScore(ctx context.Context, id string, score float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listing_groups SET match_score = $2, updated_at = now() WHERE id = $1`,
		id, score,
	)
	return eris.Wrap(err, "postgres: update group match score")
}

func (s *PostgresStore) ClaimGroupForProcessing(ctx context.Context, id string) error {
	// Single conditional update: two concurrent workers can never both claim.
	tag, err := s.pool.Exec(ctx, `
		UPDATE listing_groups SET status = 'processing_ai', updated_at = now()
		WHERE id = $1 AND status = 'pending_ai'`,
		id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: claim group")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrGroupNotClaimable, "group %s", id)
	}
	return nil
}

func (s *PostgresStore) SetGroupStatus(ctx context.Context, id string, from, to model.GroupStatus, reason *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listing_groups
		SET status = $3, rejection_reason = COALESCE($4, rejection_reason), updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, reason,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set group status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s: %s -> %s", id, from, to)
	}
	return nil
}

func (s *PostgresStore) CompleteGroup(ctx context.Context, groupID, propertyID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete group tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE listing_groups
		SET status = 'completed', property_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing_ai'`,
		groupID, propertyID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete group")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s not in processing_ai", groupID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'completed', property_id = $2, updated_at = now()
		WHERE listing_group_id = $1`,
		groupID, propertyID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete group listings")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete group")
}

func (s *PostgresStore) ApproveGroup(ctx context.Context, groupID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin approve tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE listing_groups SET status = 'pending_ai', updated_at = now()
		WHERE id = $1 AND status = 'pending_review'`,
		groupID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: approve group")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrGroupStatusConflict, "group %s not in pending_review", groupID)
	}

	// The reviewer vouched for the whole cluster: every reviewable pair
	// among the members becomes a confirmed match.
	_, err = tx.Exec(ctx, `
		UPDATE dedup_candidates SET status = 'confirmed_match', updated_at = now()
		WHERE status = 'needs_review'
		  AND listing_a_id IN (SELECT id FROM listings WHERE listing_group_id = $1)
		  AND listing_b_id IN (SELECT id FROM listings WHERE listing_group_id = $1)`,
		groupID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upgrade group candidates")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit approve")
}

func (s *PostgresStore) RejectGroup(ctx context.Context, groupID, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reject tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		UPDATE listing_groups
		SET status = 'rejected', rejection_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending_review'
		RETURNING matched_property_id`,
		groupID, reason,
	)
	var matchedPropertyID *string
	if err := row.Scan(&matchedPropertyID); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrGroupStatusConflict, "group %s not in pending_review", groupID)
		}
		return eris.Wrap(err, "postgres: reject group")
	}

	// Remember the rejection for every member pair so the same false match
	// is never re-proposed.
	_, err = tx.Exec(ctx, `
		UPDATE dedup_candidates SET status = 'confirmed_different', updated_at = now()
		WHERE listing_a_id IN (SELECT id FROM listings WHERE listing_group_id = $1)
		  AND listing_b_id IN (SELECT id FROM listings WHERE listing_group_id = $1)`,
		groupID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: downgrade group candidates")
	}

	// Network-wide: the members are also confirmed different from every
	// listing of the property this group was proposed against. Pairs that
	// were never scored get a row too, so the verdict survives either way.
	if matchedPropertyID != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO dedup_candidates
				(listing_a_id, listing_b_id, coordinate_score, address_score,
				 features_score, overall_score, status)
			SELECT LEAST(m.id, p.id), GREATEST(m.id, p.id), 0, 0, 0, 0, 'confirmed_different'
			FROM listings m
			JOIN listings p ON p.property_id = $2
			WHERE m.listing_group_id = $1 AND m.id <> p.id
			ON CONFLICT (listing_a_id, listing_b_id) DO UPDATE
			SET status = 'confirmed_different', updated_at = now()`,
			groupID, *matchedPropertyID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: downgrade property candidates")
		}
	}

	// Members go back to Pending for independent re-evaluation.
	_, err = tx.Exec(ctx, `
		UPDATE listings
		SET dedup_status = 'pending', listing_group_id = NULL, waiting_for_group_id = NULL,
		    is_primary_in_group = false, updated_at = now()
		WHERE listing_group_id = $1`,
		groupID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: reset group listings")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit reject")
}

func (s *PostgresStore) MarkPropertyNeedsReanalysis(ctx context.Context, propertyID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE properties SET needs_reanalysis = true, updated_at = now() WHERE id = $1`,
		propertyID,
	)
	return eris.Wrap(err, "postgres: mark property needs reanalysis")
}
