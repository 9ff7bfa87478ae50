package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-dedup/internal/model"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresWithPool(mock)
}

func listingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "platform", "latitude", "longitude", "geocode_status",
		"property_type", "operation_type", "price", "currency",
		"built_size_m2", "lot_size_m2", "bedrooms", "bathrooms",
		"address", "colonia", "city", "state",
		"dedup_status", "listing_group_id", "waiting_for_group_id", "is_primary_in_group", "property_id",
		"created_at", "updated_at",
	})
}

func addListingRow(rows *pgxmock.Rows, id string, lat, lng *float64) *pgxmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, "inmuebles24", lat, lng, model.GeocodeSuccess,
		"house", model.OperationSale, 2_500_000.0, "MXN",
		(*float64)(nil), (*float64)(nil), (*int)(nil), (*int)(nil),
		"Av. Hidalgo 123", "Centro", "Guadalajara", "Jalisco",
		model.DedupStatusPending, (*string)(nil), (*string)(nil), false, (*string)(nil),
		now, now,
	)
}

func TestPostgresGetListing(t *testing.T) {
	mock, st := newMockStore(t)
	lat, lng := 20.6736, -103.344

	mock.ExpectQuery("SELECT (.+) FROM listings WHERE id =").
		WithArgs("l1").
		WillReturnRows(addListingRow(listingRows(), "l1", &lat, &lng))

	got, err := st.GetListing(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "l1", got.ID)
	require.NotNil(t, got.Coordinates)
	assert.InDelta(t, lat, got.Coordinates.Latitude, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetListingNotFound(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM listings WHERE id =").
		WithArgs("missing").
		WillReturnRows(listingRows())

	_, err := st.GetListing(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrListingNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetListingWithoutCoordinates(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM listings WHERE id =").
		WithArgs("l1").
		WillReturnRows(addListingRow(listingRows(), "l1", nil, nil))

	got, err := st.GetListing(context.Background(), "l1")
	require.NoError(t, err)
	assert.Nil(t, got.Coordinates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimPendingListings(t *testing.T) {
	mock, st := newMockStore(t)
	lat, lng := 20.6736, -103.344

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(10).
		WillReturnRows(addListingRow(addListingRow(listingRows(), "l1", &lat, &lng), "l2", &lat, &lng))
	mock.ExpectExec("UPDATE listings SET dedup_status = 'processing'").
		WithArgs([]string{"l1", "l2"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	got, err := st.ClaimPendingListings(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.DedupStatusProcessing, got[0].DedupStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimPendingListingsEmpty(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(10).
		WillReturnRows(listingRows())
	mock.ExpectCommit()

	got, err := st.ClaimPendingListings(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertCandidateCanonicalOrder(t *testing.T) {
	mock, st := newMockStore(t)
	now := time.Now()

	// Input arrives b-then-a; the insert must use canonical order.
	mock.ExpectQuery("INSERT INTO dedup_candidates").
		WithArgs("c1", "a", "b", 0.9, 0.8, 0.7, 0.85, model.CandidateNeedsReview).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "listing_a_id", "listing_b_id",
			"coordinate_score", "address_score", "features_score", "overall_score", "status",
			"created_at", "updated_at",
		}).AddRow("c1", "a", "b", 0.9, 0.8, 0.7, 0.85, model.CandidateNeedsReview, now, now))

	got, err := st.UpsertCandidate(context.Background(), &model.DedupCandidate{
		ID: "c1", ListingAID: "b", ListingBID: "a",
		CoordinateScore: 0.9, AddressScore: 0.8, FeaturesScore: 0.7, OverallScore: 0.85,
		Status: model.CandidateNeedsReview,
	})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ListingAID)
	assert.Equal(t, "b", got.ListingBID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertCandidateSQLPreservesRejections(t *testing.T) {
	// The conflict clause must keep a confirmed_different verdict.
	mock, st := newMockStore(t)

	mock.ExpectQuery("ON CONFLICT \\(listing_a_id, listing_b_id\\) DO UPDATE").
		WithArgs("c1", "a", "b", 0.0, 0.0, 0.0, 0.0, model.CandidateConfirmedMatch).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "listing_a_id", "listing_b_id",
			"coordinate_score", "address_score", "features_score", "overall_score", "status",
			"created_at", "updated_at",
		}).AddRow("c1", "a", "b", 0.0, 0.0, 0.0, 0.0, model.CandidateConfirmedDifferent, time.Now(), time.Now()))

	got, err := st.UpsertCandidate(context.Background(), &model.DedupCandidate{
		ID: "c1", ListingAID: "a", ListingBID: "b",
		Status: model.CandidateConfirmedMatch,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CandidateConfirmedDifferent, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimGroupForProcessing(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec("UPDATE listing_groups SET status = 'processing_ai'").
		WithArgs("g1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.ClaimGroupForProcessing(context.Background(), "g1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimGroupForProcessingConflict(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec("UPDATE listing_groups SET status = 'processing_ai'").
		WithArgs("g1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.ClaimGroupForProcessing(context.Background(), "g1")
	assert.True(t, eris.Is(err, ErrGroupNotClaimable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetGroupStatusConflict(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec("UPDATE listing_groups").
		WithArgs("g1", model.GroupPendingReview, model.GroupPendingAI, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.SetGroupStatus(context.Background(), "g1", model.GroupPendingReview, model.GroupPendingAI, nil)
	assert.True(t, eris.Is(err, ErrGroupStatusConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteGroupTransaction(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listing_groups").
		WithArgs("g1", "prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE listings").
		WithArgs("g1", "prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectCommit()

	require.NoError(t, st.CompleteGroup(context.Background(), "g1", "prop-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteGroupRollsBackOnConflict(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listing_groups").
		WithArgs("g1", "prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := st.CompleteGroup(context.Background(), "g1", "prop-1")
	assert.True(t, eris.Is(err, ErrGroupStatusConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectGroupUpsertsPropertyVerdicts(t *testing.T) {
	mock, st := newMockStore(t)

	pid := "prop-1"
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE listing_groups").
		WithArgs("g1", "not the same unit").
		WillReturnRows(pgxmock.NewRows([]string{"matched_property_id"}).AddRow(&pid))
	mock.ExpectExec("UPDATE dedup_candidates SET status = 'confirmed_different'").
		WithArgs("g1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Cross-property pairs are upserted so even never-scored pairs keep
	// the rejection.
	mock.ExpectExec("INSERT INTO dedup_candidates").
		WithArgs("g1", "prop-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("UPDATE listings").
		WithArgs("g1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, st.RejectGroup(context.Background(), "g1", "not the same unit"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRequeueWaiting(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec("UPDATE listings SET dedup_status = 'pending'").
		WithArgs(300.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	n, err := st.RequeueWaiting(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrateCreatesSchema(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS properties").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrationDDL(t *testing.T) {
	assert.Contains(t, postgresMigration, "CREATE TABLE IF NOT EXISTS listings")
	assert.Contains(t, postgresMigration, "CREATE TABLE IF NOT EXISTS dedup_candidates")
	assert.Contains(t, postgresMigration, "CREATE TABLE IF NOT EXISTS listing_groups")
	assert.Contains(t, postgresMigration, "UNIQUE (listing_a_id, listing_b_id)")
	assert.Contains(t, postgresMigration, "CHECK (listing_a_id < listing_b_id)")
	assert.Contains(t, postgresMigration, "needs_reanalysis")
}
