package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/dedup"
	"github.com/sells-group/listing-dedup/internal/geosearch"
	"github.com/sells-group/listing-dedup/internal/model"
	"github.com/sells-group/listing-dedup/internal/score"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:   2,
		BatchSize:     10,
		RatePerSecond: 1000, // effectively unthrottled in tests
	}
}

func newTestPool() (*Pool, *dedup.MemoryStore) {
	store := dedup.NewMemory()
	engine := score.NewEngine(score.DefaultConfig())
	search := geosearch.New(store, config.GeoConfig{RadiusM: 150, MaxCandidates: 50})
	matcher := dedup.NewMatcher(store, search, engine, config.DedupConfig{
		ConfirmThreshold: 0.92,
		ReviewThreshold:  0.65,
		MaxPriceDiff:     0.20,
		MaxSizeDiff:      0.15,
	})
	svc := dedup.NewService(store, matcher, dedup.NewResolver(store))
	return NewPool(svc, store, testWorkerConfig()), store
}

func pendingListing(id string, lat, lng float64) *model.Listing {
	return &model.Listing{
		ID:            id,
		Platform:      "inmuebles24",
		Coordinates:   &model.Coordinates{Latitude: lat, Longitude: lng},
		GeocodeStatus: model.GeocodeSuccess,
		PropertyType:  "house",
		OperationType: model.OperationSale,
		Price:         1_000_000,
		Currency:      "MXN",
		DedupStatus:   model.DedupStatusPending,
	}
}

func TestSweepEmptyQueue(t *testing.T) {
	pool, _ := newTestPool()

	n, err := pool.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepProcessesBatch(t *testing.T) {
	pool, store := newTestPool()
	ctx := context.Background()

	// Far enough apart that each resolves independently.
	store.PutListing(pendingListing("a", 20.60, -103.30))
	store.PutListing(pendingListing("b", 20.70, -103.40))
	store.PutListing(pendingListing("c", 20.80, -103.50))

	n, err := pool.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range []string{"a", "b", "c"} {
		l, err := store.GetListing(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.DedupStatusUnique, l.DedupStatus)
	}
}

func TestDrainEmptiesQueue(t *testing.T) {
	pool, store := newTestPool()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		lat := 20.0 + float64(i)*0.01
		store.PutListing(pendingListing(string(rune('a'+i)), lat, -103.0))
	}

	total, err := pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	// Nothing left to claim.
	remaining, err := store.ClaimPendingListings(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
