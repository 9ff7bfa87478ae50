package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-dedup/internal/dedup"
	"github.com/sells-group/listing-dedup/internal/geosearch"
	"github.com/sells-group/listing-dedup/internal/score"
)

// dedupEnv bundles the wired engine for the commands that run it.
type dedupEnv struct {
	Store   *dedup.PostgresStore
	Service *dedup.Service
}

func (e *dedupEnv) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (*dedup.PostgresStore, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("DEDUP_STORE_DATABASE_URL is required")
	}
	st, err := dedup.NewPostgres(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

func initEnv(ctx context.Context) (*dedupEnv, error) {
	if err := score.ValidateConfig(cfg.Score); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := score.NewEngine(cfg.Score)
	search := geosearch.New(st, cfg.Geo)
	matcher := dedup.NewMatcher(st, search, engine, cfg.Dedup)
	resolver := dedup.NewResolver(st)

	return &dedupEnv{
		Store:   st,
		Service: dedup.NewService(st, matcher, resolver),
	}, nil
}
