// Package worker runs the deduplication passes: a concurrent pool draining
// the pending-listing queue and a scheduler driving periodic sweeps.
package worker

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/dedup"
	"github.com/sells-group/listing-dedup/internal/resilience"
)

// Pool claims batches of pending listings and processes them concurrently.
// Claims are atomic at the store level, so multiple pools (or replicas) can
// run against the same database.
type Pool struct {
	svc     *dedup.Service
	store   dedup.Store
	cfg     config.WorkerConfig
	limiter *rate.Limiter
}

// NewPool creates a Pool.
func NewPool(svc *dedup.Service, store dedup.Store, cfg config.WorkerConfig) *Pool {
	return &Pool{
		svc:     svc,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency),
	}
}

// Sweep claims one batch and processes it. Returns the number of listings
// processed successfully; individual failures release the listing back to
// the queue and do not abort the batch.
func (p *Pool) Sweep(ctx context.Context) (int, error) {
	log := zap.L().With(zap.String("component", "worker.pool"))

	listings, err := p.store.ClaimPendingListings(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, eris.Wrap(err, "worker: claim batch")
	}
	if len(listings) == 0 {
		return 0, nil
	}

	var processed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i := range listings {
		l := listings[i]
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}

			retryCfg := resilience.DefaultRetryConfig()
			retryCfg.OnRetry = resilience.RetryLogger("worker", "process listing")

			err := resilience.Do(gctx, retryCfg, func(ctx context.Context) error {
				return p.svc.ProcessListing(ctx, l.ID)
			})
			if err != nil {
				log.Error("listing processing failed",
					zap.String("listing_id", l.ID),
					zap.Error(err),
				)
				if relErr := p.store.ReleaseListing(gctx, l.ID); relErr != nil {
					log.Error("failed to release listing",
						zap.String("listing_id", l.ID),
						zap.Error(relErr),
					)
				}
				failed.Add(1)
				return nil // don't abort the batch on individual failure
			}

			processed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(processed.Load()), eris.Wrap(err, "worker: sweep")
	}

	log.Info("sweep complete",
		zap.Int("claimed", len(listings)),
		zap.Int64("processed", processed.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return int(processed.Load()), nil
}

// Drain sweeps repeatedly until the queue is empty or the context is
// canceled. Used by the one-shot process command.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, err := p.Sweep(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}
