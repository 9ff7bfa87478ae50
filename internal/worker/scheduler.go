package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/config"
	"github.com/sells-group/listing-dedup/internal/dedup"
)

// Scheduler drives the pool on a cron schedule and periodically re-queues
// Waiting listings whose target group has had time to finish unification.
type Scheduler struct {
	pool  *Pool
	store dedup.Store
	cfg   config.WorkerConfig
	cron  *cron.Cron
}

// NewScheduler creates a Scheduler.
func NewScheduler(pool *Pool, store dedup.Store, cfg config.WorkerConfig) *Scheduler {
	return &Scheduler{
		pool:  pool,
		store: store,
		cfg:   cfg,
		cron:  cron.New(),
	}
}

// Start registers the sweep and re-queue jobs and starts the cron loop.
// Jobs run with the given base context until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "worker.scheduler"))

	_, err := s.cron.AddFunc(s.cfg.SweepSchedule, func() {
		if _, err := s.pool.Sweep(ctx); err != nil {
			log.Error("scheduled sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "worker: invalid sweep schedule %q", s.cfg.SweepSchedule)
	}

	_, err = s.cron.AddFunc(s.cfg.RequeueSchedule, func() {
		maxAge := time.Duration(s.cfg.WaitingMaxAgeSecs) * time.Second
		n, err := s.store.RequeueWaiting(ctx, maxAge)
		if err != nil {
			log.Error("waiting re-queue failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("re-queued waiting listings", zap.Int64("count", n))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "worker: invalid requeue schedule %q", s.cfg.RequeueSchedule)
	}

	s.cron.Start()
	log.Info("scheduler started",
		zap.String("sweep", s.cfg.SweepSchedule),
		zap.String("requeue", s.cfg.RequeueSchedule),
	)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler stopped", zap.String("component", "worker.scheduler"))
}
