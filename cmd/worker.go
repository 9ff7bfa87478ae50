package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the deduplication worker daemon",
	Long:  "Sweeps the pending-listing queue on a schedule and periodically re-queues listings waiting on busy groups.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pool := worker.NewPool(env.Service, env.Store, cfg.Worker)
		sched := worker.NewScheduler(pool, env.Store, cfg.Worker)

		if err := sched.Start(ctx); err != nil {
			return err
		}

		// Immediate first sweep so a restart doesn't wait for the schedule.
		if _, err := pool.Sweep(ctx); err != nil {
			zap.L().Error("initial sweep failed", zap.Error(err))
		}

		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
