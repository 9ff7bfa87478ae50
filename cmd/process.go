package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/worker"
)

var processListingID string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run deduplication over pending listings and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if processListingID != "" {
			return env.Service.ProcessListing(ctx, processListingID)
		}

		pool := worker.NewPool(env.Service, env.Store, cfg.Worker)
		n, err := pool.Drain(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("queue drained", zap.Int("processed", n))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processListingID, "listing", "", "process a single listing by id")
	rootCmd.AddCommand(processCmd)
}
