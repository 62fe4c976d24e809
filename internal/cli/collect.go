package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/telemetry"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Subscribe to pipeline telemetry and persist it into time-series collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("collector")
			if err != nil {
				return err
			}
			defer stop()

			store, err := telemetry.NewStore(ctx, cfg.Mongo, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				store.Close(closeCtx)
			}()

			if err := store.EnsureCollections(ctx); err != nil {
				return err
			}

			return telemetry.NewCollector(cfg.MQTT, cfg.Rabbit, store, log).Run(ctx)
		},
	}
}
