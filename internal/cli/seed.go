package cli

import (
	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/broker"
	"github.com/cocosjn/warcvec/internal/seeder"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <url-file>",
		Short: "Publish WARC download jobs from a file of URLs, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("seeder")
			if err != nil {
				return err
			}
			defer stop()

			conn, err := broker.Connect(ctx, cfg.Rabbit, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.DeclareQueue(cfg.Queues.Download); err != nil {
				return err
			}

			count, err := seeder.New(conn, cfg.Queues.Download, log).SeedFile(ctx, args[0])
			if err != nil {
				return err
			}

			log.Info("Seeded %d download jobs onto %s", count, cfg.Queues.Download)
			return nil
		},
	}
}
