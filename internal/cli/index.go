package cli

import (
	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/esindex"
	"github.com/cocosjn/warcvec/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Consume embedding records and bulk-insert them into the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("indexer")
			if err != nil {
				return err
			}
			defer stop()

			es, err := esindex.New(cfg.Elastic, log)
			if err != nil {
				return err
			}
			if err := es.EnsureIndex(ctx); err != nil {
				return err
			}

			emit := newEmitter(cfg, log)
			defer emit.Close()

			return indexer.New(cfg, log, emit, es).Run(ctx)
		},
	}
}
