package cli

import (
	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/encoder"
	"github.com/cocosjn/warcvec/internal/segment"
	"github.com/cocosjn/warcvec/internal/vectorizer"
)

func newVectorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vectorize",
		Short: "Consume page records: segment, embed, reduce and publish embedding records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("vectorizer")
			if err != nil {
				return err
			}
			defer stop()

			enc := encoder.NewHTTPEncoder(cfg.Encoder.URL, cfg.Elastic.Dims)
			log.Info("Warming up encoder at %s", cfg.Encoder.URL)
			if err := enc.Warmup(ctx); err != nil {
				return err
			}

			seg, err := segment.NewFrench()
			if err != nil {
				return err
			}

			emit := newEmitter(cfg, log)
			defer emit.Close()

			return vectorizer.New(cfg, log, emit, enc, seg).Run(ctx)
		},
	}
}
