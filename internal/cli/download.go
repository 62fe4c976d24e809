package cli

import (
	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/downloader"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Consume WARC jobs: fetch the archive, extract French pages, publish page records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("downloader")
			if err != nil {
				return err
			}
			defer stop()

			emit := newEmitter(cfg, log)
			defer emit.Close()

			return downloader.New(cfg, log, emit).Run(ctx)
		},
	}
}
