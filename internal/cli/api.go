package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/api"
	"github.com/cocosjn/warcvec/internal/app"
	"github.com/cocosjn/warcvec/internal/encoder"
	"github.com/cocosjn/warcvec/internal/esindex"
	"github.com/cocosjn/warcvec/internal/search"
)

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the semantic search HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := bootstrap("api")
			if err != nil {
				return err
			}
			defer stop()

			es, err := esindex.New(cfg.Elastic, log)
			if err != nil {
				return err
			}

			enc := encoder.NewHTTPEncoder(cfg.Encoder.URL, cfg.Elastic.Dims)
			if err := enc.Warmup(ctx); err != nil {
				return err
			}

			appCtx := app.NewContext(cfg, log, search.New(enc, es))

			e := echo.New()
			api.RegisterRoutes(e, appCtx)

			srv := &http.Server{
				Addr:    ":" + cfg.Search.Port,
				Handler: e,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error("Server shutdown: %v", err)
				}
			}()

			log.Info("Search API listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
