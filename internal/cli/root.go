// Package cli wires the pipeline stages into one binary. Every stage is a
// subcommand; all of them read the same environment-driven configuration.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cocosjn/warcvec/internal/config"
	"github.com/cocosjn/warcvec/internal/logger"
	"github.com/cocosjn/warcvec/internal/telemetry"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "warcvec",
		Short:         "Distributed WARC to vector-index ingestion pipeline",
		Long:          "warcvec ingests WARC archives, extracts French page text, embeds it and indexes the vectors for semantic search.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newSeedCmd(),
		newDownloadCmd(),
		newVectorizeCmd(),
		newIndexCmd(),
		newCollectCmd(),
		newAPICmd(),
	)

	return rootCmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// bootstrap is the shared preamble of every subcommand: load config, build
// the stage logger and install signal-driven cancellation.
func bootstrap(component string) (context.Context, context.CancelFunc, *config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	log := logger.New(component, cfg.Machine, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return ctx, stop, cfg, log, nil
}

// newEmitter connects the MQTT telemetry emitter. Telemetry is best-effort:
// a broken MQTT broker must never keep a pipeline stage from running.
func newEmitter(cfg *config.Config, log *logger.Logger) telemetry.Emitter {
	emit, err := telemetry.NewMQTTEmitter(cfg.MQTT, cfg.Rabbit, log)
	if err != nil {
		log.Warn("Telemetry disabled: %v", err)
		return telemetry.NopEmitter{}
	}
	return emit
}
