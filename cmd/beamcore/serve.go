package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssrltools/beamcore/internal/infrastructure/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bring up the beamline and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(opts.configPath))
		},
	}
}

// run is the long-running service, separated from the command for
// testability. Returning an error allows main to handle exit codes
// consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting beamcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	b, err := openBeamline(ctx, configPath)
	if err != nil {
		return err
	}
	defer b.Close()

	log = b.log
	log.Info("beamline initialised",
		"config", configPath,
		"channels", b.cfg.Channels.Backend,
		"samples", b.stage.Len(),
		"mqtt", b.mqtt != nil,
		"influxdb", b.influx != nil,
	)

	state, err := b.shutter.State(ctx)
	if err != nil {
		log.Warn("shutter readback unavailable", "shutter", b.shutter.Name(), "error", err)
	} else {
		log.Info("shutter state", "shutter", b.shutter.Name(), "state", state)
	}

	// Verify all connections are healthy
	if err := b.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if b.cfg.API.Enabled {
		srv, err := startAPI(ctx, b)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Error("error closing API server", "error", err)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse start order: API server, asset journal,
	// worker pool, InfluxDB, MQTT, database.

	log.Info("beamcore stopped")
	return nil
}
