package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/metrics"
	"github.com/sadopc/autotrackr/internal/systemd"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveStdin bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query API",
	Long: `Serve the JSON API on the configured loopback address. Heartbeats arrive
via POST /api/heartbeats, or as JSON lines on stdin with --stdin.

Signals: SIGHUP reloads the rule cache, SIGUSR1 closes every open record
(idle or sleep), SIGINT/SIGTERM flush and exit.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdin, "stdin", false, "Also read heartbeat JSON lines from stdin")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info().
		Str("version", version).
		Str("db", a.cfg.Storage.Path).
		Msg("Starting autotrackr")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return err
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	router := api.NewRouter(a.service, logger)

	var metricsServer *metrics.Server
	switch {
	case !a.cfg.Server.MetricsEnabled:
	case a.cfg.Server.MetricsAddress == "":
		router.Mount("/metrics", promhttp.Handler())
	default:
		metricsServer = metrics.NewServer(a.cfg.Server.MetricsAddress, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	apiServer := api.NewServer(a.cfg.Server.ListenAddress, router, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	stdinCtx, stopStdin := context.WithCancel(context.Background())
	defer stopStdin()
	stdinDone := make(chan struct{})
	if serveStdin {
		go func() {
			defer close(stdinDone)
			readHeartbeats(stdinCtx, a, os.Stdin)
		}()
	} else {
		close(stdinDone)
	}

	// Flush open records even when heartbeats stop arriving.
	ticker := time.NewTicker(a.cfg.Tracking.FlushInterval)
	defer ticker.Stop()

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

loop:
	for {
		select {
		case <-ticker.C:
			a.pool.FlushAll()

		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info().Msg("SIGHUP received, reloading rules")
				_ = systemd.NotifyReloading()
				if err := a.matcher.Reload(); err != nil {
					logger.Error().Err(err).Msg("Failed to reload rules")
				}
				_ = systemd.NotifyReady()

			case syscall.SIGUSR1:
				logger.Info().Msg("SIGUSR1 received, closing open records")
				a.pool.EndAll()

			case os.Interrupt, syscall.SIGTERM:
				logger.Info().Msg("Shutdown signal received, gracefully stopping")
				break loop
			}
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// The reader must be done with the engine before a.Close runs.
	stopStdin()
	<-stdinDone

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	// a.Close ends every session before the store closes.
	logger.Info().Msg("autotrackr stopped")
	return nil
}

// readHeartbeats feeds newline-delimited HeartbeatInput objects to the
// service until r is exhausted, then closes every open record. Once ctx is
// done it returns without touching the engine again; a decode blocked on r
// is abandoned.
func readHeartbeats(ctx context.Context, a *app, r io.Reader) {
	logger := a.logger.With().Str("component", "stdin").Logger()

	inputs := make(chan api.HeartbeatInput)
	errc := make(chan error, 1)
	go func() {
		dec := json.NewDecoder(r)
		for {
			var in api.HeartbeatInput
			if err := dec.Decode(&in); err != nil {
				errc <- err
				return
			}
			select {
			case inputs <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stdin reader stopped")
			return
		case in := <-inputs:
			if ctx.Err() != nil {
				continue
			}
			if _, err := a.service.RecordHeartbeat(in); err != nil {
				logger.Warn().Err(err).Str("session", in.Session).Msg("Heartbeat rejected")
			}
		case err := <-errc:
			if !errors.Is(err, io.EOF) {
				logger.Error().Err(err).Msg("Malformed heartbeat, stopping stdin reader")
			}
			a.pool.EndAll()
			logger.Info().Msg("Stdin closed")
			return
		}
	}
}
