package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/scheduler"
	"github.com/teemow/calbridge/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(c *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the calbridge HTTP server.

Endpoints:
  GET    /auth           Redirect to the Google consent screen
  GET    /callback       Exchange the authorization code and store the tokens
  GET    /events         List upcoming events
  POST   /events         Create a one hour event {"title","dateTime","location"}
  DELETE /events/{id}    Delete an event
  GET    /events.ics     Upcoming events as iCalendar
  GET    /refresh-token  Force an access token refresh
  GET    /healthz, /readyz, /healthz/detailed

OAuth Configuration (required):
  --client-id, --client-secret and --redirect-uri flags
  OR CLIENT_ID, CLIENT_SECRET and REDIRECT_URI env vars

Background refresh:
  --refresh-schedule "*/15 * * * *" OR REFRESH_SCHEDULE env var
  refreshes the access token shortly before it expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *c)
		},
	}

	cmd.Flags().StringVar(&c.Port, "port", c.Port, "HTTP listen port or address. Can also use PORT env var.")
	cmd.Flags().StringVar(&c.CORSOrigin, "cors-origin", c.CORSOrigin, "Browser origin allowed to call the API. Can also use CORS_ORIGIN env var.")
	cmd.Flags().Float64Var(&c.OAuthRateLimit, "oauth-rate-limit", c.OAuthRateLimit, "Requests per second and client IP allowed on /auth, /callback and /refresh-token. 0 disables the limit. Can also use OAUTH_RATE_LIMIT env var.")
	cmd.Flags().IntVar(&c.OAuthRateBurst, "oauth-rate-burst", c.OAuthRateBurst, "Burst size of the OAuth rate limit. Can also use OAUTH_RATE_BURST env var.")
	cmd.Flags().BoolVar(&c.TrustProxy, "trust-proxy", c.TrustProxy, "Read the client IP from X-Forwarded-For/X-Real-IP (only behind a trusted proxy). Can also use TRUST_PROXY env var.")
	cmd.Flags().StringVar(&c.RefreshSchedule, "refresh-schedule", c.RefreshSchedule, "Cron schedule for background token refresh (e.g., \"*/15 * * * *\" or \"@every 10m\"). Disabled when empty. Can also use REFRESH_SCHEDULE env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&c.Metrics.Enabled, "metrics-enabled", c.Metrics.Enabled, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&c.Metrics.Addr, "metrics-addr", c.Metrics.Addr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cmd *cobra.Command, c Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx, c, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Error("error during shutdown", logging.Err(err))
		}
	}()

	logger := a.logger
	sc := a.serverContext(shutdownCtx)

	srv := server.NewServer(server.Config{
		Addr:       c.listenAddr(),
		CORSOrigin: c.CORSOrigin,
		MaxResults: c.MaxResults,

		OAuthRateLimit: c.OAuthRateLimit,
		OAuthRateBurst: c.OAuthRateBurst,
		TrustProxy:     c.TrustProxy,
	}, sc)

	// Validate the schedule before anything starts listening.
	var refresher *scheduler.Refresher
	if c.RefreshSchedule != "" {
		refresher, err = scheduler.New(c.RefreshSchedule, a.flow, scheduler.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	metricsServer, err := startMetricsServer(c.Metrics, a)
	if err != nil {
		return err
	}
	if refresher != nil {
		refresher.Start()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	var errs []error
	if refresher != nil {
		if err := refresher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error stopping token refresher: %w", err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if runErr == nil && len(errs) == 0 {
		logger.Info("HTTP server gracefully stopped")
	}
	return errors.Join(append([]error{runErr}, errs...)...)
}

// startMetricsServer starts the Prometheus endpoint when metrics are enabled
// and exported through Prometheus. It returns nil when nothing was started.
func startMetricsServer(mc MetricsConfig, a *app) (*server.MetricsServer, error) {
	if !mc.Enabled || !a.provider.Enabled() {
		return nil, nil
	}
	if !a.provider.PrometheusEnabled() {
		a.logger.Info("metrics server disabled, exporter is not prometheus")
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    mc.Addr,
		InstrumentationProvider: a.provider,
		Logger:                  a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	return metricsServer, nil
}
