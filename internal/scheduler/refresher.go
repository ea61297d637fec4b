package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/google"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
)

const (
	// DefaultWindow is how close to expiry a token must be to get refreshed.
	DefaultWindow = 5 * time.Minute

	// DefaultTimeout bounds a single refresh run.
	DefaultTimeout = 30 * time.Second
)

// TokenRefresher refreshes credentials that are about to expire.
// google.FlowController implements it.
type TokenRefresher interface {
	RefreshIfExpiring(ctx context.Context, window time.Duration) (*credentials.Credentials, bool, error)
}

// Refresher refreshes the stored access token on a cron schedule.
type Refresher struct {
	cron    *cron.Cron
	entry   cron.EntryID
	flow    TokenRefresher
	window  time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithWindow sets the expiry window.
func WithWindow(d time.Duration) Option {
	return func(r *Refresher) { r.window = d }
}

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// New creates a Refresher for a standard five field cron spec or a
// descriptor such as "@every 10m".
func New(spec string, flow TokenRefresher, opts ...Option) (*Refresher, error) {
	r := &Refresher{
		flow:    flow,
		window:  DefaultWindow,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = logging.WithComponent(r.logger, "scheduler")

	cl := logging.NewCronLogger(r.logger)
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := r.cron.AddFunc(spec, func() {
		_ = r.RunOnce(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	r.entry = id
	return r, nil
}

// Start runs the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Info("token refresh scheduled", slog.Time("next", r.Next()))
}

// Stop halts the schedule and waits for a running refresh or ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the time of the next scheduled run. It is zero until Start.
func (r *Refresher) Next() time.Time {
	return r.cron.Entry(r.entry).Next
}

// RunOnce performs a single refresh check. Missing credentials are not an
// error; other failures are logged and returned.
func (r *Refresher) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(google.WithSource(ctx, instrumentation.SourceScheduler), r.timeout)
	defer cancel()

	creds, refreshed, err := r.flow.RefreshIfExpiring(ctx, r.window)
	switch {
	case errors.Is(err, credentials.ErrNotAuthenticated):
		r.logger.Debug("no credentials stored, skipping refresh")
		return nil
	case err != nil:
		r.logger.Error("scheduled token refresh failed", logging.Err(err))
		return err
	case refreshed:
		r.logger.Info("scheduled token refresh succeeded", slog.Time("expiry", creds.Expiry))
	default:
		r.logger.Debug("access token still valid")
	}
	return nil
}
