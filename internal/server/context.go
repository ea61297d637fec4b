package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
)

// DefaultRefreshWindow is how close to expiry an access token is refreshed
// before a calendar call.
const DefaultRefreshWindow = 5 * time.Minute

// OAuthFlow is the OAuth flow controller. google.FlowController implements it.
type OAuthFlow interface {
	AuthorizationURL() string
	Exchange(ctx context.Context, code string) (*credentials.Credentials, error)
	Refresh(ctx context.Context) (*credentials.Credentials, error)
	RefreshIfExpiring(ctx context.Context, window time.Duration) (*credentials.Credentials, bool, error)
}

// EventGateway performs remote calendar operations. calendar.Gateway implements it.
type EventGateway interface {
	ListUpcoming(ctx context.Context, max int, now time.Time) ([]*gcal.Event, error)
	Create(ctx context.Context, in calendar.EventInput) (*gcal.Event, error)
	Delete(ctx context.Context, id string) error
}

// CredentialState reports on the held credentials. credentials.Guard implements it.
type CredentialState interface {
	Authenticated(ctx context.Context) bool
	Check(ctx context.Context) error
}

// ServerContext holds the dependencies shared by the HTTP surface, the MCP
// tools and the CLI.
type ServerContext struct {
	ctx           context.Context
	cancel        context.CancelFunc
	flow          OAuthFlow
	gateway       EventGateway
	creds         CredentialState
	metrics       *instrumentation.Metrics
	auditLogger   *instrumentation.AuditLogger
	logger        *slog.Logger
	refreshWindow time.Duration
	mu            sync.RWMutex
	shutdown      bool
}

// ContextOption configures a ServerContext.
type ContextOption func(*ServerContext)

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) { sc.auditLogger = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ContextOption {
	return func(sc *ServerContext) { sc.logger = l }
}

// WithRefreshWindow sets how close to expiry a token is refreshed before
// calendar calls. Zero disables proactive refresh.
func WithRefreshWindow(d time.Duration) ContextOption {
	return func(sc *ServerContext) { sc.refreshWindow = d }
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, flow OAuthFlow, gateway EventGateway, creds CredentialState, opts ...ContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:           shutdownCtx,
		cancel:        cancel,
		flow:          flow,
		gateway:       gateway,
		creds:         creds,
		refreshWindow: DefaultRefreshWindow,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}
	return sc
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Flow returns the OAuth flow controller
func (sc *ServerContext) Flow() OAuthFlow {
	return sc.flow
}

// Gateway returns the calendar gateway
func (sc *ServerContext) Gateway() EventGateway {
	return sc.gateway
}

// Credentials returns the credential state
func (sc *ServerContext) Credentials() CredentialState {
	return sc.creds
}

// Metrics returns the metrics recorder, or nil if not configured
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil if not configured
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Logger returns the logger
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// RefreshIfNeeded refreshes the access token when it is about to expire.
// Failures are logged and swallowed: the following calendar call reports
// the resulting remote error.
func (sc *ServerContext) RefreshIfNeeded(ctx context.Context) {
	if sc.refreshWindow <= 0 || sc.flow == nil {
		return
	}
	_, refreshed, err := sc.flow.RefreshIfExpiring(ctx, sc.refreshWindow)
	switch {
	case errors.Is(err, credentials.ErrNotAuthenticated):
	case err != nil:
		sc.logger.Warn("proactive token refresh failed", logging.Err(err))
	case refreshed:
		sc.logger.Debug("access token refreshed before calendar call")
	}
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
