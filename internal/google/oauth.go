package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
)

// authState is sent as the OAuth state parameter. The flow serves a single
// credential set, so a fixed value keeps the consent URL deterministic.
const authState = "calbridge"

// DefaultTimeout bounds a single token endpoint round trip.
const DefaultTimeout = 30 * time.Second

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the Google endpoints (used by tests).
	Endpoint oauth2.Endpoint
}

// Validate checks that the client registration is complete.
func (c Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.RedirectURL == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if len(missing) > 0 {
		return errors.New("missing OAuth configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// oauth2Config returns the OAuth2 configuration for the calendar scope.
func (c Config) oauth2Config() *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  c.RedirectURL,
		Scopes:       DefaultOAuthScopes,
	}
}

type sourceKey struct{}

// WithSource tags ctx with the trigger of a credential change for audit logs.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return instrumentation.SourceHTTP
}

// FlowController runs the OAuth authorization code flow and persists its
// results through a credentials.Guard.
type FlowController struct {
	conf       *oauth2.Config
	guard      *credentials.Guard
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger
	backend    string
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a FlowController.
type Option func(*FlowController)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(f *FlowController) { f.httpClient = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(f *FlowController) { f.metrics = m }
}

// WithAuditLogger sets the credential audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(f *FlowController) { f.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *FlowController) { f.logger = l }
}

// WithBackendName records the credential backend name in audit events.
func WithBackendName(name string) Option {
	return func(f *FlowController) { f.backend = name }
}

// WithTimeout bounds each call to the token endpoint. Non-positive values
// keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *FlowController) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *FlowController) { f.now = now }
}

// NewFlowController creates a FlowController.
func NewFlowController(cfg Config, guard *credentials.Guard, opts ...Option) *FlowController {
	f := &FlowController{
		conf:    cfg.oauth2Config(),
		guard:   guard,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = logging.WithComponent(f.logger, "oauth")
	return f
}

// AuthorizationURL returns the consent screen URL. It requests offline access
// so the first exchange yields a refresh token.
func (f *FlowController) AuthorizationURL() string {
	return f.conf.AuthCodeURL(authState, oauth2.AccessTypeOffline)
}

// clientContext carries the token endpoint client and a per-call deadline.
// Refresh holds the guard lock for the whole call.
func (f *FlowController) clientContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// Exchange trades an authorization code for tokens and persists them exactly
// as returned. Failures are returned as *AuthExchangeError.
func (f *FlowController) Exchange(ctx context.Context, code string) (*credentials.Credentials, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.ActionExchange)
	defer span.End()

	event := instrumentation.NewCredentialEvent(instrumentation.ActionExchange, sourceFrom(ctx)).
		WithBackend(f.backend).
		WithSpanContext(ctx)

	creds, err := f.exchange(ctx, code)
	event.Complete(err)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		f.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultFailure)
		f.audit.LogCredentialEvent(event)
		f.logger.Warn("authorization code exchange failed", logging.Err(err))
		return nil, err
	}

	event.WithResult(creds.Expiry, creds.HasRefreshToken())
	instrumentation.SetSpanSuccess(span)
	f.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultSuccess)
	f.audit.LogCredentialEvent(event)
	f.logger.Info("authorization code exchanged",
		slog.String("access_token", logging.SanitizeToken(creds.AccessToken)),
		slog.Bool("has_refresh_token", creds.HasRefreshToken()))
	return creds, nil
}

func (f *FlowController) exchange(ctx context.Context, code string) (*credentials.Credentials, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &AuthExchangeError{Err: errors.New("missing authorization code")}
	}

	cctx, cancel := f.clientContext(ctx)
	tok, err := f.conf.Exchange(cctx, code)
	cancel()
	if err != nil {
		return nil, &AuthExchangeError{Err: err}
	}

	return f.guard.Update(ctx, func(context.Context, *credentials.Credentials) (*credentials.Credentials, error) {
		return credentials.FromToken(tok), nil
	})
}

// Refresh obtains a new access token with the stored refresh token and
// persists it. When the token endpoint omits a refresh token the previous one
// is kept. Returns ErrNoRefreshToken without touching the store when no
// refresh token is held.
func (f *FlowController) Refresh(ctx context.Context) (*credentials.Credentials, error) {
	creds, _, err := f.refresh(ctx, nil)
	return creds, err
}

// RefreshIfExpiring refreshes only when the access token expires within
// window. Credentials without a refresh token are returned unchanged. The
// boolean reports whether a refresh happened.
func (f *FlowController) RefreshIfExpiring(ctx context.Context, window time.Duration) (*credentials.Credentials, bool, error) {
	return f.refresh(ctx, func(cur *credentials.Credentials) bool {
		return cur.HasRefreshToken() && cur.ExpiresWithin(window, f.now())
	})
}

// refresh runs under the guard lock. A nil cond forces the refresh.
func (f *FlowController) refresh(ctx context.Context, cond func(*credentials.Credentials) bool) (*credentials.Credentials, bool, error) {
	var (
		attempted bool
		event     *instrumentation.CredentialEvent
	)

	creds, err := f.guard.Update(ctx, func(ctx context.Context, cur *credentials.Credentials) (*credentials.Credentials, error) {
		if cond != nil {
			if cur == nil {
				return nil, credentials.ErrNotAuthenticated
			}
			if !cond(cur) {
				return nil, nil
			}
		}
		attempted = true

		if !cur.HasRefreshToken() {
			f.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoRefresh)
			return nil, ErrNoRefreshToken
		}

		ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.ActionRefresh)
		defer span.End()
		event = instrumentation.NewCredentialEvent(instrumentation.ActionRefresh, sourceFrom(ctx)).
			WithBackend(f.backend).
			WithSpanContext(ctx)

		// An empty access token forces the token source to hit the endpoint.
		cctx, cancel := f.clientContext(ctx)
		defer cancel()
		src := f.conf.TokenSource(cctx, &oauth2.Token{RefreshToken: cur.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			rerr := &RefreshError{Err: err}
			instrumentation.SetSpanError(span, rerr)
			return nil, rerr
		}
		instrumentation.SetSpanSuccess(span)

		next := credentials.FromToken(tok)
		if next.RefreshToken == "" {
			next.RefreshToken = cur.RefreshToken
		}
		return next, nil
	})

	if event != nil {
		event.Complete(err)
		if err == nil {
			event.WithResult(creds.Expiry, creds.HasRefreshToken())
		}
		f.audit.LogCredentialEvent(event)
	}

	if err != nil {
		if event != nil {
			f.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		}
		if !errors.Is(err, credentials.ErrNotAuthenticated) {
			f.logger.Warn("token refresh failed", logging.Err(err))
		}
		return nil, attempted, err
	}

	if attempted {
		f.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
		f.logger.Info("access token refreshed",
			slog.String("access_token", logging.SanitizeToken(creds.AccessToken)),
			slog.Time("expiry", creds.Expiry))
	}
	return creds, attempted, nil
}
