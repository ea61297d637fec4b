package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/logging"
)

const (
	// DefaultAddr is the listen address of the HTTP surface.
	DefaultAddr = ":5000"

	// DefaultCalendarName is the X-WR-CALNAME of the iCalendar export.
	DefaultCalendarName = "calbridge"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultOAuthRateBurst    = 5
)

// Config configures the HTTP surface.
type Config struct {
	// Addr is the listen address (default :5000)
	Addr string

	// CORSOrigin is the single allowed browser origin.
	CORSOrigin string

	// MaxResults caps GET /events (default 10)
	MaxResults int

	// CalendarName names the feed served at /events.ics.
	CalendarName string

	// OAuthRateLimit is the number of requests per second and client IP
	// allowed on /auth, /callback and /refresh-token. Zero disables limiting.
	OAuthRateLimit float64

	// OAuthRateBurst is the bucket size of the OAuth rate limit (default 5)
	OAuthRateBurst int

	// TrustProxy makes the rate limiter read the client IP from proxy headers.
	TrustProxy bool
}

// Server is the HTTP surface: OAuth endpoints, event endpoints and health
// probes on one mux.
type Server struct {
	cfg        Config
	sc         *ServerContext
	health     *HealthChecker
	logger     *slog.Logger
	mux        *http.ServeMux
	httpServer *http.Server
	limiter    *RateLimiter
	now        func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg Config, sc *ServerContext) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = DefaultCORSOrigin
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = calendar.DefaultMaxResults
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = DefaultCalendarName
	}
	if cfg.OAuthRateBurst <= 0 {
		cfg.OAuthRateBurst = defaultOAuthRateBurst
	}

	s := &Server{
		cfg:    cfg,
		sc:     sc,
		health: NewHealthChecker(sc),
		logger: logging.WithComponent(sc.Logger(), "http"),
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	if cfg.OAuthRateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.OAuthRateLimit, cfg.OAuthRateBurst, cfg.TrustProxy)
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.Handle("GET /auth", s.rateLimited(s.handleAuth))
	s.mux.Handle("GET /callback", s.rateLimited(s.handleCallback))
	s.mux.HandleFunc("GET /events", s.handleListEvents)
	s.mux.HandleFunc("POST /events", s.handleCreateEvent)
	s.mux.HandleFunc("DELETE /events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /events.ics", s.handleExportEvents)
	s.mux.Handle("GET /refresh-token", s.rateLimited(s.handleRefreshToken))

	s.health.RegisterHealthEndpoints(s.mux)
}

// rateLimited applies the OAuth rate limit, if configured, to h.
func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

// Handler returns the routes wrapped with request ID, logging, metrics and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = corsMiddleware(s.cfg.CORSOrigin, h)
	h = observeMiddleware(s.logger, s.sc.Metrics(), h)
	h = requestIDMiddleware(h)
	return h
}

// Health returns the health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server not ready, drains in-flight requests and
// cancels the server context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	defer func() { _ = s.sc.Shutdown() }()
	if s.limiter != nil {
		defer s.limiter.Close()
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
