package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/google"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/server"
)

// Config holds the settings shared by all commands.
type Config struct {
	// OAuth client registration
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Port is the HTTP listen port (default: 5000)
	Port string

	// Calendar settings
	CalendarID    string
	TimeZone      string
	MaxResults    int
	RemoteTimeout time.Duration

	// CORSOrigin is the browser origin allowed to call the API
	CORSOrigin string

	// OAuth endpoint rate limit per client IP; zero disables it
	OAuthRateLimit float64
	OAuthRateBurst int
	TrustProxy     bool

	Credentials CredentialsConfig

	// RefreshSchedule is a cron spec for background token refresh; empty disables it
	RefreshSchedule string

	Metrics MetricsConfig

	LogLevel  string
	LogFormat string
}

// CredentialsConfig selects and configures the credential store backend.
type CredentialsConfig struct {
	// Backend is one of file, sqlite, valkey, gcs (default: file)
	Backend string

	// File is the token file path (default: $XDG_DATA_HOME/calbridge/tokens.json)
	File string

	// SQLitePath is the database path for the sqlite backend
	SQLitePath string

	Valkey credentials.ValkeyConfig

	GCSBucket string
	GCSObject string

	// EncryptionKey is a base64 AES-256 key; empty stores tokens in clear text
	EncryptionKey string
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// defaultTimeZone is the zone the CLI and server create events in when
// CALENDAR_TIMEZONE is unset.
const defaultTimeZone = "Asia/Kolkata"

func defaultConfig() Config {
	return Config{
		Port:          "5000",
		CalendarID:    calendar.DefaultCalendarID,
		TimeZone:      defaultTimeZone,
		MaxResults:    calendar.DefaultMaxResults,
		RemoteTimeout: calendar.DefaultTimeout,
		CORSOrigin:    server.DefaultCORSOrigin,
		Credentials: CredentialsConfig{
			Backend: credentials.BackendFile,
			Valkey: credentials.ValkeyConfig{
				KeyPrefix: credentials.DefaultValkeyKeyPrefix,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    server.DefaultMetricsAddr,
		},
		LogLevel:  "info",
		LogFormat: logging.FormatText,
	}
}

// addConfigFlags registers the shared flags on the root command.
func addConfigFlags(cmd *cobra.Command, c *Config) {
	fs := cmd.PersistentFlags()

	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "Google OAuth client ID. Can also use CLIENT_ID env var.")
	fs.StringVar(&c.ClientSecret, "client-secret", c.ClientSecret, "Google OAuth client secret. Can also use CLIENT_SECRET env var.")
	fs.StringVar(&c.RedirectURI, "redirect-uri", c.RedirectURI, "OAuth redirect URI registered for the client. Can also use REDIRECT_URI env var.")

	fs.StringVar(&c.CalendarID, "calendar-id", c.CalendarID, "Target calendar. Can also use CALENDAR_ID env var.")
	fs.StringVar(&c.TimeZone, "timezone", c.TimeZone, "IANA time zone for new events. Can also use CALENDAR_TIMEZONE env var.")
	fs.IntVar(&c.MaxResults, "max-results", c.MaxResults, "Maximum number of upcoming events to list. Can also use CALENDAR_MAX_RESULTS env var.")
	fs.DurationVar(&c.RemoteTimeout, "remote-timeout", c.RemoteTimeout, "Timeout for Calendar API calls. Can also use REMOTE_TIMEOUT env var.")

	fs.StringVar(&c.Credentials.Backend, "credentials-backend", c.Credentials.Backend, "Credential store: file, sqlite, valkey or gcs. Can also use CREDENTIALS_BACKEND env var.")
	fs.StringVar(&c.Credentials.File, "credentials-file", c.Credentials.File, "Token file for the file backend. Can also use CREDENTIALS_FILE env var.")
	fs.StringVar(&c.Credentials.SQLitePath, "credentials-sqlite-path", c.Credentials.SQLitePath, "Database path for the sqlite backend. Can also use CREDENTIALS_SQLITE_PATH env var.")
	fs.StringVar(&c.Credentials.Valkey.URL, "valkey-url", c.Credentials.Valkey.URL, "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	fs.StringVar(&c.Credentials.Valkey.Password, "valkey-password", c.Credentials.Valkey.Password, "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	fs.BoolVar(&c.Credentials.Valkey.TLSEnabled, "valkey-tls", c.Credentials.Valkey.TLSEnabled, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	fs.StringVar(&c.Credentials.Valkey.KeyPrefix, "valkey-key-prefix", c.Credentials.Valkey.KeyPrefix, "Prefix for Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	fs.IntVar(&c.Credentials.Valkey.DB, "valkey-db", c.Credentials.Valkey.DB, "Valkey database number. Can also use VALKEY_DB env var.")
	fs.StringVar(&c.Credentials.GCSBucket, "gcs-bucket", c.Credentials.GCSBucket, "Bucket for the gcs backend. Can also use GCS_BUCKET env var.")
	fs.StringVar(&c.Credentials.GCSObject, "gcs-object", c.Credentials.GCSObject, "Object name for the gcs backend. Can also use GCS_OBJECT env var.")
	fs.StringVar(&c.Credentials.EncryptionKey, "credentials-encryption-key", c.Credentials.EncryptionKey, "AES-256 key for tokens at rest (32 bytes, base64 encoded). Can also use CREDENTIALS_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error. Can also use LOG_LEVEL env var.")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json. Can also use LOG_FORMAT env var.")
}

// loadEnvVars fills settings from environment variables.
// Environment variables only override flag values when the flag was not explicitly set.
func loadEnvVars(cmd *cobra.Command, c *Config) error {
	envString(cmd, "client-id", "CLIENT_ID", &c.ClientID)
	envString(cmd, "client-secret", "CLIENT_SECRET", &c.ClientSecret)
	envString(cmd, "redirect-uri", "REDIRECT_URI", &c.RedirectURI)
	envString(cmd, "port", "PORT", &c.Port)
	envString(cmd, "calendar-id", "CALENDAR_ID", &c.CalendarID)
	envString(cmd, "timezone", "CALENDAR_TIMEZONE", &c.TimeZone)
	envString(cmd, "cors-origin", "CORS_ORIGIN", &c.CORSOrigin)
	envString(cmd, "refresh-schedule", "REFRESH_SCHEDULE", &c.RefreshSchedule)
	envString(cmd, "log-level", "LOG_LEVEL", &c.LogLevel)
	envString(cmd, "log-format", "LOG_FORMAT", &c.LogFormat)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &c.Metrics.Addr)

	envString(cmd, "credentials-backend", "CREDENTIALS_BACKEND", &c.Credentials.Backend)
	envString(cmd, "credentials-file", "CREDENTIALS_FILE", &c.Credentials.File)
	envString(cmd, "credentials-sqlite-path", "CREDENTIALS_SQLITE_PATH", &c.Credentials.SQLitePath)
	envString(cmd, "credentials-encryption-key", "CREDENTIALS_ENCRYPTION_KEY", &c.Credentials.EncryptionKey)
	envString(cmd, "valkey-url", "VALKEY_URL", &c.Credentials.Valkey.URL)
	envString(cmd, "valkey-password", "VALKEY_PASSWORD", &c.Credentials.Valkey.Password)
	envString(cmd, "valkey-key-prefix", "VALKEY_KEY_PREFIX", &c.Credentials.Valkey.KeyPrefix)
	envString(cmd, "gcs-bucket", "GCS_BUCKET", &c.Credentials.GCSBucket)
	envString(cmd, "gcs-object", "GCS_OBJECT", &c.Credentials.GCSObject)

	// Valkey TLS CA File has no flag
	if caFile := os.Getenv("VALKEY_TLS_CA_FILE"); caFile != "" && c.Credentials.Valkey.TLSCAFile == "" {
		c.Credentials.Valkey.TLSCAFile = caFile
	}

	return errors.Join(
		envInt(cmd, "max-results", "CALENDAR_MAX_RESULTS", &c.MaxResults),
		envInt(cmd, "valkey-db", "VALKEY_DB", &c.Credentials.Valkey.DB),
		envDuration(cmd, "remote-timeout", "REMOTE_TIMEOUT", &c.RemoteTimeout),
		envBool(cmd, "valkey-tls", "VALKEY_TLS_ENABLED", &c.Credentials.Valkey.TLSEnabled),
		envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &c.Metrics.Enabled),
		envFloat(cmd, "oauth-rate-limit", "OAUTH_RATE_LIMIT", &c.OAuthRateLimit),
		envInt(cmd, "oauth-rate-burst", "OAUTH_RATE_BURST", &c.OAuthRateBurst),
		envBool(cmd, "trust-proxy", "TRUST_PROXY", &c.TrustProxy),
	)
}

func envString(cmd *cobra.Command, flag, key string, dst *string) {
	if flagChanged(cmd, flag) {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(cmd *cobra.Command, flag, key string, dst *int) error {
	if flagChanged(cmd, flag) {
		return nil
	}
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(cmd *cobra.Command, flag, key string, dst *bool) error {
	if flagChanged(cmd, flag) {
		return nil
	}
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func envFloat(cmd *cobra.Command, flag, key string, dst *float64) error {
	if flagChanged(cmd, flag) {
		return nil
	}
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func envDuration(cmd *cobra.Command, flag, key string, dst *time.Duration) error {
	if flagChanged(cmd, flag) {
		return nil
	}
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

// flagChanged reports whether the flag exists on cmd and was set explicitly.
func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// Validate checks the settings that do not depend on the command.
func (c Config) Validate() error {
	var errs []error
	if c.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("max results must be at least 1, got %d", c.MaxResults))
	}
	if c.OAuthRateLimit < 0 {
		errs = append(errs, fmt.Errorf("oauth rate limit must not be negative, got %g", c.OAuthRateLimit))
	}
	if c.RemoteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("remote timeout must be positive, got %s", c.RemoteTimeout))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err))
	}
	switch c.Credentials.Backend {
	case credentials.BackendFile, credentials.BackendSQLite, credentials.BackendValkey, credentials.BackendGCS:
	default:
		errs = append(errs, fmt.Errorf("unsupported credentials backend %q (supported: file, sqlite, valkey, gcs)", c.Credentials.Backend))
	}
	return errors.Join(errs...)
}

// OAuth returns the OAuth client registration.
func (c Config) OAuth() google.Config {
	return google.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
	}
}

// listenAddr turns Port into a listen address; values containing a colon are used as is.
func (c Config) listenAddr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// app holds the components built from a Config.
type app struct {
	cfg      Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
	store    credentials.Store
	closers  []io.Closer
	guard    *credentials.Guard
	flow     *google.FlowController
	gateway  *calendar.Gateway
}

// newApp builds the logger, instrumentation, credential store, OAuth flow and
// calendar gateway. Logs go to logOut. instrumented controls whether the
// OpenTelemetry provider exports anything.
func newApp(ctx context.Context, c Config, logOut io.Writer, instrumented bool) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.OAuth().Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logOut, c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, err
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !instrumented {
		instrConfig.Enabled = false
	}
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation config: %w", err)
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	a := &app{
		cfg:      c,
		logger:   logger,
		provider: provider,
	}
	a.audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)

	store, backend, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.store = credentials.NewInstrumentedStore(store, backend, a.metrics(), logger)

	a.guard = credentials.NewGuard(a.store)
	// The guard retries the load on first use, so an unreachable store is not fatal here
	if err := a.guard.Load(ctx); err != nil {
		logger.Warn("failed to load credentials", logging.Backend(backend), logging.Err(err))
	}

	a.flow = google.NewFlowController(c.OAuth(), a.guard,
		google.WithMetrics(a.metrics()),
		google.WithAuditLogger(a.audit),
		google.WithLogger(logger),
		google.WithBackendName(backend),
		google.WithTimeout(c.RemoteTimeout),
	)

	loc, _ := time.LoadLocation(c.TimeZone)
	a.gateway = calendar.NewGateway(calendar.Config{
		CalendarID: c.CalendarID,
		Location:   loc,
		Timeout:    c.RemoteTimeout,
	}, a.guard,
		calendar.WithMetrics(a.metrics()),
		calendar.WithLogger(logger),
	)

	return a, nil
}

// openStore opens the configured backend, wrapping it with encryption when a key is set.
func (a *app) openStore(ctx context.Context) (credentials.Store, string, error) {
	cc := a.cfg.Credentials

	var store credentials.Store
	switch cc.Backend {
	case credentials.BackendFile:
		path := cc.File
		if path == "" {
			p, err := credentials.DefaultFilePath()
			if err != nil {
				return nil, "", err
			}
			path = p
		}
		store = credentials.NewFileStore(path)
		a.logger.Debug("using file credential store", slog.String("path", path))
	case credentials.BackendSQLite:
		if cc.SQLitePath == "" {
			return nil, "", errors.New("sqlite path is required when using the sqlite credentials backend")
		}
		s, err := credentials.NewSQLiteStore(ctx, cc.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, s)
		store = s
	case credentials.BackendValkey:
		s, err := credentials.NewValkeyStore(cc.Valkey)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, s)
		store = s
	case credentials.BackendGCS:
		s, err := credentials.NewGCSStore(ctx, cc.GCSBucket, cc.GCSObject)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, s)
		store = s
	default:
		return nil, "", fmt.Errorf("unsupported credentials backend %q", cc.Backend)
	}

	key, err := credentials.KeyFromBase64(cc.EncryptionKey)
	if err != nil {
		return nil, "", fmt.Errorf("invalid credentials encryption key: %w", err)
	}
	if key == nil {
		return store, cc.Backend, nil
	}
	cipher, err := credentials.NewCipher(key)
	if err != nil {
		return nil, "", err
	}
	return credentials.NewEncryptedStore(store, cipher), cc.Backend, nil
}

// metrics returns the recorder, or nil when instrumentation is disabled.
func (a *app) metrics() *instrumentation.Metrics {
	if a.provider == nil || !a.provider.Enabled() {
		return nil
	}
	return a.provider.Metrics()
}

// serverContext builds the context shared by the HTTP surface and the MCP tools.
func (a *app) serverContext(ctx context.Context) *server.ServerContext {
	return server.NewServerContext(ctx, a.flow, a.gateway, a.guard,
		server.WithMetrics(a.metrics()),
		server.WithAuditLogger(a.audit),
		server.WithLogger(a.logger),
	)
}

// Close releases the store connections and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
