package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
)

// Gateway defaults.
const (
	DefaultCalendarID = "primary"
	DefaultMaxResults = 10
	DefaultTimeout    = 30 * time.Second
)

// CredentialSource supplies the credentials for each remote call.
// credentials.Guard implements it.
type CredentialSource interface {
	Current(ctx context.Context) (*credentials.Credentials, error)
}

// Config configures a Gateway.
type Config struct {
	// CalendarID is the target calendar (default: primary)
	CalendarID string

	// Location is the zone new events are created in (default: UTC)
	Location *time.Location

	// Timeout bounds every remote call (default: 30s)
	Timeout time.Duration

	// Endpoint overrides the Calendar API base URL (used by tests).
	Endpoint string
}

// Gateway performs list, insert and delete calls against the Calendar API
// using the credentials current at call time. It never refreshes tokens.
type Gateway struct {
	calendarID string
	location   *time.Location
	timeout    time.Duration
	endpoint   string
	creds      CredentialSource
	baseClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the base client that authenticated requests go through.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.baseClient = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config, creds CredentialSource, opts ...Option) *Gateway {
	g := &Gateway{
		calendarID: cfg.CalendarID,
		location:   cfg.Location,
		timeout:    cfg.Timeout,
		endpoint:   cfg.Endpoint,
		creds:      creds,
	}
	if g.calendarID == "" {
		g.calendarID = DefaultCalendarID
	}
	if g.location == nil {
		g.location = time.UTC
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.baseClient == nil {
		// Force HTTP/1.1 by disabling HTTP/2
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ForceAttemptHTTP2 = false
		g.baseClient = &http.Client{Transport: transport}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = logging.WithComponent(g.logger, "calendar")
	return g
}

// Location returns the zone new events are created in.
func (g *Gateway) Location() *time.Location {
	return g.location
}

// service builds a Calendar service authorized with the current access token.
func (g *Gateway) service(ctx context.Context) (*calendar.Service, error) {
	creds, err := g.creds.Current(ctx)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, g.baseClient),
		oauth2.StaticTokenSource(creds.Token()),
	)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// call runs fn under the gateway timeout inside a client span and records
// the outcome. Errors from fn are converted with toRemoteError.
func (g *Gateway) call(ctx context.Context, op string, attrs *instrumentation.SpanAttributeBuilder, fn func(ctx context.Context, svc *calendar.Service) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := instrumentation.StartCalendarSpan(ctx, op, attrs.WithCalendar(g.calendarID).Build()...)
	defer span.End()

	svc, err := g.service(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return err
	}

	start := time.Now()
	err = toRemoteError(fn(ctx, svc))
	g.observe(ctx, span, op, time.Since(start), err)
	return err
}

func (g *Gateway) observe(ctx context.Context, span trace.Span, op string, d time.Duration, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		g.logger.Warn("calendar API call failed",
			logging.Operation(op), logging.Err(err), slog.Duration(logging.KeyDuration, d))
	} else {
		instrumentation.SetSpanSuccess(span)
		g.logger.Debug("calendar API call",
			logging.Operation(op), slog.Duration(logging.KeyDuration, d))
	}
	g.metrics.RecordCalendarOperation(ctx, op, status, d)
}

// ListUpcoming returns up to max single events starting at or after now,
// ordered by start time. An empty calendar yields an empty slice.
func (g *Gateway) ListUpcoming(ctx context.Context, max int, now time.Time) ([]*calendar.Event, error) {
	if max <= 0 {
		max = DefaultMaxResults
	}

	var items []*calendar.Event
	attrs := instrumentation.NewSpanAttributeBuilder().WithMaxResults(int64(max))
	err := g.call(ctx, instrumentation.OperationList, attrs, func(ctx context.Context, svc *calendar.Service) error {
		resp, err := svc.Events.List(g.calendarID).
			TimeMin(now.Format(time.RFC3339)).
			MaxResults(int64(max)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		items = resp.Items
		return nil
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*calendar.Event{}
	}
	return items, nil
}

// Create validates in and inserts a one hour event. The inserted event is
// returned as the API answered it.
func (g *Gateway) Create(ctx context.Context, in EventInput) (*calendar.Event, error) {
	ev, err := ToRemote(in, g.location)
	if err != nil {
		return nil, err
	}

	var created *calendar.Event
	err = g.call(ctx, instrumentation.OperationCreate, instrumentation.NewSpanAttributeBuilder(), func(ctx context.Context, svc *calendar.Service) error {
		created, err = svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("event created", logging.EventID(created.Id))
	return created, nil
}

// Delete removes the event with the given id. A missing or already deleted
// event yields *NotFoundError.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	attrs := instrumentation.NewSpanAttributeBuilder().WithEventID(id)
	err := g.call(ctx, instrumentation.OperationDelete, attrs, func(ctx context.Context, svc *calendar.Service) error {
		return svc.Events.Delete(g.calendarID, id).Context(ctx).Do()
	})
	if re, ok := isNotFound(err); ok {
		return &NotFoundError{RemoteError: *re, ID: id}
	}
	if err != nil {
		return err
	}
	g.logger.Info("event deleted", logging.EventID(id))
	return nil
}
