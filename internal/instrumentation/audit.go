package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Credential lifecycle actions.
const (
	ActionExchange = "exchange"
	ActionRefresh  = "refresh"
)

// Sources that can trigger a credential change.
const (
	SourceHTTP      = "http"
	SourceScheduler = "scheduler"
	SourceCLI       = "cli"
	SourceMCP       = "mcp"
)

// CredentialEvent captures a change to the stored OAuth credentials for audit logging.
//
// # Security Considerations
//
// Token values never appear in a CredentialEvent. Only metadata such as
// expiry and whether a refresh token is held is recorded.
type CredentialEvent struct {
	Action  string // exchange or refresh
	Source  string // http, scheduler, cli or mcp
	Backend string // credential store backend name

	// Resulting credential metadata
	Expiry          time.Time
	HasRefreshToken bool

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewCredentialEvent creates a CredentialEvent with timing started.
// Call Complete when the operation finishes.
func NewCredentialEvent(action, source string) *CredentialEvent {
	return &CredentialEvent{
		Action:    action,
		Source:    source,
		StartTime: time.Now(),
	}
}

// WithBackend sets the credential store backend name.
func (ce *CredentialEvent) WithBackend(backend string) *CredentialEvent {
	ce.Backend = backend
	return ce
}

// WithResult records metadata about the credentials produced by the operation.
func (ce *CredentialEvent) WithResult(expiry time.Time, hasRefreshToken bool) *CredentialEvent {
	ce.Expiry = expiry
	ce.HasRefreshToken = hasRefreshToken
	return ce
}

// WithSpanContext extracts trace context from the current span.
func (ce *CredentialEvent) WithSpanContext(ctx context.Context) *CredentialEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ce.TraceID = span.SpanContext().TraceID().String()
		ce.SpanID = span.SpanContext().SpanID().String()
	}
	return ce
}

// Complete marks the event as finished and calculates duration.
// A nil err marks the event successful.
func (ce *CredentialEvent) Complete(err error) *CredentialEvent {
	ce.Duration = time.Since(ce.StartTime)
	ce.Success = err == nil
	if err != nil {
		ce.Error = err.Error()
	}
	return ce
}

// Status returns "success" or "error" based on the Success field.
func (ce *CredentialEvent) Status() string {
	if ce.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
func (ce *CredentialEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", ce.Action),
		slog.String("source", ce.Source),
		slog.Duration("duration", ce.Duration),
		slog.Bool("success", ce.Success),
	}

	if ce.Backend != "" {
		attrs = append(attrs, slog.String("backend", ce.Backend))
	}
	if ce.Success {
		attrs = append(attrs, slog.Bool("has_refresh_token", ce.HasRefreshToken))
		if !ce.Expiry.IsZero() {
			attrs = append(attrs, slog.Time("expiry", ce.Expiry))
		}
	}
	if ce.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ce.TraceID))
	}
	if ce.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ce.SpanID))
	}
	if ce.Error != "" {
		attrs = append(attrs, slog.String("error", ce.Error))
	}

	return attrs
}

// ToolInvocation captures a single MCP tool call for audit logging.
type ToolInvocation struct {
	Tool      string
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	TraceID   string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSpanContext extracts the trace ID from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	return ti
}

// Complete marks the invocation as finished. A nil err marks it successful.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// AuditLogger provides structured audit logging for credential changes and tool calls.
type AuditLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditLogger creates a new enabled AuditLogger with the given slog.Logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		enabled: config.Enabled,
	}
}

// LogCredentialEvent logs a credential lifecycle event.
// A nil receiver is a no-op.
func (al *AuditLogger) LogCredentialEvent(ce *CredentialEvent) {
	if al == nil || !al.enabled {
		return
	}
	al.log(ce.Success, "credentials_updated", "credentials_update_failed", ce.LogAttrs())
}

// LogToolInvocation logs an MCP tool call.
// A nil receiver is a no-op.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	al.log(ti.Success, "tool_executed", "tool_failed", ti.LogAttrs())
}

func (al *AuditLogger) log(success bool, okMsg, failMsg string, attrs []slog.Attr) {
	if success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, okMsg, attrs...)
		return
	}
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, failMsg, attrs...)
}
