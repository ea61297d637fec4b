package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for every calbridge span.
const TracerName = "github.com/teemow/calbridge"

// Span attribute keys.
const (
	SpanAttrCalendarID = "calendar.id"
	SpanAttrOperation  = "calendar.operation"
	SpanAttrEventID    = "calendar.event_id"
	SpanAttrMaxResults = "calendar.max_results"
	SpanAttrOAuthStep  = "oauth.step"
	SpanAttrTool       = "mcp.tool"
)

// SpanAttributeBuilder collects Calendar API span attributes, skipping
// empty identifiers.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{}
}

func (b *SpanAttributeBuilder) WithCalendar(calendarID string) *SpanAttributeBuilder {
	return b.str(SpanAttrCalendarID, calendarID)
}

func (b *SpanAttributeBuilder) WithEventID(eventID string) *SpanAttributeBuilder {
	return b.str(SpanAttrEventID, eventID)
}

func (b *SpanAttributeBuilder) WithMaxResults(n int64) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int64(SpanAttrMaxResults, n))
	return b
}

func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func (b *SpanAttributeBuilder) str(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

// StartCalendarSpan starts a client span named google.calendar.<operation>.
func StartCalendarSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String(SpanAttrOperation, operation)}, attrs...)
	return startSpan(ctx, "google.calendar."+operation, trace.SpanKindClient, attrs)
}

// StartOAuthSpan starts a client span for a token endpoint round trip.
func StartOAuthSpan(ctx context.Context, step string) (context.Context, trace.Span) {
	return startSpan(ctx, "oauth."+step, trace.SpanKindClient,
		[]attribute.KeyValue{attribute.String(SpanAttrOAuthStep, step)})
}

// StartToolSpan starts a server span for an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return startSpan(ctx, "tool."+toolName, trace.SpanKindServer,
		[]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)})
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// SetSpanError marks span failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
