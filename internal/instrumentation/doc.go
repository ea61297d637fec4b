// Package instrumentation wires OpenTelemetry metrics and tracing into
// calbridge and writes the credential audit log.
//
// NewProvider installs a meter provider (prometheus, otlp or stdout) and a
// tracer provider (otlp, stdout or none) according to Config. The
// Prometheus reader registers with the default registry, which
// server.MetricsServer exposes on its own port.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: by method,
//     NormalizePath'd path and status code
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds:
//     list, create and delete calls against Google Calendar
//   - oauth_exchange_total, oauth_token_refresh_total: by result, where
//     no_refresh_token marks a refresh attempted without a refresh token
//   - credential_store_operations_total: loads and saves per backend
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Spans
//
// google.calendar.<operation> and oauth.<step> are client spans;
// tool.<name> is a server span. Event and calendar IDs are attributes,
// token values never are.
//
// # Audit log
//
// AuditLogger records every exchange and refresh with its source (http,
// scheduler, cli, mcp), the backend and the resulting expiry. It can be
// turned off with AUDIT_LOGGING_ENABLED=false independently of metrics.
package instrumentation
