// Package server provides the HTTP surface of calbridge and the context shared
// with the MCP tools.
//
// # Key Components
//
// ServerContext bundles the OAuth flow, the calendar gateway, the credential
// state and the optional metrics and audit logger. Before each calendar call
// it refreshes an access token that is about to expire.
//
// Server routes the REST endpoints:
//   - GET /auth redirects to the Google consent screen
//   - GET /callback exchanges the authorization code
//   - GET /events, POST /events, DELETE /events/{id}
//   - GET /events.ics exports upcoming events as iCalendar
//   - GET /refresh-token forces a token refresh
//
// Every failure is answered with status 500 and a JSON body {"error": ...}.
// When the Calendar API or the token endpoint returned a JSON error document,
// that document is the error value; otherwise it is the error message.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed, and
// MetricsServer serves Prometheus metrics on a separate listener.
package server
