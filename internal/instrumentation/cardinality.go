package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// Event identifiers are unbounded. Recording raw request paths such as
// /events/abc123 as a label would create one time series per event.
// Always pass request paths through NormalizePath before recording them.

// PathOther is the label value used for paths outside the known route set.
const PathOther = "other"

var knownPaths = map[string]bool{
	"/auth":             true,
	"/callback":         true,
	"/events":           true,
	"/events.ics":       true,
	"/refresh-token":    true,
	"/healthz":          true,
	"/healthz/detailed": true,
	"/readyz":           true,
}

// NormalizePath maps a request path to a bounded set of label values.
//
// Example:
//
//	NormalizePath("/events")        // "/events"
//	NormalizePath("/events/abc123") // "/events/{id}"
//	NormalizePath("/wp-login.php")  // "other"
func NormalizePath(path string) string {
	if path == "" {
		return PathOther
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if knownPaths[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/events/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/events/{id}"
	}
	return PathOther
}
