// Package resources provides read-only MCP resources for the connected calendar.
//
//   - calendar://status reports whether a Google account is connected
//   - calendar://events/upcoming lists upcoming events as JSON
//   - calendar://events.ics renders the same events as iCalendar
package resources
