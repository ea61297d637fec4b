// Package calendar_tools exposes the calendar operations of calbridge as MCP
// tools.
//
// Tools:
//   - calendar_list_events: upcoming events in start order
//   - calendar_create_event: one hour event at an ISO-8601 date-time
//   - calendar_delete_event: delete one or more events by ID
//   - calendar_auth_url: consent URL for connecting a Google account
//   - calendar_exchange_auth_code: completes the connection with the code
//
// The create and delete tools are not registered in read-only mode.
package calendar_tools
