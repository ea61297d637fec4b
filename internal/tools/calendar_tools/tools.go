package calendar_tools

import (
	"fmt"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/server"
)

// RegisterCalendarTools registers all calendar tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterAuthTools(s, sc); err != nil {
		return fmt.Errorf("failed to register auth tools: %w", err)
	}

	return nil
}

// getStringArg returns a trimmed string argument, or "" when missing or not a string.
func getStringArg(args map[string]interface{}, name string) string {
	v, ok := args[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// getIntArg returns a positive integer argument or def. JSON numbers arrive as float64.
func getIntArg(args map[string]interface{}, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return def
}

func formatEvents(events []calendar.Event) string {
	if len(events) == 0 {
		return "No upcoming events."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d upcoming events:\n\n", len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ev.Title)
		fmt.Fprintf(&b, "   ID: %s\n", ev.ID)
		fmt.Fprintf(&b, "   Start: %s\n", ev.DateTime)
		if ev.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", ev.Location)
		}
		fmt.Fprintf(&b, "   Category: %s\n\n", ev.Category())
	}
	return b.String()
}
