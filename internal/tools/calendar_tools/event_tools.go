package calendar_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/server"
	"github.com/teemow/calbridge/internal/tools/batch"
	"github.com/teemow/calbridge/internal/tools/common"
)

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List upcoming events of the connected Google Calendar, ordered by start time"),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default: 10)"),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandler("calendar_list_events", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	// Write tools are only available when read-only mode is off
	if !readOnly {
		createEventTool := mcp.NewTool("calendar_create_event",
			mcp.WithDescription("Create a one hour calendar event"),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Event title"),
			),
			mcp.WithString("dateTime",
				mcp.Required(),
				mcp.Description("Start time, ISO-8601 (e.g., '2025-01-15T14:00:00Z' or '2025-01-15T14:00' in the configured time zone)"),
			),
			mcp.WithString("location",
				mcp.Description("Event location"),
			),
		)

		s.AddTool(createEventTool, common.InstrumentedToolHandler("calendar_create_event", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleCreateEvent(ctx, request, sc)
			}))

		deleteEventTool := mcp.NewTool("calendar_delete_event",
			mcp.WithDescription("Delete one or more calendar events"),
			mcp.WithString("eventIds",
				mcp.Required(),
				mcp.Description("Event ID (string) or array of event IDs to delete"),
			),
		)

		s.AddTool(deleteEventTool, common.InstrumentedToolHandler("calendar_delete_event", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleDeleteEvent(ctx, request, sc)
			}))
	}

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	max := getIntArg(args, "maxResults", calendar.DefaultMaxResults)

	sc.RefreshIfNeeded(ctx)

	items, err := sc.Gateway().ListUpcoming(ctx, max, time.Now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	return mcp.NewToolResultText(formatEvents(calendar.FromRemoteList(items))), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	in := calendar.EventInput{
		Title:    getStringArg(args, "title"),
		DateTime: getStringArg(args, "dateTime"),
		Location: getStringArg(args, "location"),
	}

	sc.RefreshIfNeeded(ctx)

	created, err := sc.Gateway().Create(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create event: %v", err)), nil
	}

	ev := calendar.FromRemote(created)
	result := fmt.Sprintf("Event created successfully!\nID: %s\nTitle: %s\nStart: %s\n", ev.ID, ev.Title, ev.DateTime)
	if created.HtmlLink != "" {
		result += fmt.Sprintf("Link: %s\n", created.HtmlLink)
	}
	return mcp.NewToolResultText(result), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	// Parse eventIds - can be string or array
	eventIDs, err := batch.ParseStringOrArray(args["eventIds"], "eventIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sc.RefreshIfNeeded(ctx)

	results := batch.ProcessBatch(ctx, eventIDs, func(ctx context.Context, eventID string) (string, error) {
		if err := sc.Gateway().Delete(ctx, eventID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Event %s deleted successfully", eventID), nil
	})

	text := batch.FormatResults(results)
	if summary := batch.Summarize(results); summary.Failed == summary.Total {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}
