package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/server"
)

// Resource URIs.
const (
	StatusURI   = "calendar://status"
	UpcomingURI = "calendar://events/upcoming"
	ICalURI     = "calendar://events.ics"
)

// RegisterCalendarResources registers the calendar resources.
// maxResults caps the number of events returned by the event resources.
func RegisterCalendarResources(s *mcpserver.MCPServer, sc *server.ServerContext, maxResults int) error {
	if maxResults <= 0 {
		maxResults = calendar.DefaultMaxResults
	}
	now := time.Now

	statusResource := mcp.NewResource(
		StatusURI,
		"Connection Status",
		mcp.WithResourceDescription("Whether a Google account is connected and the credential store is reachable"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleStatus(ctx, request, sc)
	})

	upcomingResource := mcp.NewResource(
		UpcomingURI,
		"Upcoming Events",
		mcp.WithResourceDescription("Upcoming events of the connected calendar, ordered by start time"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(upcomingResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUpcoming(ctx, request, sc, maxResults, now())
	})

	icalResource := mcp.NewResource(
		ICalURI,
		"Upcoming Events (iCalendar)",
		mcp.WithResourceDescription("Upcoming events of the connected calendar as an iCalendar feed"),
		mcp.WithMIMEType("text/calendar"),
	)
	s.AddResource(icalResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleICal(ctx, request, sc, maxResults, now())
	})

	return nil
}

func handleStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	status := map[string]interface{}{
		"authenticated": sc.Credentials().Authenticated(ctx),
		"store":         "ok",
	}
	if err := sc.Credentials().Check(ctx); err != nil {
		status["store"] = "unreachable"
	}
	return jsonContents(request.Params.URI, status)
}

func handleUpcoming(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext, max int, now time.Time) ([]mcp.ResourceContents, error) {
	sc.RefreshIfNeeded(ctx)

	items, err := sc.Gateway().ListUpcoming(ctx, max, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return jsonContents(request.Params.URI, calendar.FromRemoteList(items))
}

func handleICal(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext, max int, now time.Time) ([]mcp.ResourceContents, error) {
	sc.RefreshIfNeeded(ctx)

	items, err := sc.Gateway().ListUpcoming(ctx, max, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/calendar",
			Text:     calendar.EncodeICal(server.DefaultCalendarName, items, now),
		},
	}, nil
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
