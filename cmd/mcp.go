package cmd

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/resources"
	"github.com/teemow/calbridge/internal/server"
	"github.com/teemow/calbridge/internal/tools/calendar_tools"
)

func newMCPCmd(c *Config) *cobra.Command {
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calendar tools over MCP stdio",
		Long: `Start a Model Context Protocol (MCP) server on standard input/output,
exposing the connected calendar as tools for AI assistants.

Safety Mode:
  By default, the server operates in read-only mode and only lists events.
  Use --yolo to enable calendar_create_event and calendar_delete_event.

Resources:
  calendar://status, calendar://events/upcoming, calendar://events.ics

Logs are written to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				sc := a.serverContext(ctx)
				defer func() { _ = sc.Shutdown() }()

				// readOnly is the inverse of yolo
				readOnly := !yolo
				if readOnly {
					a.logger.Info("starting MCP server in read-only mode (use --yolo to enable write operations)")
				} else {
					a.logger.Info("starting MCP server with write operations enabled")
				}

				mcpSrv, err := newMCPServer(sc, readOnly, c.MaxResults)
				if err != nil {
					return err
				}
				return runStdioServer(mcpSrv)
			})
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (create and delete events). Default is read-only mode.")

	return cmd
}

// newMCPServer creates the MCP server with the calendar tools and resources registered.
func newMCPServer(sc *server.ServerContext, readOnly bool, maxResults int) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("calbridge", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register calendar tools: %w", err)
	}
	if err := resources.RegisterCalendarResources(mcpSrv, sc, maxResults); err != nil {
		return nil, fmt.Errorf("failed to register calendar resources: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
