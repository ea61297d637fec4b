// Package cmd implements the command-line interface for calbridge.
//
// This package provides the following commands:
//   - serve: Start the HTTP server (default when no subcommand is given)
//   - auth url|exchange|refresh: Connect a Google account and manage its token
//   - events list|add|delete: Work with upcoming calendar events
//   - mcp: Serve the calendar tools over MCP stdio
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// Settings shared by all commands are persistent flags on the root command.
// Each falls back to an environment variable when the flag is not set, and a
// .env file in the working directory is loaded first.
package cmd
