package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/calendar"
)

// Output formats of events list.
const (
	formatText = "text"
	formatJSON = "json"
	formatICS  = "ics"
)

func newEventsCmd(c *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List, add and delete calendar events",
	}

	cmd.AddCommand(newEventsListCmd(c))
	cmd.AddCommand(newEventsAddCmd(c))
	cmd.AddCommand(newEventsDeleteCmd(c))

	return cmd
}

func newEventsListCmd(c *Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List upcoming events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatICS:
			default:
				return fmt.Errorf("unsupported format %q (supported: text, json, ics)", format)
			}

			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				sc := a.serverContext(ctx)
				defer func() { _ = sc.Shutdown() }()
				sc.RefreshIfNeeded(ctx)

				now := time.Now()
				items, err := a.gateway.ListUpcoming(ctx, c.MaxResults, now)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch format {
				case formatJSON:
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(calendar.FromRemoteList(items))
				case formatICS:
					_, err := fmt.Fprint(out, calendar.EncodeICal("calbridge", items, now))
					return err
				default:
					_, err := fmt.Fprint(out, renderEvents(calendar.FromRemoteList(items)))
					return err
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", formatText, "Output format: text, json or ics")

	return cmd
}

func newEventsAddCmd(c *Config) *cobra.Command {
	var in calendar.EventInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a one hour event",
		Example: `  calbridge events add --title "Team meeting" --datetime 2025-01-15T14:00
  calbridge events add --title "Dentist" --datetime 2025-01-16T09:30:00+05:30 --location "Main St"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				sc := a.serverContext(ctx)
				defer func() { _ = sc.Shutdown() }()
				sc.RefreshIfNeeded(ctx)

				created, err := a.gateway.Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderCreated(calendar.FromRemote(created), created.HtmlLink))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "Event title (required)")
	cmd.Flags().StringVar(&in.DateTime, "datetime", "", "Start time, ISO-8601; without offset it is read in the configured time zone (required)")
	cmd.Flags().StringVar(&in.Location, "location", "", "Event location")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("datetime")

	return cmd
}

func newEventsDeleteCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				sc := a.serverContext(ctx)
				defer func() { _ = sc.Shutdown() }()
				sc.RefreshIfNeeded(ctx)

				if err := a.gateway.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %s\n", args[0])
				return nil
			})
		},
	}
}
