package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for the MCP tools served by "calbridge mcp".
The tool definitions are read from the registered tools, so the output always
matches the implementation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := generateDocs()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// generateDocs registers the tools in both modes without any backend and
// renders them as markdown. Tools missing in read-only mode are marked as
// write tools.
func generateDocs() (string, error) {
	sc := server.NewServerContext(context.Background(), nil, nil, nil)
	defer func() { _ = sc.Shutdown() }()

	all, err := listTools(sc, false)
	if err != nil {
		return "", err
	}
	readOnly, err := listTools(sc, true)
	if err != nil {
		return "", err
	}

	safe := make(map[string]bool, len(readOnly))
	for _, t := range readOnly {
		safe[t.Name] = true
	}
	return generateToolsMarkdown(all, safe), nil
}

func listTools(sc *server.ServerContext, readOnly bool) ([]mcp.Tool, error) {
	mcpSrv, err := newMCPServer(sc, readOnly, 0)
	if err != nil {
		return nil, err
	}
	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, st := range serverTools {
		tools = append(tools, st.Tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

func generateToolsMarkdown(tools []mcp.Tool, readOnlyTools map[string]bool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running `calbridge mcp`.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	sb.WriteString("## Read-Only Mode\n\n")
	sb.WriteString("The server starts in read-only mode. Tools marked *write* are only registered with `--yolo`.\n\n")

	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := toolCategory(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("## %s\n\n", category))
		for _, tool := range byCategory[category] {
			sb.WriteString(generateToolMarkdown(tool, !readOnlyTools[tool.Name]))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func toolCategory(name string) string {
	if strings.HasPrefix(name, "calendar_auth") || strings.HasPrefix(name, "calendar_exchange") {
		return "Authorization"
	}
	return "Events"
}

func generateToolMarkdown(tool mcp.Tool, write bool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))
	if write {
		sb.WriteString("*write*\n\n")
	}
	if tool.Description != "" {
		sb.WriteString(tool.Description + "\n\n")
	}

	if len(tool.InputSchema.Properties) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]interface{})
		if !ok {
			continue
		}

		required := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "required"
		}

		propType, _ := prop["type"].(string)
		if propType == "" {
			propType = "any"
		}

		sb.WriteString(fmt.Sprintf("- `%s` (%s, %s)", name, propType, required))
		if desc, ok := prop["description"].(string); ok {
			sb.WriteString(": " + desc)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
