package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calbridge/internal/google"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/server"
	"github.com/teemow/calbridge/internal/tools/common"
)

// RegisterAuthTools registers the OAuth tools with the MCP server
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	authURLTool := mcp.NewTool("calendar_auth_url",
		mcp.WithDescription("Get the URL to connect a Google account. After consenting, pass the returned code to calendar_exchange_auth_code."),
	)

	s.AddTool(authURLTool, common.InstrumentedToolHandler("calendar_auth_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthURL(ctx, request, sc)
		}))

	exchangeTool := mcp.NewTool("calendar_exchange_auth_code",
		mcp.WithDescription("Complete the Google authorization with the code from the consent redirect"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The authorization code"),
		),
	)

	s.AddTool(exchangeTool, common.InstrumentedToolHandler("calendar_exchange_auth_code", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExchangeAuthCode(ctx, request, sc)
		}))

	return nil
}

func handleAuthURL(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	url := sc.Flow().AuthorizationURL()
	return mcp.NewToolResultText(fmt.Sprintf(`To connect a Google account:

1. Visit this URL in your browser:
   %s

2. Sign in and grant calendar access
3. Copy the "code" parameter from the redirect URL
4. Call calendar_exchange_auth_code with that code

Note: You only need to authorize once. The token is refreshed automatically.`, url)), nil
}

func handleExchangeAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	code := getStringArg(request.GetArguments(), "code")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}

	ctx = google.WithSource(ctx, instrumentation.SourceMCP)
	creds, err := sc.Flow().Exchange(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to exchange authorization code: %v", err)), nil
	}

	result := "Google account connected successfully."
	if !creds.HasRefreshToken() {
		result += "\nWarning: no refresh token was issued; re-authorize with prompt=consent once the access token expires."
	}
	return mcp.NewToolResultText(result), nil
}
