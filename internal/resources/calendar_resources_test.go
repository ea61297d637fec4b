package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/server"
)

type fakeGateway struct {
	items   []*gcal.Event
	err     error
	lastMax int
}

func (g *fakeGateway) ListUpcoming(_ context.Context, max int, _ time.Time) ([]*gcal.Event, error) {
	g.lastMax = max
	return g.items, g.err
}

func (g *fakeGateway) Create(context.Context, calendar.EventInput) (*gcal.Event, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) Delete(context.Context, string) error {
	return errors.New("not used")
}

type fakeFlow struct{}

func (fakeFlow) AuthorizationURL() string { return "" }
func (fakeFlow) Exchange(context.Context, string) (*credentials.Credentials, error) {
	return nil, errors.New("not used")
}
func (fakeFlow) Refresh(context.Context) (*credentials.Credentials, error) {
	return nil, errors.New("not used")
}
func (fakeFlow) RefreshIfExpiring(context.Context, time.Duration) (*credentials.Credentials, bool, error) {
	return nil, false, nil
}

type fakeState struct {
	authenticated bool
	checkErr      error
}

func (s fakeState) Authenticated(context.Context) bool { return s.authenticated }
func (s fakeState) Check(context.Context) error        { return s.checkErr }

func newServerContext(t *testing.T, gw *fakeGateway, state fakeState) *server.ServerContext {
	t.Helper()
	sc := server.NewServerContext(context.Background(), fakeFlow{}, gw, state)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func textOf(t *testing.T, contents []mcp.ResourceContents) *mcp.TextResourceContents {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	return text
}

func TestRegisterCalendarResources(t *testing.T) {
	sc := newServerContext(t, &fakeGateway{}, fakeState{})
	mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0",
		mcpserver.WithResourceCapabilities(false, false),
	)
	assert.NoError(t, RegisterCalendarResources(mcpSrv, sc, 0))
}

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name  string
		state fakeState
		want  string
	}{
		{
			name:  "connected",
			state: fakeState{authenticated: true},
			want:  `{"authenticated":true,"store":"ok"}`,
		},
		{
			name:  "store unreachable",
			state: fakeState{checkErr: errors.New("dial tcp: connection refused")},
			want:  `{"authenticated":false,"store":"unreachable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newServerContext(t, &fakeGateway{}, tt.state)

			contents, err := handleStatus(context.Background(), readRequest(StatusURI), sc)
			require.NoError(t, err)

			text := textOf(t, contents)
			assert.Equal(t, StatusURI, text.URI)
			assert.JSONEq(t, tt.want, text.Text)
		})
	}
}

func TestHandleUpcoming(t *testing.T) {
	gw := &fakeGateway{items: []*gcal.Event{
		{Id: "e1", Summary: "Standup meeting", Start: &gcal.EventDateTime{DateTime: "2025-01-15T09:00:00Z"}},
		{Id: "e2", Start: &gcal.EventDateTime{Date: "2025-01-16"}},
	}}
	sc := newServerContext(t, gw, fakeState{authenticated: true})

	contents, err := handleUpcoming(context.Background(), readRequest(UpcomingURI), sc, 5, time.Now())
	require.NoError(t, err)

	var events []calendar.Event
	require.NoError(t, json.Unmarshal([]byte(textOf(t, contents).Text), &events))
	assert.Equal(t, []calendar.Event{
		{ID: "e1", Title: "Standup meeting", DateTime: "2025-01-15T09:00:00Z"},
		{ID: "e2", Title: "No Title", DateTime: "2025-01-16"},
	}, events)
	assert.Equal(t, 5, gw.lastMax)
}

func TestHandleUpcomingError(t *testing.T) {
	sc := newServerContext(t, &fakeGateway{err: credentials.ErrNotAuthenticated}, fakeState{})

	_, err := handleUpcoming(context.Background(), readRequest(UpcomingURI), sc, 5, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, credentials.ErrNotAuthenticated)
}

func TestHandleICal(t *testing.T) {
	gw := &fakeGateway{items: []*gcal.Event{
		{Id: "e1", Summary: "Standup meeting", Start: &gcal.EventDateTime{DateTime: "2025-01-15T09:00:00Z"}},
	}}
	sc := newServerContext(t, gw, fakeState{authenticated: true})

	contents, err := handleICal(context.Background(), readRequest(ICalURI), sc, 5, time.Now())
	require.NoError(t, err)

	text := textOf(t, contents)
	assert.Equal(t, "text/calendar", text.MIMEType)
	assert.True(t, strings.HasPrefix(text.Text, "BEGIN:VCALENDAR"))
	assert.Contains(t, text.Text, "UID:e1@calbridge")
}
