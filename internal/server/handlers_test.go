package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/google"
)

const testAuthURL = "https://accounts.example.com/o/oauth2/auth?access_type=offline&state=calbridge"

type fakeFlow struct {
	mu            sync.Mutex
	exchangeCodes []string
	exchangeErr   error
	refreshErr    error
	refreshed     *credentials.Credentials
	refreshCalls  int
	expiringCalls int
	expiringErr   error
}

func (f *fakeFlow) AuthorizationURL() string { return testAuthURL }

func (f *fakeFlow) Exchange(_ context.Context, code string) (*credentials.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCodes = append(f.exchangeCodes, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &credentials.Credentials{AccessToken: "at-" + code}, nil
}

func (f *fakeFlow) Refresh(context.Context) (*credentials.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeFlow) RefreshIfExpiring(context.Context, time.Duration) (*credentials.Credentials, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiringCalls++
	return nil, false, f.expiringErr
}

type fakeGateway struct {
	mu        sync.Mutex
	items     []*gcal.Event
	listErr   error
	created   []calendar.EventInput
	createErr error
	deleted   []string
	deleteErr error
	lastMax   int
}

func (g *fakeGateway) ListUpcoming(_ context.Context, max int, _ time.Time) ([]*gcal.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastMax = max
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.items, nil
}

func (g *fakeGateway) Create(_ context.Context, in calendar.EventInput) (*gcal.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if _, err := calendar.ToRemote(in, time.UTC); err != nil {
		return nil, err
	}
	g.created = append(g.created, in)
	return &gcal.Event{Id: "new1", Summary: in.Title, Status: "confirmed", HtmlLink: "https://calendar.example.com/new1"}, nil
}

func (g *fakeGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, id)
	return nil
}

type fakeState struct {
	authenticated bool
	checkErr      error
}

func (s fakeState) Authenticated(context.Context) bool { return s.authenticated }
func (s fakeState) Check(context.Context) error        { return s.checkErr }

func newTestServer(t *testing.T, flow *fakeFlow, gw *fakeGateway, state CredentialState) *Server {
	t.Helper()
	sc := NewServerContext(context.Background(), flow, gw, state)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return NewServer(Config{}, sc)
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "error")
	return resp["error"]
}

func TestHandleAuth(t *testing.T) {
	s := newTestServer(t, &fakeFlow{}, &fakeGateway{}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/auth", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testAuthURL, rec.Header().Get("Location"))
}

func TestHandleCallback(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		flow := &fakeFlow{}
		s := newTestServer(t, flow, &fakeGateway{}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/callback?code=abc123", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, CallbackSuccessMessage, rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
		assert.Equal(t, []string{"abc123"}, flow.exchangeCodes)
	})

	t.Run("provider rejection carries token endpoint body", func(t *testing.T) {
		flow := &fakeFlow{exchangeErr: &google.AuthExchangeError{Err: &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: http.StatusBadRequest},
			Body:      []byte(`{"error":"invalid_grant","error_description":"Bad Request"}`),
			ErrorCode: "invalid_grant",
		}}}
		s := newTestServer(t, flow, &fakeGateway{}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/callback?code=bad", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		payload, ok := decodeError(t, rec).(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "invalid_grant", payload["error"])
	})

	t.Run("missing code", func(t *testing.T) {
		flow := &fakeFlow{exchangeErr: &google.AuthExchangeError{Err: errors.New("missing authorization code")}}
		s := newTestServer(t, flow, &fakeGateway{}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/callback", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "authorization code exchange failed: missing authorization code", decodeError(t, rec))
	})
}

func TestHandleListEvents(t *testing.T) {
	t.Run("translates events", func(t *testing.T) {
		gw := &fakeGateway{items: []*gcal.Event{
			{Id: "a", Summary: "Standup", Start: &gcal.EventDateTime{DateTime: "2026-03-01T09:00:00Z"}, Location: "Office"},
			{Id: "b", Start: &gcal.EventDateTime{Date: "2026-03-02"}},
		}}
		flow := &fakeFlow{}
		s := newTestServer(t, flow, gw, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/events", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[
			{"id":"a","title":"Standup","dateTime":"2026-03-01T09:00:00Z","location":"Office"},
			{"id":"b","title":"No Title","dateTime":"2026-03-02"}
		]`, rec.Body.String())
		assert.Equal(t, calendar.DefaultMaxResults, gw.lastMax)
		assert.Equal(t, 1, flow.expiringCalls)
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		s := newTestServer(t, &fakeFlow{}, &fakeGateway{items: []*gcal.Event{}}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/events", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("not authenticated", func(t *testing.T) {
		flow := &fakeFlow{expiringErr: credentials.ErrNotAuthenticated}
		s := newTestServer(t, flow, &fakeGateway{listErr: credentials.ErrNotAuthenticated}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/events", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, credentials.ErrNotAuthenticated.Error(), decodeError(t, rec))
	})

	t.Run("remote JSON error body is passed through", func(t *testing.T) {
		gw := &fakeGateway{listErr: &calendar.RemoteError{
			Status: http.StatusUnauthorized,
			Body:   `{"error":{"code":401,"message":"Invalid Credentials"}}`,
		}}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/events", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		payload, ok := decodeError(t, rec).(map[string]interface{})
		require.True(t, ok)
		inner, ok := payload["error"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Invalid Credentials", inner["message"])
	})

	t.Run("remote timeout uses message", func(t *testing.T) {
		gw := &fakeGateway{listErr: &calendar.RemoteError{Status: http.StatusGatewayTimeout, Body: "context deadline exceeded"}}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/events", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decodeError(t, rec), "504")
	})
}

func TestHandleCreateEvent(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		gw := &fakeGateway{}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		body := `{"title":"Team meeting","dateTime":"2026-03-01T10:00:00Z","location":"Room 1"}`
		rec := do(t, s.Handler(), http.MethodPost, "/events", strings.NewReader(body))

		require.Equal(t, http.StatusCreated, rec.Code)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
		assert.Equal(t, "new1", ev["id"])
		assert.Equal(t, "Team meeting", ev["summary"])
		assert.Equal(t, "confirmed", ev["status"])

		require.Len(t, gw.created, 1)
		assert.Equal(t, calendar.EventInput{Title: "Team meeting", DateTime: "2026-03-01T10:00:00Z", Location: "Room 1"}, gw.created[0])
	})

	t.Run("validation failure", func(t *testing.T) {
		gw := &fakeGateway{}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodPost, "/events", strings.NewReader(`{"dateTime":"2026-03-01T10:00:00Z"}`))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "invalid title: is required", decodeError(t, rec))
		assert.Empty(t, gw.created)
	})

	t.Run("malformed body", func(t *testing.T) {
		gw := &fakeGateway{}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodPost, "/events", strings.NewReader(`{"title":`))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decodeError(t, rec), "invalid request body")
		assert.Empty(t, gw.created)
	})
}

func TestHandleDeleteEvent(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		gw := &fakeGateway{}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodDelete, "/events/evt42", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, []string{"evt42"}, gw.deleted)
	})

	t.Run("not found is a 500", func(t *testing.T) {
		gw := &fakeGateway{deleteErr: &calendar.NotFoundError{
			RemoteError: calendar.RemoteError{Status: http.StatusGone, Body: `{"error":{"code":410,"message":"Resource has been deleted"}}`},
			ID:          "evt42",
		}}
		s := newTestServer(t, &fakeFlow{}, gw, nil)

		rec := do(t, s.Handler(), http.MethodDelete, "/events/evt42", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		payload, ok := decodeError(t, rec).(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, payload, "error")
	})
}

func TestHandleRefreshToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		expiry := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
		flow := &fakeFlow{refreshed: &credentials.Credentials{AccessToken: "new-at", RefreshToken: "rt", TokenType: "Bearer", Expiry: expiry}}
		s := newTestServer(t, flow, &fakeGateway{}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/refresh-token", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RefreshResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, RefreshSuccessMessage, resp.Message)
		require.NotNil(t, resp.Tokens)
		assert.Equal(t, "new-at", resp.Tokens.AccessToken)
		assert.Equal(t, "rt", resp.Tokens.RefreshToken)
		assert.True(t, expiry.Equal(resp.Tokens.Expiry))
	})

	t.Run("no refresh token", func(t *testing.T) {
		flow := &fakeFlow{refreshErr: google.ErrNoRefreshToken}
		s := newTestServer(t, flow, &fakeGateway{}, nil)

		rec := do(t, s.Handler(), http.MethodGet, "/refresh-token", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, google.ErrNoRefreshToken.Error(), decodeError(t, rec))
	})
}

func TestHandleExportEvents(t *testing.T) {
	gw := &fakeGateway{items: []*gcal.Event{
		{Id: "a", Summary: "Urgent call", Start: &gcal.EventDateTime{DateTime: "2026-03-01T09:00:00Z"}},
	}}
	s := newTestServer(t, &fakeFlow{}, gw, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/events.ics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Urgent call")
	assert.Contains(t, body, "CATEGORIES:IMPORTANT")
	assert.Contains(t, body, "X-WR-CALNAME:"+DefaultCalendarName)
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t, &fakeFlow{}, &fakeGateway{items: []*gcal.Event{}}, nil)
	h := s.Handler()

	t.Run("cors headers", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/events", nil)
		assert.Equal(t, DefaultCORSOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, corsAllowHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/events", nil)
		req.Header.Set("Origin", DefaultCORSOrigin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, DefaultCORSOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request id generated", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/events", nil)
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	})

	t.Run("request id propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCustomCORSOrigin(t *testing.T) {
	sc := NewServerContext(context.Background(), &fakeFlow{}, &fakeGateway{}, nil)
	s := NewServer(Config{CORSOrigin: "https://app.example.com", MaxResults: 3}, sc)

	rec := do(t, s.Handler(), http.MethodGet, "/auth", nil)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 3, s.cfg.MaxResults)
}

func TestRefreshIfNeeded(t *testing.T) {
	t.Run("disabled window", func(t *testing.T) {
		flow := &fakeFlow{}
		sc := NewServerContext(context.Background(), flow, &fakeGateway{}, nil, WithRefreshWindow(0))
		sc.RefreshIfNeeded(context.Background())
		assert.Zero(t, flow.expiringCalls)
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		flow := &fakeFlow{expiringErr: &google.RefreshError{Err: errors.New("boom")}}
		var buf bytes.Buffer
		sc := NewServerContext(context.Background(), flow, &fakeGateway{}, nil,
			WithLogger(slogTextLogger(&buf)))
		sc.RefreshIfNeeded(context.Background())
		assert.Equal(t, 1, flow.expiringCalls)
		assert.Contains(t, buf.String(), "proactive token refresh failed")
	})
}
