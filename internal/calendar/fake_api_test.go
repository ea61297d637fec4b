package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/credentials"
)

// fakeCalendarAPI is an in-memory stand-in for the Calendar v3 events API.
type fakeCalendarAPI struct {
	*httptest.Server

	mu      sync.Mutex
	events  map[string]*calendar.Event
	deleted map[string]bool
	nextID  int

	calls     atomic.Int32
	lastAuth  atomic.Value
	lastQuery atomic.Value

	// delay blocks every request until the client gives up or it elapses.
	delay atomic.Int64
}

func newFakeCalendarAPI(t *testing.T) *fakeCalendarAPI {
	t.Helper()
	f := &fakeCalendarAPI{
		events:  map[string]*calendar.Event{},
		deleted: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/{calendarId}/events", f.list)
	mux.HandleFunc("POST /calendars/{calendarId}/events", f.insert)
	mux.HandleFunc("DELETE /calendars/{calendarId}/events/{eventId}", f.delete)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		f.lastQuery.Store(r.URL.Query().Encode())
		if d := time.Duration(f.delay.Load()); d > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(d):
			}
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCalendarAPI) endpoint() string {
	return f.URL + "/"
}

// seed stores an event directly, bypassing the API.
func (f *fakeCalendarAPI) seed(ev *calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.Id == "" {
		f.nextID++
		ev.Id = fmt.Sprintf("seed%d", f.nextID)
	}
	f.events[ev.Id] = ev
}

func (f *fakeCalendarAPI) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timeMin, err := time.Parse(time.RFC3339, q.Get("timeMin"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	max := 250
	if v := q.Get("maxResults"); v != "" {
		max, _ = strconv.Atoi(v)
	}

	f.mu.Lock()
	var items []*calendar.Event
	for _, ev := range f.events {
		if start := eventStart(ev); !start.Before(timeMin) {
			items = append(items, ev)
		}
	}
	f.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return eventStart(items[i]).Before(eventStart(items[j]))
	})
	if len(items) > max {
		items = items[:max]
	}
	writeJSON(w, http.StatusOK, &calendar.Events{Kind: "calendar#events", Items: items})
}

func (f *fakeCalendarAPI) insert(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeAPIError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	f.mu.Lock()
	f.nextID++
	ev.Id = fmt.Sprintf("evt%d", f.nextID)
	ev.Status = "confirmed"
	ev.HtmlLink = "https://www.google.com/calendar/event?eid=" + ev.Id
	f.events[ev.Id] = &ev
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, &ev)
}

func (f *fakeCalendarAPI) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("eventId")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted[id] {
		writeAPIError(w, http.StatusGone, "Resource has been deleted")
		return
	}
	if _, ok := f.events[id]; !ok {
		writeAPIError(w, http.StatusNotFound, "Not Found")
		return
	}
	delete(f.events, id)
	f.deleted[id] = true
	w.WriteHeader(http.StatusNoContent)
}

func eventStart(ev *calendar.Event) time.Time {
	if ev.Start == nil {
		return time.Time{}
	}
	if ev.Start.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, ev.Start.DateTime)
		return t
	}
	t, _ := time.Parse(time.DateOnly, ev.Start.Date)
	return t
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}

// staticCreds is a CredentialSource returning fixed credentials.
type staticCreds struct {
	creds *credentials.Credentials
	err   error
}

func (s staticCreds) Current(context.Context) (*credentials.Credentials, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.creds.Clone(), nil
}

func newTestGateway(t *testing.T, api *fakeCalendarAPI, cfg Config) *Gateway {
	t.Helper()
	cfg.Endpoint = api.endpoint()
	src := staticCreds{creds: &credentials.Credentials{AccessToken: "test-access-token", TokenType: "Bearer"}}
	return NewGateway(cfg, src, WithHTTPClient(api.Client()))
}
