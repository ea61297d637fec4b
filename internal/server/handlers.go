package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/teemow/calbridge/internal/calendar"
	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/logging"
)

// CallbackSuccessMessage is the plain text body of a successful /callback.
const CallbackSuccessMessage = "Authentication successful! You can close this window."

// RefreshSuccessMessage is the message field of a successful /refresh-token.
const RefreshSuccessMessage = "Token refreshed successfully"

// maxBodyBytes bounds POST /events payloads.
const maxBodyBytes = 1 << 20

// RefreshResponse is the body of a successful /refresh-token.
type RefreshResponse struct {
	Message string                   `json:"message"`
	Tokens  *credentials.Credentials `json:"tokens"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error interface{} `json:"error"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.sc.Flow().AuthorizationURL(), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if _, err := s.sc.Flow().Exchange(r.Context(), code); err != nil {
		s.writeError(w, r, "authentication failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(CallbackSuccessMessage))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	s.sc.RefreshIfNeeded(r.Context())

	items, err := s.sc.Gateway().ListUpcoming(r.Context(), s.cfg.MaxResults, s.now())
	if err != nil {
		s.writeError(w, r, "failed to fetch events", err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.FromRemoteList(items))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in calendar.EventInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.writeError(w, r, "failed to create event", fmt.Errorf("invalid request body: %w", err))
		return
	}

	s.sc.RefreshIfNeeded(r.Context())

	created, err := s.sc.Gateway().Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "failed to create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.sc.RefreshIfNeeded(r.Context())

	if err := s.sc.Gateway().Delete(r.Context(), id); err != nil {
		s.writeError(w, r, "failed to delete event", err, logging.EventID(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	s.sc.RefreshIfNeeded(r.Context())

	now := s.now()
	items, err := s.sc.Gateway().ListUpcoming(r.Context(), s.cfg.MaxResults, now)
	if err != nil {
		s.writeError(w, r, "failed to export events", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(calendar.EncodeICal(s.cfg.CalendarName, items, now)))
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	creds, err := s.sc.Flow().Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, "failed to refresh token", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Message: RefreshSuccessMessage, Tokens: creds})
}

// writeError logs err and answers 500 with {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, logging.RequestID(RequestIDFromContext(r.Context())), logging.Err(err))
	s.logger.LogAttrs(r.Context(), slog.LevelError, msg, attrs...)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: errorPayload(err)})
}

// errorPayload returns the remote JSON error document when one is available
// and the error message otherwise.
func errorPayload(err error) interface{} {
	var remote *calendar.RemoteError
	if errors.As(err, &remote) && json.Valid([]byte(remote.Body)) {
		return json.RawMessage(remote.Body)
	}
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && len(retrieve.Body) > 0 && json.Valid(retrieve.Body) {
		return json.RawMessage(retrieve.Body)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
