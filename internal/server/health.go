package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnreachable  = "unreachable"
)

// storeCheckTimeout bounds the credential store probe in /readyz.
const storeCheckTimeout = 2 * time.Second

// HealthChecker serves the liveness and readiness probes.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker returns a checker that reports ready until SetReady(false).
// sc may be nil, in which case only the ready flag is probed.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness flag; Server.Shutdown clears it first.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Authenticated bool   `json:"authenticated"`
}

// RegisterHealthEndpoints mounts the three probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}

// LivenessHandler always answers 200 while the process can serve HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers 503 unless every probe passes: the ready flag,
// no shutdown in progress and a reachable credential store.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"ready":    h.readyStatus(),
			"shutdown": h.shutdownStatus(),
		}
		if state := h.credentials(); state != nil {
			checks["credential_store"] = probeStore(r.Context(), state)
		}

		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		status := http.StatusOK
		for _, v := range checks {
			if v != healthStatusOK {
				resp.Status = healthStatusNotReady
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, status, resp)
	})
}

// DetailedHealthHandler adds uptime and whether a token is stored.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		}
		if state := h.credentials(); state != nil {
			resp.Authenticated = state.Authenticated(r.Context())
		}

		status := http.StatusOK
		if s := h.readyStatus(); s != healthStatusOK {
			resp.Status, status = s, http.StatusServiceUnavailable
		} else if s := h.shutdownStatus(); s != healthStatusOK {
			resp.Status, status = s, http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})
}

func (h *HealthChecker) readyStatus() string {
	if h.ready.Load() {
		return healthStatusOK
	}
	return healthStatusNotReady
}

func (h *HealthChecker) shutdownStatus() string {
	if h.sc != nil && h.sc.IsShutdown() {
		return healthStatusShuttingDown
	}
	return healthStatusOK
}

func (h *HealthChecker) credentials() CredentialState {
	if h.sc == nil {
		return nil
	}
	return h.sc.Credentials()
}

func probeStore(ctx context.Context, state CredentialState) string {
	ctx, cancel := context.WithTimeout(ctx, storeCheckTimeout)
	defer cancel()
	if err := state.Check(ctx); err != nil {
		return healthStatusUnreachable
	}
	return healthStatusOK
}
