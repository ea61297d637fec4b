package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/calbridge/internal/credentials"
)

// fakeTokenEndpoint emulates Google's token endpoint.
type fakeTokenEndpoint struct {
	*httptest.Server
	hits atomic.Int32

	// stall makes the endpoint hold each request until the client gives up.
	stall atomic.Bool

	// handle returns the status code and JSON body for a parsed form.
	handle func(form url.Values) (int, map[string]interface{})
}

func newFakeTokenEndpoint(t *testing.T) *fakeTokenEndpoint {
	t.Helper()
	f := &fakeTokenEndpoint{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.stall.Load() {
			select {
			case <-r.Context().Done():
			case <-time.After(10 * time.Second):
			}
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := f.handle(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTokenEndpoint) config() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:5000/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.URL + "/auth",
			TokenURL:  f.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// countingStore wraps a FileStore and counts saves.
type countingStore struct {
	*credentials.FileStore
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, c *credentials.Credentials) error {
	s.saves.Add(1)
	return s.FileStore.Save(ctx, c)
}

func newTestController(t *testing.T, endpoint *fakeTokenEndpoint, seed *credentials.Credentials, opts ...Option) (*FlowController, *countingStore) {
	t.Helper()
	store := &countingStore{FileStore: credentials.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))}
	if seed != nil {
		require.NoError(t, store.FileStore.Save(context.Background(), seed))
	}
	opts = append([]Option{
		WithHTTPClient(endpoint.Client()),
		WithBackendName(credentials.BackendFile),
	}, opts...)
	fc := NewFlowController(endpoint.config(), credentials.NewGuard(store), opts...)
	return fc, store
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"complete", Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/callback"}, ""},
		{"missing id", Config{ClientSecret: "secret", RedirectURL: "http://x"}, "CLIENT_ID"},
		{"missing all", Config{}, "CLIENT_ID, CLIENT_SECRET, REDIRECT_URI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	fc, store := newTestController(t, endpoint, nil)

	raw := fc.AuthorizationURL()
	assert.Equal(t, raw, fc.AuthorizationURL(), "URL must be deterministic")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "https://www.googleapis.com/auth/calendar", q.Get("scope"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:5000/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))

	assert.Zero(t, endpoint.hits.Load())
	assert.Zero(t, store.saves.Load())
}

func TestAuthorizationURL_DefaultsToGoogle(t *testing.T) {
	fc := NewFlowController(Config{ClientID: "id", ClientSecret: "s", RedirectURL: "http://x"}, credentials.NewGuard(nil))
	assert.Contains(t, fc.AuthorizationURL(), "https://accounts.google.com/")
}

func TestExchange_PersistsExactRecord(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.handle = func(form url.Values) (int, map[string]interface{}) {
		if form.Get("code") != "abc123" || form.Get("grant_type") != "authorization_code" {
			return http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"}
		}
		return http.StatusOK, map[string]interface{}{
			"access_token":  "ya29.A",
			"refresh_token": "1//R",
			"token_type":    "Bearer",
			"expires_in":    3600,
		}
	}
	fc, store := newTestController(t, endpoint, nil)
	ctx := context.Background()

	before := time.Now()
	creds, err := fc.Exchange(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "ya29.A", creds.AccessToken)
	assert.Equal(t, "1//R", creds.RefreshToken)
	assert.Equal(t, "Bearer", creds.TokenType)
	assert.WithinDuration(t, before.Add(time.Hour), creds.Expiry, time.Minute)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, stored.AccessToken)
	assert.Equal(t, creds.RefreshToken, stored.RefreshToken)
	assert.True(t, creds.Expiry.Equal(stored.Expiry))
	assert.EqualValues(t, 1, endpoint.hits.Load())
}

func TestExchange_EmptyCode(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	fc, store := newTestController(t, endpoint, nil)

	_, err := fc.Exchange(context.Background(), "  ")
	var exErr *AuthExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Zero(t, endpoint.hits.Load())
	assert.Zero(t, store.saves.Load())
}

func TestExchange_Rejected(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.handle = func(url.Values) (int, map[string]interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant", "error_description": "Bad Request"}
	}
	fc, store := newTestController(t, endpoint, nil)

	_, err := fc.Exchange(context.Background(), "used-code")
	var exErr *AuthExchangeError
	require.ErrorAs(t, err, &exErr)

	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)

	assert.EqualValues(t, 1, endpoint.hits.Load(), "exchange must not be retried")
	assert.Zero(t, store.saves.Load())
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	seed := &credentials.Credentials{AccessToken: "only-access", TokenType: "Bearer"}
	fc, store := newTestController(t, endpoint, seed)
	ctx := context.Background()

	_, err := fc.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Zero(t, endpoint.hits.Load())
	assert.Zero(t, store.saves.Load())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only-access", stored.AccessToken)
}

func TestRefresh_NoCredentials(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	fc, store := newTestController(t, endpoint, nil)

	_, err := fc.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Zero(t, store.saves.Load())
}

func TestRefresh_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.handle = func(form url.Values) (int, map[string]interface{}) {
		if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "1//R" {
			return http.StatusBadRequest, map[string]interface{}{"error": "invalid_request"}
		}
		return http.StatusOK, map[string]interface{}{
			"access_token": "ya29.B",
			"token_type":   "Bearer",
			"expires_in":   3599,
		}
	}
	seed := &credentials.Credentials{AccessToken: "ya29.A", RefreshToken: "1//R", Expiry: time.Now().Add(-time.Minute)}
	fc, store := newTestController(t, endpoint, seed)
	ctx := context.Background()

	creds, err := fc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.B", creds.AccessToken)
	assert.Equal(t, "1//R", creds.RefreshToken)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.B", stored.AccessToken)
	assert.Equal(t, "1//R", stored.RefreshToken)
	assert.EqualValues(t, 1, store.saves.Load())
}

func TestRefresh_Rejected(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.handle = func(url.Values) (int, map[string]interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant", "error_description": "Token has been expired or revoked."}
	}
	seed := &credentials.Credentials{AccessToken: "ya29.A", RefreshToken: "1//revoked"}
	fc, store := newTestController(t, endpoint, seed)
	ctx := context.Background()

	_, err := fc.Refresh(ctx)
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.EqualValues(t, 1, endpoint.hits.Load(), "refresh must not be retried")
	assert.Zero(t, store.saves.Load())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1//revoked", stored.RefreshToken)
}

func TestRefresh_TimesOut(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.stall.Store(true)
	seed := &credentials.Credentials{AccessToken: "ya29.A", RefreshToken: "1//R"}
	fc, store := newTestController(t, endpoint, seed, WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := fc.Refresh(context.Background())
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, store.saves.Load())

	// The guard lock is released once the call gives up.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cur, err := fc.guard.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.A", cur.AccessToken)
	assert.Equal(t, "1//R", cur.RefreshToken)
}

func TestExchange_TimesOut(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.stall.Store(true)
	fc, store := newTestController(t, endpoint, nil, WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := fc.Exchange(context.Background(), "4/code")
	var exchangeErr *AuthExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, store.saves.Load())
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	fc, _ := newTestController(t, endpoint, nil, WithTimeout(0))
	assert.Equal(t, DefaultTimeout, fc.timeout)

	fc, _ = newTestController(t, endpoint, nil, WithTimeout(time.Second))
	assert.Equal(t, time.Second, fc.timeout)
}

func TestRefreshIfExpiring(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	endpoint.handle = func(url.Values) (int, map[string]interface{}) {
		return http.StatusOK, map[string]interface{}{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}
	}
	ctx := context.Background()

	t.Run("not expiring", func(t *testing.T) {
		seed := &credentials.Credentials{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
		fc, store := newTestController(t, endpoint, seed)
		hits := endpoint.hits.Load()

		creds, refreshed, err := fc.RefreshIfExpiring(ctx, 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, "a", creds.AccessToken)
		assert.Equal(t, hits, endpoint.hits.Load())
		assert.Zero(t, store.saves.Load())
	})

	t.Run("expiring", func(t *testing.T) {
		seed := &credentials.Credentials{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Minute)}
		fc, _ := newTestController(t, endpoint, seed)

		creds, refreshed, err := fc.RefreshIfExpiring(ctx, 5*time.Minute)
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.Equal(t, "fresh", creds.AccessToken)
		assert.Equal(t, "r", creds.RefreshToken)
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		seed := &credentials.Credentials{AccessToken: "a", Expiry: time.Now().Add(-time.Minute)}
		fc, _ := newTestController(t, endpoint, seed)

		creds, refreshed, err := fc.RefreshIfExpiring(ctx, 5*time.Minute)
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, "a", creds.AccessToken)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		fc, _ := newTestController(t, endpoint, nil)

		_, _, err := fc.RefreshIfExpiring(ctx, 5*time.Minute)
		assert.ErrorIs(t, err, credentials.ErrNotAuthenticated)
	})
}

func TestWithSource(t *testing.T) {
	assert.Equal(t, "http", sourceFrom(context.Background()))
	assert.Equal(t, "scheduler", sourceFrom(WithSource(context.Background(), "scheduler")))
}
