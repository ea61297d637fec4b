package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotAuthenticated is returned when no credentials have been stored yet.
var ErrNotAuthenticated = errors.New("not authenticated: visit /auth to connect a Google account")

// Credentials is the single OAuth credential set held by the process.
// The JSON layout matches oauth2.Token so records written by other tools load unchanged.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// FromToken converts an oauth2 token into Credentials.
func FromToken(t *oauth2.Token) *Credentials {
	if t == nil {
		return nil
	}
	return &Credentials{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

// Token converts the credentials into an oauth2 token.
func (c *Credentials) Token() *oauth2.Token {
	if c == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Clone returns a copy that can be handed out without sharing state.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// HasRefreshToken reports whether a refresh token is held.
func (c *Credentials) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires within d of now.
// Credentials without an expiry never expire.
func (c *Credentials) ExpiresWithin(d time.Duration, now time.Time) bool {
	if c == nil || c.Expiry.IsZero() {
		return false
	}
	return !c.Expiry.After(now.Add(d))
}

// Store persists the credential set. Implementations must make Save atomic
// with respect to Load.
type Store interface {
	// Load returns the stored credentials, or nil and no error when none exist.
	Load(ctx context.Context) (*Credentials, error)

	// Save replaces the stored credentials.
	Save(ctx context.Context, creds *Credentials) error
}

// StoreError wraps a failure of a Store backend.
type StoreError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credentials: %s %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(backend, op string, err error) error {
	return &StoreError{Backend: backend, Operation: op, Err: err}
}

func marshal(c *Credentials) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil credentials")
	}
	return json.Marshal(c)
}

func unmarshal(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &c, nil
}
