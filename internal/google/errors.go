package google

import (
	"errors"
	"fmt"
)

// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
// The stored credentials are left untouched.
var ErrNoRefreshToken = errors.New("no refresh token stored: re-authorize via /auth")

// AuthExchangeError reports a failed authorization code exchange.
type AuthExchangeError struct {
	Err error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// RefreshError reports that the token endpoint rejected a refresh.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
