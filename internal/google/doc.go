// Package google drives the OAuth2 authorization code flow against Google.
//
// FlowController builds the consent URL, exchanges the returned code for
// tokens and refreshes them. Every successful step is persisted through a
// credentials.Guard before it returns, so the stored record always matches
// what callers observe.
//
// Nothing in this package retries. A rejected exchange surfaces as
// *AuthExchangeError and a rejected refresh as *RefreshError.
package google
