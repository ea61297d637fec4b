// Package calendar talks to the Google Calendar API on behalf of the single
// authorized account and translates between the API's event resource and the
// simplified shape served to clients.
//
// Gateway performs the three remote operations. It reads the current access
// token from a CredentialSource on every call and never refreshes it:
//
//	gw := calendar.NewGateway(calendar.Config{Location: loc}, guard)
//	items, err := gw.ListUpcoming(ctx, 10, time.Now())
//	events := calendar.FromRemoteList(items)
//
// Failures from the API are returned as *RemoteError carrying the remote
// status and body. Deleting a missing event yields *NotFoundError, and
// invalid input yields *ValidationError before any request is made.
package calendar
