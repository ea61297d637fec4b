package google

import "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the scopes requested on the consent screen.
// Full calendar access is needed to insert and delete events.
var DefaultOAuthScopes = []string{
	calendar.CalendarScope,
}
