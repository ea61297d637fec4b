package calendar

import (
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// EventDuration is the length of events created through Create.
const EventDuration = time.Hour

// Layouts accepted for EventInput.DateTime besides RFC 3339. They carry no
// offset and are read in the configured zone, as an HTML datetime-local
// input sends them.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FromRemote reduces a Calendar API event to the client-facing shape.
// A nil event yields the defaults.
func FromRemote(ev *calendar.Event) Event {
	out := Event{Title: DefaultTitle, DateTime: DefaultDateTime}
	if ev == nil {
		return out
	}

	out.ID = ev.Id
	out.Location = ev.Location
	if ev.Summary != "" {
		out.Title = ev.Summary
	}
	if ev.Start != nil {
		switch {
		case ev.Start.DateTime != "":
			out.DateTime = ev.Start.DateTime
		case ev.Start.Date != "":
			out.DateTime = ev.Start.Date
		}
	}
	return out
}

// FromRemoteList applies FromRemote to every item, preserving order.
func FromRemoteList(items []*calendar.Event) []Event {
	out := make([]Event, 0, len(items))
	for _, item := range items {
		out = append(out, FromRemote(item))
	}
	return out
}

// ToRemote builds the insert payload for in: a one hour event starting at
// the parsed DateTime in loc. Location is only set when non-empty.
func ToRemote(in EventInput, loc *time.Location) (*calendar.Event, error) {
	if loc == nil {
		loc = time.UTC
	}

	if strings.TrimSpace(in.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if strings.TrimSpace(in.DateTime) == "" {
		return nil, &ValidationError{Field: "dateTime", Message: "is required"}
	}
	start, err := ParseDateTime(in.DateTime, loc)
	if err != nil {
		return nil, &ValidationError{Field: "dateTime", Message: "must be an ISO-8601 date-time, got " + in.DateTime}
	}
	end := start.Add(EventDuration)

	ev := &calendar.Event{
		Summary: in.Title,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: loc.String(),
		},
	}
	if strings.TrimSpace(in.Location) != "" {
		ev.Location = in.Location
	}
	return ev, nil
}

// ParseDateTime parses an RFC 3339 timestamp (fractional seconds allowed) or
// one of the offset-less local layouts, returning the instant in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}

	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
