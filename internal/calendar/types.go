package calendar

import "strings"

// Defaults for title and start of events the remote API returns without them.
const (
	DefaultTitle    = "No Title"
	DefaultDateTime = "No Date"
)

// Event is the simplified event shape served to clients.
type Event struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	DateTime string `json:"dateTime"`
	Location string `json:"location,omitempty"`
}

// EventInput is the payload accepted when creating an event.
// DateTime is the ISO-8601 string as received.
type EventInput struct {
	Title    string `json:"title"`
	DateTime string `json:"dateTime"`
	Location string `json:"location,omitempty"`
}

// Category is a display grouping derived from the event title.
type Category string

const (
	CategoryBirthday  Category = "birthday"
	CategoryImportant Category = "important"
	CategoryMeeting   Category = "meeting"
	CategoryOther     Category = "other"
)

// CategoryOf classifies a title by case-insensitive keyword match.
// Keywords are checked in order: birthday, important/urgent, meeting.
func CategoryOf(title string) Category {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "birthday"):
		return CategoryBirthday
	case strings.Contains(t, "important"), strings.Contains(t, "urgent"):
		return CategoryImportant
	case strings.Contains(t, "meeting"):
		return CategoryMeeting
	default:
		return CategoryOther
	}
}

// Category returns the derived category of the event.
func (e Event) Category() Category {
	return CategoryOf(e.Title)
}
