package calendar

import (
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	calendar "google.golang.org/api/calendar/v3"
)

const icalProductID = "-//teemow//calbridge//EN"

// EncodeICal renders events as an iCalendar (RFC 5545) feed. Events without a
// parseable start are skipped. Each VEVENT carries its derived category.
func EncodeICal(name string, items []*calendar.Event, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icalProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, item := range items {
		if item == nil || item.Start == nil {
			continue
		}
		simple := FromRemote(item)

		ev := cal.AddEvent(icalUID(item.Id))
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(simple.Title)
		if item.Location != "" {
			ev.SetLocation(item.Location)
		}
		ev.SetProperty(ics.ComponentPropertyCategories, strings.ToUpper(string(simple.Category())))

		switch {
		case item.Start.DateTime != "":
			start, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				continue
			}
			ev.SetStartAt(start)
			end := start.Add(EventDuration)
			if item.End != nil && item.End.DateTime != "" {
				if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
					end = t
				}
			}
			ev.SetEndAt(end)
		case item.Start.Date != "":
			day, err := time.Parse(time.DateOnly, item.Start.Date)
			if err != nil {
				continue
			}
			ev.SetAllDayStartAt(day)
			end := day.AddDate(0, 0, 1)
			if item.End != nil && item.End.Date != "" {
				if t, err := time.Parse(time.DateOnly, item.End.Date); err == nil {
					end = t
				}
			}
			ev.SetAllDayEndAt(end)
		}
	}

	return cal.Serialize()
}

func icalUID(id string) string {
	return id + "@calbridge"
}
