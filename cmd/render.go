package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/calbridge/internal/calendar"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	categoryStyles = map[calendar.Category]lipgloss.Style{
		calendar.CategoryBirthday:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		calendar.CategoryImportant: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		calendar.CategoryMeeting:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		calendar.CategoryOther:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
)

func categoryStyle(c calendar.Category) lipgloss.Style {
	if s, ok := categoryStyles[c]; ok {
		return s
	}
	return categoryStyles[calendar.CategoryOther]
}

// renderEvents renders one block per event, the category tag coloured.
func renderEvents(events []calendar.Event) string {
	if len(events) == 0 {
		return dimStyle.Render("No upcoming events.") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("UPCOMING EVENTS (%d)", len(events))))
	b.WriteString("\n\n")

	for _, ev := range events {
		writeEvent(&b, ev)
	}
	return b.String()
}

func writeEvent(b *strings.Builder, ev calendar.Event) {
	cat := ev.Category()
	tag := categoryStyle(cat).Render(fmt.Sprintf("[%s]", cat))

	b.WriteString(tag + " " + titleStyle.Render(ev.Title) + "\n")
	b.WriteString("    " + ev.DateTime + "\n")
	if ev.Location != "" {
		b.WriteString("    " + ev.Location + "\n")
	}
	b.WriteString("    " + dimStyle.Render(ev.ID) + "\n")
}

func renderCreated(ev calendar.Event, link string) string {
	var b strings.Builder
	b.WriteString(successStyle.Render("Event created") + "\n")
	writeEvent(&b, ev)
	if link != "" {
		b.WriteString("    " + dimStyle.Render(link) + "\n")
	}
	return b.String()
}
