package service

import (
	"fmt"
	"strings"
	"time"

	"napomni/internal/domain"
	"napomni/internal/planner"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "понедельник",
	time.Tuesday:   "вторник",
	time.Wednesday: "среда",
	time.Thursday:  "четверг",
	time.Friday:    "пятница",
	time.Saturday:  "суббота",
	time.Sunday:    "воскресенье",
}

var monthNames = map[time.Month]string{
	time.January:   "января",
	time.February:  "февраля",
	time.March:     "марта",
	time.April:     "апреля",
	time.May:       "мая",
	time.June:      "июня",
	time.July:      "июля",
	time.August:    "августа",
	time.September: "сентября",
	time.October:   "октября",
	time.November:  "ноября",
	time.December:  "декабря",
}

// ConfirmationText renders the created or rescheduled event for the user,
// in the event's timezone.
func ConfirmationText(event domain.Event, reminders []domain.Reminder, warnings []planner.Warning) string {
	loc, err := time.LoadLocation(event.Span.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := event.Span.Start.In(loc)
	end := event.Span.End.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "Событие: %s\n", event.Title)
	fmt.Fprintf(&b, "Когда: %s, %d %s, %s-%s (%s)\n",
		weekdayNames[start.Weekday()],
		start.Day(), monthNames[start.Month()],
		start.Format("15:04"), end.Format("15:04"),
		event.Span.Timezone)

	if len(reminders) > 0 {
		parts := make([]string, len(reminders))
		for i, rem := range reminders {
			parts[i] = "за " + offsetText(rem.Offset)
		}
		fmt.Fprintf(&b, "Напоминания: %s\n", strings.Join(parts, ", "))
	} else {
		b.WriteString("Напоминания: нет\n")
	}

	for _, w := range warnings {
		fmt.Fprintf(&b, "Напоминание за %s пропущено: момент уже прошёл\n", offsetText(w.Offset))
	}

	return strings.TrimRight(b.String(), "\n")
}

func offsetText(offset time.Duration) string {
	offset = offset.Round(time.Minute)
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	d := h / 24
	h %= 24

	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%dд", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dч", h))
	}
	if m > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dм", m))
	}
	return strings.Join(parts, " ")
}
