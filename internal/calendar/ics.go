// Package calendar mirrors events into the user's CalDAV calendar.
// Mirroring is best-effort write-through: the event in our store is the
// source of truth, the calendar copy is a convenience.
package calendar

import (
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"

	"napomni/internal/domain"
)

// BuildICS renders the event as a single-VEVENT iCalendar object. The UID
// is the event's ID so updates overwrite the same calendar object.
func BuildICS(event domain.Event) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//napomni//RU")

	uid := event.ID.String()
	vevent := cal.AddEvent(uid)
	vevent.SetCreatedTime(event.CreatedAt)
	vevent.SetDtStampTime(event.UpdatedAt)
	vevent.SetModifiedAt(event.UpdatedAt)
	vevent.SetStartAt(event.Span.Start.UTC())
	vevent.SetEndAt(event.Span.End.UTC())
	vevent.SetSummary(event.Title)
	if event.Advisory != "" {
		vevent.SetDescription(event.Advisory)
	}

	for _, rem := range event.Reminders {
		if rem.State != domain.ReminderStatePending {
			continue
		}
		alarm := vevent.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetTrigger("-" + formatTrigger(rem.Offset))
	}

	return cal.Serialize()
}

// formatTrigger renders an offset as an iCalendar negative duration value,
// e.g. PT15M or PT1H30M.
func formatTrigger(offset time.Duration) string {
	offset = offset.Round(time.Minute)
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)

	s := "PT"
	if h > 0 {
		s += strconv.Itoa(h) + "H"
	}
	if m > 0 || h == 0 {
		s += strconv.Itoa(m) + "M"
	}
	return s
}
