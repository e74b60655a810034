// Package intent segments a raw utterance into title, time expression and
// reminder offsets. Extraction is a pure function of its inputs; temporal
// resolution happens downstream.
package intent

import (
	"fmt"
	"strings"
	"time"

	"napomni/internal/temporal"
)

// Field names the utterance segment that could not be extracted.
type Field string

const (
	FieldTitle    Field = "title"
	FieldTime     Field = "time"
	FieldReminder Field = "reminder"
)

// ParseError is a structured extraction failure scoped to one field.
type ParseError struct {
	Field  Field
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot extract %s: %s", e.Field, e.Reason)
}

// remindFlag introduces the reminder-offset list: "--remind 1h,15m".
const remindFlag = "--remind"

// commandMarkers are stripped from the start of an utterance when present.
// Transcribed speech carries no marker, so they are optional.
var commandMarkers = []string{"++event", "/event", "++событие"}

// Intent is the transient output of extraction, discarded once normalized.
type Intent struct {
	Title         string
	TimeExpr      string
	ReminderExprs []string

	Utterance string
	Now       time.Time
	Timezone  string
}

// Extract segments an utterance. The time expression may appear anywhere in
// the utterance; the remainder after excising it and the reminder flag is
// the title.
func Extract(utterance string, now time.Time, timezone string) (Intent, error) {
	text := strings.TrimSpace(utterance)
	for _, marker := range commandMarkers {
		if strings.HasPrefix(text, marker) {
			text = strings.TrimSpace(strings.TrimPrefix(text, marker))
			break
		}
	}

	tokens := strings.Fields(text)

	tokens, reminders, err := extractReminders(tokens)
	if err != nil {
		return Intent{}, err
	}

	lower := make([]string, len(tokens))
	for i, tok := range tokens {
		lower[i] = strings.ToLower(tok)
	}

	start, end := temporal.ExtractRange(lower)
	if start < 0 {
		return Intent{}, &ParseError{Field: FieldTime, Reason: "no date or time expression found"}
	}

	title := make([]string, 0, len(tokens)-(end-start))
	title = append(title, tokens[:start]...)
	title = append(title, tokens[end:]...)

	return Intent{
		Title:         strings.Join(title, " "),
		TimeExpr:      strings.Join(lower[start:end], " "),
		ReminderExprs: reminders,
		Utterance:     utterance,
		Now:           now,
		Timezone:      timezone,
	}, nil
}

// extractReminders removes the --remind flag and its comma-separated value
// from the token list. A flag without a usable value is a reminder-field
// parse error; an absent flag yields a nil list (defaults apply downstream).
func extractReminders(tokens []string) (rest []string, reminders []string, err error) {
	for i, tok := range tokens {
		var value string
		switch {
		case tok == remindFlag:
			if i+1 >= len(tokens) {
				return nil, nil, &ParseError{Field: FieldReminder, Reason: "--remind requires a value"}
			}
			value = tokens[i+1]
			rest = append(rest, tokens[:i]...)
			rest = append(rest, tokens[i+2:]...)
		case strings.HasPrefix(tok, remindFlag+"="):
			value = strings.TrimPrefix(tok, remindFlag+"=")
			rest = append(rest, tokens[:i]...)
			rest = append(rest, tokens[i+1:]...)
		default:
			continue
		}

		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				reminders = append(reminders, part)
			}
		}
		if len(reminders) == 0 {
			return nil, nil, &ParseError{Field: FieldReminder, Reason: "--remind value is empty"}
		}
		return rest, reminders, nil
	}
	return tokens, nil, nil
}
