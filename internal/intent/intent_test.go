package intent

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		utterance     string
		wantTitle     string
		wantTimeExpr  string
		wantReminders []string
	}{
		{
			name:          "command with range and reminder flag",
			utterance:     "++event пятница 14:00-16:00 презентация клиенту --remind 1h,15m",
			wantTitle:     "презентация клиенту",
			wantTimeExpr:  "пятница 14:00-16:00",
			wantReminders: []string{"1h", "15m"},
		},
		{
			name:         "transcript without marker",
			utterance:    "завтра в 11 созвон с командой",
			wantTitle:    "созвон с командой",
			wantTimeExpr: "завтра в 11",
		},
		{
			name:         "time expression embedded in title",
			utterance:    "обед 13:00 с Иваном",
			wantTitle:    "обед с Иваном",
			wantTimeExpr: "13:00",
		},
		{
			name:          "remind flag with equals sign",
			utterance:     "/event стендап через 2 часа --remind=30m",
			wantTitle:     "стендап",
			wantTimeExpr:  "через 2 часа",
			wantReminders: []string{"30m"},
		},
		{
			name:         "title keeps original case",
			utterance:    "Встреча с Анной завтра в 11",
			wantTitle:    "Встреча с Анной",
			wantTimeExpr: "завтра в 11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.utterance, testNow, "Europe/Moscow")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.TimeExpr != tt.wantTimeExpr {
				t.Errorf("time expr = %q, want %q", got.TimeExpr, tt.wantTimeExpr)
			}
			if !reflect.DeepEqual(got.ReminderExprs, tt.wantReminders) {
				t.Errorf("reminders = %v, want %v", got.ReminderExprs, tt.wantReminders)
			}
			if !got.Now.Equal(testNow) {
				t.Errorf("now = %s, want %s", got.Now, testNow)
			}
		})
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		wantField Field
	}{
		{
			name:      "no temporal tokens",
			utterance: "событие когда-то",
			wantField: FieldTime,
		},
		{
			name:      "remind flag without value",
			utterance: "встреча завтра --remind",
			wantField: FieldReminder,
		},
		{
			name:      "remind flag with empty value",
			utterance: "встреча завтра --remind=,",
			wantField: FieldReminder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.utterance, testNow, "UTC")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Extract = %v, want *ParseError", err)
			}
			if parseErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", parseErr.Field, tt.wantField)
			}
		})
	}
}

// Extraction must be a pure function: same inputs, same outputs.
func TestExtract_Pure(t *testing.T) {
	const utterance = "++event пятница 14:00 планёрка --remind 15m"

	first, err := Extract(utterance, testNow, "Europe/Moscow")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := Extract(utterance, testNow, "Europe/Moscow")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not deterministic: %+v vs %+v", first, second)
	}
}
