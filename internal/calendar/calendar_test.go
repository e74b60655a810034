package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testEvent() domain.Event {
	start := time.Date(2024, 1, 19, 11, 0, 0, 0, time.UTC)
	id := uuid.New()
	return domain.Event{
		ID:     id,
		UserID: 42,
		Title:  "презентация для руководства",
		Span:   domain.Span{Start: start, End: start.Add(2 * time.Hour), Timezone: "Europe/Moscow"},
		State:  domain.EventStateScheduled,
		Reminders: []domain.Reminder{
			{ID: uuid.New(), EventID: id, Offset: 15 * time.Minute, State: domain.ReminderStatePending},
			{ID: uuid.New(), EventID: id, Offset: 90 * time.Minute, State: domain.ReminderStatePending},
			{ID: uuid.New(), EventID: id, Offset: time.Hour, State: domain.ReminderStateCancelled},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func TestBuildICS(t *testing.T) {
	event := testEvent()
	ics := BuildICS(event)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"UID:" + event.ID.String(),
		"DTSTART:20240119T110000Z",
		"DTEND:20240119T130000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT15M",
		"TRIGGER:-PT1H30M",
		"END:VCALENDAR",
	} {
		if !strings.Contains(ics, want) {
			t.Errorf("ICS missing %q:\n%s", want, ics)
		}
	}

	// Cancelled reminders do not become alarms.
	if strings.Contains(ics, "TRIGGER:-PT1H\r") {
		t.Error("cancelled reminder leaked into ICS alarms")
	}
	if !strings.Contains(ics, "презентация") {
		t.Error("ICS missing event summary")
	}
}

func TestFormatTrigger(t *testing.T) {
	tests := []struct {
		offset time.Duration
		want   string
	}{
		{offset: 15 * time.Minute, want: "PT15M"},
		{offset: time.Hour, want: "PT1H"},
		{offset: 90 * time.Minute, want: "PT1H30M"},
		{offset: 0, want: "PT0M"},
	}
	for _, tt := range tests {
		if got := formatTrigger(tt.offset); got != tt.want {
			t.Errorf("formatTrigger(%s) = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestPutEvent(t *testing.T) {
	var gotPath, gotMethod, gotContentType string
	var gotBody []byte
	var gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:  server.URL + "/calendars/anna/default/",
		Username: "anna",
		Password: "pass",
	})

	event := testEvent()
	ref, err := client.PutEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	wantPath := "/calendars/anna/default/" + event.ID.String() + ".ics"
	if gotPath != wantPath {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	if !strings.HasPrefix(gotContentType, "text/calendar") {
		t.Errorf("content type = %q, want text/calendar", gotContentType)
	}
	if gotUser != "anna" || gotPass != "pass" {
		t.Error("basic auth credentials not sent")
	}
	if !strings.Contains(string(gotBody), "BEGIN:VEVENT") {
		t.Error("body is not an ICS object")
	}
	if ref.ID != event.ID.String() {
		t.Errorf("ref.ID = %s, want event id", ref.ID)
	}
	if !strings.HasSuffix(ref.URL, ".ics") {
		t.Errorf("ref.URL = %s, want .ics object URL", ref.URL)
	}
}

func TestPutEvent_ServerRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.PutEvent(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestDeleteEvent_NotFoundIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	err := client.DeleteEvent(context.Background(), domain.CalendarRef{
		ID:  "abc",
		URL: server.URL + "/abc.ics",
	})
	if err != nil {
		t.Fatalf("DeleteEvent on 404: %v", err)
	}
}
