package api

import "time"

// ResolveEventRequest is one utterance to turn into an event. Voice messages
// arrive as multipart/form-data instead, with a "voice" file part.
type ResolveEventRequest struct {
	UserID    int64  `json:"user_id"`
	Utterance string `json:"utterance"`
}

type EditEventRequest struct {
	UserID    int64  `json:"user_id"`
	Utterance string `json:"utterance"`
}

type UpdateSettingsRequest struct {
	UserID           int64    `json:"user_id"`
	Timezone         string   `json:"timezone"`
	DefaultOffsets   []string `json:"default_offsets"`
	RemindersEnabled bool     `json:"reminders_enabled"`
}

type ReminderResponse struct {
	ID            string `json:"id"`
	OffsetSeconds int64  `json:"offset_seconds"`
	FireAt        string `json:"fire_at"`
	State         string `json:"state"`
}

type EventResponse struct {
	ID       string `json:"id"`
	UserID   int64  `json:"user_id"`
	Title    string `json:"title"`
	StartAt  string `json:"start_at"`
	EndAt    string `json:"end_at"`
	Timezone string `json:"timezone"`
	State    string `json:"state"`
	Advisory string `json:"advisory,omitempty"`

	Reminders []ReminderResponse `json:"reminders,omitempty"`
}

// ConfirmationResponse is the synchronous answer to a resolve or edit call.
type ConfirmationResponse struct {
	Event    EventResponse `json:"event"`
	Warnings []string      `json:"warnings,omitempty"`
	Text     string        `json:"text"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}

type SettingsResponse struct {
	UserID           int64    `json:"user_id"`
	Timezone         string   `json:"timezone"`
	DefaultOffsets   []string `json:"default_offsets"`
	RemindersEnabled bool     `json:"reminders_enabled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
