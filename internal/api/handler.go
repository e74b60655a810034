package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"napomni/internal/domain"
	"napomni/internal/intent"
	"napomni/internal/normalizer"
	"napomni/internal/planner"
	"napomni/internal/service"
	"napomni/internal/temporal"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Resolver is the service surface the API exposes over HTTP.
type Resolver interface {
	ResolveAndScheduleEvent(ctx context.Context, req service.ResolveRequest) (service.Confirmation, error)
	CancelEvent(ctx context.Context, userID int64, eventID uuid.UUID) error
	EditEvent(ctx context.Context, req service.EditRequest) (service.Confirmation, error)
	ListEvents(ctx context.Context, userID int64, limit, offset int) ([]domain.Event, error)
	Settings(ctx context.Context, userID int64) (domain.UserSettings, error)
	UpdateSettings(ctx context.Context, settings domain.UserSettings) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	resolver Resolver
	db       HealthChecker
}

func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/events" && r.Method == http.MethodPost:
		h.resolveEvent(w, r)

	case path == "/events" && r.Method == http.MethodGet:
		h.listEvents(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodPut:
		h.editEvent(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodDelete:
		h.cancelEvent(w, r)

	case path == "/settings" && r.Method == http.MethodGet:
		h.getSettings(w, r)

	case path == "/settings" && r.Method == http.MethodPut:
		h.updateSettings(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (10MB, voice
// messages included).
const maxRequestBodySize = 10 << 20

func (h *Handler) resolveEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req service.ResolveRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		// Voice message: a "voice" file part plus a "user_id" field.
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		file, header, err := r.FormFile("voice")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing voice file")
			return
		}
		defer file.Close()
		req = service.ResolveRequest{
			UserID:        userID,
			Voice:         file,
			VoiceFilename: header.Filename,
		}
	} else {
		var body ResolveEventRequest
		if err := decodeJSON(w, r, &body); err != nil {
			return
		}
		if body.UserID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		if strings.TrimSpace(body.Utterance) == "" {
			writeError(w, http.StatusBadRequest, "utterance is required")
			return
		}
		req = service.ResolveRequest{UserID: body.UserID, Utterance: body.Utterance}
	}

	conf, err := h.resolver.ResolveAndScheduleEvent(r.Context(), req)
	if err != nil {
		writeResolutionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, confirmationResponse(conf))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.resolver.ListEvents(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("api: list events error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := ListEventsResponse{Events: make([]EventResponse, len(events))}
	for i, event := range events {
		resp.Events[i] = eventResponse(event, event.Reminders)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) editEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var body EditEventRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if strings.TrimSpace(body.Utterance) == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}

	conf, err := h.resolver.EditEvent(r.Context(), service.EditRequest{
		UserID:    body.UserID,
		EventID:   eventID,
		Utterance: body.Utterance,
	})
	if err != nil {
		writeResolutionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmationResponse(conf))
}

func (h *Handler) cancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.resolver.CancelEvent(r.Context(), userID, eventID); err != nil {
		writeResolutionError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.resolver.Settings(r.Context(), userID)
	if err != nil {
		log.Printf("api: get settings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse(settings))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var body UpdateSettingsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	offsets := make([]time.Duration, len(body.DefaultOffsets))
	for i, s := range body.DefaultOffsets {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset "+strconv.Quote(s))
			return
		}
		offsets[i] = d
	}

	err := h.resolver.UpdateSettings(r.Context(), domain.UserSettings{
		UserID:           body.UserID,
		Timezone:         body.Timezone,
		DefaultOffsets:   offsets,
		RemindersEnabled: body.RemindersEnabled,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "settings not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeResolutionError maps pipeline errors onto HTTP status codes. Parse
// and validation failures are the caller's problem; everything else is ours.
func writeResolutionError(w http.ResponseWriter, err error) {
	var parseErr *intent.ParseError
	switch {
	case errors.As(err, &parseErr):
		writeError(w, http.StatusUnprocessableEntity, parseErr.Error())
	case errors.Is(err, temporal.ErrUnparsable), errors.Is(err, temporal.ErrAmbiguous):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, normalizer.ErrMissingTitle),
		errors.Is(err, normalizer.ErrEventInPast),
		errors.Is(err, normalizer.ErrEventTooFarFuture),
		errors.Is(err, normalizer.ErrDurationTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, planner.ErrInvalidOffset):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, domain.ErrStateTransitionDenied):
		writeError(w, http.StatusConflict, "event is no longer editable")
	default:
		log.Printf("api: resolution error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func confirmationResponse(conf service.Confirmation) ConfirmationResponse {
	resp := ConfirmationResponse{
		Event: eventResponse(conf.Event, conf.Reminders),
		Text:  conf.Text,
	}
	for _, warning := range conf.Warnings {
		resp.Warnings = append(resp.Warnings, warning.String())
	}
	return resp
}

func eventResponse(event domain.Event, reminders []domain.Reminder) EventResponse {
	resp := EventResponse{
		ID:       event.ID.String(),
		UserID:   event.UserID,
		Title:    event.Title,
		StartAt:  formatTime(event.Span.Start),
		EndAt:    formatTime(event.Span.End),
		Timezone: event.Span.Timezone,
		State:    string(event.State),
		Advisory: event.Advisory,
	}
	for _, rem := range reminders {
		resp.Reminders = append(resp.Reminders, ReminderResponse{
			ID:            rem.ID.String(),
			OffsetSeconds: int64(rem.Offset / time.Second),
			FireAt:        formatTime(rem.FireAt),
			State:         string(rem.State),
		})
	}
	return resp
}

func settingsResponse(settings domain.UserSettings) SettingsResponse {
	resp := SettingsResponse{
		UserID:           settings.UserID,
		Timezone:         settings.Timezone,
		RemindersEnabled: settings.RemindersEnabled,
	}
	for _, offset := range settings.DefaultOffsets {
		resp.DefaultOffsets = append(resp.DefaultOffsets, offset.String())
	}
	return resp
}

// eventIDFromPath extracts the event ID from /events/{id}. Writes the error
// response itself when the path is malformed.
func eventIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "events" {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.UUID{}, false
	}
	eventID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return uuid.UUID{}, false
	}
	return eventID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return err
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return err
	}
	return nil
}

func parseUserID(r *http.Request) (int64, error) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New("user_id query parameter is required")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
