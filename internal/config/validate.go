package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// WEBHOOK_URL is required: reminders have nowhere to go without it
	if cfg.WebhookURL == "" {
		errs = append(errs, ValidationError{
			Field:   "WEBHOOK_URL",
			Message: "required",
		})
	}

	// SCHEDULER_MAX_WAKE must be a valid positive duration
	if cfg.SchedulerMaxWakeStr != "" {
		d, err := time.ParseDuration(cfg.SchedulerMaxWakeStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "SCHEDULER_MAX_WAKE",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "SCHEDULER_MAX_WAKE",
				Message: "must be positive",
			})
		}
	}

	// DEFAULT_TIMEZONE must be a loadable IANA zone
	if cfg.DefaultTimezone != "" {
		if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DEFAULT_TIMEZONE",
				Message: fmt.Sprintf("unknown timezone %q", cfg.DefaultTimezone),
			})
		}
	}

	// DEFAULT_REMINDER_OFFSETS must be a comma-separated list of positive durations
	if cfg.DefaultReminderOffsetsStr != "" {
		if _, err := ParseOffsetList(cfg.DefaultReminderOffsetsStr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DEFAULT_REMINDER_OFFSETS",
				Message: fmt.Sprintf("invalid offset list %q", cfg.DefaultReminderOffsetsStr),
			})
		}
	}

	// SAME_DAY_CUTOFF is optional, but when set it must be a time of day
	if cfg.SameDayCutoffStr != "" {
		d, err := time.ParseDuration(cfg.SameDayCutoffStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "SAME_DAY_CUTOFF",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 || d >= 24*time.Hour {
			errs = append(errs, ValidationError{
				Field:   "SAME_DAY_CUTOFF",
				Message: "must be between 0 and 24h",
			})
		}
	}

	// Resolution horizon knobs must be valid positive durations
	horizons := []struct {
		field string
		value string
	}{
		{"DEFAULT_EVENT_DURATION", cfg.DefaultEventDurationStr},
		{"PAST_HORIZON", cfg.PastHorizonStr},
		{"FUTURE_HORIZON", cfg.FutureHorizonStr},
		{"MAX_EVENT_DURATION", cfg.MaxEventDurationStr},
	}
	for _, h := range horizons {
		if h.value == "" {
			continue
		}
		d, err := time.ParseDuration(h.value)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   h.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   h.field,
				Message: "must be positive",
			})
		}
	}

	// CalDAV mirroring needs credentials when enabled
	if cfg.CalDAVURL != "" && cfg.CalDAVUsername == "" {
		errs = append(errs, ValidationError{
			Field:   "CALDAV_USERNAME",
			Message: "required when CALDAV_URL is set",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
