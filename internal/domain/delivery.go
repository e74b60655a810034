package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryAttempt records one attempt to deliver a reminder notification.
type DeliveryAttempt struct {
	ID         uuid.UUID
	ReminderID uuid.UUID
	Attempt    int

	StatusCode int
	Error      string

	StartedAt  time.Time
	FinishedAt time.Time
}
