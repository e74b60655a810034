package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReminderDue is emitted by the scheduler when a reminder's fire instant
// arrives. The notifier consumes these from the event bus.
type ReminderDue struct {
	ReminderID uuid.UUID
	EventID    uuid.UUID
	UserID     int64

	Title      string
	EventStart time.Time // UTC
	Timezone   string

	Offset time.Duration
	FireAt time.Time // intended fire instant (UTC)

	EmittedAt      time.Time // actual emission time
	IdempotencyKey string
}

// DueIdempotencyKey is stable across emissions of the same reminder at the
// same intended fire instant, so receivers can deduplicate replays.
func DueIdempotencyKey(reminderID uuid.UUID, fireAt time.Time) string {
	data := fmt.Sprintf("%s:%d", reminderID.String(), fireAt.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
