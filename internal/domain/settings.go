package domain

import "time"

// UserSettings holds per-user preferences. Missing rows are materialized
// from configuration defaults on first access.
type UserSettings struct {
	UserID int64

	Timezone         string
	DefaultOffsets   []time.Duration
	RemindersEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
