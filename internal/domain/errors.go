package domain

import "errors"

// ErrStateTransitionDenied is returned by stores when a reminder or event
// state update would leave a terminal state (fired/cancelled). Replays and
// duplicate emissions rely on this guard for idempotency.
var ErrStateTransitionDenied = errors.New("state transition denied: record already in terminal state")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")
