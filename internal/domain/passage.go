package domain

import "github.com/google/uuid"

// Passage is a snippet from the user's knowledge corpus used to ground
// advisory notes. Score is cosine similarity against the query embedding,
// filled only on retrieval.
type Passage struct {
	ID     uuid.UUID
	UserID int64
	Text   string
	Score  float64
}
