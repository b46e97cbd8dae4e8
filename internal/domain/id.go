package domain

import "github.com/google/uuid"

// NewID generates a UUIDv7 string for application-owned entities.
// UUIDv7 is time-ordered, which gives grant creation order a stable
// lexicographic tie-break.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
