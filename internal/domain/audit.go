package domain

import "time"

// Audit statuses.
const (
	AuditAllowed = "ALLOWED"
	AuditDenied  = "DENIED"
)

// AuditEntry records an authorization decision or administrative write.
type AuditEntry struct {
	ID        string
	UserID    string
	Action    string // e.g. "RETRIEVE", "GRANT", "CREATE_ROLE"
	TableID   string
	Status    string // "ALLOWED" or "DENIED"
	Detail    string
	CreatedAt time.Time
}
