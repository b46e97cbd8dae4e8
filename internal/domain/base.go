package domain

import "time"

// Base is a tenant-owned collection of tables.
type Base struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// CreateBaseRequest holds parameters for creating a base.
type CreateBaseRequest struct {
	Name string
}

// Validate checks that the request is well-formed.
func (r *CreateBaseRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	return nil
}
