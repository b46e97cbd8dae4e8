// Package governance exposes the audit trail written by the security and
// record services.
package governance

import (
	"context"
	"errors"

	"gridbase/internal/domain"
)

// AuditService reads the audit log. Listing is restricted to owners and
// managers of at least one base; entries are append-only and never edited.
type AuditService struct {
	repo        domain.AuditRepository
	memberships domain.MembershipRepository
}

// NewAuditService creates an AuditService.
func NewAuditService(repo domain.AuditRepository, memberships domain.MembershipRepository) *AuditService {
	return &AuditService{repo: repo, memberships: memberships}
}

// List returns a page of audit entries, newest first. The caller must be
// an owner or manager of the given base.
func (s *AuditService) List(ctx context.Context, baseID string, page domain.PageRequest) ([]domain.AuditEntry, int64, error) {
	actor := domain.ActorFromContext(ctx)
	if actor.Anonymous() {
		return nil, 0, domain.ErrAccessDenied("authentication required")
	}
	m, err := s.memberships.GetForUser(ctx, baseID, actor.UserID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, 0, domain.ErrAccessDenied("user %s is not a member of base %s", actor.UserID, baseID)
		}
		return nil, 0, err
	}
	if !m.Bypass() {
		return nil, 0, domain.ErrAccessDenied("role %q may not read the audit log", m.RoleName)
	}
	return s.repo.List(ctx, page)
}
