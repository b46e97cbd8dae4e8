package security

import (
	"context"
	"errors"

	"gridbase/internal/domain"
)

// MembershipService administers base memberships. Creating the first
// membership of a base is open to the base creator; after that, only
// owners and managers may change the roster.
type MembershipService struct {
	gate  adminGate
	bases domain.BaseRepository
	repo  domain.MembershipRepository
	roles domain.RoleRepository
	audit domain.AuditRepository
}

// NewMembershipService creates a new MembershipService.
func NewMembershipService(
	tables domain.TableRepository,
	bases domain.BaseRepository,
	repo domain.MembershipRepository,
	roles domain.RoleRepository,
	audit domain.AuditRepository,
) *MembershipService {
	return &MembershipService{
		gate:  adminGate{tables: tables, memberships: repo},
		bases: bases,
		repo:  repo,
		roles: roles,
		audit: audit,
	}
}

// AddMember adds a user to a base. A custom role reference must point at a
// role on the same base.
func (s *MembershipService) AddMember(ctx context.Context, req domain.CreateMembershipRequest) (*domain.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	base, err := s.bases.GetByID(ctx, req.BaseID)
	if err != nil {
		return nil, err
	}
	actorID, err := s.gate.requireBaseAdmin(ctx, req.BaseID)
	if err != nil {
		// The base creator bootstraps the roster with their own owner
		// membership before any membership exists.
		actor := domain.ActorFromContext(ctx)
		if actor.Anonymous() || actor.UserID != base.CreatedBy ||
			req.UserID != actor.UserID || req.RoleName != domain.RoleOwner {
			return nil, err
		}
		actorID = actor.UserID
	}
	if req.RoleID != nil {
		role, err := s.roles.GetByID(ctx, *req.RoleID)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				return nil, domain.ErrValidation("role %s does not exist", *req.RoleID)
			}
			return nil, err
		}
		if role.BaseID != req.BaseID {
			return nil, domain.ErrValidation("role %s belongs to another base", *req.RoleID)
		}
	}
	m, err := s.repo.Create(ctx, &domain.Membership{
		BaseID:   req.BaseID,
		UserID:   req.UserID,
		RoleName: req.RoleName,
		RoleID:   req.RoleID,
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: actorID, Action: "ADD_MEMBER", Status: domain.AuditAllowed, Detail: req.UserID,
	})
	return m, nil
}

// ListMembers returns the roster of a base.
func (s *MembershipService) ListMembers(ctx context.Context, baseID string, page domain.PageRequest) ([]domain.Membership, int64, error) {
	if _, err := s.gate.requireBaseAdmin(ctx, baseID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListForBase(ctx, baseID, page)
}

// RemoveMember removes a user from a base.
func (s *MembershipService) RemoveMember(ctx context.Context, baseID, membershipID string) error {
	actorID, err := s.gate.requireBaseAdmin(ctx, baseID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, membershipID); err != nil {
		return err
	}
	_ = s.audit.Insert(ctx, &domain.AuditEntry{
		UserID: actorID, Action: "REMOVE_MEMBER", Status: domain.AuditAllowed, Detail: membershipID,
	})
	return nil
}
