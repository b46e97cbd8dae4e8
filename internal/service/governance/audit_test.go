package governance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/db"
	"gridbase/internal/db/repository"
	"gridbase/internal/domain"
)

func newAuditFixture(t *testing.T) (*AuditService, domain.AuditRepository, string) {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	ctx := context.Background()

	bases := repository.NewBaseRepo(writeDB)
	memberships := repository.NewMembershipRepo(writeDB)
	audit := repository.NewAuditRepo(writeDB)

	base, err := bases.Create(ctx, &domain.Base{Name: "Ops", CreatedBy: "owner1"})
	require.NoError(t, err)
	for user, role := range map[string]string{
		"owner1":  domain.RoleOwner,
		"member1": domain.RoleMember,
	} {
		_, err := memberships.Create(ctx, &domain.Membership{
			BaseID: base.ID, UserID: user, RoleName: role,
		})
		require.NoError(t, err)
	}
	return NewAuditService(audit, memberships), audit, base.ID
}

func TestAuditListOwnersOnly(t *testing.T) {
	svc, audit, baseID := newAuditFixture(t)
	ctx := context.Background()
	require.NoError(t, audit.Insert(ctx, &domain.AuditEntry{
		UserID: "member1", Action: "RETRIEVE_RECORDS", Status: domain.AuditAllowed,
	}))

	_, _, err := svc.List(domain.WithActor(ctx, domain.Actor{UserID: "member1"}), baseID, domain.PageRequest{})
	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied))

	entries, total, err := svc.List(domain.WithActor(ctx, domain.Actor{UserID: "owner1"}), baseID, domain.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "RETRIEVE_RECORDS", entries[0].Action)
}

func TestAuditListAnonymousDenied(t *testing.T) {
	svc, _, baseID := newAuditFixture(t)

	_, _, err := svc.List(context.Background(), baseID, domain.PageRequest{})

	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied))
}
