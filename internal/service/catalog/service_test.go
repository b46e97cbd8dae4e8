package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/db"
	"gridbase/internal/db/repository"
	"gridbase/internal/domain"
	"gridbase/internal/service/security"
)

type catalogFixture struct {
	svc         *Service
	memberships domain.MembershipRepository
	tables      domain.TableRepository
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)

	bases := repository.NewBaseRepo(writeDB)
	tables := repository.NewTableRepo(writeDB)
	columns := repository.NewColumnRepo(writeDB)
	roles := repository.NewRoleRepo(writeDB)
	memberships := repository.NewMembershipRepo(writeDB)
	grants := repository.NewGrantRepo(writeDB)
	policies := repository.NewRowPolicyRepo(writeDB)
	cellRules := repository.NewCellRuleRepo(writeDB)
	manualLocks := repository.NewManualLockRepo(writeDB)
	audit := repository.NewAuditRepo(writeDB)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := security.NewAuthorizationService(
		tables, columns, roles, memberships,
		grants, policies, cellRules, manualLocks,
		security.NewPermissionResolver(), logger,
	)
	return &catalogFixture{
		svc:         NewService(bases, tables, columns, memberships, auth, audit, logger),
		memberships: memberships,
		tables:      tables,
	}
}

func asUser(userID string) context.Context {
	return domain.WithActor(context.Background(), domain.Actor{UserID: userID})
}

func TestCreateBaseSeedsOwnerMembership(t *testing.T) {
	f := newCatalogFixture(t)

	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, "founder", base.CreatedBy)

	m, err := f.memberships.GetForUser(context.Background(), base.ID, "founder")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.RoleName)
}

func TestCreateBaseRequiresAuthentication(t *testing.T) {
	f := newCatalogFixture(t)

	_, err := f.svc.CreateBase(context.Background(), domain.CreateBaseRequest{Name: "Ops"})

	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied))
}

func TestCreateTableManagersOnly(t *testing.T) {
	f := newCatalogFixture(t)
	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	_, err = f.memberships.Create(context.Background(), &domain.Membership{
		BaseID: base.ID, UserID: "member1", RoleName: domain.RoleMember,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateTable(asUser("member1"), domain.CreateTableRequest{BaseID: base.ID, Name: "T"})
	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied))

	table, err := f.svc.CreateTable(asUser("founder"), domain.CreateTableRequest{BaseID: base.ID, Name: "T"})
	require.NoError(t, err)
	assert.NotEmpty(t, table.ID)
}

func TestCreateColumnValidatesOptions(t *testing.T) {
	f := newCatalogFixture(t)
	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	table, err := f.svc.CreateTable(asUser("founder"), domain.CreateTableRequest{BaseID: base.ID, Name: "T"})
	require.NoError(t, err)

	_, err = f.svc.CreateColumn(asUser("founder"), domain.CreateColumnRequest{
		TableID: table.ID, Name: "status", DataType: domain.TypeSingleSelect,
	})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "select without choices rejects")

	_, err = f.svc.CreateColumn(asUser("founder"), domain.CreateColumnRequest{
		TableID: table.ID, Name: "status", DataType: domain.TypeSingleSelect,
		Options: domain.ColumnOptions{Choices: []string{"open", "closed"}},
	})
	require.NoError(t, err)
}

func TestCreateLookupColumnNeedsLinkFirst(t *testing.T) {
	f := newCatalogFixture(t)
	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	products, err := f.svc.CreateTable(asUser("founder"), domain.CreateTableRequest{BaseID: base.ID, Name: "Products"})
	require.NoError(t, err)
	orders, err := f.svc.CreateTable(asUser("founder"), domain.CreateTableRequest{BaseID: base.ID, Name: "Orders"})
	require.NoError(t, err)

	lookupReq := domain.CreateColumnRequest{
		TableID: orders.ID, Name: "product_name", DataType: domain.TypeLookup,
		Options: domain.ColumnOptions{LinkColumn: "product", TargetColumn: "name"},
	}
	_, err = f.svc.CreateColumn(asUser("founder"), lookupReq)
	require.Error(t, err, "lookup before its link column rejects")

	_, err = f.svc.CreateColumn(asUser("founder"), domain.CreateColumnRequest{
		TableID: orders.ID, Name: "product", DataType: domain.TypeLinkedTable,
		Options: domain.ColumnOptions{LinkedTableID: products.ID},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateColumn(asUser("founder"), lookupReq)
	require.NoError(t, err)
}

func TestRenameColumnKeepsOptions(t *testing.T) {
	f := newCatalogFixture(t)
	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	table, err := f.svc.CreateTable(asUser("founder"), domain.CreateTableRequest{BaseID: base.ID, Name: "T"})
	require.NoError(t, err)
	col, err := f.svc.CreateColumn(asUser("founder"), domain.CreateColumnRequest{
		TableID: table.ID, Name: "status", DataType: domain.TypeSingleSelect,
		Options: domain.ColumnOptions{Choices: []string{"open"}},
	})
	require.NoError(t, err)

	renamed, err := f.svc.RenameColumn(asUser("founder"), table.ID, col.ID, "state")
	require.NoError(t, err)
	assert.Equal(t, "state", renamed.Name)
	assert.Equal(t, []string{"open"}, renamed.Options.Choices)
}

func TestDeleteBaseOwnersOnly(t *testing.T) {
	f := newCatalogFixture(t)
	base, err := f.svc.CreateBase(asUser("founder"), domain.CreateBaseRequest{Name: "Ops"})
	require.NoError(t, err)
	_, err = f.memberships.Create(context.Background(), &domain.Membership{
		BaseID: base.ID, UserID: "mgr1", RoleName: domain.RoleManager,
	})
	require.NoError(t, err)

	err = f.svc.DeleteBase(asUser("mgr1"), base.ID)
	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied), "managers administer but do not delete bases")

	require.NoError(t, f.svc.DeleteBase(asUser("founder"), base.ID))
}
