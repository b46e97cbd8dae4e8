package records

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
	"gridbase/internal/service/derive"
	"gridbase/internal/service/security"
)

type pipelineFixture struct {
	svc *Service

	bases       domain.BaseRepository
	tables      domain.TableRepository
	columns     domain.ColumnRepository
	records     domain.RecordRepository
	roles       domain.RoleRepository
	memberships domain.MembershipRepository
	grants      domain.GrantRepository
	policies    domain.RowPolicyRepository
	cellRules   domain.CellRuleRepository
	manualLocks domain.ManualLockRepository
	audit       domain.AuditRepository

	base  *domain.Base
	table *domain.Table
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	ctx := context.Background()

	f := &pipelineFixture{
		bases:       repository.NewBaseRepo(writeDB),
		tables:      repository.NewTableRepo(writeDB),
		columns:     repository.NewColumnRepo(writeDB),
		records:     repository.NewRecordRepo(writeDB),
		roles:       repository.NewRoleRepo(writeDB),
		memberships: repository.NewMembershipRepo(writeDB),
		grants:      repository.NewGrantRepo(writeDB),
		policies:    repository.NewRowPolicyRepo(writeDB),
		cellRules:   repository.NewCellRuleRepo(writeDB),
		manualLocks: repository.NewManualLockRepo(writeDB),
		audit:       repository.NewAuditRepo(writeDB),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := security.NewPermissionResolver()
	auth := security.NewAuthorizationService(
		f.tables, f.columns, f.roles, f.memberships,
		f.grants, f.policies, f.cellRules, f.manualLocks,
		resolver, logger,
	)
	f.svc = NewService(
		auth,
		security.NewRowPolicyEvaluator(),
		security.NewCellOverrideEvaluator(resolver),
		derive.NewEngine(f.records, logger),
		f.records, f.audit, logger,
	)

	base, err := f.bases.Create(ctx, &domain.Base{Name: "Finance", CreatedBy: "owner1"})
	require.NoError(t, err)
	f.base = base
	table, err := f.tables.Create(ctx, &domain.Table{BaseID: base.ID, Name: "Expenses"})
	require.NoError(t, err)
	f.table = table

	cols := []domain.Column{
		{TableID: table.ID, Name: "title", DataType: domain.TypeText},
		{TableID: table.ID, Name: "amount", DataType: domain.TypeNumber},
		{TableID: table.ID, Name: "status", DataType: domain.TypeSingleSelect,
			Options: domain.ColumnOptions{Choices: []string{"pending", "approved"}}},
	}
	for i := range cols {
		_, err := f.columns.Create(ctx, &cols[i])
		require.NoError(t, err)
	}

	for user, role := range map[string]string{
		"owner1":  domain.RoleOwner,
		"member1": domain.RoleMember,
		"member2": domain.RoleMember,
		"viewer1": domain.RoleViewer,
	} {
		_, err := f.memberships.Create(ctx, &domain.Membership{
			BaseID: base.ID, UserID: user, RoleName: role,
		})
		require.NoError(t, err)
	}
	return f
}

func (f *pipelineFixture) seedRecord(t *testing.T, createdBy string, fields map[string]any) *domain.Record {
	t.Helper()
	rec, err := f.records.Create(context.Background(), &domain.Record{
		TableID: f.table.ID, Fields: fields, CreatedBy: createdBy,
	})
	require.NoError(t, err)
	return rec
}

// addAnalyst binds a user to a fresh custom role and returns the role.
func (f *pipelineFixture) addAnalyst(t *testing.T, userID string) *domain.Role {
	t.Helper()
	ctx := context.Background()
	role, err := f.roles.Create(ctx, &domain.Role{BaseID: f.base.ID, Name: "analyst-" + userID})
	require.NoError(t, err)
	_, err = f.memberships.Create(ctx, &domain.Membership{
		BaseID: f.base.ID, UserID: userID, RoleID: &role.ID,
	})
	require.NoError(t, err)
	return role
}

func asUser(userID string) context.Context {
	return domain.WithActor(context.Background(), domain.Actor{UserID: userID})
}

func boolPtr(b bool) *bool { return &b }

func TestRetrieveRowPolicyLimitsToOwnRecords(t *testing.T) {
	f := newPipelineFixture(t)
	role := f.addAnalyst(t, "analyst1")
	_, err := f.policies.Create(context.Background(), &domain.RowPolicy{
		RoleID: role.ID, TableID: f.table.ID,
		Template: domain.TemplateNode{
			Field: "createdBy", Op: domain.TemplateOpEquals, Value: domain.PlaceholderUserID,
		},
	})
	require.NoError(t, err)

	f.seedRecord(t, "analyst1", map[string]any{"title": "taxi", "amount": 12.0})
	f.seedRecord(t, "member2", map[string]any{"title": "hotel", "amount": 200.0})
	f.seedRecord(t, "analyst1", map[string]any{"title": "lunch", "amount": 18.0})

	page, err := f.svc.Retrieve(asUser("analyst1"), f.table.ID, domain.QueryOptions{})

	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Rows, 2)
	for _, row := range page.Rows {
		assert.Equal(t, "analyst1", row.CreatedBy)
	}
}

func TestRetrieveOwnerSeesEverything(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedRecord(t, "member1", map[string]any{"title": "taxi"})
	f.seedRecord(t, "member2", map[string]any{"title": "hotel"})

	page, err := f.svc.Retrieve(asUser("owner1"), f.table.ID, domain.QueryOptions{})

	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
}

func TestRetrieveHiddenColumnOmittedFromView(t *testing.T) {
	f := newPipelineFixture(t)
	role := f.addAnalyst(t, "analyst1")
	require.NoError(t, f.roles.UpsertColumnPerm(context.Background(), &domain.ColumnPerm{
		RoleID: role.ID, TableID: f.table.ID, ColumnName: "amount",
		Visibility: domain.VisibilityHidden, EditMode: domain.EditModeNone,
	}))
	f.seedRecord(t, "analyst1", map[string]any{"title": "taxi", "amount": 12.0})

	page, err := f.svc.Retrieve(asUser("analyst1"), f.table.ID, domain.QueryOptions{})

	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	row := page.Rows[0]
	assert.Equal(t, "taxi", row.Fields["title"])
	_, hasValue := row.Fields["amount"]
	_, hasPerm := row.Permissions["amount"]
	assert.False(t, hasValue, "hidden cells carry no value")
	assert.False(t, hasPerm, "hidden cells carry no permission entry")
}

func TestRetrieveDeniedWithoutReadAccess(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.grants.Create(context.Background(), &domain.Grant{
		TableID: f.table.ID, TargetType: domain.TargetAllMembers, CanView: boolPtr(false),
	})
	require.NoError(t, err)

	_, err = f.svc.Retrieve(asUser("member1"), f.table.ID, domain.QueryOptions{})

	var denied *domain.AccessDeniedError
	require.True(t, errors.As(err, &denied))

	entries, _, auditErr := f.audit.List(context.Background(), domain.PageRequest{})
	require.NoError(t, auditErr)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.AuditDenied, entries[0].Status)
}

func TestRetrieveMalformedPolicyAborts(t *testing.T) {
	f := newPipelineFixture(t)
	role := f.addAnalyst(t, "analyst1")
	_, err := f.policies.Create(context.Background(), &domain.RowPolicy{
		RoleID: role.ID, TableID: f.table.ID,
		Template: domain.TemplateNode{Field: "title", Op: "matches_regex", Value: ".*"},
	})
	require.NoError(t, err)
	f.seedRecord(t, "analyst1", map[string]any{"title": "taxi"})

	_, err = f.svc.Retrieve(asUser("analyst1"), f.table.ID, domain.QueryOptions{})

	var perr *domain.PolicyError
	require.True(t, errors.As(err, &perr), "malformed templates fail closed")
}

func TestRetrieveDerivesFormulaColumn(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.columns.Create(context.Background(), &domain.Column{
		TableID: f.table.ID, Name: "doubled", DataType: domain.TypeFormula,
		Options: domain.ColumnOptions{Expression: "amount * 2", ResultType: domain.TypeNumber},
	})
	require.NoError(t, err)
	f.seedRecord(t, "member1", map[string]any{"title": "taxi", "amount": 12.0})

	page, err := f.svc.Retrieve(asUser("member1"), f.table.ID, domain.QueryOptions{})

	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, 24.0, page.Rows[0].Fields["doubled"])
	assert.False(t, page.Rows[0].Permissions["doubled"], "computed cells are never editable")
}

func TestRetrievePermissionsReflectConditionalRules(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.cellRules.Create(context.Background(), &domain.CellRule{
		TableID:   f.table.ID,
		Condition: domain.RuleCondition{Field: "status", Op: "equals", Value: "approved"},
		Columns:   []string{"amount"},
		Mode:      domain.LockModeReadOnly,
	})
	require.NoError(t, err)

	f.seedRecord(t, "member1", map[string]any{"title": "a", "amount": 10.0, "status": "approved"})
	f.seedRecord(t, "member1", map[string]any{"title": "b", "amount": 20.0, "status": "pending"})

	page, err := f.svc.Retrieve(asUser("member1"), f.table.ID, domain.QueryOptions{})

	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	byTitle := map[string]domain.RecordView{}
	for _, row := range page.Rows {
		byTitle[row.Fields["title"].(string)] = row
	}
	assert.False(t, byTitle["a"].Permissions["amount"], "approved rows are locked")
	assert.True(t, byTitle["b"].Permissions["amount"], "pending rows stay editable")
}

func TestRetrieveCallerFilterAndPolicyCompose(t *testing.T) {
	f := newPipelineFixture(t)
	role := f.addAnalyst(t, "analyst1")
	_, err := f.policies.Create(context.Background(), &domain.RowPolicy{
		RoleID: role.ID, TableID: f.table.ID,
		Template: domain.TemplateNode{
			Field: "createdBy", Op: domain.TemplateOpEquals, Value: domain.PlaceholderUserID,
		},
	})
	require.NoError(t, err)

	f.seedRecord(t, "analyst1", map[string]any{"title": "taxi", "status": "approved"})
	f.seedRecord(t, "analyst1", map[string]any{"title": "lunch", "status": "pending"})
	f.seedRecord(t, "member2", map[string]any{"title": "hotel", "status": "approved"})

	page, err := f.svc.Retrieve(asUser("analyst1"), f.table.ID, domain.QueryOptions{
		Filter: domain.FieldEQ("status", "approved"),
	})

	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "taxi", page.Rows[0].Fields["title"])
}

func TestGetRecordOutsidePolicyIsNotFound(t *testing.T) {
	f := newPipelineFixture(t)
	role := f.addAnalyst(t, "analyst1")
	_, err := f.policies.Create(context.Background(), &domain.RowPolicy{
		RoleID: role.ID, TableID: f.table.ID,
		Template: domain.TemplateNode{
			Field: "createdBy", Op: domain.TemplateOpEquals, Value: domain.PlaceholderUserID,
		},
	})
	require.NoError(t, err)
	foreign := f.seedRecord(t, "member2", map[string]any{"title": "hotel"})

	_, err = f.svc.Get(asUser("analyst1"), f.table.ID, foreign.ID)

	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound), "invisible records are indistinguishable from absent ones")
}

func TestRetrieveSortAndPagination(t *testing.T) {
	f := newPipelineFixture(t)
	for _, amount := range []float64{30, 10, 20} {
		f.seedRecord(t, "member1", map[string]any{"title": "x", "amount": amount})
	}

	page, err := f.svc.Retrieve(asUser("member1"), f.table.ID, domain.QueryOptions{
		Sort: &domain.Sort{Field: "amount", Desc: true},
		Page: domain.PageRequest{MaxResults: 2},
	})

	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, 30.0, page.Rows[0].Fields["amount"])
	assert.Equal(t, 20.0, page.Rows[1].Fields["amount"])
}
