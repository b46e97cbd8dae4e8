package security

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gridbase/internal/domain"
)

// cellKey addresses cell-scoped grants within a snapshot.
type cellKey struct {
	recordID   string
	columnName string
}

// AccessSnapshot is the read-only permission configuration for one
// (actor, table) pair, loaded once per request. Everything the resolver,
// policy evaluator, and cell evaluator need during the request comes from
// here; concurrent administrative writes take effect on the next request.
type AccessSnapshot struct {
	Identity  Identity
	PolicyCtx domain.PolicyContext

	Table   *domain.Table
	Columns []domain.Column

	TablePerm   *domain.TablePerm             // nil when the role has none (open)
	ColumnPerms map[string]domain.ColumnPerm  // custom-role perms by column name
	Policies    []domain.RowPolicy

	TableGrants  []domain.Grant
	ColumnGrants map[string][]domain.Grant
	cellGrants   map[cellKey][]domain.Grant

	CellRules   []domain.CellRule
	ManualLocks []domain.ManualLock

	columnNames map[string]bool
}

// HasColumn reports whether the snapshot's table has a column by name.
func (s *AccessSnapshot) HasColumn(name string) bool { return s.columnNames[name] }

// CellGrantsFor returns the cell-scoped grants addressing one cell.
func (s *AccessSnapshot) CellGrantsFor(recordID, columnName string) []domain.Grant {
	return s.cellGrants[cellKey{recordID, columnName}]
}

// AuthorizationService loads access snapshots and answers coarse-grained
// authorization questions. The fine-grained per-cell tiers live in the
// CellOverrideEvaluator.
type AuthorizationService struct {
	tables      domain.TableRepository
	columns     domain.ColumnRepository
	roles       domain.RoleRepository
	memberships domain.MembershipRepository
	grants      domain.GrantRepository
	policies    domain.RowPolicyRepository
	cellRules   domain.CellRuleRepository
	manualLocks domain.ManualLockRepository
	resolver    *PermissionResolver
	logger      *slog.Logger
}

// NewAuthorizationService creates an AuthorizationService backed by domain
// repositories.
func NewAuthorizationService(
	tables domain.TableRepository,
	columns domain.ColumnRepository,
	roles domain.RoleRepository,
	memberships domain.MembershipRepository,
	grants domain.GrantRepository,
	policies domain.RowPolicyRepository,
	cellRules domain.CellRuleRepository,
	manualLocks domain.ManualLockRepository,
	resolver *PermissionResolver,
	logger *slog.Logger,
) *AuthorizationService {
	return &AuthorizationService{
		tables:      tables,
		columns:     columns,
		roles:       roles,
		memberships: memberships,
		grants:      grants,
		policies:    policies,
		cellRules:   cellRules,
		manualLocks: manualLocks,
		resolver:    resolver,
		logger:      logger,
	}
}

// identify resolves the actor's membership on the table's base into an
// Identity. A missing membership yields an anonymous identity, which the
// resolver denies.
func (s *AuthorizationService) identify(ctx context.Context, actor domain.Actor, baseID string) (Identity, *domain.Membership, error) {
	if actor.Anonymous() {
		return Identity{}, nil, nil
	}
	m, err := s.memberships.GetForUser(ctx, baseID, actor.UserID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return Identity{}, nil, nil
		}
		return Identity{}, nil, err
	}

	id := Identity{UserID: actor.UserID, RoleName: m.RoleName}
	if m.RoleID != nil {
		role, err := s.roles.GetByID(ctx, *m.RoleID)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				// Dangling role reference: fail closed.
				s.logger.Warn("membership references missing role",
					"membership", m.ID, "role", *m.RoleID)
				return Identity{}, nil, nil
			}
			return Identity{}, nil, err
		}
		id.RoleID = role.ID
		id.RoleName = role.Name
	}
	id.Bypass = m.Bypass()
	id.ViewerOnly = m.RoleName == domain.RoleViewer
	return id, m, nil
}

// Snapshot loads the full access configuration for (actor, table).
// Grants, rules, and locks referencing columns the table does not have are
// dropped fail-closed and logged as configuration errors.
func (s *AuthorizationService) Snapshot(ctx context.Context, actor domain.Actor, tableID string) (*AccessSnapshot, error) {
	table, err := s.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	columns, err := s.columns.ListForTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	id, membership, err := s.identify(ctx, actor, table.BaseID)
	if err != nil {
		return nil, err
	}

	snap := &AccessSnapshot{
		Identity: id,
		PolicyCtx: domain.PolicyContext{
			UserID:   id.UserID,
			RoleName: id.RoleName,
			Now:      time.Now().UTC(),
		},
		Table:        table,
		Columns:      columns,
		ColumnPerms:  map[string]domain.ColumnPerm{},
		ColumnGrants: map[string][]domain.Grant{},
		cellGrants:   map[cellKey][]domain.Grant{},
		columnNames:  make(map[string]bool, len(columns)),
	}
	for _, c := range columns {
		snap.columnNames[c.Name] = true
	}

	// Bypass identities skip grants, policies, rules, and locks entirely.
	if id.Bypass {
		return snap, nil
	}

	if err := s.loadGrants(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadOverrides(ctx, snap); err != nil {
		return nil, err
	}

	// Custom-role artifacts: table perm, column perms, row policies.
	if membership != nil && membership.RoleID != nil {
		if err := s.loadRoleArtifacts(ctx, snap, *membership.RoleID); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *AuthorizationService) loadGrants(ctx context.Context, snap *AccessSnapshot) error {
	grants, err := s.grants.ListForTable(ctx, snap.Table.ID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		switch {
		case g.ColumnName == "":
			snap.TableGrants = append(snap.TableGrants, g)
		case !snap.HasColumn(g.ColumnName):
			s.logConfig(domain.ErrConfig("grant %s references unknown column %q on table %s",
				g.ID, g.ColumnName, snap.Table.ID))
		case g.RecordID != "":
			key := cellKey{g.RecordID, g.ColumnName}
			snap.cellGrants[key] = append(snap.cellGrants[key], g)
		default:
			snap.ColumnGrants[g.ColumnName] = append(snap.ColumnGrants[g.ColumnName], g)
		}
	}
	return nil
}

func (s *AuthorizationService) loadOverrides(ctx context.Context, snap *AccessSnapshot) error {
	rules, err := s.cellRules.ListForTable(ctx, snap.Table.ID)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		kept := rule
		kept.Columns = nil
		for _, col := range rule.Columns {
			if snap.HasColumn(col) {
				kept.Columns = append(kept.Columns, col)
			} else {
				s.logConfig(domain.ErrConfig("cell rule %s references unknown column %q on table %s",
					rule.ID, col, snap.Table.ID))
			}
		}
		if len(kept.Columns) == 0 {
			continue
		}
		snap.CellRules = append(snap.CellRules, kept)
	}

	locks, err := s.manualLocks.ListForTable(ctx, snap.Table.ID)
	if err != nil {
		return err
	}
	for _, l := range locks {
		if !snap.HasColumn(l.ColumnName) {
			s.logConfig(domain.ErrConfig("manual lock %s references unknown column %q on table %s",
				l.ID, l.ColumnName, snap.Table.ID))
			continue
		}
		snap.ManualLocks = append(snap.ManualLocks, l)
	}
	return nil
}

func (s *AuthorizationService) loadRoleArtifacts(ctx context.Context, snap *AccessSnapshot, roleID string) error {
	perm, err := s.roles.GetTablePerm(ctx, roleID, snap.Table.ID)
	if err != nil {
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	} else {
		snap.TablePerm = perm
	}

	colPerms, err := s.roles.ListColumnPerms(ctx, roleID, snap.Table.ID)
	if err != nil {
		return err
	}
	for _, p := range colPerms {
		if !snap.HasColumn(p.ColumnName) {
			s.logConfig(domain.ErrConfig("column perm %s references unknown column %q on table %s",
				p.ID, p.ColumnName, snap.Table.ID))
			continue
		}
		snap.ColumnPerms[p.ColumnName] = p
	}

	policies, err := s.policies.ListForRoleTable(ctx, roleID, snap.Table.ID)
	if err != nil {
		return err
	}
	snap.Policies = policies
	return nil
}

func (s *AuthorizationService) logConfig(err *domain.ConfigError) {
	s.logger.Warn("permission configuration error", "error", err.Message)
}

// TableGrant resolves the effective table-scoped grant for the snapshot's
// identity.
func (s *AuthorizationService) TableGrant(snap *AccessSnapshot) domain.EffectiveGrant {
	return s.resolver.Resolve(snap.TableGrants, snap.Identity)
}

// ColumnGrant resolves the effective grant for one column, overlaying the
// custom role's column perm on top of the scoped-grant resolution. Both
// layers restrict; neither widens the other.
func (s *AuthorizationService) ColumnGrant(snap *AccessSnapshot, columnName string) domain.EffectiveGrant {
	eff := s.resolver.Resolve(snap.ColumnGrants[columnName], snap.Identity)
	if snap.Identity.Bypass {
		return eff
	}
	if perm, ok := snap.ColumnPerms[columnName]; ok {
		if perm.Visibility == domain.VisibilityHidden {
			eff.IsHidden = true
		}
		if perm.EditMode != domain.EditModeReadWrite {
			eff.CanEdit = false
		}
	}
	return eff
}

// CanReadTable reports whether the snapshot's identity may read the table
// at all. False is terminal for retrieval: the pipeline denies before
// touching row policies.
func (s *AuthorizationService) CanReadTable(snap *AccessSnapshot) bool {
	if snap.Identity.Bypass {
		return true
	}
	if snap.Identity.Anonymous() {
		return false
	}
	if snap.TablePerm != nil && !snap.TablePerm.CanRead {
		return false
	}
	return s.TableGrant(snap).CanView
}

// CanCreateRecords reports whether the identity may create records.
func (s *AuthorizationService) CanCreateRecords(snap *AccessSnapshot) bool {
	return s.canWrite(snap, func(p *domain.TablePerm) bool { return p.CanCreate })
}

// CanUpdateRecords reports whether the identity may update records, before
// per-cell editability is applied.
func (s *AuthorizationService) CanUpdateRecords(snap *AccessSnapshot) bool {
	return s.canWrite(snap, func(p *domain.TablePerm) bool { return p.CanUpdate })
}

// CanDeleteRecords reports whether the identity may delete records.
func (s *AuthorizationService) CanDeleteRecords(snap *AccessSnapshot) bool {
	return s.canWrite(snap, func(p *domain.TablePerm) bool { return p.CanDelete })
}

func (s *AuthorizationService) canWrite(snap *AccessSnapshot, allowed func(*domain.TablePerm) bool) bool {
	if snap.Identity.Bypass {
		return true
	}
	if snap.Identity.Anonymous() || snap.Identity.ViewerOnly {
		return false
	}
	if snap.TablePerm != nil && !allowed(snap.TablePerm) {
		return false
	}
	eff := s.TableGrant(snap)
	return eff.CanView && eff.CanEdit
}

// CanEditStructure reports whether the identity may alter the table's
// schema (columns).
func (s *AuthorizationService) CanEditStructure(snap *AccessSnapshot) bool {
	if snap.Identity.Bypass {
		return true
	}
	if snap.Identity.Anonymous() || snap.Identity.ViewerOnly {
		return false
	}
	return s.TableGrant(snap).CanEditStructure
}
