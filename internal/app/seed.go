package app

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"gridbase/internal/domain"
)

//go:embed seed.yaml
var seedYAML []byte

// seeder holds the repositories needed to load the demo fixture.
type seeder struct {
	bases       domain.BaseRepository
	tables      domain.TableRepository
	columns     domain.ColumnRepository
	records     domain.RecordRepository
	roles       domain.RoleRepository
	memberships domain.MembershipRepository
	grants      domain.GrantRepository
	policies    domain.RowPolicyRepository
	rules       domain.CellRuleRepository
	locks       domain.ManualLockRepository
}

type seedFile struct {
	Bases []seedBase `yaml:"bases"`
}

type seedBase struct {
	Name      string       `yaml:"name"`
	CreatedBy string       `yaml:"created_by"`
	Roles     []string     `yaml:"roles"`
	Members   []seedMember `yaml:"members"`
	Tables    []seedTable  `yaml:"tables"`
}

type seedMember struct {
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"`
}

type seedTable struct {
	Name        string           `yaml:"name"`
	Columns     []seedColumn     `yaml:"columns"`
	Records     []seedRecord     `yaml:"records"`
	Perms       []seedTablePerm  `yaml:"perms"`
	ColumnPerms []seedColumnPerm `yaml:"column_perms"`
	Grants      []seedGrant      `yaml:"grants"`
	Policies    []seedPolicy     `yaml:"policies"`
	Rules       []seedRule       `yaml:"rules"`
	Locks       []seedLock       `yaml:"locks"`
}

type seedColumn struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Choices  []string `yaml:"choices"`
	Formula  string   `yaml:"formula"`
	Result   string   `yaml:"result"`
	LinkedTo string   `yaml:"linked_to"` // table name, linked_table columns
	Via      string   `yaml:"via"`       // link column, lookup columns
	Projects string   `yaml:"projects"`  // target column, lookup columns
}

type seedRecord struct {
	Key       string         `yaml:"key"`
	CreatedBy string         `yaml:"created_by"`
	Fields    map[string]any `yaml:"fields"`
}

type seedTablePerm struct {
	Role      string `yaml:"role"`
	CanCreate bool   `yaml:"can_create"`
	CanRead   bool   `yaml:"can_read"`
	CanUpdate bool   `yaml:"can_update"`
	CanDelete bool   `yaml:"can_delete"`
}

type seedColumnPerm struct {
	Role       string `yaml:"role"`
	Column     string `yaml:"column"`
	Visibility string `yaml:"visibility"`
	EditMode   string `yaml:"edit_mode"`
}

type seedGrant struct {
	Column    string `yaml:"column"`
	RecordKey string `yaml:"record"`
	Target    string `yaml:"target"`
	Ref       string `yaml:"ref"`
	CanView   *bool  `yaml:"can_view"`
	CanEdit   *bool  `yaml:"can_edit"`
	Hidden    *bool  `yaml:"hidden"`
}

type seedPolicy struct {
	Role     string              `yaml:"role"`
	Template domain.TemplateNode `yaml:"template"`
}

type seedRule struct {
	Role      string               `yaml:"role"`
	Condition domain.RuleCondition `yaml:"condition"`
	Columns   []string             `yaml:"columns"`
	Mode      string               `yaml:"mode"`
}

type seedLock struct {
	RecordKey string `yaml:"record"`
	Column    string `yaml:"column"`
	Mode      string `yaml:"mode"`
	Target    string `yaml:"target"`
	Ref       string `yaml:"ref"`
}

// Seed loads the embedded demo fixture: a base with linked tables, custom
// roles, row policies, cell rules, and a manual lock. Idempotent — a
// database that already has a base is left untouched.
func (a *App) Seed(ctx context.Context) error {
	existing, _, err := a.seeder.bases.List(ctx, domain.PageRequest{MaxResults: 1})
	if err != nil {
		return fmt.Errorf("check existing bases: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var fixture seedFile
	if err := yaml.Unmarshal(seedYAML, &fixture); err != nil {
		return fmt.Errorf("parse seed fixture: %w", err)
	}

	for i := range fixture.Bases {
		if err := a.seeder.seedBase(ctx, &fixture.Bases[i]); err != nil {
			return fmt.Errorf("seed base %q: %w", fixture.Bases[i].Name, err)
		}
	}
	a.logger.Info("seeded demo fixture", "bases", len(fixture.Bases))
	return nil
}

func (s *seeder) seedBase(ctx context.Context, sb *seedBase) error {
	base, err := s.bases.Create(ctx, &domain.Base{Name: sb.Name, CreatedBy: sb.CreatedBy})
	if err != nil {
		return err
	}

	roleIDs := map[string]string{}
	for _, name := range sb.Roles {
		role, err := s.roles.Create(ctx, &domain.Role{BaseID: base.ID, Name: name})
		if err != nil {
			return fmt.Errorf("role %q: %w", name, err)
		}
		roleIDs[name] = role.ID
	}

	for _, m := range sb.Members {
		mem := &domain.Membership{BaseID: base.ID, UserID: m.UserID}
		if id, ok := roleIDs[m.Role]; ok {
			mem.RoleID = &id
		} else {
			mem.RoleName = m.Role
		}
		if _, err := s.memberships.Create(ctx, mem); err != nil {
			return fmt.Errorf("member %q: %w", m.UserID, err)
		}
	}

	tableIDs := map[string]string{}
	recordIDs := map[string]string{}
	for i := range sb.Tables {
		if err := s.seedTable(ctx, base.ID, &sb.Tables[i], roleIDs, tableIDs, recordIDs); err != nil {
			return fmt.Errorf("table %q: %w", sb.Tables[i].Name, err)
		}
	}
	return nil
}

func (s *seeder) seedTable(ctx context.Context, baseID string, st *seedTable,
	roleIDs, tableIDs, recordIDs map[string]string) error {

	table, err := s.tables.Create(ctx, &domain.Table{BaseID: baseID, Name: st.Name})
	if err != nil {
		return err
	}
	tableIDs[st.Name] = table.ID

	for _, c := range st.Columns {
		col := &domain.Column{
			TableID:  table.ID,
			Name:     c.Name,
			DataType: domain.DataType(c.Type),
			Options: domain.ColumnOptions{
				Choices:      c.Choices,
				Expression:   c.Formula,
				ResultType:   domain.DataType(c.Result),
				LinkColumn:   c.Via,
				TargetColumn: c.Projects,
			},
		}
		if c.LinkedTo != "" {
			id, ok := tableIDs[c.LinkedTo]
			if !ok {
				return fmt.Errorf("column %q links to unknown table %q", c.Name, c.LinkedTo)
			}
			col.Options.LinkedTableID = id
		}
		if _, err := s.columns.Create(ctx, col); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}

	for _, r := range st.Records {
		fields, err := resolveLinks(r.Fields, recordIDs)
		if err != nil {
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		created, err := s.records.Create(ctx, &domain.Record{
			TableID:   table.ID,
			Fields:    fields,
			CreatedBy: r.CreatedBy,
		})
		if err != nil {
			return fmt.Errorf("record %q: %w", r.Key, err)
		}
		if r.Key != "" {
			recordIDs[r.Key] = created.ID
		}
	}

	for _, p := range st.Perms {
		roleID, ok := roleIDs[p.Role]
		if !ok {
			return fmt.Errorf("perm for unknown role %q", p.Role)
		}
		if err := s.roles.UpsertTablePerm(ctx, &domain.TablePerm{
			RoleID: roleID, TableID: table.ID,
			CanCreate: p.CanCreate, CanRead: p.CanRead,
			CanUpdate: p.CanUpdate, CanDelete: p.CanDelete,
		}); err != nil {
			return fmt.Errorf("table perm for %q: %w", p.Role, err)
		}
	}

	for _, cp := range st.ColumnPerms {
		roleID, ok := roleIDs[cp.Role]
		if !ok {
			return fmt.Errorf("column perm for unknown role %q", cp.Role)
		}
		if err := s.roles.UpsertColumnPerm(ctx, &domain.ColumnPerm{
			RoleID: roleID, TableID: table.ID, ColumnName: cp.Column,
			Visibility: cp.Visibility, EditMode: cp.EditMode,
		}); err != nil {
			return fmt.Errorf("column perm for %q/%q: %w", cp.Role, cp.Column, err)
		}
	}

	for _, g := range st.Grants {
		grant := &domain.Grant{
			TableID:    table.ID,
			ColumnName: g.Column,
			TargetType: g.Target,
			TargetRef:  g.Ref,
			CanView:    g.CanView,
			CanEdit:    g.CanEdit,
			IsHidden:   g.Hidden,
		}
		if g.Target == domain.TargetSpecificRole {
			if id, ok := roleIDs[g.Ref]; ok {
				grant.TargetRef = id
			}
		}
		if g.RecordKey != "" {
			id, ok := recordIDs[g.RecordKey]
			if !ok {
				return fmt.Errorf("grant references unknown record %q", g.RecordKey)
			}
			grant.RecordID = id
		}
		if _, err := s.grants.Create(ctx, grant); err != nil {
			return fmt.Errorf("grant on %q: %w", g.Column, err)
		}
	}

	for _, p := range st.Policies {
		roleID, ok := roleIDs[p.Role]
		if !ok {
			return fmt.Errorf("policy for unknown role %q", p.Role)
		}
		if _, err := s.policies.Create(ctx, &domain.RowPolicy{
			RoleID: roleID, TableID: table.ID, Template: p.Template,
		}); err != nil {
			return fmt.Errorf("policy for %q: %w", p.Role, err)
		}
	}

	for _, r := range st.Rules {
		rule := &domain.CellRule{
			TableID:   table.ID,
			Condition: r.Condition,
			Columns:   r.Columns,
			Mode:      r.Mode,
		}
		if r.Role != "" {
			roleID, ok := roleIDs[r.Role]
			if !ok {
				return fmt.Errorf("rule for unknown role %q", r.Role)
			}
			rule.RoleID = &roleID
		}
		if _, err := s.rules.Create(ctx, rule); err != nil {
			return fmt.Errorf("rule on %v: %w", r.Columns, err)
		}
	}

	for _, l := range st.Locks {
		id, ok := recordIDs[l.RecordKey]
		if !ok {
			return fmt.Errorf("lock references unknown record %q", l.RecordKey)
		}
		lock := &domain.ManualLock{
			TableID:    table.ID,
			RecordID:   id,
			ColumnName: l.Column,
			Mode:       l.Mode,
			TargetType: l.Target,
			TargetRef:  l.Ref,
		}
		if l.Target == domain.TargetSpecificRole {
			if rid, ok := roleIDs[l.Ref]; ok {
				lock.TargetRef = rid
			}
		}
		if _, err := s.locks.Create(ctx, lock); err != nil {
			return fmt.Errorf("lock on %q/%q: %w", l.RecordKey, l.Column, err)
		}
	}
	return nil
}

// resolveLinks rewrites "@key" record references in link cells to the ids
// assigned during seeding. Tables must be declared before tables that link
// to them.
func resolveLinks(fields map[string]any, recordIDs map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case string:
			resolved, err := resolveLinkRef(val, recordIDs)
			if err != nil {
				return nil, err
			}
			out[name] = resolved
		case []any:
			items := make([]any, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					resolved, err := resolveLinkRef(s, recordIDs)
					if err != nil {
						return nil, err
					}
					items = append(items, resolved)
					continue
				}
				items = append(items, item)
			}
			out[name] = items
		default:
			out[name] = v
		}
	}
	return out, nil
}

func resolveLinkRef(s string, recordIDs map[string]string) (any, error) {
	if len(s) < 2 || s[0] != '@' {
		return s, nil
	}
	id, ok := recordIDs[s[1:]]
	if !ok {
		return nil, fmt.Errorf("unknown record reference %q", s)
	}
	return id, nil
}
