// Package app provides application-level wiring and dependency injection.
package app

import (
	"database/sql"
	"log/slog"

	"gridbase/internal/api"
	"gridbase/internal/config"
	"gridbase/internal/db/repository"
	"gridbase/internal/service/catalog"
	"gridbase/internal/service/derive"
	"gridbase/internal/service/governance"
	"gridbase/internal/service/records"
	"gridbase/internal/service/security"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config, and the root logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App holds the fully-wired application: services plus the API handler.
type App struct {
	Records     *records.Service
	Catalog     *catalog.Service
	Grants      *security.GrantService
	Roles       *security.RoleService
	Memberships *security.MembershipService
	Audit       *governance.AuditService
	Handler     *api.APIHandler

	seeder *seeder
	logger *slog.Logger
}

// New wires all repositories and services from the provided deps.
func New(deps Deps) *App {
	// Repositories on the write pool.
	baseRepo := repository.NewBaseRepo(deps.WriteDB)
	tableRepo := repository.NewTableRepo(deps.WriteDB)
	columnRepo := repository.NewColumnRepo(deps.WriteDB)
	recordRepo := repository.NewRecordRepo(deps.WriteDB)
	roleRepo := repository.NewRoleRepo(deps.WriteDB)
	membershipRepo := repository.NewMembershipRepo(deps.WriteDB)
	grantRepo := repository.NewGrantRepo(deps.WriteDB)
	policyRepo := repository.NewRowPolicyRepo(deps.WriteDB)
	cellRuleRepo := repository.NewCellRuleRepo(deps.WriteDB)
	lockRepo := repository.NewManualLockRepo(deps.WriteDB)
	auditRepo := repository.NewAuditRepo(deps.WriteDB)

	// Read-only paths go through the read pool.
	readRecordRepo := repository.NewRecordRepo(deps.ReadDB)
	readAuditRepo := repository.NewAuditRepo(deps.ReadDB)

	resolver := security.NewPermissionResolver()
	policyEval := security.NewRowPolicyEvaluator()
	cellEval := security.NewCellOverrideEvaluator(resolver)
	auth := security.NewAuthorizationService(
		tableRepo, columnRepo, roleRepo, membershipRepo,
		grantRepo, policyRepo, cellRuleRepo, lockRepo,
		resolver, deps.Logger.With("component", "authz"),
	)

	engine := derive.NewEngine(readRecordRepo, deps.Logger.With("component", "derive"))

	recordsSvc := records.NewService(
		auth, policyEval, cellEval, engine,
		recordRepo, auditRepo, deps.Logger.With("component", "records"),
	)
	catalogSvc := catalog.NewService(
		baseRepo, tableRepo, columnRepo, membershipRepo,
		auth, auditRepo, deps.Logger.With("component", "catalog"),
	)
	grantSvc := security.NewGrantService(tableRepo, membershipRepo, grantRepo, lockRepo, auditRepo)
	roleSvc := security.NewRoleService(tableRepo, membershipRepo, roleRepo, policyRepo, cellRuleRepo, auditRepo)
	membershipSvc := security.NewMembershipService(tableRepo, baseRepo, membershipRepo, roleRepo, auditRepo)
	auditSvc := governance.NewAuditService(readAuditRepo, membershipRepo)

	handler := api.NewHandler(recordsSvc, catalogSvc, grantSvc, roleSvc, membershipSvc, auditSvc)

	return &App{
		Records:     recordsSvc,
		Catalog:     catalogSvc,
		Grants:      grantSvc,
		Roles:       roleSvc,
		Memberships: membershipSvc,
		Audit:       auditSvc,
		Handler:     handler,
		seeder: &seeder{
			bases:       baseRepo,
			tables:      tableRepo,
			columns:     columnRepo,
			records:     recordRepo,
			roles:       roleRepo,
			memberships: membershipRepo,
			grants:      grantRepo,
			policies:    policyRepo,
			rules:       cellRuleRepo,
			locks:       lockRepo,
		},
		logger: deps.Logger,
	}
}
