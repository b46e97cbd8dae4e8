// Package api provides the HTTP handlers for the gridbase REST API.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gridbase/internal/domain"
	"gridbase/internal/middleware"
)

// APIHandler holds the services the HTTP surface delegates to.
type APIHandler struct {
	records     recordService
	catalog     catalogService
	grants      grantService
	roles       roleService
	memberships membershipService
	audit       auditService
}

// NewHandler creates an APIHandler with all required service dependencies.
func NewHandler(
	records recordService,
	catalog catalogService,
	grants grantService,
	roles roleService,
	memberships membershipService,
	audit auditService,
) *APIHandler {
	return &APIHandler{
		records:     records,
		catalog:     catalog,
		grants:      grants,
		roles:       roles,
		memberships: memberships,
		audit:       audit,
	}
}

// RouterConfig carries the middleware knobs the router needs.
type RouterConfig struct {
	JWTSecret          string
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// NewRouter assembles the chi router: request ids, CORS, per-client rate
// limiting, and bearer-token authentication ahead of every API route.
func NewRouter(h *APIHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Route("/bases", func(r chi.Router) {
			r.Post("/", h.createBase)
			r.Get("/{baseID}", h.getBase)
			r.Delete("/{baseID}", h.deleteBase)
			r.Get("/{baseID}/tables", h.listTables)
			r.Post("/{baseID}/tables", h.createTable)
			r.Get("/{baseID}/roles", h.listRoles)
			r.Post("/{baseID}/roles", h.createRole)
			r.Get("/{baseID}/members", h.listMembers)
			r.Post("/{baseID}/members", h.addMember)
			r.Delete("/{baseID}/members/{membershipID}", h.removeMember)
			r.Get("/{baseID}/audit", h.listAudit)
		})

		r.Route("/tables/{tableID}", func(r chi.Router) {
			r.Delete("/", h.deleteTable)

			r.Get("/columns", h.listColumns)
			r.Post("/columns", h.createColumn)
			r.Patch("/columns/{columnID}", h.updateColumn)
			r.Delete("/columns/{columnID}", h.deleteColumn)

			r.Post("/records/query", h.queryRecords)
			r.Post("/records", h.createRecord)
			r.Get("/records/{recordID}", h.getRecord)
			r.Patch("/records/{recordID}", h.updateRecord)
			r.Delete("/records/{recordID}", h.deleteRecord)

			r.Get("/grants", h.listGrants)
			r.Post("/grants", h.createGrant)
			r.Delete("/grants/{grantID}", h.deleteGrant)

			r.Get("/locks", h.listLocks)
			r.Post("/locks", h.createLock)
			r.Delete("/locks/{lockID}", h.deleteLock)

			r.Post("/policies", h.attachPolicy)
			r.Delete("/policies/{policyID}", h.detachPolicy)

			r.Post("/rules", h.createRule)
			r.Delete("/rules/{ruleID}", h.deleteRule)

			r.Put("/perms/table", h.setTablePerm)
			r.Put("/perms/columns", h.setColumnPerm)
		})

		r.Delete("/roles/{roleID}", h.deleteRole)
	})

	return r
}

// pageFromQuery extracts pagination from max_results/page_token params.
func pageFromQuery(r *http.Request) domain.PageRequest {
	q := r.URL.Query()
	p := domain.PageRequest{PageToken: q.Get("page_token")}
	if raw := q.Get("max_results"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.MaxResults = n
		}
	}
	return p
}
