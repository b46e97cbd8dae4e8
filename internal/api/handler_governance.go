package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gridbase/internal/domain"
)

// auditService defines the audit operations used by the API handler.
type auditService interface {
	List(ctx context.Context, baseID string, page domain.PageRequest) ([]domain.AuditEntry, int64, error)
}

func (h *APIHandler) listAudit(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	entries, total, err := h.audit.List(r.Context(), chi.URLParam(r, "baseID"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":       entries,
		"total":         total,
		"nextPageToken": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}
