package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gridbase/internal/domain"
)

// catalogService defines the schema operations used by the API handler.
type catalogService interface {
	CreateBase(ctx context.Context, req domain.CreateBaseRequest) (*domain.Base, error)
	GetBase(ctx context.Context, baseID string) (*domain.Base, error)
	DeleteBase(ctx context.Context, baseID string) error
	CreateTable(ctx context.Context, req domain.CreateTableRequest) (*domain.Table, error)
	ListTables(ctx context.Context, baseID string) ([]domain.Table, error)
	DeleteTable(ctx context.Context, tableID string) error
	CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (*domain.Column, error)
	ListColumns(ctx context.Context, tableID string) ([]domain.Column, error)
	RenameColumn(ctx context.Context, tableID, columnID, name string) (*domain.Column, error)
	UpdateColumnOptions(ctx context.Context, tableID, columnID string, opts domain.ColumnOptions) (*domain.Column, error)
	DeleteColumn(ctx context.Context, tableID, columnID string) error
}

type createBaseRequest struct {
	Name string `json:"name"`
}

type baseResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
}

func (h *APIHandler) createBase(w http.ResponseWriter, r *http.Request) {
	var req createBaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	base, err := h.catalog.CreateBase(r.Context(), domain.CreateBaseRequest{Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, baseResponse{ID: base.ID, Name: base.Name, CreatedBy: base.CreatedBy})
}

func (h *APIHandler) getBase(w http.ResponseWriter, r *http.Request) {
	base, err := h.catalog.GetBase(r.Context(), chi.URLParam(r, "baseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, baseResponse{ID: base.ID, Name: base.Name, CreatedBy: base.CreatedBy})
}

func (h *APIHandler) deleteBase(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteBase(r.Context(), chi.URLParam(r, "baseID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTableRequest struct {
	Name string `json:"name"`
}

type tableResponse struct {
	ID     string `json:"id"`
	BaseID string `json:"baseId"`
	Name   string `json:"name"`
}

func tableToAPI(t *domain.Table) tableResponse {
	return tableResponse{ID: t.ID, BaseID: t.BaseID, Name: t.Name}
}

func (h *APIHandler) createTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	table, err := h.catalog.CreateTable(r.Context(), domain.CreateTableRequest{
		BaseID: chi.URLParam(r, "baseID"),
		Name:   req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableToAPI(table))
}

func (h *APIHandler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.catalog.ListTables(r.Context(), chi.URLParam(r, "baseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tableResponse, len(tables))
	for i := range tables {
		out[i] = tableToAPI(&tables[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) deleteTable(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteTable(r.Context(), chi.URLParam(r, "tableID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createColumnRequest struct {
	Name     string               `json:"name"`
	DataType string               `json:"dataType"`
	Options  domain.ColumnOptions `json:"options"`
}

type columnResponse struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	DataType string               `json:"dataType"`
	Position int                  `json:"position"`
	Options  domain.ColumnOptions `json:"options"`
}

func columnToAPI(c *domain.Column) columnResponse {
	return columnResponse{
		ID:       c.ID,
		Name:     c.Name,
		DataType: string(c.DataType),
		Position: c.Position,
		Options:  c.Options,
	}
}

func (h *APIHandler) createColumn(w http.ResponseWriter, r *http.Request) {
	var req createColumnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	col, err := h.catalog.CreateColumn(r.Context(), domain.CreateColumnRequest{
		TableID:  chi.URLParam(r, "tableID"),
		Name:     req.Name,
		DataType: domain.DataType(req.DataType),
		Options:  req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, columnToAPI(col))
}

func (h *APIHandler) listColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.catalog.ListColumns(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]columnResponse, len(cols))
	for i := range cols {
		out[i] = columnToAPI(&cols[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateColumnRequest struct {
	Name    *string               `json:"name,omitempty"`
	Options *domain.ColumnOptions `json:"options,omitempty"`
}

func (h *APIHandler) updateColumn(w http.ResponseWriter, r *http.Request) {
	var req updateColumnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tableID := chi.URLParam(r, "tableID")
	columnID := chi.URLParam(r, "columnID")

	var col *domain.Column
	var err error
	switch {
	case req.Name != nil:
		col, err = h.catalog.RenameColumn(r.Context(), tableID, columnID, *req.Name)
	case req.Options != nil:
		col, err = h.catalog.UpdateColumnOptions(r.Context(), tableID, columnID, *req.Options)
	default:
		writeError(w, domain.ErrValidation("nothing to update"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, columnToAPI(col))
}

func (h *APIHandler) deleteColumn(w http.ResponseWriter, r *http.Request) {
	err := h.catalog.DeleteColumn(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "columnID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
