package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gridbase/internal/domain"
)

// recordService defines the record operations used by the API handler.
type recordService interface {
	Retrieve(ctx context.Context, tableID string, opts domain.QueryOptions) (*domain.RecordPage, error)
	Get(ctx context.Context, tableID, recordID string) (*domain.RecordView, error)
	Create(ctx context.Context, req domain.CreateRecordRequest) (*domain.Record, error)
	Update(ctx context.Context, req domain.UpdateRecordRequest) (*domain.Record, error)
	Delete(ctx context.Context, tableID, recordID string) error
}

// filterNode is the wire form of a predicate tree.
type filterNode struct {
	Op       string       `json:"op"`
	Field    string       `json:"field,omitempty"`
	Value    any          `json:"value,omitempty"`
	Values   []any        `json:"values,omitempty"`
	Children []filterNode `json:"children,omitempty"`
}

func (n filterNode) toPredicate() *domain.Predicate {
	p := &domain.Predicate{Op: n.Op, Field: n.Field, Value: n.Value, Values: n.Values}
	for _, c := range n.Children {
		p.Children = append(p.Children, c.toPredicate())
	}
	return p
}

type queryRecordsRequest struct {
	Filter     *filterNode `json:"filter,omitempty"`
	SortField  string      `json:"sortField,omitempty"`
	SortDesc   bool        `json:"sortDesc,omitempty"`
	MaxResults int         `json:"maxResults,omitempty"`
	PageToken  string      `json:"pageToken,omitempty"`
}

type recordPageResponse struct {
	Rows          []domain.RecordView `json:"rows"`
	Total         int64               `json:"total"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

func (h *APIHandler) queryRecords(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	var req queryRecordsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	opts := domain.QueryOptions{
		Page: domain.PageRequest{MaxResults: req.MaxResults, PageToken: req.PageToken},
	}
	if req.Filter != nil {
		opts.Filter = req.Filter.toPredicate()
	}
	if req.SortField != "" {
		opts.Sort = &domain.Sort{Field: req.SortField, Desc: req.SortDesc}
	}

	page, err := h.records.Retrieve(r.Context(), tableID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordPageResponse{
		Rows:          page.Rows,
		Total:         page.Total,
		NextPageToken: domain.NextPageToken(opts.Page.Offset(), opts.Page.Limit(), page.Total),
	})
}

type recordResponse struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedBy string         `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func recordToAPI(rec *domain.Record) recordResponse {
	return recordResponse{
		ID:        rec.ID,
		Fields:    rec.Fields,
		CreatedBy: rec.CreatedBy,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type writeRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

func (h *APIHandler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req writeRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.records.Create(r.Context(), domain.CreateRecordRequest{
		TableID: chi.URLParam(r, "tableID"),
		Fields:  req.Fields,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordToAPI(rec))
}

func (h *APIHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	view, err := h.records.Get(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) updateRecord(w http.ResponseWriter, r *http.Request) {
	var req writeRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.records.Update(r.Context(), domain.UpdateRecordRequest{
		TableID:  chi.URLParam(r, "tableID"),
		RecordID: chi.URLParam(r, "recordID"),
		Fields:   req.Fields,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToAPI(rec))
}

func (h *APIHandler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	err := h.records.Delete(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
