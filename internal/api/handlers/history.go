package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/camvision/internal/domain/history"
)

// HistoryReader is satisfied by history.Service.
type HistoryReader interface {
	List(ctx context.Context, filter history.ListFilter) ([]*history.Entry, int, error)
	GetByID(ctx context.Context, id string) (*history.Entry, error)
	GetSession(ctx context.Context, id string) (*history.Session, error)
}

// HistoryHandler serves past dispatches and sessions.
type HistoryHandler struct {
	svc HistoryReader
}

func NewHistoryHandler(svc HistoryReader) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// ListHistoryResponse is the response body for listing history.
type ListHistoryResponse struct {
	Data []*history.Entry `json:"data"`
	Meta Meta             `json:"meta"`
}

// ListHistory handles GET /api/v1/history?limit=&offset=&session_id=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	entries, total, err := h.svc.List(r.Context(), history.ListFilter{
		SessionID: r.URL.Query().Get("session_id"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	writeJSON(w, http.StatusOK, ListHistoryResponse{
		Data: entries,
		Meta: Meta{Total: total, Limit: page.Limit, Offset: page.Offset},
	})
}

// GetEntry handles GET /api/v1/history/{id}
func (h *HistoryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dispatch not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get dispatch")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *HistoryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
