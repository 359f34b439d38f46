package handler

import (
	"net/http"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/go-chi/chi/v5"
)

// ActivityLogHandler is read-only; entries are written by the services.
type ActivityLogHandler struct {
	Repo repository.ActivityLogRepository
}

func (h ActivityLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/activities", h.list)
}

func (h ActivityLogHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Repo.List(r.Context(), limitQuery(r, 10))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, a := range items {
		resp = append(resp, map[string]any{
			"id":          a.ID,
			"type":        string(a.Type),
			"entity":      a.Entity,
			"entityId":    a.EntityID,
			"entityName":  derefString(a.EntityName),
			"description": a.Description,
			"userId":      a.UserID,
			"timestamp":   a.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
