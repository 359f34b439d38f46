package handler

import (
	"net/http"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/go-chi/chi/v5"
)

type MaterialHandler struct {
	Service *service.CatalogService
}

func (h MaterialHandler) RegisterRoutes(r chi.Router) {
	r.Get("/materials", h.list)
	r.Post("/materials", h.create)
	r.Get("/materials/{id}", h.get)
	r.Put("/materials/{id}", h.update)
	r.Delete("/materials/{id}", h.delete)
	r.Get("/materials/{id}/stock", h.stock)
	r.Put("/materials/{id}/stock", h.adjustStock)
	r.Get("/materials/{id}/stock/history", h.history)
}

type materialPayload struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Unit        string `json:"unit"`
	Stock       int64  `json:"stock"`
	Description string `json:"description"`
}

func (p materialPayload) input() service.MaterialInput {
	return service.MaterialInput{
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price,
		Unit:        p.Unit,
		Stock:       p.Stock,
		Description: p.Description,
	}
}

func (h MaterialHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListMaterials(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for i := range items {
		resp = append(resp, toMaterial(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h MaterialHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.Service.GetMaterial(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMaterial(m))
}

func (h MaterialHandler) create(w http.ResponseWriter, r *http.Request) {
	var req materialPayload
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.Service.CreateMaterial(r.Context(), req.input(), operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMaterial(m))
}

func (h MaterialHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req materialPayload
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.Service.UpdateMaterial(r.Context(), id, req.input(), operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := toMaterial(res.Material)
	repriced := res.Recipes
	if repriced == nil {
		repriced = []int64{}
	}
	resp["repricedRecipes"] = repriced
	writeJSON(w, http.StatusOK, resp)
}

func (h MaterialHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Service.DeleteMaterial(r.Context(), id, operatorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h MaterialHandler) stock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := h.Service.GetMaterial(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    m.ID,
		"name":  m.Name,
		"stock": m.Stock,
		"unit":  m.Unit,
	})
}

func (h MaterialHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		Change int64  `json:"change"`
		Type   string `json:"type"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	m, mv, err := h.Service.AdjustStock(r.Context(), id, repository.AdjustStockInput{
		Change: req.Change,
		Type:   domain.StockMovementType(req.Type),
		Note:   req.Note,
	}, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"material": toMaterial(m),
		"movement": toStockMovement(*mv),
	})
}

func (h MaterialHandler) history(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := h.Service.StockMovements(r.Context(), id, limitQuery(r, 50))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, mv := range items {
		resp = append(resp, toStockMovement(mv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toMaterial(m *domain.Material) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"name":        m.Name,
		"category":    m.Category,
		"price":       m.Price,
		"unit":        m.Unit,
		"stock":       m.Stock,
		"description": derefString(m.Description),
		"createdAt":   m.CreatedAt.Format(time.RFC3339),
		"updatedAt":   m.UpdatedAt.Format(time.RFC3339),
	}
}

func toStockMovement(mv domain.StockMovement) map[string]any {
	return map[string]any{
		"id":         mv.ID,
		"materialId": mv.MaterialID,
		"change":     mv.Change,
		"remaining":  mv.Remaining,
		"type":       string(mv.Type),
		"note":       mv.Note,
		"timestamp":  mv.CreatedAt.Format(time.RFC3339),
	}
}
