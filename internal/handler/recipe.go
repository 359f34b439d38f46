package handler

import (
	"net/http"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type RecipeHandler struct {
	Service *service.CatalogService
}

func (h RecipeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/recipes", h.list)
	r.Post("/recipes", h.create)
	r.Get("/recipes/{id}", h.get)
	r.Put("/recipes/{id}", h.update)
	r.Delete("/recipes/{id}", h.delete)
	r.Get("/recipes/{id}/ingredients", h.ingredients)
	r.Put("/recipes/{id}/ingredients", h.replaceIngredients)
	r.Post("/recipes/{id}/recalculate", h.recalculate)
	r.Get("/menu-items", h.menuItems)
}

type ingredientPayload struct {
	MaterialID int64 `json:"materialId"`
	Amount     int64 `json:"amount"`
}

func toIngredientInputs(items []ingredientPayload) []repository.IngredientInput {
	out := make([]repository.IngredientInput, 0, len(items))
	for _, it := range items {
		out = append(out, repository.IngredientInput{MaterialID: it.MaterialID, Amount: it.Amount})
	}
	return out
}

func (h RecipeHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListRecipes(r.Context(), r.URL.Query().Get("ingredients") != "false")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for i := range items {
		resp = append(resp, toRecipe(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h RecipeHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rc, err := h.Service.GetRecipe(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipe(rc))
}

func (h RecipeHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string              `json:"name"`
		Category         string              `json:"category"`
		Description      string              `json:"description"`
		ImageURL         string              `json:"imageUrl"`
		PriceCoefficient *decimal.Decimal    `json:"priceCoefficient"`
		Ingredients      []ingredientPayload `json:"ingredients"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	in := service.RecipeInput{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Ingredients: toIngredientInputs(req.Ingredients),
	}
	if req.PriceCoefficient != nil {
		in.PriceCoefficient = *req.PriceCoefficient
		if in.PriceCoefficient.IsZero() {
			writeDomainError(w, domain.Validationf("priceCoefficient must be at least %s", domain.MinPriceCoefficient))
			return
		}
	}
	rc, err := h.Service.CreateRecipe(r.Context(), in, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipe(rc))
}

func (h RecipeHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		Name             *string              `json:"name"`
		Category         *string              `json:"category"`
		Description      *string              `json:"description"`
		ImageURL         *string              `json:"imageUrl"`
		PriceCoefficient *decimal.Decimal     `json:"priceCoefficient"`
		Ingredients      *[]ingredientPayload `json:"ingredients"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	patch := service.RecipePatch{
		Name:             req.Name,
		Category:         req.Category,
		Description:      req.Description,
		ImageURL:         req.ImageURL,
		PriceCoefficient: req.PriceCoefficient,
	}
	if req.Ingredients != nil {
		items := toIngredientInputs(*req.Ingredients)
		patch.Ingredients = &items
	}
	rc, err := h.Service.UpdateRecipe(r.Context(), id, patch, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipe(rc))
}

func (h RecipeHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Service.DeleteRecipe(r.Context(), id, operatorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h RecipeHandler) ingredients(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rc, err := h.Service.GetRecipe(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredients(rc.Ingredients))
}

func (h RecipeHandler) replaceIngredients(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		Ingredients []ingredientPayload `json:"ingredients"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	rc, err := h.Service.ReplaceIngredients(r.Context(), id, toIngredientInputs(req.Ingredients), operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipe(rc))
}

func (h RecipeHandler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rc, err := h.Service.RecalculatePrice(r.Context(), id, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        rc.ID,
		"costPrice": rc.CostPrice,
		"sellPrice": rc.SellPrice,
	})
}

func (h RecipeHandler) menuItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.MenuItems(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func toRecipe(rc *domain.Recipe) map[string]any {
	resp := map[string]any{
		"id":               rc.ID,
		"name":             rc.Name,
		"category":         rc.Category,
		"description":      derefString(rc.Description),
		"imageUrl":         derefString(rc.ImageURL),
		"priceCoefficient": rc.PriceCoefficient.InexactFloat64(),
		"costPrice":        rc.CostPrice,
		"sellPrice":        rc.SellPrice,
		"createdAt":        rc.CreatedAt.Format(time.RFC3339),
		"updatedAt":        rc.UpdatedAt.Format(time.RFC3339),
	}
	if rc.Ingredients != nil {
		resp["ingredients"] = toIngredients(rc.Ingredients)
	}
	return resp
}

func toIngredients(items []domain.RecipeIngredient) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"id":            it.ID,
			"materialId":    it.MaterialID,
			"materialName":  it.MaterialName,
			"unit":          it.MaterialUnit,
			"materialPrice": it.MaterialPrice,
			"amount":        it.Amount,
		})
	}
	return out
}
