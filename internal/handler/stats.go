package handler

import (
	"net/http"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/go-chi/chi/v5"
)

// StatsHandler serves the dashboard counters.
type StatsHandler struct {
	Materials repository.MaterialRepository
	Recipes   repository.RecipeRepository
	Orders    repository.OrderRepository
	Sales     *service.SalesAggregator
	Calendar  jalali.Calendar
}

func (h StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.stats)
}

func (h StatsHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	materials, err := h.Materials.Count(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recipes, err := h.Recipes.Count(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	orders, err := h.Orders.Count(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	today := h.Calendar.Today()
	month, err := h.Sales.GetSummary(ctx, jalali.Date{Year: today.Year, Month: today.Month, Day: 1}, today)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"materials":   materials,
		"recipes":     recipes,
		"orders":      orders,
		"monthSales":  month.TotalSales,
		"monthOrders": month.TotalOrders,
		"today":       today.String(),
	})
}
