package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	Orders *service.OrderService
	Sales  *service.SalesAggregator
}

func (h OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Delete("/orders/clear-cache", h.clearCache)
	r.Get("/orders/{id}", h.get)
	r.Put("/orders/{id}", h.update)
	r.Delete("/orders/{id}", h.delete)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Get("/orders/{id}/items", h.items)
	r.Post("/orders/{id}/items", h.addItem)
	r.Put("/orders/{id}/items/{itemId}", h.updateItem)
	r.Delete("/orders/{id}/items/{itemId}", h.removeItem)

	// flat item routes used by the admin client
	r.Get("/order-items", h.itemsByQuery)
	r.Post("/order-items", h.addItem)
	r.Put("/order-items/{itemId}", h.updateItem)
	r.Delete("/order-items/{itemId}", h.removeItem)
}

type orderLine struct {
	MenuItemID   int64  `json:"menuItemId"`
	MenuItemName string `json:"menuItemName"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
}

type orderPayload struct {
	Items         []orderLine `json:"items"`
	CustomerName  string      `json:"customerName"`
	PaymentMethod string      `json:"paymentMethod"`
	Notes         string      `json:"notes"`
	IsPaid        bool        `json:"isPaid"`
	ClientRef     string      `json:"clientRef"`
}

func (h OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req orderPayload
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.OrderLine{
			MenuItemID:   it.MenuItemID,
			MenuItemName: it.MenuItemName,
			Price:        it.Price,
			Quantity:     it.Quantity,
		})
	}
	ref := req.ClientRef
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		ref = key
	}

	res, err := h.Orders.Create(r.Context(), service.CreateOrderInput{
		Items:         lines,
		CustomerName:  req.CustomerName,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		IsPaid:        req.IsPaid,
		ClientRef:     ref,
		UserID:        operatorID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, status, toOrder(res.Order))
}

func (h OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		status = &s
	}
	orders, err := h.Orders.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrder(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h OrderHandler) items(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := h.Orders.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderItems(items))
}

func (h OrderHandler) itemsByQuery(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("orderId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "valid orderId is required")
		return
	}
	items, err := h.Orders.Items(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderItems(items))
}

// orderScope returns the order id from the path, or zero on the flat routes.
func orderScope(r *http.Request) (int64, error) {
	if chi.URLParam(r, "id") == "" {
		return 0, nil
	}
	return idParam(r)
}

func (h OrderHandler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderScope(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		orderLine
		OrderID int64 `json:"orderId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if orderID == 0 {
		orderID = req.OrderID
	}
	res, err := h.Orders.AddItem(r.Context(), orderID, domain.OrderLine{
		MenuItemID:   req.MenuItemID,
		MenuItemName: req.MenuItemName,
		Price:        req.Price,
		Quantity:     req.Quantity,
	}, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemChange(res))
}

func (h OrderHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderScope(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	itemID, err := int64Param(r, "itemId")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		MenuItemID   *int64  `json:"menuItemId"`
		MenuItemName *string `json:"menuItemName"`
		Price        *int64  `json:"price"`
		Quantity     *int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.Orders.UpdateItem(r.Context(), orderID, itemID, service.ItemPatch{
		MenuItemID:   req.MenuItemID,
		MenuItemName: req.MenuItemName,
		Price:        req.Price,
		Quantity:     req.Quantity,
	}, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemChange(res))
}

func (h OrderHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderScope(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	itemID, err := int64Param(r, "itemId")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.Orders.RemoveItem(r.Context(), orderID, itemID, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemChange(res))
}

func (h OrderHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		CustomerName  *string `json:"customerName"`
		PaymentMethod *string `json:"paymentMethod"`
		Notes         *string `json:"notes"`
		IsPaid        *bool   `json:"isPaid"`
		Status        *string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	in := repository.UpdateOrderInput{
		CustomerName:  req.CustomerName,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		IsPaid:        req.IsPaid,
	}
	if req.Status != nil {
		s := domain.OrderStatus(*req.Status)
		in.Status = &s
	}
	o, err := h.Orders.Update(r.Context(), id, in, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), id, domain.OrderStatus(req.Status), operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h OrderHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.Orders.Delete(r.Context(), id, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": o.ID, "orderNumber": o.OrderNumber})
}

// clearCache resets the sales rollup of a scope; omitting type clears all.
func (h OrderHandler) clearCache(w http.ResponseWriter, r *http.Request) {
	scope, err := jalali.ParseScope(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.Sales.ClearCache(r.Context(), scope, operatorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func toOrder(o *domain.Order) map[string]any {
	resp := map[string]any{
		"id":            o.ID,
		"orderNumber":   o.OrderNumber,
		"clientRef":     derefString(o.ClientRef),
		"customerName":  derefString(o.CustomerName),
		"totalAmount":   o.TotalAmount,
		"isPaid":        o.IsPaid,
		"paymentMethod": derefString(o.PaymentMethod),
		"status":        string(o.Status),
		"notes":         derefString(o.Notes),
		"jalaliDate":    o.JalaliDate,
		"jalaliTime":    o.JalaliTime,
		"createdAt":     o.CreatedAt.Format(time.RFC3339),
		"updatedAt":     o.UpdatedAt.Format(time.RFC3339),
	}
	if o.Items != nil {
		resp["items"] = toOrderItems(o.Items)
	}
	return resp
}

func toOrderItems(items []domain.OrderItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, toOrderItem(it))
	}
	return out
}

func toOrderItem(it domain.OrderItem) map[string]any {
	return map[string]any{
		"id":           it.ID,
		"orderId":      it.OrderID,
		"menuItemId":   it.MenuItemID,
		"menuItemName": it.MenuItemName,
		"price":        it.Price,
		"quantity":     it.Quantity,
		"totalPrice":   it.TotalPrice,
	}
}

func toItemChange(c service.ItemChange) map[string]any {
	return map[string]any{
		"item":  toOrderItem(c.Item),
		"order": toOrder(c.Order),
	}
}
