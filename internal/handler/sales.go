package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

type SalesHandler struct {
	Sales    *service.SalesAggregator
	Orders   *service.OrderService
	Reports  repository.ReportRepository
	Calendar jalali.Calendar
}

func (h SalesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sales-summary", h.summary)
	r.Get("/sales-summary/{date}", h.day)
	r.Post("/sales-summary/rebuild", h.rebuild)
	r.Get("/sales/by-category", h.byCategory)
	r.Get("/sales/by-hour", h.byHour)
	r.Get("/sales/best-sellers", h.bestSellers)
	r.Get("/sales/export", h.export)
}

// summary reports a from/to range day by day; without a range it lists the
// stored rollup rows.
func (h SalesHandler) summary(w http.ResponseWriter, r *http.Request) {
	from, to, ok, err := parseRangeQuery(r, h.Calendar)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		rows, err := h.Sales.ListStored(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]map[string]any, 0, len(rows))
		for _, s := range rows {
			resp = append(resp, map[string]any{
				"id":          s.ID,
				"date":        s.Date,
				"totalSales":  s.TotalSales,
				"totalOrders": s.TotalOrders,
			})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	rep, err := h.Sales.GetSummary(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h SalesHandler) day(w http.ResponseWriter, r *http.Request) {
	d, err := jalali.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	day, err := h.Sales.GetDay(r.Context(), d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (h SalesHandler) rebuild(w http.ResponseWriter, r *http.Request) {
	scope, err := jalali.ParseScope(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.Sales.Rebuild(r.Context(), scope)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":   scope,
		"prefix":  h.Calendar.Prefix(scope),
		"rebuilt": n,
	})
}

func (h SalesHandler) byCategory(w http.ResponseWriter, r *http.Request) {
	items, err := h.Reports.SalesByCategory(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h SalesHandler) byHour(w http.ResponseWriter, r *http.Request) {
	prefix := h.Calendar.Today().String()
	if d, err := parseDateQuery(r, "date"); err != nil {
		writeDomainError(w, err)
		return
	} else if d != nil {
		prefix = d.String()
	}
	items, err := h.Reports.SalesByHour(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h SalesHandler) bestSellers(w http.ResponseWriter, r *http.Request) {
	prefix, err := periodPrefix(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ascending := false
	switch r.URL.Query().Get("order") {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		writeError(w, http.StatusBadRequest, "invalid order (use asc or desc)")
		return
	}
	items, err := h.Reports.BestSellers(r.Context(), prefix, limitQuery(r, 5), ascending)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h SalesHandler) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" && format != "excel" {
		writeError(w, http.StatusBadRequest, "invalid format (use csv or xlsx)")
		return
	}

	from, to, ok, err := parseRangeQuery(r, h.Calendar)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		to = h.Calendar.Today()
		from = jalali.Date{Year: to.Year, Month: to.Month, Day: 1}
	}
	orders, err := h.Orders.ExportRange(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filenameSuffix := fmt.Sprintf("%s_%s", jalali.CompactDate(from.String()), jalali.CompactDate(to.String()))

	switch format {
	case "csv":
		data, err := exportOrdersCSV(orders)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"orders_%s.csv\"", filenameSuffix))
		_, _ = w.Write(data)
	default:
		rep, err := h.Sales.GetSummary(r.Context(), from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		data, err := exportOrdersXLSX(orders, rep)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"orders_%s.xlsx\"", filenameSuffix))
		_, _ = w.Write(data)
	}
}

var orderExportHeader = []string{"order_number", "date", "time", "customer", "items", "total", "payment_method", "paid", "status"}

func orderExportRow(o domain.Order) []any {
	return []any{
		o.OrderNumber,
		o.JalaliDate,
		o.JalaliTime,
		derefString(o.CustomerName),
		itemsLabel(o.Items),
		o.TotalAmount,
		derefString(o.PaymentMethod),
		o.IsPaid,
		string(o.Status),
	}
}

func itemsLabel(items []domain.OrderItem) string {
	var buf bytes.Buffer
	for i, it := range items {
		if i > 0 {
			buf.WriteString("، ")
		}
		fmt.Fprintf(&buf, "%s ×%d", it.MenuItemName, it.Quantity)
	}
	return buf.String()
}

func exportOrdersCSV(orders []domain.Order) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(orderExportHeader)
	for _, o := range orders {
		row := orderExportRow(o)
		record := make([]string, 0, len(row))
		for _, v := range row {
			switch t := v.(type) {
			case string:
				record = append(record, t)
			case int64:
				record = append(record, strconv.FormatInt(t, 10))
			case bool:
				record = append(record, strconv.FormatBool(t))
			}
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportOrdersXLSX(orders []domain.Order, rep service.SummaryReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Orders"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	header := []string{"Order Number", "Date", "Time", "Customer", "Items", "Total", "Payment Method", "Paid", "Status"}
	for c, v := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, o := range orders {
		for c, v := range orderExportRow(o) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 16)
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "D", 20)
	_ = f.SetColWidth(sheet, "E", "E", 40)
	_ = f.SetColWidth(sheet, "F", "I", 14)

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E5E7EB"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "I1", style)

	daily := "Daily"
	if _, err := f.NewSheet(daily); err != nil {
		return nil, err
	}
	for c, v := range []string{"Date", "Total Sales", "Total Orders"} {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(daily, cell, v)
	}
	for r, d := range rep.Days {
		_ = f.SetSheetRow(daily, fmt.Sprintf("A%d", r+2), &[]any{d.Date, d.TotalSales, d.TotalOrders})
	}
	totalRow := len(rep.Days) + 2
	_ = f.SetSheetRow(daily, fmt.Sprintf("A%d", totalRow), &[]any{"Total", rep.TotalSales, rep.TotalOrders})
	_ = f.SetCellStyle(daily, "A1", "C1", style)
	_ = f.SetColWidth(daily, "A", "C", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
