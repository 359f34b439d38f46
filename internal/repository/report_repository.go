package repository

import (
	"context"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
)

// ReportRepository answers read-only sales questions straight from orders.
type ReportRepository struct {
	DB *db.SQLite
}

type CategorySales struct {
	Category      string `db:"category" json:"category"`
	TotalSales    int64  `db:"total_sales" json:"totalSales"`
	TotalQuantity int64  `db:"total_quantity" json:"totalQuantity"`
}

type HourSales struct {
	Hour       string `db:"hour" json:"hour"`
	TotalSales int64  `db:"total_sales" json:"totalSales"`
	OrderCount int64  `db:"order_count" json:"orderCount"`
}

type ItemSales struct {
	MenuItemID    int64  `db:"menu_item_id" json:"menuItemId"`
	Name          string `db:"name" json:"name"`
	TotalQuantity int64  `db:"total_quantity" json:"totalQuantity"`
	TotalSales    int64  `db:"total_sales" json:"totalSales"`
}

// SalesByCategory covers every recipe category, including unsold ones. Order
// items reference recipes through menu_item_id.
func (r ReportRepository) SalesByCategory(ctx context.Context) ([]CategorySales, error) {
	items := []CategorySales{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT c.category,
		       COALESCE(SUM(oi.total_price), 0) AS total_sales,
		       COALESCE(SUM(oi.quantity), 0) AS total_quantity
		FROM (SELECT DISTINCT category FROM recipes) c
		LEFT JOIN recipes rc ON rc.category = c.category
		LEFT JOIN order_items oi ON oi.menu_item_id = rc.id
		GROUP BY c.category
		ORDER BY total_sales DESC, c.category ASC
	`); err != nil {
		return nil, db.Classify(err, "sales by category")
	}
	return items, nil
}

// SalesByHour groups orders by the hour of their local wall clock.
func (r ReportRepository) SalesByHour(ctx context.Context, datePrefix string) ([]HourSales, error) {
	items := []HourSales{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT substr(jalali_time, 1, 2) || ':00' AS hour,
		       COALESCE(SUM(total_amount), 0) AS total_sales,
		       COUNT(*) AS order_count
		FROM orders
		WHERE jalali_date LIKE ?
		GROUP BY substr(jalali_time, 1, 2)
		ORDER BY hour ASC
	`, datePrefix+"%"); err != nil {
		return nil, db.Classify(err, "sales by hour")
	}
	return items, nil
}

// BestSellers ranks menu items by quantity sold within datePrefix ("" for all time).
func (r ReportRepository) BestSellers(ctx context.Context, datePrefix string, limit int, ascending bool) ([]ItemSales, error) {
	if limit <= 0 {
		limit = 5
	}
	dir := "DESC"
	if ascending {
		dir = "ASC"
	}
	items := []ItemSales{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT oi.menu_item_id,
		       MAX(oi.menu_item_name) AS name,
		       SUM(oi.quantity) AS total_quantity,
		       SUM(oi.total_price) AS total_sales
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.jalali_date LIKE ?
		GROUP BY oi.menu_item_id
		ORDER BY total_quantity `+dir+`, total_sales `+dir+`, oi.menu_item_id ASC
		LIMIT ?
	`, datePrefix+"%", limit); err != nil {
		return nil, db.Classify(err, "best sellers")
	}
	return items, nil
}
