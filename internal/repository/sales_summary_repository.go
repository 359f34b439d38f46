package repository

import (
	"context"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
)

// SalesSummaryRepository stores the per-day rollup of orders. Every row can
// be recomputed from the orders table.
type SalesSummaryRepository struct {
	DB *db.SQLite
}

const summaryColumns = `id, date, total_sales, total_orders, created_at, updated_at`

// RecordOrderWithTx adds one order to its day. When the day has no row yet it
// is computed from orders, which already include the new order in tx.
func (r SalesSummaryRepository) RecordOrderWithTx(ctx context.Context, tx *sqlx.Tx, date string, amount int64, now time.Time) error {
	now = now.UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales_summary (date, total_sales, total_orders, created_at, updated_at)
		SELECT ?, COALESCE(SUM(total_amount), 0), COUNT(*), ?, ?
		FROM orders
		WHERE jalali_date = ?
		ON CONFLICT (date) DO UPDATE SET
			total_sales = total_sales + ?,
			total_orders = total_orders + 1,
			updated_at = excluded.updated_at
	`, date, now, now, date, amount)
	if err != nil {
		return db.Classify(err, "record sales summary")
	}
	return nil
}

// RemoveOrderWithTx takes a deleted order out of its day, never below zero.
func (r SalesSummaryRepository) RemoveOrderWithTx(ctx context.Context, tx *sqlx.Tx, date string, amount int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales_summary
		SET total_sales = MAX(total_sales - ?, 0),
		    total_orders = MAX(total_orders - 1, 0),
		    updated_at = ?
		WHERE date = ?
	`, amount, now.UTC(), date)
	if err != nil {
		return db.Classify(err, "remove order from sales summary")
	}
	return nil
}

// AdjustSalesWithTx moves the sales of date by delta after an order's items
// changed. The order count stays; a missing day is computed from orders.
func (r SalesSummaryRepository) AdjustSalesWithTx(ctx context.Context, tx *sqlx.Tx, date string, delta int64, now time.Time) error {
	now = now.UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales_summary (date, total_sales, total_orders, created_at, updated_at)
		SELECT ?, COALESCE(SUM(total_amount), 0), COUNT(*), ?, ?
		FROM orders
		WHERE jalali_date = ?
		ON CONFLICT (date) DO UPDATE SET
			total_sales = MAX(total_sales + ?, 0),
			updated_at = excluded.updated_at
	`, date, now, now, date, delta)
	if err != nil {
		return db.Classify(err, "adjust sales summary")
	}
	return nil
}

// DeleteByPrefixWithTx drops summary rows whose date starts with prefix; "" drops all.
func (r SalesSummaryRepository) DeleteByPrefixWithTx(ctx context.Context, tx *sqlx.Tx, prefix string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM sales_summary WHERE date LIKE ?`, prefix+"%")
	if err != nil {
		return 0, db.Classify(err, "clear sales summary")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.Classify(err, "clear sales summary")
	}
	return n, nil
}

// RebuildByPrefixWithTx recomputes every summary row under prefix from orders.
// Running it twice leaves the same rows.
func (r SalesSummaryRepository) RebuildByPrefixWithTx(ctx context.Context, tx *sqlx.Tx, prefix string, now time.Time) (int64, error) {
	if _, err := r.DeleteByPrefixWithTx(ctx, tx, prefix); err != nil {
		return 0, err
	}
	now = now.UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sales_summary (date, total_sales, total_orders, created_at, updated_at)
		SELECT jalali_date, COALESCE(SUM(total_amount), 0), COUNT(*), ?, ?
		FROM orders
		WHERE jalali_date LIKE ?
		GROUP BY jalali_date
	`, now, now, prefix+"%")
	if err != nil {
		return 0, db.Classify(err, "rebuild sales summary")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.Classify(err, "rebuild sales summary")
	}
	return n, nil
}

// List returns stored rows newest first; empty bounds are open.
func (r SalesSummaryRepository) List(ctx context.Context, from, to string) ([]domain.SalesSummary, error) {
	if to == "" {
		to = "9999-99-99"
	}
	items := []domain.SalesSummary{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT `+summaryColumns+`
		FROM sales_summary
		WHERE date BETWEEN ? AND ?
		ORDER BY date DESC
	`, from, to); err != nil {
		return nil, db.Classify(err, "list sales summary")
	}
	return items, nil
}

// DayTotal is a day recomputed from orders.
type DayTotal struct {
	Date        string `db:"date"`
	TotalSales  int64  `db:"total_sales"`
	TotalOrders int64  `db:"total_orders"`
}

// ComputeFromOrders aggregates orders per day in [from, to] without touching the summary table.
func (r SalesSummaryRepository) ComputeFromOrders(ctx context.Context, from, to string) ([]DayTotal, error) {
	items := []DayTotal{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT jalali_date AS date, COALESCE(SUM(total_amount), 0) AS total_sales, COUNT(*) AS total_orders
		FROM orders
		WHERE jalali_date BETWEEN ? AND ?
		GROUP BY jalali_date
		ORDER BY jalali_date ASC
	`, from, to); err != nil {
		return nil, db.Classify(err, "compute sales from orders")
	}
	return items, nil
}

// StaleDays counts days where the stored rollup disagrees with orders,
// including missing rows and rows left for days without orders.
func (r SalesSummaryRepository) StaleDays(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.Conn.GetContext(ctx, &n, `
		SELECT
			(SELECT COUNT(*)
			 FROM (SELECT jalali_date, SUM(total_amount) AS s, COUNT(*) AS c FROM orders GROUP BY jalali_date) o
			 LEFT JOIN sales_summary ss ON ss.date = o.jalali_date
			 WHERE ss.id IS NULL OR ss.total_sales <> o.s OR ss.total_orders <> o.c)
			+
			(SELECT COUNT(*)
			 FROM sales_summary ss
			 WHERE (ss.total_orders <> 0 OR ss.total_sales <> 0)
			   AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.jalali_date = ss.date))
	`); err != nil {
		return 0, db.Classify(err, "check sales summary")
	}
	return n, nil
}
