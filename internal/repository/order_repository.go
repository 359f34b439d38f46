package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/jmoiron/sqlx"
)

// maxNumberProbes bounds the search for a free order number within one transaction.
const maxNumberProbes = 100

type OrderRepository struct {
	DB *db.SQLite
}

type CreateOrderInput struct {
	ClientRef     string
	CustomerName  *string
	PaymentMethod *string
	Notes         *string
	IsPaid        bool
	Status        domain.OrderStatus
	TotalAmount   int64
	Items         []domain.OrderLine
	JalaliDate    string
	JalaliTime    string
	CreatedAt     time.Time
}

// UpdateOrderInput changes only the non-nil fields.
type UpdateOrderInput struct {
	CustomerName  *string
	PaymentMethod *string
	Notes         *string
	IsPaid        *bool
	Status        *domain.OrderStatus
}

const orderColumns = `id, order_number, client_ref, customer_name, total_amount, is_paid, payment_method,
	status, notes, jalali_date, jalali_time, created_at, updated_at`

const orderItemColumns = `id, order_id, menu_item_id, menu_item_name, price, quantity, total_price, created_at`

// Create writes the order header and every item in one transaction, then runs
// after inside the same transaction. A ClientRef that already exists returns the
// stored order with replayed set and skips all writes.
func (r OrderRepository) Create(ctx context.Context, in CreateOrderInput, after func(context.Context, *sqlx.Tx, *domain.Order) error) (order *domain.Order, replayed bool, err error) {
	err = r.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if in.ClientRef != "" {
			existing, err := r.getByClientRef(ctx, tx, in.ClientRef)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if existing != nil {
				order, replayed = existing, true
				return nil
			}
		}

		number, err := r.nextOrderNumber(ctx, tx, in.JalaliDate)
		if err != nil {
			return err
		}

		now := in.CreatedAt.UTC()
		var clientRef *string
		if in.ClientRef != "" {
			clientRef = &in.ClientRef
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders
			(order_number, client_ref, customer_name, total_amount, is_paid, payment_method, status, notes,
			 jalali_date, jalali_time, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, number, clientRef, in.CustomerName, in.TotalAmount, in.IsPaid, in.PaymentMethod, string(in.Status), in.Notes,
			in.JalaliDate, in.JalaliTime, now, now)
		if err != nil {
			switch {
			case db.IsUniqueViolationOn(err, "orders.client_ref"):
				return &domain.Error{Kind: domain.KindConflict, Message: fmt.Sprintf("client reference %s already used", in.ClientRef), Err: err}
			case db.IsUniqueViolationOn(err, "orders.order_number"):
				return &domain.Error{Kind: domain.KindConflict, Message: fmt.Sprintf("order number %s already taken", number), Err: err}
			}
			return db.Classify(err, "insert order")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return db.Classify(err, "insert order")
		}

		o := &domain.Order{
			ID:            id,
			OrderNumber:   number,
			ClientRef:     clientRef,
			CustomerName:  in.CustomerName,
			TotalAmount:   in.TotalAmount,
			IsPaid:        in.IsPaid,
			PaymentMethod: in.PaymentMethod,
			Status:        in.Status,
			Notes:         in.Notes,
			JalaliDate:    in.JalaliDate,
			JalaliTime:    in.JalaliTime,
			CreatedAt:     now,
			UpdatedAt:     now,
			Items:         make([]domain.OrderItem, 0, len(in.Items)),
		}
		for _, line := range in.Items {
			item, err := r.insertItem(ctx, tx, id, line, now)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, *item)
		}

		if after != nil {
			if err := after(ctx, tx, o); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, replayed, nil
}

func (r OrderRepository) insertItem(ctx context.Context, tx *sqlx.Tx, orderID int64, line domain.OrderLine, now time.Time) (*domain.OrderItem, error) {
	lineTotal, err := line.LineTotal()
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, menu_item_name, price, quantity, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, orderID, line.MenuItemID, line.MenuItemName, line.Price, line.Quantity, lineTotal, now)
	if err != nil {
		return nil, db.Classify(err, "insert order item")
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		return nil, db.Classify(err, "insert order item")
	}
	return &domain.OrderItem{
		ID:           itemID,
		OrderID:      orderID,
		MenuItemID:   line.MenuItemID,
		MenuItemName: line.MenuItemName,
		Price:        line.Price,
		Quantity:     line.Quantity,
		TotalPrice:   lineTotal,
		CreatedAt:    now,
	}, nil
}

// nextOrderNumber advances the per-date counter until it yields a number no
// order holds. Counters are never decremented, so numbers are not reused.
func (r OrderRepository) nextOrderNumber(ctx context.Context, tx *sqlx.Tx, jalaliDate string) (string, error) {
	prefix := jalali.CompactDate(jalaliDate)
	for i := 0; i < maxNumberProbes; i++ {
		var seq int64
		if err := tx.GetContext(ctx, &seq, `
			INSERT INTO order_sequences (jalali_date, last_value) VALUES (?, 1)
			ON CONFLICT (jalali_date) DO UPDATE SET last_value = last_value + 1
			RETURNING last_value
		`, jalaliDate); err != nil {
			return "", db.Classify(err, "allocate order number")
		}
		number := fmt.Sprintf("%s-%04d", prefix, seq)
		var taken bool
		if err := tx.GetContext(ctx, &taken, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = ?)`, number); err != nil {
			return "", db.Classify(err, "allocate order number")
		}
		if !taken {
			return number, nil
		}
	}
	return "", domain.Conflictf("no free order number for %s", jalaliDate)
}

func (r OrderRepository) getByClientRef(ctx context.Context, tx *sqlx.Tx, ref string) (*domain.Order, error) {
	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM orders WHERE client_ref = ?`, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("order with client reference %s not found", ref)
		}
		return nil, db.Classify(err, "lookup client reference")
	}
	return r.get(ctx, tx, id)
}

// List returns orders newest first, optionally filtered by status. limit <= 0 returns all.
func (r OrderRepository) List(ctx context.Context, status *domain.OrderStatus, limit int) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*status))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	orders := []domain.Order{}
	if err := r.DB.Conn.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, db.Classify(err, "list orders")
	}
	if err := r.attachItems(ctx, r.DB.Conn, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByDateRange returns orders whose Jalali date falls in [from, to], oldest first.
func (r OrderRepository) ListByDateRange(ctx context.Context, from, to string) ([]domain.Order, error) {
	orders := []domain.Order{}
	if err := r.DB.Conn.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE jalali_date BETWEEN ? AND ?
		ORDER BY created_at ASC, id ASC
	`, from, to); err != nil {
		return nil, db.Classify(err, "list orders by date")
	}
	if err := r.attachItems(ctx, r.DB.Conn, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r OrderRepository) attachItems(ctx context.Context, q queryer, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	query, args, err := sqlx.In(`SELECT `+orderItemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY id ASC`, ids)
	if err != nil {
		return db.Classify(err, "list order items")
	}
	var items []domain.OrderItem
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		return db.Classify(err, "list order items")
	}
	byOrder := make(map[int64][]domain.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return nil
}

func (r OrderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return r.get(ctx, r.DB.Conn, id)
}

func (r OrderRepository) GetWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Order, error) {
	return r.get(ctx, tx, id)
}

func (r OrderRepository) get(ctx context.Context, q queryer, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := sqlx.GetContext(ctx, q, &o, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("order %d not found", id)
		}
		return nil, db.Classify(err, "get order")
	}
	orders := []domain.Order{o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// Items lists the lines of one order.
func (r OrderRepository) Items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	o, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

// UpdateWithTx applies the non-nil fields of in and returns the stored order.
func (r OrderRepository) UpdateWithTx(ctx context.Context, tx *sqlx.Tx, id int64, in UpdateOrderInput, now time.Time) (*domain.Order, error) {
	o, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if in.CustomerName != nil {
		o.CustomerName = in.CustomerName
	}
	if in.PaymentMethod != nil {
		o.PaymentMethod = in.PaymentMethod
	}
	if in.Notes != nil {
		o.Notes = in.Notes
	}
	if in.IsPaid != nil {
		o.IsPaid = *in.IsPaid
	}
	if in.Status != nil {
		o.Status = *in.Status
	}
	o.UpdatedAt = now.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_name = ?, payment_method = ?, notes = ?, is_paid = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, o.CustomerName, o.PaymentMethod, o.Notes, o.IsPaid, string(o.Status), o.UpdatedAt, id); err != nil {
		return nil, db.Classify(err, "update order")
	}
	return o, nil
}

// DeleteWithTx removes the order; its items go with it by cascade.
func (r OrderRepository) DeleteWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Order, error) {
	o, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return nil, db.Classify(err, "delete order")
	}
	return o, nil
}

// GetItemWithTx loads one order line.
func (r OrderRepository) GetItemWithTx(ctx context.Context, tx *sqlx.Tx, itemID int64) (*domain.OrderItem, error) {
	var it domain.OrderItem
	if err := tx.GetContext(ctx, &it, `SELECT `+orderItemColumns+` FROM order_items WHERE id = ?`, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("order item %d not found", itemID)
		}
		return nil, db.Classify(err, "get order item")
	}
	return &it, nil
}

// AddItemWithTx appends a line to an existing order. The order total is left
// to SetTotalWithTx.
func (r OrderRepository) AddItemWithTx(ctx context.Context, tx *sqlx.Tx, orderID int64, line domain.OrderLine, now time.Time) (*domain.OrderItem, error) {
	return r.insertItem(ctx, tx, orderID, line, now.UTC())
}

// UpdateItemWithTx rewrites a line from line and recomputes its total.
func (r OrderRepository) UpdateItemWithTx(ctx context.Context, tx *sqlx.Tx, itemID int64, line domain.OrderLine) (*domain.OrderItem, error) {
	lineTotal, err := line.LineTotal()
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE order_items
		SET menu_item_id = ?, menu_item_name = ?, price = ?, quantity = ?, total_price = ?
		WHERE id = ?
	`, line.MenuItemID, line.MenuItemName, line.Price, line.Quantity, lineTotal, itemID)
	if err != nil {
		return nil, db.Classify(err, "update order item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFoundf("order item %d not found", itemID)
	}
	return r.GetItemWithTx(ctx, tx, itemID)
}

func (r OrderRepository) DeleteItemWithTx(ctx context.Context, tx *sqlx.Tx, itemID int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = ?`, itemID)
	if err != nil {
		return db.Classify(err, "delete order item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("order item %d not found", itemID)
	}
	return nil
}

// SetTotalWithTx stores a recomputed order total.
func (r OrderRepository) SetTotalWithTx(ctx context.Context, tx *sqlx.Tx, orderID int64, total int64, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET total_amount = ?, updated_at = ? WHERE id = ?`,
		total, now.UTC(), orderID); err != nil {
		return db.Classify(err, "update order total")
	}
	return nil
}

func (r OrderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.Conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM orders`); err != nil {
		return 0, db.Classify(err, "count orders")
	}
	return n, nil
}
