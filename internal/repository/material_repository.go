package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
)

type MaterialRepository struct {
	DB *db.SQLite
}

type MaterialInput struct {
	Name        string
	Category    string
	Price       int64
	Unit        string
	Stock       int64
	Description *string
}

type AdjustStockInput struct {
	Change int64
	Type   domain.StockMovementType
	Note   string
}

const materialColumns = `id, name, category, price, unit, stock, description, created_at, updated_at`

func (r MaterialRepository) List(ctx context.Context) ([]domain.Material, error) {
	items := []domain.Material{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT `+materialColumns+`
		FROM materials
		ORDER BY name ASC, id ASC
	`); err != nil {
		return nil, db.Classify(err, "list materials")
	}
	return items, nil
}

func (r MaterialRepository) Get(ctx context.Context, id int64) (*domain.Material, error) {
	return r.get(ctx, r.DB.Conn, id)
}

func (r MaterialRepository) GetWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Material, error) {
	return r.get(ctx, tx, id)
}

func (r MaterialRepository) get(ctx context.Context, q queryer, id int64) (*domain.Material, error) {
	var m domain.Material
	err := sqlx.GetContext(ctx, q, &m, `SELECT `+materialColumns+` FROM materials WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("material %d not found", id)
		}
		return nil, db.Classify(err, "get material")
	}
	return &m, nil
}

// ExistingIDsWithTx returns the subset of ids that name a material.
func (r MaterialRepository) ExistingIDsWithTx(ctx context.Context, tx *sqlx.Tx, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM materials WHERE id IN (?)`, ids)
	if err != nil {
		return nil, db.Classify(err, "check materials")
	}
	var found []int64
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return nil, db.Classify(err, "check materials")
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r MaterialRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, in MaterialInput, now time.Time) (*domain.Material, error) {
	now = now.UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO materials (name, category, price, unit, stock, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.Name, in.Category, in.Price, in.Unit, in.Stock, in.Description, now, now)
	if err != nil {
		return nil, db.Classify(err, "insert material")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, db.Classify(err, "insert material")
	}
	return &domain.Material{
		ID:          id,
		Name:        in.Name,
		Category:    in.Category,
		Price:       in.Price,
		Unit:        in.Unit,
		Stock:       in.Stock,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateWithTx replaces the material fields and returns the row before and after.
func (r MaterialRepository) UpdateWithTx(ctx context.Context, tx *sqlx.Tx, id int64, in MaterialInput, now time.Time) (*domain.Material, *domain.Material, error) {
	prev, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	now = now.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE materials
		SET name = ?, category = ?, price = ?, unit = ?, stock = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, in.Name, in.Category, in.Price, in.Unit, in.Stock, in.Description, now, id); err != nil {
		return nil, nil, db.Classify(err, "update material")
	}
	cur := *prev
	cur.Name = in.Name
	cur.Category = in.Category
	cur.Price = in.Price
	cur.Unit = in.Unit
	cur.Stock = in.Stock
	cur.Description = in.Description
	cur.UpdatedAt = now
	return prev, &cur, nil
}

// UsageCountWithTx counts recipes with an ingredient on the material.
func (r MaterialRepository) UsageCountWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (int64, error) {
	var n int64
	if err := tx.GetContext(ctx, &n, `
		SELECT COUNT(DISTINCT recipe_id) FROM recipe_ingredients WHERE material_id = ?
	`, id); err != nil {
		return 0, db.Classify(err, "count material usage")
	}
	return n, nil
}

// DeleteWithTx removes the material. The RESTRICT foreign key rejects
// materials still referenced by an ingredient.
func (r MaterialRepository) DeleteWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Material, error) {
	m, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE id = ?`, id); err != nil {
		return nil, db.Classify(err, "delete material")
	}
	return m, nil
}

// AdjustStockWithTx applies a stock change and records the movement. A result
// below zero is rejected rather than clamped.
func (r MaterialRepository) AdjustStockWithTx(ctx context.Context, tx *sqlx.Tx, id int64, in AdjustStockInput, now time.Time) (*domain.Material, *domain.StockMovement, error) {
	m, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	change := in.Change
	switch in.Type {
	case domain.StockReduce:
		if change > 0 {
			change = -change
		}
	case domain.StockRecount:
		// Change carries the counted absolute stock.
		if change < 0 {
			return nil, nil, domain.Validationf("recounted stock must not be negative")
		}
		change = change - m.Stock
	case domain.StockAdjust:
	default:
		return nil, nil, domain.Validationf("invalid stock movement type %q", in.Type)
	}

	remaining := m.Stock + change
	if remaining < 0 {
		return nil, nil, domain.Validationf("insufficient stock: %s has %d %s", m.Name, m.Stock, m.Unit)
	}

	now = now.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE materials SET stock = ?, updated_at = ? WHERE id = ?
	`, remaining, now, id); err != nil {
		return nil, nil, db.Classify(err, "update stock")
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (material_id, change, remaining, type, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, change, remaining, string(in.Type), in.Note, now)
	if err != nil {
		return nil, nil, db.Classify(err, "record stock movement")
	}
	mvID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, db.Classify(err, "record stock movement")
	}

	m.Stock = remaining
	m.UpdatedAt = now
	return m, &domain.StockMovement{
		ID:         mvID,
		MaterialID: id,
		Change:     change,
		Remaining:  remaining,
		Type:       in.Type,
		Note:       in.Note,
		CreatedAt:  now,
	}, nil
}

func (r MaterialRepository) Movements(ctx context.Context, id int64, limit int) ([]domain.StockMovement, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	items := []domain.StockMovement{}
	if err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT id, material_id, change, remaining, type, note, created_at
		FROM stock_movements
		WHERE material_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, id, limit); err != nil {
		return nil, db.Classify(err, "list stock movements")
	}
	return items, nil
}

func (r MaterialRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.Conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM materials`); err != nil {
		return 0, db.Classify(err, "count materials")
	}
	return n, nil
}
