package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type RecipeRepository struct {
	DB *db.SQLite
}

type RecipeInput struct {
	Name             string
	Category         string
	Description      *string
	ImageURL         *string
	PriceCoefficient decimal.Decimal
}

type IngredientInput struct {
	MaterialID int64
	Amount     int64
}

const recipeColumns = `id, name, category, description, image_url, price_coefficient, cost_price, sell_price, created_at, updated_at`

const ingredientSelect = `
	SELECT ri.id, ri.recipe_id, ri.material_id, ri.amount,
	       m.name AS material_name, m.unit AS material_unit, m.price AS material_price
	FROM recipe_ingredients ri
	JOIN materials m ON m.id = ri.material_id
`

// List returns recipes ordered by name, with ingredients when requested.
func (r RecipeRepository) List(ctx context.Context, withIngredients bool) ([]domain.Recipe, error) {
	recipes := []domain.Recipe{}
	if err := r.DB.Conn.SelectContext(ctx, &recipes, `
		SELECT `+recipeColumns+` FROM recipes ORDER BY name ASC, id ASC
	`); err != nil {
		return nil, db.Classify(err, "list recipes")
	}
	if !withIngredients || len(recipes) == 0 {
		return recipes, nil
	}

	ids := make([]int64, 0, len(recipes))
	for _, rc := range recipes {
		ids = append(ids, rc.ID)
	}
	query, args, err := sqlx.In(ingredientSelect+` WHERE ri.recipe_id IN (?) ORDER BY ri.id ASC`, ids)
	if err != nil {
		return nil, db.Classify(err, "list ingredients")
	}
	var lines []domain.RecipeIngredient
	if err := r.DB.Conn.SelectContext(ctx, &lines, r.DB.Conn.Rebind(query), args...); err != nil {
		return nil, db.Classify(err, "list ingredients")
	}
	byRecipe := make(map[int64][]domain.RecipeIngredient, len(recipes))
	for _, l := range lines {
		byRecipe[l.RecipeID] = append(byRecipe[l.RecipeID], l)
	}
	for i := range recipes {
		recipes[i].Ingredients = byRecipe[recipes[i].ID]
		if recipes[i].Ingredients == nil {
			recipes[i].Ingredients = []domain.RecipeIngredient{}
		}
	}
	return recipes, nil
}

func (r RecipeRepository) Get(ctx context.Context, id int64) (*domain.Recipe, error) {
	return r.get(ctx, r.DB.Conn, id)
}

func (r RecipeRepository) GetWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Recipe, error) {
	return r.get(ctx, tx, id)
}

func (r RecipeRepository) get(ctx context.Context, q queryer, id int64) (*domain.Recipe, error) {
	var rc domain.Recipe
	if err := sqlx.GetContext(ctx, q, &rc, `SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("recipe %d not found", id)
		}
		return nil, db.Classify(err, "get recipe")
	}
	lines, err := r.ingredients(ctx, q, id)
	if err != nil {
		return nil, err
	}
	rc.Ingredients = lines
	return &rc, nil
}

func (r RecipeRepository) ingredients(ctx context.Context, q queryer, recipeID int64) ([]domain.RecipeIngredient, error) {
	lines := []domain.RecipeIngredient{}
	if err := sqlx.SelectContext(ctx, q, &lines, ingredientSelect+` WHERE ri.recipe_id = ? ORDER BY ri.id ASC`, recipeID); err != nil {
		return nil, db.Classify(err, "list ingredients")
	}
	return lines, nil
}

func (r RecipeRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, in RecipeInput, now time.Time) (*domain.Recipe, error) {
	now = now.UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (name, category, description, image_url, price_coefficient, cost_price, sell_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, in.Name, in.Category, in.Description, in.ImageURL, in.PriceCoefficient.String(), now, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.Conflictf("recipe %q already exists", in.Name)
		}
		return nil, db.Classify(err, "insert recipe")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, db.Classify(err, "insert recipe")
	}
	return &domain.Recipe{
		ID:               id,
		Name:             in.Name,
		Category:         in.Category,
		Description:      in.Description,
		ImageURL:         in.ImageURL,
		PriceCoefficient: in.PriceCoefficient,
		CreatedAt:        now,
		UpdatedAt:        now,
		Ingredients:      []domain.RecipeIngredient{},
	}, nil
}

func (r RecipeRepository) UpdateWithTx(ctx context.Context, tx *sqlx.Tx, id int64, in RecipeInput, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE recipes
		SET name = ?, category = ?, description = ?, image_url = ?, price_coefficient = ?, updated_at = ?
		WHERE id = ?
	`, in.Name, in.Category, in.Description, in.ImageURL, in.PriceCoefficient.String(), now.UTC(), id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Conflictf("recipe %q already exists", in.Name)
		}
		return db.Classify(err, "update recipe")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("recipe %d not found", id)
	}
	return nil
}

// DeleteWithTx removes the recipe; its ingredients go with it by cascade.
func (r RecipeRepository) DeleteWithTx(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Recipe, error) {
	rc, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id); err != nil {
		return nil, db.Classify(err, "delete recipe")
	}
	return rc, nil
}

// ReplaceIngredientsWithTx swaps the whole ingredient set of a recipe.
func (r RecipeRepository) ReplaceIngredientsWithTx(ctx context.Context, tx *sqlx.Tx, recipeID int64, items []IngredientInput, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipeID); err != nil {
		return db.Classify(err, "clear ingredients")
	}
	now = now.UTC()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, material_id, amount, created_at)
			VALUES (?, ?, ?, ?)
		`, recipeID, it.MaterialID, it.Amount, now); err != nil {
			if db.IsUniqueViolation(err) {
				return domain.Conflictf("material %d appears twice in recipe %d", it.MaterialID, recipeID)
			}
			return db.Classify(err, "insert ingredient")
		}
	}
	return nil
}

// CostLinesWithTx loads the amounts and current material prices of a recipe.
func (r RecipeRepository) CostLinesWithTx(ctx context.Context, tx *sqlx.Tx, recipeID int64) ([]domain.IngredientCost, error) {
	rows, err := tx.QueryxContext(ctx, `
		SELECT ri.amount, m.price
		FROM recipe_ingredients ri
		JOIN materials m ON m.id = ri.material_id
		WHERE ri.recipe_id = ?
	`, recipeID)
	if err != nil {
		return nil, db.Classify(err, "load cost lines")
	}
	defer rows.Close()
	var lines []domain.IngredientCost
	for rows.Next() {
		var l domain.IngredientCost
		if err := rows.Scan(&l.Amount, &l.UnitPrice); err != nil {
			return nil, db.Classify(err, "load cost lines")
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "load cost lines")
	}
	return lines, nil
}

func (r RecipeRepository) SetPricesWithTx(ctx context.Context, tx *sqlx.Tx, recipeID, cost, sell int64, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE recipes SET cost_price = ?, sell_price = ?, updated_at = ? WHERE id = ?
	`, cost, sell, now.UTC(), recipeID)
	if err != nil {
		return db.Classify(err, "store recipe prices")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("recipe %d not found", recipeID)
	}
	return nil
}

// IDsUsingMaterialWithTx lists recipes whose price depends on the material.
func (r RecipeRepository) IDsUsingMaterialWithTx(ctx context.Context, tx *sqlx.Tx, materialID int64) ([]int64, error) {
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `
		SELECT DISTINCT recipe_id FROM recipe_ingredients WHERE material_id = ? ORDER BY recipe_id
	`, materialID); err != nil {
		return nil, db.Classify(err, "find recipes using material")
	}
	return ids, nil
}

func (r RecipeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.Conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM recipes`); err != nil {
		return 0, db.Classify(err, "count recipes")
	}
	return n, nil
}
