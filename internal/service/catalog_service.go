package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/metrics"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	entityMaterials = "materials"
	entityRecipes   = "recipes"
)

// CatalogService owns materials and recipes. Recipe prices are derived and
// refreshed by explicit RecalculatePrice calls from every write that can move
// them: ingredient changes, coefficient changes and material price changes.
type CatalogService struct {
	DB         *db.SQLite
	Materials  repository.MaterialRepository
	Recipes    repository.RecipeRepository
	Activities repository.ActivityLogRepository
	Pricing    domain.Pricing
	Calendar   jalali.Calendar
	Logger     *zap.Logger
}

type MaterialInput struct {
	Name        string
	Category    string
	Price       int64
	Unit        string
	Stock       int64
	Description string
}

// RecipeInput creates a recipe. A zero coefficient means the default.
type RecipeInput struct {
	Name             string
	Category         string
	Description      string
	ImageURL         string
	PriceCoefficient decimal.Decimal
	Ingredients      []repository.IngredientInput
}

// RecipePatch updates a recipe; nil fields keep their value and a nil
// Ingredients keeps the current set.
type RecipePatch struct {
	Name             *string
	Category         *string
	Description      *string
	ImageURL         *string
	PriceCoefficient *decimal.Decimal
	Ingredients      *[]repository.IngredientInput
}

// MaterialUpdate carries the stored material and the recipes repriced because of it.
type MaterialUpdate struct {
	Material *domain.Material
	Recipes  []int64
}

// MenuItem is a recipe as the storefront sells it.
type MenuItem struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Price      int64  `json:"price"`
	FinalPrice int64  `json:"finalPrice"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

func (s *CatalogService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func normalizeMaterial(in MaterialInput) (repository.MaterialInput, error) {
	out := repository.MaterialInput{
		Name:        strings.TrimSpace(in.Name),
		Category:    strings.TrimSpace(in.Category),
		Price:       in.Price,
		Unit:        strings.TrimSpace(in.Unit),
		Stock:       in.Stock,
		Description: optional(in.Description),
	}
	if out.Name == "" {
		return out, domain.Validationf("material name is required")
	}
	if out.Price < 0 {
		return out, domain.Validationf("material price must not be negative")
	}
	if out.Stock < 0 {
		return out, domain.Validationf("material stock must not be negative")
	}
	if out.Category == "" {
		out.Category = domain.DefaultMaterialCategory
	}
	if out.Unit == "" {
		out.Unit = domain.DefaultMaterialUnit
	}
	return out, nil
}

func (s *CatalogService) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	return s.Materials.List(ctx)
}

func (s *CatalogService) GetMaterial(ctx context.Context, id int64) (*domain.Material, error) {
	return s.Materials.Get(ctx, id)
}

func (s *CatalogService) CreateMaterial(ctx context.Context, in MaterialInput, userID int64) (*domain.Material, error) {
	mi, err := normalizeMaterial(in)
	if err != nil {
		return nil, err
	}
	var created *domain.Material
	err = s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		m, err := s.Materials.CreateWithTx(ctx, tx, mi, s.Calendar.Now())
		if err != nil {
			return err
		}
		created = m
		return s.recordWithTx(ctx, tx, domain.ActivityAdd, entityMaterials, m.ID, m.Name,
			fmt.Sprintf("material %s added", m.Name), userID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateMaterial stores the new fields. When the price moves, every recipe
// using the material is repriced in the same transaction.
func (s *CatalogService) UpdateMaterial(ctx context.Context, id int64, in MaterialInput, userID int64) (MaterialUpdate, error) {
	mi, err := normalizeMaterial(in)
	if err != nil {
		return MaterialUpdate{}, err
	}
	var out MaterialUpdate
	err = s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		prev, cur, err := s.Materials.UpdateWithTx(ctx, tx, id, mi, s.Calendar.Now())
		if err != nil {
			return err
		}
		out.Material = cur
		if err := s.recordWithTx(ctx, tx, domain.ActivityEdit, entityMaterials, cur.ID, cur.Name,
			fmt.Sprintf("material %s updated", cur.Name), userID); err != nil {
			return err
		}
		if prev.Price == cur.Price {
			return nil
		}
		ids, err := s.Recipes.IDsUsingMaterialWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, rid := range ids {
			if _, err := s.recalculateWithTx(ctx, tx, rid, userID); err != nil {
				return err
			}
		}
		out.Recipes = ids
		return nil
	})
	if err != nil {
		return MaterialUpdate{}, err
	}
	if len(out.Recipes) > 0 {
		s.log().Info("recipes repriced after material price change",
			zap.Int64("material_id", id), zap.Int64s("recipe_ids", out.Recipes))
	}
	return out, nil
}

// DeleteMaterial refuses materials that any recipe still uses.
func (s *CatalogService) DeleteMaterial(ctx context.Context, id int64, userID int64) error {
	return s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.Materials.GetWithTx(ctx, tx, id); err != nil {
			return err
		}
		used, err := s.Materials.UsageCountWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return domain.Conflictf("cannot delete material that is used in %d recipes", used)
		}
		m, err := s.Materials.DeleteWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.recordWithTx(ctx, tx, domain.ActivityDelete, entityMaterials, m.ID, m.Name,
			fmt.Sprintf("material %s deleted", m.Name), userID)
	})
}

// AdjustStock applies a stock movement; the result may not drop below zero.
func (s *CatalogService) AdjustStock(ctx context.Context, id int64, in repository.AdjustStockInput, userID int64) (*domain.Material, *domain.StockMovement, error) {
	if in.Type == "" {
		in.Type = domain.StockAdjust
	}
	if !in.Type.Valid() {
		return nil, nil, domain.Validationf("invalid stock movement type %q", in.Type)
	}
	var (
		material *domain.Material
		movement *domain.StockMovement
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		m, mv, err := s.Materials.AdjustStockWithTx(ctx, tx, id, in, s.Calendar.Now())
		if err != nil {
			return err
		}
		material, movement = m, mv
		return s.recordWithTx(ctx, tx, domain.ActivityEdit, entityMaterials, m.ID, m.Name,
			fmt.Sprintf("stock of %s changed by %d to %d %s", m.Name, mv.Change, mv.Remaining, m.Unit), userID)
	})
	if err != nil {
		return nil, nil, err
	}
	return material, movement, nil
}

func (s *CatalogService) StockMovements(ctx context.Context, id int64, limit int) ([]domain.StockMovement, error) {
	return s.Materials.Movements(ctx, id, limit)
}

func (s *CatalogService) ListRecipes(ctx context.Context, withIngredients bool) ([]domain.Recipe, error) {
	return s.Recipes.List(ctx, withIngredients)
}

func (s *CatalogService) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	return s.Recipes.Get(ctx, id)
}

func validateIngredients(items []repository.IngredientInput) error {
	seen := make(map[int64]bool, len(items))
	for i, it := range items {
		if it.MaterialID <= 0 {
			return domain.Validationf("ingredients[%d]: invalid materialId", i)
		}
		if it.Amount <= 0 {
			return domain.Validationf("ingredients[%d]: amount must be greater than zero", i)
		}
		if seen[it.MaterialID] {
			return domain.Validationf("ingredients[%d]: material %d listed twice", i, it.MaterialID)
		}
		seen[it.MaterialID] = true
	}
	return nil
}

func (s *CatalogService) checkMaterialsWithTx(ctx context.Context, tx *sqlx.Tx, items []repository.IngredientInput) error {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MaterialID)
	}
	found, err := s.Materials.ExistingIDsWithTx(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return domain.NotFoundf("material %d not found", id)
		}
	}
	return nil
}

func (s *CatalogService) CreateRecipe(ctx context.Context, in RecipeInput, userID int64) (*domain.Recipe, error) {
	ri := repository.RecipeInput{
		Name:             strings.TrimSpace(in.Name),
		Category:         strings.TrimSpace(in.Category),
		Description:      optional(in.Description),
		ImageURL:         optional(in.ImageURL),
		PriceCoefficient: in.PriceCoefficient,
	}
	if ri.Name == "" || ri.Category == "" {
		return nil, domain.Validationf("recipe name and category are required")
	}
	if ri.PriceCoefficient.IsZero() {
		ri.PriceCoefficient = domain.DefaultPriceCoefficient
	}
	if err := domain.ValidateCoefficient(ri.PriceCoefficient); err != nil {
		return nil, err
	}
	if err := validateIngredients(in.Ingredients); err != nil {
		return nil, err
	}

	var created *domain.Recipe
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.Calendar.Now()
		rc, err := s.Recipes.CreateWithTx(ctx, tx, ri, now)
		if err != nil {
			return err
		}
		if len(in.Ingredients) > 0 {
			if err := s.checkMaterialsWithTx(ctx, tx, in.Ingredients); err != nil {
				return err
			}
			if err := s.Recipes.ReplaceIngredientsWithTx(ctx, tx, rc.ID, in.Ingredients, now); err != nil {
				return err
			}
		}
		if err := s.recordWithTx(ctx, tx, domain.ActivityAdd, entityRecipes, rc.ID, rc.Name,
			fmt.Sprintf("recipe %s added", rc.Name), userID); err != nil {
			return err
		}
		created, err = s.recalculateWithTx(ctx, tx, rc.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *CatalogService) UpdateRecipe(ctx context.Context, id int64, p RecipePatch, userID int64) (*domain.Recipe, error) {
	if p.Ingredients != nil {
		if err := validateIngredients(*p.Ingredients); err != nil {
			return nil, err
		}
	}
	if p.PriceCoefficient != nil {
		if err := domain.ValidateCoefficient(*p.PriceCoefficient); err != nil {
			return nil, err
		}
	}

	var updated *domain.Recipe
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		cur, err := s.Recipes.GetWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		ri := repository.RecipeInput{
			Name:             cur.Name,
			Category:         cur.Category,
			Description:      cur.Description,
			ImageURL:         cur.ImageURL,
			PriceCoefficient: cur.PriceCoefficient,
		}
		if p.Name != nil {
			ri.Name = strings.TrimSpace(*p.Name)
		}
		if p.Category != nil {
			ri.Category = strings.TrimSpace(*p.Category)
		}
		if p.Description != nil {
			ri.Description = optional(*p.Description)
		}
		if p.ImageURL != nil {
			ri.ImageURL = optional(*p.ImageURL)
		}
		if p.PriceCoefficient != nil {
			ri.PriceCoefficient = *p.PriceCoefficient
		}
		if ri.Name == "" || ri.Category == "" {
			return domain.Validationf("recipe name and category are required")
		}

		now := s.Calendar.Now()
		if err := s.Recipes.UpdateWithTx(ctx, tx, id, ri, now); err != nil {
			return err
		}
		if p.Ingredients != nil {
			if err := s.checkMaterialsWithTx(ctx, tx, *p.Ingredients); err != nil {
				return err
			}
			if err := s.Recipes.ReplaceIngredientsWithTx(ctx, tx, id, *p.Ingredients, now); err != nil {
				return err
			}
		}
		if err := s.recordWithTx(ctx, tx, domain.ActivityEdit, entityRecipes, id, ri.Name,
			fmt.Sprintf("recipe %s updated", ri.Name), userID); err != nil {
			return err
		}
		updated, err = s.recalculateWithTx(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceIngredients swaps the whole ingredient set and reprices the recipe.
func (s *CatalogService) ReplaceIngredients(ctx context.Context, id int64, items []repository.IngredientInput, userID int64) (*domain.Recipe, error) {
	return s.UpdateRecipe(ctx, id, RecipePatch{Ingredients: &items}, userID)
}

// DeleteRecipe removes the recipe and, by cascade, its ingredients.
func (s *CatalogService) DeleteRecipe(ctx context.Context, id int64, userID int64) error {
	return s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		rc, err := s.Recipes.DeleteWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.recordWithTx(ctx, tx, domain.ActivityDelete, entityRecipes, rc.ID, rc.Name,
			fmt.Sprintf("recipe %s deleted", rc.Name), userID)
	})
}

// RecalculatePrice recomputes cost and sell price from current material prices.
func (s *CatalogService) RecalculatePrice(ctx context.Context, id int64, userID int64) (*domain.Recipe, error) {
	var rc *domain.Recipe
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		rc, err = s.recalculateWithTx(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *CatalogService) recalculateWithTx(ctx context.Context, tx *sqlx.Tx, id int64, userID int64) (*domain.Recipe, error) {
	rc, err := s.Recipes.GetWithTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.Recipes.CostLinesWithTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	cost, err := s.Pricing.CostPrice(lines)
	if err != nil {
		return nil, fmt.Errorf("price recipe %q: %w", rc.Name, err)
	}
	sell, err := s.Pricing.SellPrice(cost, rc.PriceCoefficient)
	if err != nil {
		return nil, fmt.Errorf("price recipe %q: %w", rc.Name, err)
	}
	// the menu shows sell plus tax, which must stay representable too
	if _, err := s.Pricing.FinalPrice(sell); err != nil {
		return nil, fmt.Errorf("price recipe %q: %w", rc.Name, err)
	}
	now := s.Calendar.Now()
	if err := s.Recipes.SetPricesWithTx(ctx, tx, id, cost, sell, now); err != nil {
		return nil, err
	}
	if err := s.recordWithTx(ctx, tx, domain.ActivityCalculate, entityRecipes, rc.ID, rc.Name,
		fmt.Sprintf("price of %s recalculated: cost %d, sell %d", rc.Name, cost, sell), userID); err != nil {
		return nil, err
	}
	metrics.PriceRecalculations.Inc()
	rc.CostPrice, rc.SellPrice, rc.UpdatedAt = cost, sell, now.UTC()
	return rc, nil
}

// MenuItems lists recipes with their storefront price including tax.
func (s *CatalogService) MenuItems(ctx context.Context) ([]MenuItem, error) {
	recipes, err := s.Recipes.List(ctx, false)
	if err != nil {
		return nil, err
	}
	items := make([]MenuItem, 0, len(recipes))
	for _, rc := range recipes {
		final, err := s.Pricing.FinalPrice(rc.SellPrice)
		if err != nil {
			return nil, fmt.Errorf("menu price of %q: %w", rc.Name, err)
		}
		item := MenuItem{
			ID:         rc.ID,
			Name:       rc.Name,
			Category:   rc.Category,
			Price:      rc.SellPrice,
			FinalPrice: final,
		}
		if rc.ImageURL != nil {
			item.ImageURL = *rc.ImageURL
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *CatalogService) recordWithTx(ctx context.Context, tx *sqlx.Tx, typ domain.ActivityType, entity string, id int64, name string, desc string, userID int64) error {
	_, err := s.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
		Type:        typ,
		Entity:      entity,
		EntityID:    &id,
		EntityName:  &name,
		Description: desc,
		UserID:      userID,
		At:          s.Calendar.Now(),
	})
	return err
}
