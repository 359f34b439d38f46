package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	DefaultPriceCoefficient = decimal.RequireFromString("3.3")
	MinPriceCoefficient     = decimal.RequireFromString("0.1")
)

// IngredientCost is one recipe line priced against its material.
type IngredientCost struct {
	Amount    int64
	UnitPrice int64
}

// Pricing derives recipe and menu prices. Material prices are quoted per
// UnitBasis units of the material (1000 grams, 1000 ml).
type Pricing struct {
	UnitBasis int64
	TaxRate   decimal.Decimal
}

func (p Pricing) basis() decimal.Decimal {
	if p.UnitBasis <= 0 {
		return decimal.NewFromInt(1000)
	}
	return decimal.NewFromInt(p.UnitBasis)
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// wholeUnits rounds d half away from zero and fails when it leaves int64.
func wholeUnits(d decimal.Decimal, what string) (int64, error) {
	r := d.Round(0)
	if r.GreaterThan(maxAmount) || r.LessThan(maxAmount.Neg()) {
		return 0, Validationf("%s %s is out of range", what, r.String())
	}
	return r.IntPart(), nil
}

// CostPrice is round(Σ amount × unitPrice / UnitBasis).
func (p Pricing) CostPrice(lines []IngredientCost) (int64, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromInt(l.Amount).Mul(decimal.NewFromInt(l.UnitPrice)))
	}
	return wholeUnits(total.Div(p.basis()), "cost price")
}

// SellPrice is round(cost × coefficient).
func (p Pricing) SellPrice(cost int64, coefficient decimal.Decimal) (int64, error) {
	return wholeUnits(decimal.NewFromInt(cost).Mul(coefficient), "sell price")
}

// FinalPrice adds the menu tax on top of the sell price.
func (p Pricing) FinalPrice(sell int64) (int64, error) {
	return wholeUnits(decimal.NewFromInt(sell).Mul(decimal.NewFromInt(1).Add(p.TaxRate)), "final price")
}

// ValidateCoefficient enforces the lower bound on recipe markups.
func ValidateCoefficient(c decimal.Decimal) error {
	if c.LessThan(MinPriceCoefficient) {
		return Validationf("priceCoefficient must be at least %s", MinPriceCoefficient)
	}
	return nil
}
