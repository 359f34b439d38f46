package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateOrderLinesTotal(t *testing.T) {
	lines := []OrderLine{
		{MenuItemID: 1, MenuItemName: "Latte", Price: 80000, Quantity: 2},
		{MenuItemID: 2, MenuItemName: "Water", Price: 5000, Quantity: 1},
	}
	total, err := ValidateOrderLines(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 165000 {
		t.Fatalf("total = %d, want 165000", total)
	}
}

func TestValidateOrderLinesRejects(t *testing.T) {
	cases := map[string][]OrderLine{
		"empty":          nil,
		"zero quantity":  {{Price: 100, Quantity: 0}},
		"negative qty":   {{Price: 100, Quantity: -1}},
		"negative price": {{Price: -1, Quantity: 1}},
		"overflow":       {{Price: math.MaxInt64, Quantity: 2}},
		"sum overflow":   {{Price: math.MaxInt64, Quantity: 1}, {Price: 1, Quantity: 1}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateOrderLines(lines)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestFreeItemsAllowed(t *testing.T) {
	total, err := ValidateOrderLines([]OrderLine{{Price: 0, Quantity: 3}})
	if err != nil || total != 0 {
		t.Fatalf("total=%d err=%v", total, err)
	}
}

func TestPricingLatte(t *testing.T) {
	p := Pricing{UnitBasis: 1000, TaxRate: decimal.RequireFromString("0.09")}
	cost, err := p.CostPrice([]IngredientCost{{Amount: 200, UnitPrice: 15000}})
	if err != nil || cost != 3000 {
		t.Fatalf("cost = %d, err = %v, want 3000", cost, err)
	}
	sell, err := p.SellPrice(cost, DefaultPriceCoefficient)
	if err != nil || sell != 9900 {
		t.Fatalf("sell = %d, err = %v, want 9900", sell, err)
	}
	if final, err := p.FinalPrice(sell); err != nil || final != 10791 {
		t.Fatalf("final = %d, err = %v, want 10791", final, err)
	}
}

func TestPricingRoundsHalfUp(t *testing.T) {
	p := Pricing{UnitBasis: 1000}
	// 3 × 500 / 1000 = 1.5
	if got, _ := p.CostPrice([]IngredientCost{{Amount: 3, UnitPrice: 500}}); got != 2 {
		t.Fatalf("cost = %d, want 2", got)
	}
	// sums before rounding: 0.4 + 0.4 = 0.8
	lines := []IngredientCost{{Amount: 4, UnitPrice: 100}, {Amount: 4, UnitPrice: 100}}
	if got, _ := p.CostPrice(lines); got != 1 {
		t.Fatalf("cost = %d, want 1", got)
	}
}

func TestPricingRejectsOutOfRange(t *testing.T) {
	p := Pricing{UnitBasis: 1000, TaxRate: decimal.RequireFromString("0.09")}
	// 9e12 × 9e12 / 1000 = 8.1e22
	if _, err := p.CostPrice([]IngredientCost{{Amount: 9e12, UnitPrice: 9e12}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("cost err = %v, want validation", err)
	}
	if _, err := p.SellPrice(math.MaxInt64/2, DefaultPriceCoefficient); !errors.Is(err, ErrValidation) {
		t.Fatalf("sell err = %v, want validation", err)
	}
	if _, err := p.FinalPrice(math.MaxInt64 - 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("final err = %v, want validation", err)
	}
	// largest representable cost still passes
	got, err := p.CostPrice([]IngredientCost{{Amount: math.MaxInt64, UnitPrice: 1000}})
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("cost = %d, err = %v", got, err)
	}
}

func TestValidateCoefficient(t *testing.T) {
	if err := ValidateCoefficient(decimal.RequireFromString("0.05")); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if err := ValidateCoefficient(MinPriceCoefficient); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("create order: %w", Conflictf("order number %s taken", "14030101-0001"))
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected conflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match not found")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("kind = %q", KindOf(err))
	}
	wrapped := StorageError("insert order", errors.New("disk I/O error"))
	if !errors.Is(wrapped, ErrStorage) || wrapped.Error() != "insert order: disk I/O error" {
		t.Fatalf("got %v", wrapped)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain errors carry no kind")
	}
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderCompleted, OrderCancelled} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if OrderStatus("shipped").Valid() {
		t.Error("shipped should be invalid")
	}
}
