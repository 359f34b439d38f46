package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
)

// checkOrderTotals asserts that the order total equals its lines and that the
// stored day matches a recomputation from orders.
func (f *fixture) checkOrderTotals(t *testing.T, orderID int64, wantTotal int64) {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Get(ctx, orderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sum, err := domain.SumItems(o.Items)
	if err != nil {
		t.Fatalf("SumItems: %v", err)
	}
	if o.TotalAmount != wantTotal || sum != wantTotal {
		t.Fatalf("total = %d, items sum = %d, want %d", o.TotalAmount, sum, wantTotal)
	}
	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	sales, count := f.recompute(t, o.JalaliDate)
	if day.Source != "summary" || day.TotalSales != sales || day.TotalOrders != count {
		t.Fatalf("day = %+v, recomputed %d/%d", day, sales, count)
	}
}

func TestEditOrderItemsKeepsTotalsInStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "", sampleLines())
	other := f.createOrder(t, "", []domain.OrderLine{{MenuItemID: 3, MenuItemName: "Espresso", Price: 45000, Quantity: 1}})

	added, err := f.orders.AddItem(ctx, o.ID, domain.OrderLine{MenuItemID: 4, MenuItemName: " Cookie ", Price: 12000, Quantity: 3}, 1)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if added.Item.MenuItemName != "Cookie" || added.Item.TotalPrice != 36000 || added.Order.TotalAmount != 201000 {
		t.Fatalf("added = %+v, total %d", added.Item, added.Order.TotalAmount)
	}
	f.checkOrderTotals(t, o.ID, 201000)

	cake := o.Items[0]
	qty := int64(1)
	updated, err := f.orders.UpdateItem(ctx, o.ID, cake.ID, service.ItemPatch{Quantity: &qty}, 1)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if updated.Item.Quantity != 1 || updated.Item.TotalPrice != 80000 || updated.Item.MenuItemName != "Cake" {
		t.Fatalf("updated item = %+v", updated.Item)
	}
	f.checkOrderTotals(t, o.ID, 121000)

	// flat route form: the owning order is looked up from the item
	if _, err := f.orders.RemoveItem(ctx, 0, added.Item.ID, 1); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	f.checkOrderTotals(t, o.ID, 85000)

	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != 85000+45000 || day.TotalOrders != 2 {
		t.Fatalf("day = %+v", day)
	}
	if rebuilt, err := f.sales.EnsureFresh(ctx); err != nil || rebuilt {
		t.Fatalf("EnsureFresh = %v, %v; want summary already fresh", rebuilt, err)
	}

	acts, err := f.activities.List(ctx, 3)
	if err != nil {
		t.Fatalf("List activities: %v", err)
	}
	if len(acts) != 3 || acts[0].Type != domain.ActivityEdit || acts[0].Entity != "orders" {
		t.Fatalf("activities = %+v", acts)
	}

	// an item of another order is not reachable through this one
	if _, err := f.orders.RemoveItem(ctx, o.ID, other.Items[0].ID, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RemoveItem foreign err = %v, want not found", err)
	}
}

func TestEditOrderItemsRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "", []domain.OrderLine{{MenuItemID: 3, MenuItemName: "Espresso", Price: 45000, Quantity: 1}})
	only := o.Items[0].ID

	zero, negative := int64(0), int64(-1)
	cases := map[string]func() error{
		"zero quantity": func() error {
			_, err := f.orders.UpdateItem(ctx, o.ID, only, service.ItemPatch{Quantity: &zero}, 1)
			return err
		},
		"negative price": func() error {
			_, err := f.orders.UpdateItem(ctx, o.ID, only, service.ItemPatch{Price: &negative}, 1)
			return err
		},
		"add without quantity": func() error {
			_, err := f.orders.AddItem(ctx, o.ID, domain.OrderLine{MenuItemName: "Tea", Price: 5000}, 1)
			return err
		},
		"remove last item": func() error {
			_, err := f.orders.RemoveItem(ctx, o.ID, only, 1)
			return err
		},
		"missing order id": func() error {
			_, err := f.orders.AddItem(ctx, 0, domain.OrderLine{MenuItemName: "Tea", Price: 5000, Quantity: 1}, 1)
			return err
		},
	}
	for name, run := range cases {
		if err := run(); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: err = %v, want validation", name, err)
		}
	}

	if _, err := f.orders.AddItem(ctx, 999, domain.OrderLine{MenuItemName: "Tea", Price: 5000, Quantity: 1}, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("AddItem unknown order err = %v, want not found", err)
	}
	if _, err := f.orders.RemoveItem(ctx, 0, 999, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RemoveItem unknown item err = %v, want not found", err)
	}
	f.checkOrderTotals(t, o.ID, 45000)
}

func TestEditOrderItemsRollsBackOnLedgerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "", sampleLines())

	boom := errors.New("ledger unavailable")
	f.orders.Sales = failingLedger{SalesLedger: f.sales, adjustErr: boom}
	if _, err := f.orders.AddItem(ctx, o.ID, domain.OrderLine{MenuItemName: "Tea", Price: 5000, Quantity: 4}, 1); !errors.Is(err, boom) {
		t.Fatalf("AddItem err = %v, want %v", err, boom)
	}
	got, err := f.orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %+v, want the original two", got.Items)
	}
	f.checkOrderTotals(t, o.ID, 165000)
}
