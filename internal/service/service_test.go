package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/db/dbtest"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/ports"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// 2024-10-16 14:00 in Tehran, Jalali 1403-07-25.
var testNow = time.Date(2024, 10, 16, 10, 30, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db         *db.SQLite
	clock      *testClock
	cal        jalali.Calendar
	sales      *service.SalesAggregator
	orders     *service.OrderService
	catalog    *service.CatalogService
	activities repository.ActivityLogRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store := dbtest.Open(t)
	clock := &testClock{t: testNow}
	cal := jalali.NewCalendar(loc, clock)
	activities := repository.ActivityLogRepository{DB: store}
	sales := &service.SalesAggregator{
		DB:           store,
		Summaries:    repository.SalesSummaryRepository{DB: store},
		Activities:   activities,
		Calendar:     cal,
		MaxRangeDays: 366,
	}
	return &fixture{
		db:    store,
		clock: clock,
		cal:   cal,
		sales: sales,
		orders: &service.OrderService{
			DB:           store,
			Orders:       repository.OrderRepository{DB: store},
			Sales:        sales,
			Activities:   activities,
			Calendar:     cal,
			MaxRangeDays: 366,
		},
		catalog: &service.CatalogService{
			DB:         store,
			Materials:  repository.MaterialRepository{DB: store},
			Recipes:    repository.RecipeRepository{DB: store},
			Activities: activities,
			Pricing:    domain.Pricing{UnitBasis: 1000, TaxRate: decimal.RequireFromString("0.09")},
			Calendar:   cal,
		},
		activities: activities,
	}
}

func sampleLines() []domain.OrderLine {
	return []domain.OrderLine{
		{MenuItemID: 1, MenuItemName: "Cake", Price: 80000, Quantity: 2},
		{MenuItemID: 2, MenuItemName: "Tea", Price: 5000, Quantity: 1},
	}
}

func (f *fixture) createOrder(t *testing.T, ref string, lines []domain.OrderLine) *domain.Order {
	t.Helper()
	res, err := f.orders.Create(context.Background(), service.CreateOrderInput{Items: lines, ClientRef: ref})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return res.Order
}

func (f *fixture) today() jalali.Date { return f.cal.Today() }

func (f *fixture) recompute(t *testing.T, date string) (int64, int64) {
	t.Helper()
	var row struct {
		Sales  int64 `db:"s"`
		Orders int64 `db:"c"`
	}
	err := f.db.Conn.GetContext(context.Background(), &row,
		`SELECT COALESCE(SUM(total_amount), 0) AS s, COUNT(*) AS c FROM orders WHERE jalali_date = ?`, date)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	return row.Sales, row.Orders
}

func TestCreateOrderComputesTotalAndUpdatesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.createOrder(t, "", sampleLines())
	if o.TotalAmount != 165000 {
		t.Fatalf("total = %d, want 165000", o.TotalAmount)
	}
	if o.OrderNumber != "14030725-0001" {
		t.Fatalf("order number = %q", o.OrderNumber)
	}
	if o.JalaliDate != "1403-07-25" || o.JalaliTime != "14:00" {
		t.Fatalf("stamp = %s %s", o.JalaliDate, o.JalaliTime)
	}
	if o.Status != domain.OrderPending || o.PaymentMethod == nil || *o.PaymentMethod != domain.DefaultPaymentMethod {
		t.Fatalf("defaults not applied: %+v", o)
	}
	if o.ClientRef == nil || *o.ClientRef == "" {
		t.Fatal("client reference should be assigned")
	}
	if len(o.Items) != 2 || o.Items[0].TotalPrice != 160000 {
		t.Fatalf("items = %+v", o.Items)
	}

	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != 165000 || day.TotalOrders != 1 || day.Source != "summary" {
		t.Fatalf("day = %+v", day)
	}

	acts, err := f.activities.List(ctx, 10)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Type != domain.ActivityAdd || acts[0].Entity != "orders" {
		t.Fatalf("activities = %+v", acts)
	}
}

func TestCreateOrderRejectsInvalidItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string][]domain.OrderLine{
		"empty":          nil,
		"zero quantity":  {{MenuItemID: 1, MenuItemName: "Tea", Price: 5000, Quantity: 0}},
		"negative price": {{MenuItemID: 1, MenuItemName: "Tea", Price: -1, Quantity: 1}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.orders.Create(ctx, service.CreateOrderInput{Items: lines})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
	n, err := repository.OrderRepository{DB: f.db}.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("orders = %d, want 0", n)
	}
}

func TestCreateOrderReplayDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := service.CreateOrderInput{Items: sampleLines(), ClientRef: "till-1-0042"}
	first, err := f.orders.Create(ctx, in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.orders.Create(ctx, service.CreateOrderInput{Items: sampleLines(), ClientRef: "till-1-0042"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.Replayed || !second.Replayed {
		t.Fatalf("replayed flags = %v, %v", first.Replayed, second.Replayed)
	}
	if second.Order.ID != first.Order.ID || second.Order.OrderNumber != first.Order.OrderNumber {
		t.Fatalf("replay returned a different order: %+v", second.Order)
	}

	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != 165000 || day.TotalOrders != 1 {
		t.Fatalf("day = %+v, want one order of 165000", day)
	}
}

func TestClearCacheDailyMatchesRecomputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, "", sampleLines())
	f.createOrder(t, "", []domain.OrderLine{{MenuItemID: 3, MenuItemName: "Espresso", Price: 45000, Quantity: 1}})
	today := f.today().String()

	// Drift the stored row so the rebuild has something to fix.
	if _, err := f.db.Conn.ExecContext(ctx, `UPDATE sales_summary SET total_sales = 1 WHERE date = ?`, today); err != nil {
		t.Fatalf("corrupt summary: %v", err)
	}

	res, err := f.sales.ClearCache(ctx, jalali.ScopeDaily, 7)
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if res.Prefix != today || res.Cleared != 1 || res.Rebuilt != 1 {
		t.Fatalf("clear result = %+v", res)
	}

	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	wantSales, wantOrders := f.recompute(t, today)
	if day.TotalSales != wantSales || day.TotalOrders != wantOrders || wantSales != 210000 {
		t.Fatalf("day = %+v, want %d/%d", day, wantSales, wantOrders)
	}

	acts, err := f.activities.List(ctx, 1)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if acts[0].Entity != "sales_summary" || acts[0].Type != domain.ActivityDelete || acts[0].UserID != 7 {
		t.Fatalf("last activity = %+v", acts[0])
	}
}

func TestClearCacheKeepsOtherDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Advance(-24 * time.Hour)
	f.createOrder(t, "", sampleLines())
	yesterday := f.today()
	f.clock.Advance(24 * time.Hour)
	f.createOrder(t, "", sampleLines())

	if _, err := f.sales.ClearCache(ctx, jalali.ScopeDaily, 1); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	rows, err := f.sales.ListStored(ctx)
	if err != nil {
		t.Fatalf("ListStored: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored rows = %d, want 2", len(rows))
	}
	if rows[1].Date != yesterday.String() || rows[1].TotalOrders != 1 {
		t.Fatalf("yesterday row = %+v", rows[1])
	}
}

func TestGetSummaryComputesMissingDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, "", sampleLines())
	if _, err := f.db.Conn.ExecContext(ctx, `DELETE FROM sales_summary`); err != nil {
		t.Fatalf("drop summary: %v", err)
	}

	today := f.today()
	rep, err := f.sales.GetSummary(ctx, today.AddDays(-1), today)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if len(rep.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(rep.Days))
	}
	if rep.Days[0].TotalSales != 0 || rep.Days[0].Source != "orders" {
		t.Fatalf("yesterday = %+v", rep.Days[0])
	}
	if rep.Days[1].TotalSales != 165000 || rep.Days[1].TotalOrders != 1 || rep.Days[1].Source != "orders" {
		t.Fatalf("today = %+v", rep.Days[1])
	}
	if rep.TotalSales != 165000 || rep.TotalOrders != 1 {
		t.Fatalf("totals = %d/%d", rep.TotalSales, rep.TotalOrders)
	}
}

func TestGetSummaryRejectsBadRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.today()

	if _, err := f.sales.GetSummary(ctx, today, today.AddDays(-1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("reversed range err = %v", err)
	}
	if _, err := f.sales.GetSummary(ctx, today.AddDays(-400), today); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("oversized range err = %v", err)
	}
}

func TestEnsureFreshRebuildsStaleSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, "", sampleLines())
	rebuilt, err := f.sales.EnsureFresh(ctx)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if rebuilt {
		t.Fatal("consistent summary should not be rebuilt")
	}

	if _, err := f.db.Conn.ExecContext(ctx, `DELETE FROM sales_summary`); err != nil {
		t.Fatalf("drop summary: %v", err)
	}
	rebuilt, err = f.sales.EnsureFresh(ctx)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if !rebuilt {
		t.Fatal("missing rows should trigger a rebuild")
	}
	rows, err := f.sales.ListStored(ctx)
	if err != nil {
		t.Fatalf("ListStored: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalSales != 165000 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createOrder(t, "", sampleLines())

	for i := 0; i < 2; i++ {
		n, err := f.sales.Rebuild(ctx, jalali.ScopeMonthly)
		if err != nil {
			t.Fatalf("Rebuild #%d: %v", i, err)
		}
		if n != 1 {
			t.Fatalf("Rebuild #%d rebuilt %d days, want 1", i, n)
		}
	}
	rows, err := f.sales.ListStored(ctx)
	if err != nil {
		t.Fatalf("ListStored: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalSales != 165000 || rows[0].TotalOrders != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}

// Any status may follow any other; cancelled orders stay in the sales totals.
func TestStatusTransitionsAreUnrestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "", sampleLines())

	for _, s := range []domain.OrderStatus{domain.OrderCompleted, domain.OrderPending, domain.OrderCancelled, domain.OrderCompleted, domain.OrderCancelled} {
		got, err := f.orders.UpdateStatus(ctx, o.ID, s, 1)
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", s, err)
		}
		if got.Status != s {
			t.Fatalf("status = %s, want %s", got.Status, s)
		}
	}

	if _, err := f.orders.UpdateStatus(ctx, o.ID, "shipped", 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown status err = %v", err)
	}
	if _, err := f.orders.UpdateStatus(ctx, 9999, domain.OrderCompleted, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown order err = %v", err)
	}

	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != 165000 {
		t.Fatalf("cancelled order dropped from totals: %+v", day)
	}

	cancelled := domain.OrderCancelled
	list, err := f.orders.List(ctx, &cancelled)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != o.ID {
		t.Fatalf("cancelled list = %+v", list)
	}
	pending := domain.OrderPending
	list, err = f.orders.List(ctx, &pending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("pending list = %+v", list)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createOrder(t, "", sampleLines())
	f.clock.Advance(time.Minute)
	b := f.createOrder(t, "", sampleLines())

	list, err := f.orders.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("order = %v, %v", list[0].ID, list[1].ID)
	}
	if len(list[0].Items) != 2 {
		t.Fatalf("items not attached: %+v", list[0])
	}
}

func TestDeleteOrderUpdatesSummaryAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createOrder(t, "", sampleLines())
	f.createOrder(t, "", []domain.OrderLine{{MenuItemID: 3, MenuItemName: "Espresso", Price: 45000, Quantity: 1}})

	if _, err := f.orders.Delete(ctx, a.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != 45000 || day.TotalOrders != 1 {
		t.Fatalf("day = %+v", day)
	}

	var orphans int
	if err := f.db.Conn.GetContext(ctx, &orphans, `SELECT COUNT(*) FROM order_items WHERE order_id = ?`, a.ID); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("orphan items = %d", orphans)
	}
	if _, err := f.orders.Get(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	if _, err := f.orders.Delete(ctx, a.ID, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestOrderNumbersAreNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createOrder(t, "", sampleLines())
	if _, err := f.orders.Delete(ctx, a.ID, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	b := f.createOrder(t, "", sampleLines())
	if b.OrderNumber != "14030725-0002" {
		t.Fatalf("order number = %s, want 14030725-0002", b.OrderNumber)
	}

	f.clock.Advance(24 * time.Hour)
	c := f.createOrder(t, "", sampleLines())
	if c.OrderNumber != "14030726-0001" {
		t.Fatalf("next day order number = %s", c.OrderNumber)
	}
}

func TestUpdateOrderFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "", sampleLines())

	name, paid := "Sara", true
	got, err := f.orders.Update(ctx, o.ID, repository.UpdateOrderInput{CustomerName: &name, IsPaid: &paid}, 1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.CustomerName == nil || *got.CustomerName != "Sara" || !got.IsPaid || got.TotalAmount != 165000 {
		t.Fatalf("updated = %+v", got)
	}
}

// failingLedger records through the real ledger, then fails, so the order
// writes before it must be undone.
type failingLedger struct {
	ports.SalesLedger
	recordErr error
	adjustErr error
}

func (l failingLedger) RecordOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	if err := l.SalesLedger.RecordOrderWithTx(ctx, tx, o); err != nil {
		return err
	}
	return l.recordErr
}

func (l failingLedger) AdjustOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order, delta int64) error {
	if err := l.SalesLedger.AdjustOrderWithTx(ctx, tx, o, delta); err != nil {
		return err
	}
	return l.adjustErr
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.db.Conn.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM `+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestCreateOrderIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("summary write failed")
	f.orders.Sales = failingLedger{SalesLedger: f.sales, recordErr: boom}
	_, err := f.orders.Create(ctx, service.CreateOrderInput{Items: sampleLines(), ClientRef: "till-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("Create err = %v, want %v", err, boom)
	}
	for _, table := range []string{"orders", "order_items", "sales_summary", "activities"} {
		if n := f.countRows(t, table); n != 0 {
			t.Fatalf("%s rows = %d after failed create, want 0", table, n)
		}
	}

	// the failed attempt consumed neither the number nor the client reference
	f.orders.Sales = f.sales
	o := f.createOrder(t, "till-1", sampleLines())
	if o.OrderNumber != "14030725-0001" {
		t.Fatalf("order number = %s, want 14030725-0001", o.OrderNumber)
	}
}

func TestCreateOrderConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orders.Create(ctx, service.CreateOrderInput{Items: sampleLines()})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			mu.Lock()
			numbers[res.Order.OrderNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if t.Failed() {
		return
	}
	if len(numbers) != workers {
		t.Fatalf("distinct order numbers = %d, want %d", len(numbers), workers)
	}
	day, err := f.sales.GetDay(ctx, f.today())
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	if day.TotalSales != workers*165000 || day.TotalOrders != workers {
		t.Fatalf("day = %+v, want %d/%d", day, workers*165000, workers)
	}
}

func TestCreateOrderConcurrentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg       sync.WaitGroup
		replayed atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orders.Create(ctx, service.CreateOrderInput{Items: sampleLines(), ClientRef: "tablet-7"})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			if res.Replayed {
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()
	if t.Failed() {
		return
	}
	if n := f.countRows(t, "orders"); n != 1 {
		t.Fatalf("orders = %d, want 1", n)
	}
	if got := replayed.Load(); got != workers-1 {
		t.Fatalf("replayed = %d, want %d", got, workers-1)
	}
}
