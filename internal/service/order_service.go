package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/metrics"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/ports"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// maxCreateAttempts bounds retries after an order number collision.
const maxCreateAttempts = 3

const entityOrders = "orders"

type OrderService struct {
	DB         *db.SQLite
	Orders     repository.OrderRepository
	Sales      ports.SalesLedger
	Activities repository.ActivityLogRepository
	Calendar   jalali.Calendar
	// MaxRangeDays caps export ranges; zero means no cap.
	MaxRangeDays int
	Logger       *zap.Logger
}

type CreateOrderInput struct {
	Items         []domain.OrderLine
	CustomerName  string
	PaymentMethod string
	Notes         string
	IsPaid        bool
	ClientRef     string
	UserID        int64
}

// CreateOrderResult reports whether the order was written now or replayed from
// an earlier submission with the same client reference.
type CreateOrderResult struct {
	Order    *domain.Order
	Replayed bool
}

func (s *OrderService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Create validates the lines, computes the total and persists the order with
// its items, the sales rollup update and the activity entry in one transaction.
// Order number collisions are retried with a fresh number.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	total, err := domain.ValidateOrderLines(in.Items)
	if err != nil {
		return CreateOrderResult{}, err
	}
	for i := range in.Items {
		in.Items[i].MenuItemName = strings.TrimSpace(in.Items[i].MenuItemName)
	}

	ref := strings.TrimSpace(in.ClientRef)
	if ref == "" {
		ref = uuid.NewString()
	}
	payment := strings.TrimSpace(in.PaymentMethod)
	if payment == "" {
		payment = domain.DefaultPaymentMethod
	}

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		now := s.Calendar.Now()
		date, clock := s.Calendar.Stamp(now)
		order, replayed, err := s.Orders.Create(ctx, repository.CreateOrderInput{
			ClientRef:     ref,
			CustomerName:  optional(in.CustomerName),
			PaymentMethod: &payment,
			Notes:         optional(in.Notes),
			IsPaid:        in.IsPaid,
			Status:        domain.OrderPending,
			TotalAmount:   total,
			Items:         in.Items,
			JalaliDate:    date,
			JalaliTime:    clock,
			CreatedAt:     now,
		}, func(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
			if err := s.Sales.RecordOrderWithTx(ctx, tx, o); err != nil {
				return err
			}
			_, err := s.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
				Type:        domain.ActivityAdd,
				Entity:      entityOrders,
				EntityID:    &o.ID,
				EntityName:  &o.OrderNumber,
				Description: fmt.Sprintf("order %s registered, total %d", o.OrderNumber, o.TotalAmount),
				UserID:      in.UserID,
				At:          now,
			})
			return err
		})
		if err == nil {
			if replayed {
				metrics.OrdersReplayed.Inc()
				s.log().Info("order replayed", zap.String("client_ref", ref), zap.Int64("order_id", order.ID))
			} else {
				metrics.OrdersCreated.Inc()
				metrics.SalesAmount.Add(float64(order.TotalAmount))
				s.log().Info("order created",
					zap.Int64("order_id", order.ID),
					zap.String("order_number", order.OrderNumber),
					zap.Int64("total", order.TotalAmount),
					zap.Int("items", len(order.Items)),
				)
			}
			return CreateOrderResult{Order: order, Replayed: replayed}, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return CreateOrderResult{}, err
		}
		lastErr = err
		metrics.OrderNumberConflicts.Inc()
		s.log().Warn("order number conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return CreateOrderResult{}, lastErr
}

// List returns orders newest first; a nil status returns all of them.
func (s *OrderService) List(ctx context.Context, status *domain.OrderStatus) ([]domain.Order, error) {
	if status != nil && !status.Valid() {
		return nil, domain.Validationf("invalid status %q", *status)
	}
	return s.Orders.List(ctx, status, 0)
}

func (s *OrderService) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return s.Orders.Get(ctx, id)
}

func (s *OrderService) Items(ctx context.Context, id int64) ([]domain.OrderItem, error) {
	return s.Orders.Items(ctx, id)
}

// UpdateStatus moves an order to any status; no transition is forbidden.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, userID int64) (*domain.Order, error) {
	return s.Update(ctx, id, repository.UpdateOrderInput{Status: &status}, userID)
}

// Update changes the editable header fields. Items are edited through
// AddItem, UpdateItem and RemoveItem.
func (s *OrderService) Update(ctx context.Context, id int64, in repository.UpdateOrderInput, userID int64) (*domain.Order, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, domain.Validationf("invalid status %q", *in.Status)
	}
	var updated *domain.Order
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		prev, err := s.Orders.GetWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		o, err := s.Orders.UpdateWithTx(ctx, tx, id, in, s.Calendar.Now())
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("order %s updated", o.OrderNumber)
		if prev.Status != o.Status {
			desc = fmt.Sprintf("order %s status changed from %s to %s", o.OrderNumber, prev.Status, o.Status)
		}
		if _, err := s.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
			Type:        domain.ActivityEdit,
			Entity:      entityOrders,
			EntityID:    &o.ID,
			EntityName:  &o.OrderNumber,
			Description: desc,
			UserID:      userID,
			At:          s.Calendar.Now(),
		}); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the order with its items and takes it out of the sales rollup.
func (s *OrderService) Delete(ctx context.Context, id int64, userID int64) (*domain.Order, error) {
	var deleted *domain.Order
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		o, err := s.Orders.DeleteWithTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.Sales.RemoveOrderWithTx(ctx, tx, o); err != nil {
			return err
		}
		if _, err := s.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
			Type:        domain.ActivityDelete,
			Entity:      entityOrders,
			EntityID:    &o.ID,
			EntityName:  &o.OrderNumber,
			Description: fmt.Sprintf("order %s deleted", o.OrderNumber),
			UserID:      userID,
			At:          s.Calendar.Now(),
		}); err != nil {
			return err
		}
		deleted = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("order deleted", zap.Int64("order_id", deleted.ID), zap.String("order_number", deleted.OrderNumber))
	return deleted, nil
}

// ItemPatch changes the non-nil fields of an order line.
type ItemPatch struct {
	MenuItemID   *int64
	MenuItemName *string
	Price        *int64
	Quantity     *int64
}

// ItemChange is the order after a line edit, together with the line touched.
type ItemChange struct {
	Order *domain.Order
	Item  domain.OrderItem
}

// AddItem appends a line to an order. The order total and its sales day move
// by the line total in the same transaction.
func (s *OrderService) AddItem(ctx context.Context, orderID int64, line domain.OrderLine, userID int64) (ItemChange, error) {
	line.MenuItemName = strings.TrimSpace(line.MenuItemName)
	if _, err := domain.ValidateOrderLines([]domain.OrderLine{line}); err != nil {
		return ItemChange{}, err
	}
	if orderID <= 0 {
		return ItemChange{}, domain.Validationf("invalid orderId")
	}
	return s.editItems(ctx, orderID, 0, userID, func(ctx context.Context, tx *sqlx.Tx, o *domain.Order) (*domain.OrderItem, string, error) {
		it, err := s.Orders.AddItemWithTx(ctx, tx, o.ID, line, s.Calendar.Now())
		if err != nil {
			return nil, "", err
		}
		return it, fmt.Sprintf("%s ×%d added to order %s", it.MenuItemName, it.Quantity, o.OrderNumber), nil
	})
}

// UpdateItem edits a line. A positive orderID must own the line.
func (s *OrderService) UpdateItem(ctx context.Context, orderID, itemID int64, p ItemPatch, userID int64) (ItemChange, error) {
	return s.editItems(ctx, orderID, itemID, userID, func(ctx context.Context, tx *sqlx.Tx, o *domain.Order) (*domain.OrderItem, string, error) {
		cur, err := s.ownedItemWithTx(ctx, tx, o.ID, itemID)
		if err != nil {
			return nil, "", err
		}
		line := cur.Line()
		if p.MenuItemID != nil {
			line.MenuItemID = *p.MenuItemID
		}
		if p.MenuItemName != nil {
			line.MenuItemName = strings.TrimSpace(*p.MenuItemName)
		}
		if p.Price != nil {
			line.Price = *p.Price
		}
		if p.Quantity != nil {
			line.Quantity = *p.Quantity
		}
		if _, err := domain.ValidateOrderLines([]domain.OrderLine{line}); err != nil {
			return nil, "", err
		}
		it, err := s.Orders.UpdateItemWithTx(ctx, tx, itemID, line)
		if err != nil {
			return nil, "", err
		}
		return it, fmt.Sprintf("%s in order %s changed to ×%d at %d", it.MenuItemName, o.OrderNumber, it.Quantity, it.Price), nil
	})
}

// RemoveItem deletes a line. The last line of an order cannot be removed;
// delete the order instead.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID int64, userID int64) (ItemChange, error) {
	return s.editItems(ctx, orderID, itemID, userID, func(ctx context.Context, tx *sqlx.Tx, o *domain.Order) (*domain.OrderItem, string, error) {
		cur, err := s.ownedItemWithTx(ctx, tx, o.ID, itemID)
		if err != nil {
			return nil, "", err
		}
		if len(o.Items) <= 1 {
			return nil, "", domain.Validationf("order %s must keep at least one item", o.OrderNumber)
		}
		if err := s.Orders.DeleteItemWithTx(ctx, tx, itemID); err != nil {
			return nil, "", err
		}
		return cur, fmt.Sprintf("%s removed from order %s", cur.MenuItemName, o.OrderNumber), nil
	})
}

func (s *OrderService) ownedItemWithTx(ctx context.Context, tx *sqlx.Tx, orderID, itemID int64) (*domain.OrderItem, error) {
	it, err := s.Orders.GetItemWithTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if orderID > 0 && it.OrderID != orderID {
		return nil, domain.NotFoundf("order item %d not found in order %d", itemID, orderID)
	}
	return it, nil
}

// editItems runs edit against the order, then recomputes the total from the
// stored lines and moves the sales day by the difference. Everything commits
// together or not at all. A zero orderID is resolved from itemID.
func (s *OrderService) editItems(ctx context.Context, orderID, itemID, userID int64,
	edit func(ctx context.Context, tx *sqlx.Tx, o *domain.Order) (*domain.OrderItem, string, error)) (ItemChange, error) {
	var out ItemChange
	err := s.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if orderID <= 0 {
			it, err := s.Orders.GetItemWithTx(ctx, tx, itemID)
			if err != nil {
				return err
			}
			orderID = it.OrderID
		}
		o, err := s.Orders.GetWithTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		it, desc, err := edit(ctx, tx, o)
		if err != nil {
			return err
		}
		updated, err := s.Orders.GetWithTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		total, err := domain.SumItems(updated.Items)
		if err != nil {
			return err
		}
		now := s.Calendar.Now()
		if err := s.Orders.SetTotalWithTx(ctx, tx, orderID, total, now); err != nil {
			return err
		}
		if err := s.Sales.AdjustOrderWithTx(ctx, tx, updated, total-o.TotalAmount); err != nil {
			return err
		}
		if _, err := s.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
			Type:        domain.ActivityEdit,
			Entity:      entityOrders,
			EntityID:    &o.ID,
			EntityName:  &o.OrderNumber,
			Description: desc,
			UserID:      userID,
			At:          now,
		}); err != nil {
			return err
		}
		updated.TotalAmount, updated.UpdatedAt = total, now.UTC()
		out = ItemChange{Order: updated, Item: *it}
		return nil
	})
	if err != nil {
		return ItemChange{}, err
	}
	s.log().Info("order items edited",
		zap.Int64("order_id", out.Order.ID),
		zap.Int64("item_id", out.Item.ID),
		zap.Int64("total", out.Order.TotalAmount),
	)
	return out, nil
}

// ExportRange loads orders of a Jalali date range for spreadsheet export.
func (s *OrderService) ExportRange(ctx context.Context, from, to jalali.Date) ([]domain.Order, error) {
	if to.Before(from) {
		return nil, domain.Validationf("range start %s is after range end %s", from, to)
	}
	if days := jalali.DaysBetween(from, to); s.MaxRangeDays > 0 && days > s.MaxRangeDays {
		return nil, domain.Validationf("range covers %d days, at most %d allowed", days, s.MaxRangeDays)
	}
	return s.Orders.ListByDateRange(ctx, from.String(), to.String())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
