package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enumerations
const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"

	ActivityAdd       ActivityType = "add"
	ActivityEdit      ActivityType = "edit"
	ActivityDelete    ActivityType = "delete"
	ActivityCalculate ActivityType = "calculate"

	StockAdjust  StockMovementType = "adjust"
	StockReduce  StockMovementType = "reduce"
	StockRecount StockMovementType = "recount"
)

const (
	DefaultMaterialCategory = "عمومی"
	DefaultMaterialUnit     = "گرم"
	DefaultPaymentMethod    = "نقد"
)

type OrderStatus string
type ActivityType string
type StockMovementType string

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityAdd, ActivityEdit, ActivityDelete, ActivityCalculate:
		return true
	}
	return false
}

func (t StockMovementType) Valid() bool {
	switch t {
	case StockAdjust, StockReduce, StockRecount:
		return true
	}
	return false
}

type Material struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Category    string    `db:"category"`
	Price       int64     `db:"price"`
	Unit        string    `db:"unit"`
	Stock       int64     `db:"stock"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type StockMovement struct {
	ID         int64             `db:"id"`
	MaterialID int64             `db:"material_id"`
	Change     int64             `db:"change"`
	Remaining  int64             `db:"remaining"`
	Type       StockMovementType `db:"type"`
	Note       string            `db:"note"`
	CreatedAt  time.Time         `db:"created_at"`
}

type Recipe struct {
	ID               int64              `db:"id"`
	Name             string             `db:"name"`
	Category         string             `db:"category"`
	Description      *string            `db:"description"`
	ImageURL         *string            `db:"image_url"`
	PriceCoefficient decimal.Decimal    `db:"price_coefficient"`
	CostPrice        int64              `db:"cost_price"`
	SellPrice        int64              `db:"sell_price"`
	CreatedAt        time.Time          `db:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at"`
	Ingredients      []RecipeIngredient `db:"-"`
}

// RecipeIngredient carries the material snapshot joined at read time.
type RecipeIngredient struct {
	ID            int64  `db:"id"`
	RecipeID      int64  `db:"recipe_id"`
	MaterialID    int64  `db:"material_id"`
	Amount        int64  `db:"amount"`
	MaterialName  string `db:"material_name"`
	MaterialUnit  string `db:"material_unit"`
	MaterialPrice int64  `db:"material_price"`
}

type Order struct {
	ID            int64       `db:"id"`
	OrderNumber   string      `db:"order_number"`
	ClientRef     *string     `db:"client_ref"`
	CustomerName  *string     `db:"customer_name"`
	TotalAmount   int64       `db:"total_amount"`
	IsPaid        bool        `db:"is_paid"`
	PaymentMethod *string     `db:"payment_method"`
	Status        OrderStatus `db:"status"`
	Notes         *string     `db:"notes"`
	JalaliDate    string      `db:"jalali_date"`
	JalaliTime    string      `db:"jalali_time"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	Items         []OrderItem `db:"-"`
}

type OrderItem struct {
	ID           int64     `db:"id"`
	OrderID      int64     `db:"order_id"`
	MenuItemID   int64     `db:"menu_item_id"`
	MenuItemName string    `db:"menu_item_name"`
	Price        int64     `db:"price"`
	Quantity     int64     `db:"quantity"`
	TotalPrice   int64     `db:"total_price"`
	CreatedAt    time.Time `db:"created_at"`
}

// SalesSummary is one materialized day of sales keyed by Jalali date.
type SalesSummary struct {
	ID          int64     `db:"id"`
	Date        string    `db:"date"`
	TotalSales  int64     `db:"total_sales"`
	TotalOrders int64     `db:"total_orders"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type Activity struct {
	ID          int64        `db:"id"`
	Type        ActivityType `db:"type"`
	Entity      string       `db:"entity"`
	EntityID    *int64       `db:"entity_id"`
	EntityName  *string      `db:"entity_name"`
	Description string       `db:"description"`
	UserID      int64        `db:"user_id"`
	CreatedAt   time.Time    `db:"created_at"`
}
