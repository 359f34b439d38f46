package domain

import "math"

// OrderLine is a requested line before it is persisted.
type OrderLine struct {
	MenuItemID   int64
	MenuItemName string
	Price        int64
	Quantity     int64
}

// LineTotal returns price × quantity, failing on overflow.
func (l OrderLine) LineTotal() (int64, error) {
	if l.Price == 0 || l.Quantity == 0 {
		return 0, nil
	}
	if l.Price > math.MaxInt64/l.Quantity {
		return 0, Validationf("line total for %q overflows", l.MenuItemName)
	}
	return l.Price * l.Quantity, nil
}

// ValidateOrderLines checks every line and returns the order total.
func ValidateOrderLines(lines []OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, Validationf("order must contain at least one item")
	}
	var total int64
	for i, l := range lines {
		if l.Quantity <= 0 {
			return 0, Validationf("items[%d]: quantity must be greater than zero", i)
		}
		if l.Price < 0 {
			return 0, Validationf("items[%d]: price must not be negative", i)
		}
		if l.MenuItemID < 0 {
			return 0, Validationf("items[%d]: invalid menuItemId", i)
		}
		lt, err := l.LineTotal()
		if err != nil {
			return 0, err
		}
		if total > math.MaxInt64-lt {
			return 0, Validationf("order total overflows")
		}
		total += lt
	}
	return total, nil
}

// Line returns the item as a request line.
func (it OrderItem) Line() OrderLine {
	return OrderLine{MenuItemID: it.MenuItemID, MenuItemName: it.MenuItemName, Price: it.Price, Quantity: it.Quantity}
}

// SumItems adds the stored line totals of an order, failing on overflow.
func SumItems(items []OrderItem) (int64, error) {
	var total int64
	for _, it := range items {
		if total > math.MaxInt64-it.TotalPrice {
			return 0, Validationf("order total overflows")
		}
		total += it.TotalPrice
	}
	return total, nil
}
