package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "Pending"
)

// OrderItem is a line of an order. ProductName and UnitPrice are copied from
// the catalog when the order is created and never follow later catalog edits.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Items       []OrderItem
	TotalAmount decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// OrderLineRequest is what a caller asks for; it is resolved against the
// catalog before anything is stored.
type OrderLineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// Product is the catalog snapshot needed to price a line.
type Product struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
}

type ResolveFunc func(ctx context.Context, productID uuid.UUID) (Product, error)

type IDGenerator func() uuid.UUID

// ValidateLines checks the request-boundary rules: at least one line, every
// product id set, every quantity positive.
func ValidateLines(lines []OrderLineRequest) error {
	if len(lines) == 0 {
		return NewError(KindValidation, "validate order", ErrEmptyOrder)
	}
	for i, l := range lines {
		if l.ProductID == uuid.Nil {
			return NewError(KindValidation, "validate order", fmt.Errorf("%w: line %d", ErrMissingProduct, i))
		}
		if l.Quantity <= 0 {
			return NewError(KindValidation, "validate order", fmt.Errorf("%w: line %d has quantity %d", ErrInvalidQuantity, i, l.Quantity))
		}
	}
	return nil
}

// BuildOrder prices every line through resolve and returns a pending order.
// It stops at the first resolution failure, so the result is either a
// complete order or nothing.
func BuildOrder(
	ctx context.Context,
	userID uuid.UUID,
	lines []OrderLineRequest,
	resolve ResolveFunc,
	newID IDGenerator,
	now time.Time,
) (*Order, error) {
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}

	order := &Order{
		ID:          newID(),
		UserID:      userID,
		Items:       make([]OrderItem, 0, len(lines)),
		TotalAmount: decimal.Zero,
		Status:      OrderPending,
		CreatedAt:   now,
	}

	for i, line := range lines {
		product, err := resolve(ctx, line.ProductID)
		if err != nil {
			err = EnsureKind(KindUpstream, "resolve product", err)
			return nil, fmt.Errorf("resolve line %d (product %s): %w", i, line.ProductID, err)
		}
		if product.Price.IsNegative() {
			return nil, NewError(KindUpstream, "resolve product",
				fmt.Errorf("catalog returned negative price %s for product %s", product.Price, line.ProductID))
		}

		item := OrderItem{
			ID:          newID(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
		}
		order.Items = append(order.Items, item)
		order.TotalAmount = order.TotalAmount.Add(item.LineTotal())
	}

	return order, nil
}

// SumLines recomputes the total from the items.
func (o *Order) SumLines() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}
