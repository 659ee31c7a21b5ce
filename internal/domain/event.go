package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoutingKeyOrderCreated is the topic key for OrderCreatedEvent.
const RoutingKeyOrderCreated = "order.created"

func init() {
	// Money goes over the wire as a JSON number, the way the catalog sends it.
	decimal.MarshalJSONWithoutQuotes = true
}

// OrderCreatedEvent is the value snapshot announced after an order commits.
// Consumers learn about the order only through this payload.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	UserID      uuid.UUID       `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
	}
}

func (e OrderCreatedEvent) Validate() error {
	switch {
	case e.OrderID == uuid.Nil:
		return fmt.Errorf("%w: orderId is missing", ErrInvalidEvent)
	case e.UserID == uuid.Nil:
		return fmt.Errorf("%w: userId is missing", ErrInvalidEvent)
	case e.TotalAmount.IsNegative():
		return fmt.Errorf("%w: totalAmount %s is negative", ErrInvalidEvent, e.TotalAmount)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("%w: createdAt is missing", ErrInvalidEvent)
	}
	return nil
}

// DecodeOrderCreatedEvent parses and validates a message body. Every failure
// is KindDecode: redelivering the same bytes can never succeed.
func DecodeOrderCreatedEvent(body []byte) (OrderCreatedEvent, error) {
	var ev OrderCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return OrderCreatedEvent{}, NewError(KindDecode, "decode order created", err)
	}
	if err := ev.Validate(); err != nil {
		return OrderCreatedEvent{}, NewError(KindDecode, "decode order created", err)
	}
	return ev, nil
}
