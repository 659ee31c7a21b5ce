package server

import (
	"time"

	"healthstack/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Items []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
}

type OrderLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0,max=2147483647"`
}

func (r CreateOrderRequest) toDomain() []domain.OrderLineRequest {
	lines := make([]domain.OrderLineRequest, len(r.Items))
	for i, it := range r.Items {
		// Format already checked by the uuid binding tag.
		lines[i] = domain.OrderLineRequest{
			ProductID: uuid.MustParse(it.ProductID),
			Quantity:  it.Quantity,
		}
	}
	return lines
}

type ListOrdersQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"orderBy"`
}

type OrderItemDto struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"orderId"`
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type OrderReadDto struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	Items       []OrderItemDto  `json:"items"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   *time.Time      `json:"updatedAt"`
}

type PageDto[T any] struct {
	Count int64 `json:"count"`
	Data  []T   `json:"data"`
}

func toOrderReadDto(o *domain.Order) OrderReadDto {
	items := make([]OrderItemDto, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemDto{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		}
	}
	return OrderReadDto{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		Items:       items,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
