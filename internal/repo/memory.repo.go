package repo

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"healthstack/internal/domain"

	"github.com/google/uuid"
)

// memoryOrderRepo keeps orders in process. It follows the same ownership and
// paging rules as the Postgres store and backs tests and --store=memory.
type memoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
}

func NewMemoryOrderRepo() OrderRepo {
	return &memoryOrderRepo{orders: make(map[uuid.UUID]domain.Order)}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.UpdatedAt != nil {
		t := *o.UpdatedAt
		o.UpdatedAt = &t
	}
	return o
}

func (r *memoryOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return persistence("create order", err)
	}
	if err := prepareOrder(order); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return domain.NewError(domain.KindPersistence, "create order", fmt.Errorf("order %s already exists", order.ID))
	}
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *memoryOrderRepo) FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, domain.NewError(domain.KindNotFound, "find order", domain.ErrOrderNotFound)
	}
	c := cloneOrder(o)
	return &c, nil
}

func (r *memoryOrderRepo) ListForUser(ctx context.Context, userID uuid.UUID, q domain.PageQuery) (domain.Page[domain.Order], error) {
	q, err := q.Normalize()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	s, err := q.Sort()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	r.mu.RLock()
	var mine []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			mine = append(mine, cloneOrder(o))
		}
	}
	r.mu.RUnlock()

	sort.Slice(mine, func(i, j int) bool {
		c := compareOrders(mine[i], mine[j], s.Field)
		if c == 0 {
			c = compareUUID(mine[i].ID, mine[j].ID)
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})

	page := domain.Page[domain.Order]{Count: int64(len(mine)), Data: []domain.Order{}}
	start := q.Offset()
	if start >= len(mine) {
		return page, nil
	}
	end := min(start+q.PageSize, len(mine))
	page.Data = mine[start:end]
	return page, nil
}

func compareOrders(a, b domain.Order, field string) int {
	switch field {
	case domain.SortTotalAmount:
		return a.TotalAmount.Cmp(b.TotalAmount)
	case domain.SortStatus:
		switch {
		case a.Status < b.Status:
			return -1
		case a.Status > b.Status:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
