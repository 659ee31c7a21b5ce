package repo

import (
	"context"
	"testing"
	"time"

	"healthstack/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 12, 21, 13, 0, 0, 0, time.UTC)

func newOrder(userID uuid.UUID, createdAt time.Time, prices ...string) *domain.Order {
	o := &domain.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      domain.OrderPending,
		CreatedAt:   createdAt,
		TotalAmount: decimal.Zero,
	}
	for i, p := range prices {
		item := domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   uuid.New(),
			ProductName: "product-" + string(rune('a'+i)),
			UnitPrice:   decimal.RequireFromString(p),
			Quantity:    i + 1,
		}
		o.Items = append(o.Items, item)
		o.TotalAmount = o.TotalAmount.Add(item.LineTotal())
	}
	return o
}

// runOrderRepoContract checks the rules every OrderRepo must follow.
// newRepo returns an empty store.
func runOrderRepoContract(t *testing.T, newRepo func(t *testing.T) OrderRepo) {
	ctx := context.Background()

	t.Run("create then find round-trips items in order", func(t *testing.T) {
		r := newRepo(t)
		user := uuid.New()
		o := newOrder(user, baseTime, "24.99", "0.10", "100.00")

		require.NoError(t, r.CreateOrder(ctx, o))

		got, err := r.FindByIDForUser(ctx, o.ID, user)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, user, got.UserID)
		assert.Equal(t, domain.OrderPending, got.Status)
		assert.True(t, o.TotalAmount.Equal(got.TotalAmount), "total %s != %s", got.TotalAmount, o.TotalAmount)
		assert.True(t, baseTime.Equal(got.CreatedAt))
		assert.Nil(t, got.UpdatedAt)

		require.Len(t, got.Items, 3)
		for i := range o.Items {
			assert.Equal(t, o.Items[i].ID, got.Items[i].ID)
			assert.Equal(t, o.ID, got.Items[i].OrderID)
			assert.Equal(t, o.Items[i].ProductName, got.Items[i].ProductName)
			assert.True(t, o.Items[i].UnitPrice.Equal(got.Items[i].UnitPrice))
			assert.Equal(t, o.Items[i].Quantity, got.Items[i].Quantity)
		}
		assert.True(t, got.TotalAmount.Equal(got.SumLines()))
	})

	t.Run("other user's order is not found", func(t *testing.T) {
		r := newRepo(t)
		owner, other := uuid.New(), uuid.New()
		o := newOrder(owner, baseTime, "10.00")
		require.NoError(t, r.CreateOrder(ctx, o))

		_, err := r.FindByIDForUser(ctx, o.ID, other)
		require.Error(t, err)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("missing order is not found", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.FindByIDForUser(ctx, uuid.New(), uuid.New())
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	t.Run("duplicate id is a persistence error and keeps the first", func(t *testing.T) {
		r := newRepo(t)
		user := uuid.New()
		o := newOrder(user, baseTime, "10.00")
		require.NoError(t, r.CreateOrder(ctx, o))

		dup := newOrder(user, baseTime, "99.00", "1.00")
		dup.ID = o.ID
		err := r.CreateOrder(ctx, dup)
		require.Error(t, err)
		assert.Equal(t, domain.KindPersistence, domain.KindOf(err))

		got, err := r.FindByIDForUser(ctx, o.ID, user)
		require.NoError(t, err)
		assert.Len(t, got.Items, 1)
		assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("10.00")))
	})

	t.Run("create assigns missing ids and creation time", func(t *testing.T) {
		r := newRepo(t)
		user := uuid.New()
		before := time.Now().UTC().Add(-time.Second)
		var created []uuid.UUID
		for i := 0; i < 2; i++ {
			o := &domain.Order{
				UserID:      user,
				Status:      domain.OrderPending,
				TotalAmount: decimal.RequireFromString("4.00"),
				Items: []domain.OrderItem{{
					ProductID:   uuid.New(),
					ProductName: "gauze",
					UnitPrice:   decimal.RequireFromString("2.00"),
					Quantity:    2,
				}},
			}
			require.NoError(t, r.CreateOrder(ctx, o))
			assert.NotEqual(t, uuid.Nil, o.ID)
			assert.True(t, o.CreatedAt.After(before), "created at %s", o.CreatedAt)
			assert.NotEqual(t, uuid.Nil, o.Items[0].ID)
			assert.Equal(t, o.ID, o.Items[0].OrderID)

			got, err := r.FindByIDForUser(ctx, o.ID, user)
			require.NoError(t, err)
			require.Len(t, got.Items, 1)
			assert.Equal(t, o.Items[0].ID, got.Items[0].ID)
			assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Millisecond)
			created = append(created, o.ID)
		}
		assert.NotEqual(t, created[0], created[1])
	})

	t.Run("order without items is rejected and not stored", func(t *testing.T) {
		r := newRepo(t)
		user := uuid.New()
		o := &domain.Order{ID: uuid.New(), UserID: user, Status: domain.OrderPending, CreatedAt: baseTime}

		err := r.CreateOrder(ctx, o)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrEmptyOrder)

		_, err = r.FindByIDForUser(ctx, o.ID, user)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
		page, err := r.ListForUser(ctx, user, domain.PageQuery{})
		require.NoError(t, err)
		assert.Zero(t, page.Count)
	})

	t.Run("list is scoped, paged and newest first by default", func(t *testing.T) {
		r := newRepo(t)
		user, other := uuid.New(), uuid.New()
		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			o := newOrder(user, baseTime.Add(time.Duration(i)*time.Minute), "1.00")
			require.NoError(t, r.CreateOrder(ctx, o))
			ids = append(ids, o.ID)
		}
		require.NoError(t, r.CreateOrder(ctx, newOrder(other, baseTime, "1.00")))

		page, err := r.ListForUser(ctx, user, domain.PageQuery{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 5, page.Count)
		require.Len(t, page.Data, 2)
		assert.Equal(t, ids[4], page.Data[0].ID)
		assert.Equal(t, ids[3], page.Data[1].ID)
		assert.Len(t, page.Data[0].Items, 1)

		last, err := r.ListForUser(ctx, user, domain.PageQuery{Page: 3, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, last.Data, 1)
		assert.Equal(t, ids[0], last.Data[0].ID)

		beyond, err := r.ListForUser(ctx, user, domain.PageQuery{Page: 9, PageSize: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 5, beyond.Count)
		assert.Empty(t, beyond.Data)
	})

	t.Run("list orders by total amount", func(t *testing.T) {
		r := newRepo(t)
		user := uuid.New()
		cheap := newOrder(user, baseTime, "1.00")
		dear := newOrder(user, baseTime.Add(time.Minute), "50.00")
		mid := newOrder(user, baseTime.Add(2*time.Minute), "7.50")
		for _, o := range []*domain.Order{cheap, dear, mid} {
			require.NoError(t, r.CreateOrder(ctx, o))
		}

		page, err := r.ListForUser(ctx, user, domain.PageQuery{OrderBy: "totalAmount asc"})
		require.NoError(t, err)
		require.Len(t, page.Data, 3)
		assert.Equal(t, []uuid.UUID{cheap.ID, mid.ID, dear.ID},
			[]uuid.UUID{page.Data[0].ID, page.Data[1].ID, page.Data[2].ID})

		page, err = r.ListForUser(ctx, user, domain.PageQuery{OrderBy: "totalAmount desc"})
		require.NoError(t, err)
		assert.Equal(t, dear.ID, page.Data[0].ID)
	})

	t.Run("list rejects unknown sort field", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.ListForUser(ctx, uuid.New(), domain.PageQuery{OrderBy: "user_id; drop table orders"})
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("empty list", func(t *testing.T) {
		r := newRepo(t)
		page, err := r.ListForUser(ctx, uuid.New(), domain.PageQuery{})
		require.NoError(t, err)
		assert.Zero(t, page.Count)
		assert.NotNil(t, page.Data)
		assert.Empty(t, page.Data)
	})
}
