package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"healthstack/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type OrderRepo interface {
	// CreateOrder stores the order and all of its items atomically. Zero ids
	// and a zero CreatedAt are assigned and written back to order.
	CreateOrder(ctx context.Context, order *domain.Order) error
	// FindByIDForUser reports NotFound both when the order does not exist and
	// when it belongs to someone else.
	FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, q domain.PageQuery) (domain.Page[domain.Order], error)
}

type orderRepo struct {
	db *sqlx.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: sqlx.NewDb(db, "pgx")}
}

type orderRow struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   sql.NullTime    `db:"updated_at"`
}

type itemRow struct {
	ID          uuid.UUID       `db:"id"`
	OrderID     uuid.UUID       `db:"order_id"`
	Position    int             `db:"position"`
	ProductID   uuid.UUID       `db:"product_id"`
	ProductName string          `db:"product_name"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	Quantity    int             `db:"quantity"`
}

func (r orderRow) toDomain(items []domain.OrderItem) domain.Order {
	o := domain.Order{
		ID:          r.ID,
		UserID:      r.UserID,
		Items:       items,
		TotalAmount: r.TotalAmount,
		Status:      domain.OrderStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.UpdatedAt.Valid {
		t := r.UpdatedAt.Time.UTC()
		o.UpdatedAt = &t
	}
	return o
}

func (r itemRow) toDomain() domain.OrderItem {
	return domain.OrderItem{
		ID:          r.ID,
		OrderID:     r.OrderID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		UnitPrice:   r.UnitPrice,
		Quantity:    r.Quantity,
	}
}

// sortColumns maps client sort fields to columns; nothing else reaches SQL.
var sortColumns = map[string]string{
	domain.SortTotalAmount: "total_amount",
	domain.SortStatus:      "status",
	domain.SortCreatedAt:   "created_at",
}

func persistence(op string, err error) error {
	return domain.EnsureKind(domain.KindPersistence, op, err)
}

// prepareOrder rejects orders without items and fills ids and the creation
// time when the caller left them zero. It writes through the pointer.
func prepareOrder(order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.NewError(domain.KindValidation, "create order", domain.ErrEmptyOrder)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return nil
}

func (r *orderRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const insertOrderQuery = `INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
VALUES (:id, :user_id, :total_amount, :status, :created_at, :updated_at)`

const insertItemQuery = `INSERT INTO order_items (id, order_id, position, product_id, product_name, unit_price, quantity)
VALUES (:id, :order_id, :position, :product_id, :product_name, :unit_price, :quantity)`

func (r *orderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := prepareOrder(order); err != nil {
		return err
	}
	row := orderRow{
		ID:          order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
	}
	if order.UpdatedAt != nil {
		row.UpdatedAt = sql.NullTime{Time: *order.UpdatedAt, Valid: true}
	}

	items := make([]itemRow, len(order.Items))
	for i, it := range order.Items {
		items[i] = itemRow{
			ID:          it.ID,
			OrderID:     order.ID,
			Position:    i,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		}
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertOrderQuery, row); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		// position preserves request order on read.
		if _, err := tx.NamedExecContext(ctx, insertItemQuery, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	return persistence("create order", err)
}

const findOrderQuery = `SELECT id, user_id, total_amount, status, created_at, updated_at
FROM orders WHERE id = $1 AND user_id = $2`

func (r *orderRepo) FindByIDForUser(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, findOrderQuery, orderID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "find order", domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, persistence("find order", err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{row.ID})
	if err != nil {
		return nil, err
	}
	o := row.toDomain(items[row.ID])
	return &o, nil
}

const countOrdersQuery = `SELECT COUNT(*) FROM orders WHERE user_id = $1`

func (r *orderRepo) ListForUser(ctx context.Context, userID uuid.UUID, q domain.PageQuery) (domain.Page[domain.Order], error) {
	q, err := q.Normalize()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	sort, err := q.Sort()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	var count int64
	if err := r.db.GetContext(ctx, &count, countOrdersQuery, userID); err != nil {
		return domain.Page[domain.Order]{}, persistence("count orders", err)
	}

	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, user_id, total_amount, status, created_at, updated_at
FROM orders WHERE user_id = $1
ORDER BY %s %s, id %s
LIMIT $2 OFFSET $3`, sortColumns[sort.Field], dir, dir)

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, q.PageSize, q.Offset()); err != nil {
		return domain.Page[domain.Order]{}, persistence("list orders", err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	page := domain.Page[domain.Order]{Count: count, Data: make([]domain.Order, 0, len(rows))}
	for _, row := range rows {
		page.Data = append(page.Data, row.toDomain(items[row.ID]))
	}
	return page, nil
}

const loadItemsQuery = `SELECT id, order_id, position, product_id, product_name, unit_price, quantity
FROM order_items WHERE order_id IN (?) ORDER BY order_id, position`

func (r *orderRepo) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	out := make(map[uuid.UUID][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(loadItemsQuery, orderIDs)
	if err != nil {
		return nil, persistence("load order items", err)
	}

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, persistence("load order items", err)
	}
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], row.toDomain())
	}
	return out, nil
}
