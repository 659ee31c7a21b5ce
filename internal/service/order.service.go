package service

import (
	"context"
	"time"

	"healthstack/internal/domain"
	"healthstack/internal/infrastructure/broker"
	"healthstack/internal/infrastructure/catalog"
	"healthstack/internal/repo"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrderService interface {
	// CreateOrder prices, stores and announces a new order. When only the
	// announcement fails, the stored order is returned alongside a
	// domain.KindPublish error.
	CreateOrder(ctx context.Context, userID uuid.UUID, lines []domain.OrderLineRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, q domain.PageQuery) (domain.Page[domain.Order], error)
}

type orderService struct {
	orderRepo repo.OrderRepo
	catalog   catalog.Client
	publisher broker.Publisher
	log       *logrus.Entry

	newID domain.IDGenerator
	now   func() time.Time
}

func NewOrderService(
	orderRepo repo.OrderRepo,
	catalog catalog.Client,
	publisher broker.Publisher,
	log *logrus.Entry,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		catalog:   catalog,
		publisher: publisher,
		log:       log.WithField("component", "order-service"),
		newID:     uuid.New,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) CreateOrder(ctx context.Context, userID uuid.UUID, lines []domain.OrderLineRequest) (*domain.Order, error) {
	order, err := domain.BuildOrder(ctx, userID, lines, s.catalog.Resolve, s.newID, s.now())
	if err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  userID,
	})

	if err := s.orderRepo.CreateOrder(ctx, order); err != nil {
		entry.WithError(err).Error("persist order failed")
		return nil, err
	}

	// The order is committed; a caller hanging up must not skip the announcement.
	pubCtx := context.WithoutCancel(ctx)
	if err := s.publisher.Publish(pubCtx, domain.NewOrderCreatedEvent(order), domain.RoutingKeyOrderCreated); err != nil {
		entry.WithError(err).WithField("total", order.TotalAmount.String()).
			Error("order persisted but OrderCreated was not published; reconcile manually")
		return order, domain.EnsureKind(domain.KindPublish, "publish order created", err)
	}

	entry.WithFields(logrus.Fields{
		"items": len(order.Items),
		"total": order.TotalAmount.String(),
	}).Info("order created")
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return s.orderRepo.FindByIDForUser(ctx, orderID, userID)
}

func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID, q domain.PageQuery) (domain.Page[domain.Order], error) {
	return s.orderRepo.ListForUser(ctx, userID, q)
}
