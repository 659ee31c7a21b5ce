package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"healthstack/internal/domain"
	"healthstack/internal/infrastructure/broker"
	"healthstack/internal/infrastructure/broker/inmem"
	"healthstack/internal/infrastructure/catalog"
	"healthstack/internal/logging"
	"healthstack/internal/notification"
	"healthstack/internal/repo"
	"healthstack/internal/service"
	"healthstack/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// flakyNotifier fails a share of sends so requeue and redelivery are visible.
type flakyNotifier struct {
	failPercent int
	sent        atomic.Int64
	failed      atomic.Int64
}

func (n *flakyNotifier) Notify(ctx context.Context, ev domain.OrderCreatedEvent) error {
	if rand.IntN(100) < n.failPercent {
		n.failed.Add(1)
		return fmt.Errorf("mail gateway timeout for order %s", ev.OrderID)
	}
	n.sent.Add(1)
	return nil
}

func main() {
	orders := flag.Int("orders", 20, "orders to create")
	catalogFail := flag.Int("catalog-fail", 10, "percent of catalog lookups that fail")
	notifyFail := flag.Int("notify-fail", 20, "percent of confirmation sends that fail")
	outageAt := flag.Int("outage-at", 10, "drop broker connections after this many orders (0 = never)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log := logging.New("simulate", *logLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	products := []domain.Product{
		{ID: uuid.New(), Name: "Blood pressure monitor", Price: decimal.RequireFromString("24.99")},
		{ID: uuid.New(), Name: "Thermometer", Price: decimal.RequireFromString("9.95")},
		{ID: uuid.New(), Name: "Pulse oximeter", Price: decimal.RequireFromString("31.40")},
	}
	mockCatalog := catalog.NewMockCatalog(products...)
	mockCatalog.FailurePercent = *catalogFail
	mockCatalog.Latency = 5 * time.Millisecond

	b := inmem.New()
	publisher := broker.NewAMQPPublisher(b.Dialer(), "order.exchange", time.Second, log)
	go func() { _ = publisher.Run(ctx) }()

	notifier := &flakyNotifier{failPercent: *notifyFail}
	handler := notification.NewHandler(notifier, nil, log)
	topology := broker.Topology{
		Exchange:    "order.exchange",
		Queue:       "notification.order.created.queue",
		RoutingKey:  domain.RoutingKeyOrderCreated,
		ConsumerTag: "simulate",
	}
	w := worker.NewNotificationWorker(b.Dialer(), topology, handler, 200*time.Millisecond, log)
	go func() { _ = w.Run(ctx) }()

	orderRepo := repo.NewMemoryOrderRepo()
	orderService := service.NewOrderService(orderRepo, mockCatalog, publisher, log)

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", *orders)
	var created, publishFailed, rejected int
	for i := 0; i < *orders; i++ {
		if *outageAt > 0 && i == *outageAt {
			fmt.Println("!!! broker restart: dropping every connection")
			b.DropConnections()
		}

		user := uuid.New()
		lines := randomLines(products)
		order, err := orderService.CreateOrder(ctx, user, lines)

		fmt.Printf("[%d] %d line(s) ... ", i+1, len(lines))
		switch {
		case err == nil:
			created++
			fmt.Printf("CREATED %s total=%s\n", order.ID, order.TotalAmount.StringFixed(2))
		case order != nil:
			publishFailed++
			fmt.Printf("STORED BUT NOT ANNOUNCED %s: %v\n", order.ID, err)
		default:
			rejected++
			fmt.Printf("REJECTED (%s): %v\n", domain.KindOf(err), err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Give the consumer time to work through requeues.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && b.Acks() < created {
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("---------------------------------------------------")
	fmt.Printf("orders created:           %d\n", created)
	fmt.Printf("stored, publish failed:   %d\n", publishFailed)
	fmt.Printf("rejected before storing:  %d\n", rejected)
	fmt.Printf("events published:         %d\n", len(b.Published()))
	fmt.Printf("deliveries:               %d (requeued %d)\n", len(b.Deliveries()), b.Requeues())
	fmt.Printf("acked:                    %d\n", b.Acks())
	fmt.Printf("confirmations sent:       %d (failed attempts %d)\n", notifier.sent.Load(), notifier.failed.Load())
	fmt.Printf("broker dials:             %d\n", b.Dials())
}

// randomLines picks 1-3 lines; about one order in eight asks for a product the
// catalog does not know.
func randomLines(products []domain.Product) []domain.OrderLineRequest {
	n := 1 + rand.IntN(3)
	lines := make([]domain.OrderLineRequest, n)
	for i := range lines {
		lines[i] = domain.OrderLineRequest{
			ProductID: products[rand.IntN(len(products))].ID,
			Quantity:  1 + rand.IntN(4),
		}
	}
	if rand.IntN(8) == 0 {
		lines[rand.IntN(n)].ProductID = uuid.New()
	}
	return lines
}
