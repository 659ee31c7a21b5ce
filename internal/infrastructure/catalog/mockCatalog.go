package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"healthstack/internal/domain"

	"github.com/google/uuid"
)

// MockCatalog is an in-process catalog with injectable upstream failures.
// The simulator and local runs use it in place of the catalog service.
type MockCatalog struct {
	mu       sync.RWMutex
	products map[uuid.UUID]domain.Product

	// FailurePercent of lookups return an upstream error (0..100).
	FailurePercent int
	Latency        time.Duration
}

func NewMockCatalog(products ...domain.Product) *MockCatalog {
	m := &MockCatalog{products: make(map[uuid.UUID]domain.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MockCatalog) Put(p domain.Product) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
}

func (m *MockCatalog) Remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.products, id)
	m.mu.Unlock()
}

func (m *MockCatalog) IDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	return ids
}

func (m *MockCatalog) Resolve(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	const op = "catalog resolve"

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return domain.Product{}, domain.NewError(domain.KindUpstream, op, ctx.Err())
		}
	}

	if m.FailurePercent > 0 && rand.IntN(100) < m.FailurePercent {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op, errors.New("catalog returned status 503"))
	}

	m.mu.RLock()
	p, ok := m.products[productID]
	m.mu.RUnlock()
	if !ok {
		return domain.Product{}, domain.NewError(domain.KindNotFound, op,
			fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID))
	}
	return p, nil
}
