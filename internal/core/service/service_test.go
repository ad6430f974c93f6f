package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type mockCache struct {
	mu          sync.Mutex
	idempotency map[string]bool
	numbers     map[string]bool
	aggregates  map[uuid.UUID]domain.AggregateStock
	reserveErr  error
	setErr      error
}

func newMockCache() *mockCache {
	return &mockCache{
		idempotency: make(map[string]bool),
		numbers:     make(map[string]bool),
		aggregates:  make(map[uuid.UUID]domain.AggregateStock),
	}
}

var _ port.CacheRepository = &mockCache{}

func (m *mockCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

func (m *mockCache) ClearIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	return nil
}

func (m *mockCache) ReserveNumber(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	if m.numbers[number] {
		return false, nil
	}
	m.numbers[number] = true
	return true, nil
}

func (m *mockCache) GetAggregateStock(_ context.Context, productID uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.aggregates[productID]
	return agg.Total, ok, nil
}

func (m *mockCache) SetAggregateStock(_ context.Context, productID uuid.UUID, total int64, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if cur, ok := m.aggregates[productID]; ok && cur.Version >= version {
		return nil
	}
	m.aggregates[productID] = domain.AggregateStock{ProductID: productID, Total: total, Version: version}
	return nil
}

func (m *mockCache) ClearAggregateStock(_ context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aggregates, productID)
	return nil
}

func (m *mockCache) failSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

type fixture struct {
	svc     *TransactionService
	db      *storage.MemoryAdapter
	product uuid.UUID
	w1      uuid.UUID
	w2      uuid.UUID
	w3      uuid.UUID
}

func setup(t *testing.T, cache port.CacheRepository, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storage.NewMemoryAdapter()
	f := &fixture{
		db:      db,
		product: uuid.New(),
		w1:      uuid.New(),
		w2:      uuid.New(),
		w3:      uuid.New(),
	}
	require.NoError(t, db.CreateProduct(ctx, domain.Product{
		ID:        f.product,
		SKU:       "SKU-1",
		Name:      "Widget",
		UnitPrice: decimal.RequireFromString("2.50"),
	}))
	for i, id := range []uuid.UUID{f.w1, f.w2, f.w3} {
		require.NoError(t, db.CreateWarehouse(ctx, domain.Warehouse{
			ID:     id,
			Name:   "W" + string(rune('1'+i)),
			Active: true,
		}))
	}

	f.svc = NewTransactionService(db, cache, zap.NewNop(), opts)
	return f
}

func (f *fixture) quantity(t *testing.T, warehouseID uuid.UUID) int64 {
	t.Helper()
	qty, err := f.svc.Ledger().GetQuantity(context.Background(), f.product, warehouseID)
	require.NoError(t, err)
	return qty
}

func (f *fixture) aggregate(t *testing.T) int64 {
	t.Helper()
	p, err := f.db.GetProduct(context.Background(), f.product)
	require.NoError(t, err)
	return p.AggregateStock
}

func (f *fixture) create(t *testing.T, req CreateTransactionRequest) *domain.Transaction {
	t.Helper()
	if req.ProductID == uuid.Nil {
		req.ProductID = f.product
	}
	txn, err := f.svc.CreateTransaction(context.Background(), req)
	require.NoError(t, err)
	return txn
}

func (f *fixture) purchase(t *testing.T, warehouseID uuid.UUID, qty int64) *domain.Transaction {
	t.Helper()
	return f.create(t, CreateTransactionRequest{
		Type:        domain.TransactionTypePurchase,
		Status:      domain.TransactionStatusCompleted,
		WarehouseID: warehouseID,
		Quantity:    qty,
	})
}

func transferRequest(src, dst uuid.UUID, qty int64, status domain.TransactionStatus) CreateTransactionRequest {
	return CreateTransactionRequest{
		Type:                   domain.TransactionTypeTransfer,
		Status:                 status,
		Quantity:               qty,
		SourceWarehouseID:      uuid.NullUUID{UUID: src, Valid: true},
		DestinationWarehouseID: uuid.NullUUID{UUID: dst, Valid: true},
	}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
