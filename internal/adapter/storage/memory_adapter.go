package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type memoryState struct {
	products     map[uuid.UUID]domain.Product
	warehouses   map[uuid.UUID]domain.Warehouse
	stock        map[domain.StockKey]domain.StockRecord
	transactions map[uuid.UUID]domain.Transaction
	numbers      map[string]uuid.UUID
}

func newMemoryState() *memoryState {
	return &memoryState{
		products:     make(map[uuid.UUID]domain.Product),
		warehouses:   make(map[uuid.UUID]domain.Warehouse),
		stock:        make(map[domain.StockKey]domain.StockRecord),
		transactions: make(map[uuid.UUID]domain.Transaction),
		numbers:      make(map[string]uuid.UUID),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.numbers {
		c.numbers[k] = v
	}
	return c
}

// MemoryAdapter is an in-process store. A transaction holds the write lock for its whole
// duration and works on a copy that replaces the live state only on success.
type MemoryAdapter struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: newMemoryState()}
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	tx := &memoryTx{state: work}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTx{state: m.state}).GetProduct(ctx, id)
}

func (m *MemoryAdapter) GetWarehouse(ctx context.Context, id uuid.UUID) (*domain.Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTx{state: m.state}).GetWarehouse(ctx, id)
}

func (m *MemoryAdapter) GetStock(ctx context.Context, key domain.StockKey) (*domain.StockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTx{state: m.state}).LockStock(ctx, key)
}

func (m *MemoryAdapter) SumStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTx{state: m.state}).SumStock(ctx, productID)
}

func (m *MemoryAdapter) ListStockBelow(_ context.Context, threshold int64) ([]domain.StockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.StockRecord, 0)
	for _, rec := range m.state.stock {
		if rec.Quantity < threshold {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity < out[j].Quantity
		}
		return out[i].Key().Less(out[j].Key())
	})
	return out, nil
}

func (m *MemoryAdapter) ListProductIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(m.state.products))
	for id := range m.state.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *MemoryAdapter) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTx{state: m.state}).LockTransaction(ctx, id)
}

func (m *MemoryAdapter) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, t := range m.state.transactions {
		if filter.ProductID.Valid && t.ProductID != filter.ProductID.UUID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryAdapter) CreateProduct(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.state.products {
		if p.SKU == product.SKU {
			return errors.Errorf("product sku %q already exists", product.SKU)
		}
	}
	if product.Version == 0 {
		product.Version = 1
	}
	m.state.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) CreateWarehouse(_ context.Context, warehouse domain.Warehouse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.state.warehouses {
		if w.Name == warehouse.Name {
			return errors.Errorf("warehouse %q already exists", warehouse.Name)
		}
	}
	m.state.warehouses[warehouse.ID] = warehouse
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", id)
	}
	return &p, nil
}

func (t *memoryTx) GetWarehouse(_ context.Context, id uuid.UUID) (*domain.Warehouse, error) {
	w, ok := t.state.warehouses[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrWarehouseNotFound, "warehouse %s", id)
	}
	return &w, nil
}

func (t *memoryTx) LockStock(_ context.Context, key domain.StockKey) (*domain.StockRecord, error) {
	rec, ok := t.state.stock[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *memoryTx) InsertStock(_ context.Context, record domain.StockRecord) error {
	if _, ok := t.state.stock[record.Key()]; ok {
		return errors.Errorf("stock record %s/%s already exists", record.ProductID, record.WarehouseID)
	}
	record.Version = 1
	t.state.stock[record.Key()] = record
	return nil
}

func (t *memoryTx) UpdateStock(_ context.Context, record domain.StockRecord) error {
	cur, ok := t.state.stock[record.Key()]
	if !ok || cur.Version != record.Version {
		return ErrOptimisticLock
	}
	record.Version++
	t.state.stock[record.Key()] = record
	return nil
}

func (t *memoryTx) LockProduct(_ context.Context, productID uuid.UUID) error {
	if _, ok := t.state.products[productID]; !ok {
		return errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}
	return nil
}

func (t *memoryTx) SumStock(_ context.Context, productID uuid.UUID) (int64, error) {
	var total int64
	for key, rec := range t.state.stock {
		if key.ProductID == productID {
			total += rec.Quantity
		}
	}
	return total, nil
}

func (t *memoryTx) SetAggregateStock(_ context.Context, productID uuid.UUID, total int64) (int, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return 0, errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}
	p.AggregateStock = total
	p.Version++
	t.state.products[productID] = p
	return p.Version, nil
}

func (t *memoryTx) TransactionNumberExists(_ context.Context, number string) (bool, error) {
	_, ok := t.state.numbers[number]
	return ok, nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	if _, ok := t.state.numbers[txn.Number]; ok {
		return errors.Wrapf(domain.ErrDuplicateTransactionNumber, "number %s", txn.Number)
	}
	if _, ok := t.state.transactions[txn.ID]; ok {
		return errors.Errorf("transaction %s already exists", txn.ID)
	}
	t.state.transactions[txn.ID] = *txn
	t.state.numbers[txn.Number] = txn.ID
	return nil
}

func (t *memoryTx) LockTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, ok := t.state.transactions[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", id)
	}
	return &txn, nil
}

func (t *memoryTx) UpdateTransaction(_ context.Context, txn *domain.Transaction) error {
	cur, ok := t.state.transactions[txn.ID]
	if !ok {
		return errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", txn.ID)
	}
	if cur.Version != txn.Version {
		return ErrOptimisticLock
	}
	txn.Version++
	t.state.transactions[txn.ID] = *txn
	return nil
}

func (t *memoryTx) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	cur, ok := t.state.transactions[id]
	if !ok {
		return errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", id)
	}
	delete(t.state.transactions, id)
	delete(t.state.numbers, cur.Number)
	return nil
}
