package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type CatalogReader interface {
	// GetProduct returns domain.ErrProductNotFound when absent
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// GetWarehouse returns domain.ErrWarehouseNotFound when absent
	GetWarehouse(ctx context.Context, id uuid.UUID) (*domain.Warehouse, error)
}

// LedgerTx is the set of operations available inside one storage transaction.
// Everything done through a LedgerTx commits or rolls back together.
type LedgerTx interface {
	CatalogReader

	// LockStock loads a stock record and holds its row lock until the transaction ends, nil if absent
	LockStock(ctx context.Context, key domain.StockKey) (*domain.StockRecord, error)

	// InsertStock creates a stock record
	InsertStock(ctx context.Context, record domain.StockRecord) error

	// UpdateStock writes quantity with a version check
	UpdateStock(ctx context.Context, record domain.StockRecord) error

	// LockProduct holds the product row lock until the transaction ends
	LockProduct(ctx context.Context, productID uuid.UUID) error

	// SumStock totals quantity across warehouses for a product
	SumStock(ctx context.Context, productID uuid.UUID) (int64, error)

	// SetAggregateStock stores the product total and returns the product's new version
	SetAggregateStock(ctx context.Context, productID uuid.UUID, total int64) (int, error)

	TransactionNumberExists(ctx context.Context, number string) (bool, error)

	// InsertTransaction returns domain.ErrDuplicateTransactionNumber on a number collision
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	// LockTransaction loads a transaction for update, domain.ErrTransactionNotFound when absent
	LockTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	// UpdateTransaction writes txn if its version still matches, then bumps txn.Version
	UpdateTransaction(ctx context.Context, txn *domain.Transaction) error

	DeleteTransaction(ctx context.Context, id uuid.UUID) error
}

type DatabaseRepository interface {
	CatalogReader

	// WithinTx runs fn in a single storage transaction, committing only if fn returns nil
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetStock retrieves a stock record, nil if absent
	GetStock(ctx context.Context, key domain.StockKey) (*domain.StockRecord, error)

	SumStock(ctx context.Context, productID uuid.UUID) (int64, error)

	// ListStockBelow returns records with quantity < threshold
	ListStockBelow(ctx context.Context, threshold int64) ([]domain.StockRecord, error)

	ListProductIDs(ctx context.Context) ([]uuid.UUID, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// CreateProduct and CreateWarehouse seed the catalog
	CreateProduct(ctx context.Context, product domain.Product) error
	CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) error
}
