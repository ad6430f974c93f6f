package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

// errConcurrentInsert marks a lost race to create the same stock row; the whole unit is retried.
var errConcurrentInsert = errors.New("concurrent stock insert")

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrLockWait       = 1205
	mysqlErrDeadlock       = 1213

	defaultTxRetries = 3
)

const (
	productColumns     = `id, sku, name, unit_price, aggregate_stock, version, created_at, updated_at`
	warehouseColumns   = `id, name, active, capacity, created_at, updated_at`
	stockColumns       = `product_id, warehouse_id, quantity, version, created_at, updated_at`
	transactionColumns = `id, number, type, status, product_id, quantity, unit_price, warehouse_id,
		source_warehouse_id, destination_warehouse_id, notes, version, created_at, updated_at`
)

type MySQLAdapter struct {
	db      *sqlx.DB
	retries int
}

func NewMySQLAdapter(db *sqlx.DB, retries int) *MySQLAdapter {
	if retries <= 0 {
		retries = defaultTxRetries
	}
	return &MySQLAdapter{db: db, retries: retries}
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

// WithinTx runs fn in one InnoDB transaction. Deadlocks, lock wait timeouts and lost
// insert races re-run fn from scratch, up to the configured number of retries.
func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	var err error
	for attempt := 0; attempt <= m.retries; attempt++ {
		err = m.runTx(ctx, fn)
		if !isRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "giving up after %d retries", m.retries)
}

func (m *MySQLAdapter) runTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Wrapf(domain.ErrReconciliation, "rollback failed: %v (cause: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errConcurrentInsert) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWait
	}
	return false
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return getProduct(ctx, m.db, id)
}

func (m *MySQLAdapter) GetWarehouse(ctx context.Context, id uuid.UUID) (*domain.Warehouse, error) {
	return getWarehouse(ctx, m.db, id)
}

func (m *MySQLAdapter) GetStock(ctx context.Context, key domain.StockKey) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := m.db.GetContext(ctx, &rec, `
		SELECT `+stockColumns+`
		FROM stock_records WHERE product_id = ? AND warehouse_id = ?`,
		key.ProductID, key.WarehouseID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query stock")
	}
	return &rec, nil
}

func (m *MySQLAdapter) SumStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	return sumStock(ctx, m.db, productID)
}

func (m *MySQLAdapter) ListStockBelow(ctx context.Context, threshold int64) ([]domain.StockRecord, error) {
	records := make([]domain.StockRecord, 0)
	err := m.db.SelectContext(ctx, &records, `
		SELECT `+stockColumns+`
		FROM stock_records WHERE quantity < ?
		ORDER BY quantity, product_id, warehouse_id`, threshold,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query low stock")
	}
	return records, nil
}

func (m *MySQLAdapter) ListProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	if err := m.db.SelectContext(ctx, &ids, `SELECT id FROM products ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "query product ids")
	}
	return ids, nil
}

func (m *MySQLAdapter) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := m.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query transaction")
	}
	return &txn, nil
}

func (m *MySQLAdapter) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProductID.Valid {
		where = append(where, "product_id = ?")
		args = append(args, filter.ProductID.UUID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, number DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	txns := make([]domain.Transaction, 0)
	if err := m.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, errors.Wrap(err, "query transactions")
	}
	return txns, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, unit_price, aggregate_stock, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 1, ?, ?)`,
		p.ID, p.SKU, p.Name, p.UnitPrice, now, now,
	)
	if err != nil {
		return errors.Wrap(err, "insert product")
	}
	return nil
}

func (m *MySQLAdapter) CreateWarehouse(ctx context.Context, w domain.Warehouse) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, active, capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Active, w.Capacity, now, now,
	)
	if err != nil {
		return errors.Wrap(err, "insert warehouse")
	}
	return nil
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *mysqlTx) GetWarehouse(ctx context.Context, id uuid.UUID) (*domain.Warehouse, error) {
	return getWarehouse(ctx, t.tx, id)
}

func (t *mysqlTx) LockStock(ctx context.Context, key domain.StockKey) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := t.tx.GetContext(ctx, &rec, `
		SELECT `+stockColumns+`
		FROM stock_records WHERE product_id = ? AND warehouse_id = ?
		FOR UPDATE`,
		key.ProductID, key.WarehouseID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock stock")
	}
	return &rec, nil
}

func (t *mysqlTx) InsertStock(ctx context.Context, rec domain.StockRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, warehouse_id, quantity, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		rec.ProductID, rec.WarehouseID, rec.Quantity, rec.CreatedAt, rec.UpdatedAt,
	)
	if isDuplicate(err) {
		return errConcurrentInsert
	}
	if err != nil {
		return errors.Wrap(err, "insert stock")
	}
	return nil
}

func (t *mysqlTx) UpdateStock(ctx context.Context, rec domain.StockRecord) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE stock_records
		SET quantity = ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND warehouse_id = ? AND version = ?`,
		rec.Quantity, rec.UpdatedAt, rec.ProductID, rec.WarehouseID, rec.Version,
	)
	if err != nil {
		return errors.Wrap(err, "update stock")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (t *mysqlTx) LockProduct(ctx context.Context, productID uuid.UUID) error {
	var id uuid.UUID
	err := t.tx.GetContext(ctx, &id, `SELECT id FROM products WHERE id = ? FOR UPDATE`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}
	if err != nil {
		return errors.Wrap(err, "lock product")
	}
	return nil
}

func (t *mysqlTx) SumStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	return sumStock(ctx, t.tx, productID)
}

func (t *mysqlTx) SetAggregateStock(ctx context.Context, productID uuid.UUID, total int64) (int, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET aggregate_stock = ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		total, time.Now().UTC(), productID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "update aggregate stock")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}

	var version int
	if err := t.tx.GetContext(ctx, &version, `SELECT version FROM products WHERE id = ?`, productID); err != nil {
		return 0, errors.Wrap(err, "read product version")
	}
	return version, nil
}

func (t *mysqlTx) TransactionNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM transactions WHERE number = ?)`, number)
	if err != nil {
		return false, errors.Wrap(err, "check transaction number")
	}
	return exists, nil
}

func (t *mysqlTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :number, :type, :status, :product_id, :quantity, :unit_price, :warehouse_id,
			:source_warehouse_id, :destination_warehouse_id, :notes, :version, :created_at, :updated_at)`,
		txn,
	)
	if isDuplicate(err) {
		return errors.Wrapf(domain.ErrDuplicateTransactionNumber, "number %s", txn.Number)
	}
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

func (t *mysqlTx) LockTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := t.tx.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock transaction")
	}
	return &txn, nil
}

func (t *mysqlTx) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, status = ?, product_id = ?, quantity = ?, unit_price = ?, warehouse_id = ?,
			source_warehouse_id = ?, destination_warehouse_id = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		txn.Type, txn.Status, txn.ProductID, txn.Quantity, txn.UnitPrice, txn.WarehouseID,
		txn.SourceWarehouseID, txn.DestinationWarehouseID, txn.Notes,
		txn.UpdatedAt, txn.ID, txn.Version,
	)
	if err != nil {
		return errors.Wrap(err, "update transaction")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	txn.Version++
	return nil
}

func (t *mysqlTx) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Wrapf(domain.ErrTransactionNotFound, "transaction %s", id)
	}
	return nil
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	return &p, nil
}

func getWarehouse(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := sqlx.GetContext(ctx, q, &w, `SELECT `+warehouseColumns+` FROM warehouses WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrWarehouseNotFound, "warehouse %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query warehouse")
	}
	return &w, nil
}

func sumStock(ctx context.Context, q sqlx.QueryerContext, productID uuid.UUID) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q, &total, `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_records WHERE product_id = ?`, productID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "sum stock")
	}
	return total, nil
}
