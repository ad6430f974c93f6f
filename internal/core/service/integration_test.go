package service_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

type testEnv struct {
	db         *storage.MySQLAdapter
	cache      port.CacheRepository
	product    uuid.UUID
	warehouses []uuid.UUID
}

func setupTestEnv(t *testing.T) *testEnv {
	ctx := context.Background()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}
	sqlDB, err := storage.OpenMySQL(ctx, mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, storage.Migrate(mysqlDSN))

	env := &testEnv{db: storage.NewMySQLAdapter(sqlDB, 10)}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err == nil {
		env.cache = storage.NewRedisAdapter(rdb)
		t.Cleanup(func() { rdb.Close() })
	} else {
		rdb.Close()
	}

	env.product = uuid.New()
	require.NoError(t, env.db.CreateProduct(ctx, domain.Product{
		ID:   env.product,
		SKU:  "it-" + env.product.String(),
		Name: "integration product",
	}))
	for i := 0; i < 3; i++ {
		id := uuid.New()
		require.NoError(t, env.db.CreateWarehouse(ctx, domain.Warehouse{ID: id, Name: "it-" + id.String(), Active: true}))
		env.warehouses = append(env.warehouses, id)
	}
	return env
}

func TestIntegration_ConcurrentOpposingTransfers(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	svc := service.NewTransactionService(env.db, env.cache, zap.NewNop(), service.Options{})

	for _, w := range env.warehouses[:2] {
		_, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
			Type:        domain.TransactionTypePurchase,
			Status:      domain.TransactionStatusCompleted,
			ProductID:   env.product,
			WarehouseID: w,
			Quantity:    100,
		})
		require.NoError(t, err)
	}

	a, b := env.warehouses[0], env.warehouses[1]
	const workers = 40
	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < workers; i++ {
		src, dst := a, b
		if i%2 == 1 {
			src, dst = b, a
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
				Type:                   domain.TransactionTypeTransfer,
				Status:                 domain.TransactionStatusCompleted,
				ProductID:              env.product,
				Quantity:               2,
				SourceWarehouseID:      uuid.NullUUID{UUID: src, Valid: true},
				DestinationWarehouseID: uuid.NullUUID{UUID: dst, Valid: true},
			})
			if err != nil {
				failed.Add(1)
				t.Logf("transfer failed: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, failed.Load())

	qa, err := svc.Ledger().GetQuantity(ctx, env.product, a)
	require.NoError(t, err)
	qb, err := svc.Ledger().GetQuantity(ctx, env.product, b)
	require.NoError(t, err)
	assert.Equal(t, int64(200), qa+qb)

	product, err := env.db.GetProduct(ctx, env.product)
	require.NoError(t, err)
	assert.Equal(t, int64(200), product.AggregateStock)

	total, err := svc.Projection().GetAggregateStock(ctx, env.product)
	require.NoError(t, err)
	assert.Equal(t, int64(200), total)
}

func TestIntegration_ConcurrentAdjustmentsKeepAggregate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	svc := service.NewTransactionService(env.db, env.cache, zap.NewNop(), service.Options{})

	const workers = 60
	var wg sync.WaitGroup
	var expected atomic.Int64
	var failed atomic.Int32
	for i := 0; i < workers; i++ {
		warehouse := env.warehouses[i%len(env.warehouses)]
		delta := int64(1 + i%3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AdjustInventory(ctx, env.product, warehouse, delta); err != nil {
				failed.Add(1)
				t.Logf("adjustment failed: %v", err)
				return
			}
			expected.Add(delta)
		}()
	}
	wg.Wait()
	require.Zero(t, failed.Load())

	var sum int64
	for _, w := range env.warehouses {
		qty, err := svc.Ledger().GetQuantity(ctx, env.product, w)
		require.NoError(t, err)
		sum += qty
	}
	assert.Equal(t, expected.Load(), sum)

	product, err := env.db.GetProduct(ctx, env.product)
	require.NoError(t, err)
	assert.Equal(t, sum, product.AggregateStock)

	total, err := svc.Projection().GetAggregateStock(ctx, env.product)
	require.NoError(t, err)
	assert.Equal(t, sum, total)
}

func TestIntegration_FailedTransferRollsBack(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	svc := service.NewTransactionService(env.db, env.cache, zap.NewNop(), service.Options{})

	_, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type:        domain.TransactionTypePurchase,
		Status:      domain.TransactionStatusCompleted,
		ProductID:   env.product,
		WarehouseID: env.warehouses[0],
		Quantity:    10,
	})
	require.NoError(t, err)

	_, err = svc.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type:                   domain.TransactionTypeTransfer,
		Status:                 domain.TransactionStatusCompleted,
		ProductID:              env.product,
		Quantity:               4,
		SourceWarehouseID:      uuid.NullUUID{UUID: env.warehouses[0], Valid: true},
		DestinationWarehouseID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
	})
	require.ErrorIs(t, err, domain.ErrWarehouseNotFound)

	qty, err := svc.Ledger().GetQuantity(ctx, env.product, env.warehouses[0])
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	txns, err := svc.ListTransactions(ctx, domain.TransactionFilter{ProductID: uuid.NullUUID{UUID: env.product, Valid: true}})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestIntegration_EditAndDelete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	svc := service.NewTransactionService(env.db, env.cache, zap.NewNop(), service.Options{})
	w1, w2 := env.warehouses[0], env.warehouses[1]

	txn, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
		Type:        domain.TransactionTypePurchase,
		Status:      domain.TransactionStatusCompleted,
		ProductID:   env.product,
		WarehouseID: w1,
		Quantity:    10,
	})
	require.NoError(t, err)

	_, err = svc.EditTransaction(ctx, txn.ID, service.TransactionEdit{WarehouseID: &w2})
	require.NoError(t, err)

	q1, err := svc.Ledger().GetQuantity(ctx, env.product, w1)
	require.NoError(t, err)
	q2, err := svc.Ledger().GetQuantity(ctx, env.product, w2)
	require.NoError(t, err)
	assert.Zero(t, q1)
	assert.Equal(t, int64(10), q2)

	require.NoError(t, svc.DeleteTransaction(ctx, txn.ID))
	q2, err = svc.Ledger().GetQuantity(ctx, env.product, w2)
	require.NoError(t, err)
	assert.Zero(t, q2)

	product, err := env.db.GetProduct(ctx, env.product)
	require.NoError(t, err)
	assert.Zero(t, product.AggregateStock)
}
