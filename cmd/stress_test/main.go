package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	warehouseCount = 3
	initialStock   = 1000
	totalTransfers = 200
	maxTransferQty = 5
)

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	var db port.DatabaseRepository = storage.NewMemoryAdapter()
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		sqlDB, err := storage.OpenMySQL(ctx, dsn)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer sqlDB.Close()
		db = storage.NewMySQLAdapter(sqlDB, 10)
		log.Println("using mysql store")
	}

	productID := uuid.New()
	if err := db.CreateProduct(ctx, domain.Product{
		ID:        productID,
		SKU:       "stress-" + productID.String()[:8],
		Name:      "stress product",
		UnitPrice: decimal.NewFromInt(1),
	}); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	warehouses := make([]uuid.UUID, warehouseCount)
	for i := range warehouses {
		warehouses[i] = uuid.New()
		if err := db.CreateWarehouse(ctx, domain.Warehouse{
			ID:     warehouses[i],
			Name:   fmt.Sprintf("stress-%s-%d", productID.String()[:8], i),
			Active: true,
		}); err != nil {
			log.Fatalf("failed to create warehouse: %v", err)
		}
	}

	svc := service.NewTransactionService(db, nil, logger, service.Options{})

	for _, w := range warehouses {
		if _, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
			Type:        domain.TransactionTypePurchase,
			Status:      domain.TransactionStatusCompleted,
			ProductID:   productID,
			WarehouseID: w,
			Quantity:    initialStock,
		}); err != nil {
			log.Fatalf("failed to seed stock: %v", err)
		}
	}

	var successCount, cancelCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalTransfers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			src := rand.IntN(warehouseCount)
			dst := (src + 1 + rand.IntN(warehouseCount-1)) % warehouseCount
			txn, err := svc.CreateTransaction(ctx, service.CreateTransactionRequest{
				Type:                   domain.TransactionTypeTransfer,
				Status:                 domain.TransactionStatusCompleted,
				ProductID:              productID,
				Quantity:               int64(1 + rand.IntN(maxTransferQty)),
				SourceWarehouseID:      uuid.NullUUID{UUID: warehouses[src], Valid: true},
				DestinationWarehouseID: uuid.NullUUID{UUID: warehouses[dst], Valid: true},
			})
			if err != nil {
				failCount.Add(1)
				log.Printf("transfer failed: %v", err)
				return
			}
			successCount.Add(1)

			if rand.IntN(2) == 0 {
				if _, err := svc.UpdateTransactionStatus(ctx, txn.ID, domain.TransactionStatusCancelled); err != nil {
					log.Printf("cancel failed: %v", err)
					return
				}
				cancelCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	var sum int64
	negative := false
	for _, w := range warehouses {
		qty, err := svc.Ledger().GetQuantity(ctx, productID, w)
		if err != nil {
			log.Fatalf("failed to read stock: %v", err)
		}
		if qty < 0 {
			negative = true
		}
		sum += qty
	}
	product, err := db.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Warehouses:       %d x %d\n", warehouseCount, initialStock)
	fmt.Printf("Transfers:        %d\n", totalTransfers)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Cancelled:        %d\n", cancelCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := int64(warehouseCount * initialStock)
	if sum == expected {
		fmt.Printf("PASS: ledger total conserved at %d\n", sum)
	} else {
		fmt.Printf("FAIL: expected ledger total %d, got %d\n", expected, sum)
	}

	if product.AggregateStock == sum {
		fmt.Println("PASS: aggregate stock matches ledger")
	} else {
		fmt.Printf("FAIL: aggregate %d, ledger %d\n", product.AggregateStock, sum)
	}

	if negative {
		fmt.Println("FAIL: negative stock observed")
	} else {
		fmt.Println("PASS: no negative stock")
	}
}
