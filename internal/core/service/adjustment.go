package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// AdjustInventory applies delta straight to the ledger and recomputes the product aggregate.
// Nothing is written to the transaction log, so the change cannot be reversed later.
func (s *TransactionService) AdjustInventory(ctx context.Context, productID, warehouseID uuid.UUID, delta int64) (domain.DeltaResult, error) {
	results, err := s.commit(ctx, nil, func(tx port.LedgerTx) ([]domain.Leg, error) {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
		if _, err := tx.GetWarehouse(ctx, warehouseID); err != nil {
			return nil, err
		}
		return []domain.Leg{{
			Key:   domain.StockKey{ProductID: productID, WarehouseID: warehouseID},
			Delta: delta,
		}}, nil
	})
	if err != nil {
		return domain.DeltaResult{}, err
	}

	res := results[0]
	s.logger.Info("inventory adjusted",
		zap.String("product_id", productID.String()),
		zap.String("warehouse_id", warehouseID.String()),
		zap.Int64("delta", delta),
		zap.Int64("quantity", res.After),
		zap.Bool("clamped", res.Clamped),
	)
	return res, nil
}
