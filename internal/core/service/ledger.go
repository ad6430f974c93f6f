package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// StockLedger is a per-call accumulator over stock records. It has no rollback of its own;
// callers compose calls inside a port.LedgerTx.
type StockLedger struct {
	db     port.DatabaseRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewStockLedger(db port.DatabaseRepository, logger *zap.Logger) *StockLedger {
	return &StockLedger{db: db, logger: logger, now: time.Now}
}

func (l *StockLedger) GetQuantity(ctx context.Context, productID, warehouseID uuid.UUID) (int64, error) {
	rec, err := l.db.GetStock(ctx, domain.StockKey{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return 0, errors.Wrap(err, "get stock")
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Quantity, nil
}

func (l *StockLedger) GetTotalForProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	total, err := l.db.SumStock(ctx, productID)
	if err != nil {
		return 0, errors.Wrap(err, "sum stock")
	}
	return total, nil
}

// ListLowStock returns every record whose quantity is below threshold, empty ones included.
func (l *StockLedger) ListLowStock(ctx context.Context, threshold int64) ([]domain.StockRecord, error) {
	if threshold <= 0 {
		return nil, domain.ErrInvalidThreshold
	}
	return l.db.ListStockBelow(ctx, threshold)
}

func (l *StockLedger) ListOutOfStock(ctx context.Context) ([]domain.StockRecord, error) {
	return l.db.ListStockBelow(ctx, 1)
}

// ApplyDelta sets quantity = max(0, quantity+delta), creating the record on a positive delta.
func (l *StockLedger) ApplyDelta(ctx context.Context, tx port.LedgerTx, productID, warehouseID uuid.UUID, delta int64) (domain.DeltaResult, error) {
	results, err := l.ApplyLegs(ctx, tx, []domain.Leg{{
		Key:   domain.StockKey{ProductID: productID, WarehouseID: warehouseID},
		Delta: delta,
	}})
	if err != nil {
		return domain.DeltaResult{}, err
	}
	return results[0], nil
}

// ApplyLegs applies legs as one unit. Every distinct key is locked first in StockKey order so
// two movements touching the same records cannot deadlock on each other; the legs themselves are
// then applied in the order given, which matters when one key appears twice (reverse then apply).
func (l *StockLedger) ApplyLegs(ctx context.Context, tx port.LedgerTx, legs []domain.Leg) ([]domain.DeltaResult, error) {
	keys := distinctKeys(legs)

	records := make(map[domain.StockKey]*domain.StockRecord, len(keys))
	for _, key := range keys {
		rec, err := tx.LockStock(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "lock stock %s/%s", key.ProductID, key.WarehouseID)
		}
		records[key] = rec
	}

	existed := make(map[domain.StockKey]bool, len(keys))
	for key, rec := range records {
		existed[key] = rec != nil
	}

	now := l.now().UTC()
	results := make([]domain.DeltaResult, 0, len(legs))
	for _, leg := range legs {
		rec := records[leg.Key]
		res := domain.ResolveDelta(leg.Key, rec, leg.Delta)
		switch {
		case res.NoOp:
		case res.Created:
			records[leg.Key] = &domain.StockRecord{
				ProductID:   leg.Key.ProductID,
				WarehouseID: leg.Key.WarehouseID,
				Quantity:    res.After,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		default:
			rec.Quantity = res.After
			rec.UpdatedAt = now
		}
		if res.Clamped {
			l.logger.Debug("stock clamped at zero",
				zap.String("product_id", leg.Key.ProductID.String()),
				zap.String("warehouse_id", leg.Key.WarehouseID.String()),
				zap.Int64("before", res.Before),
				zap.Int64("delta", res.Delta),
			)
		}
		results = append(results, res)
	}

	written := 0
	for _, key := range keys {
		rec := records[key]
		if rec == nil {
			continue
		}
		var err error
		if existed[key] {
			err = tx.UpdateStock(ctx, *rec)
		} else {
			err = tx.InsertStock(ctx, *rec)
		}
		if err != nil {
			if written > 0 {
				l.logger.Error("movement failed after partial write, relying on rollback",
					zap.Int("legs_written", written),
					zap.Int("legs_total", len(keys)),
					zap.Error(err),
				)
			}
			return nil, errors.Wrapf(err, "write stock %s/%s", key.ProductID, key.WarehouseID)
		}
		written++
	}

	return results, nil
}

func distinctKeys(legs []domain.Leg) []domain.StockKey {
	seen := make(map[domain.StockKey]struct{}, len(legs))
	keys := make([]domain.StockKey, 0, len(legs))
	for _, leg := range legs {
		if _, ok := seen[leg.Key]; ok {
			continue
		}
		seen[leg.Key] = struct{}{}
		keys = append(keys, leg.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func touchedProducts(legs []domain.Leg) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(legs))
	ids := make([]uuid.UUID, 0, len(legs))
	for _, leg := range legs {
		if _, ok := seen[leg.Key.ProductID]; ok {
			continue
		}
		seen[leg.Key.ProductID] = struct{}{}
		ids = append(ids, leg.Key.ProductID)
	}
	return ids
}
