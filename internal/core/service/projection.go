package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// Projection keeps Product.AggregateStock equal to the sum of the product's stock records.
// Totals are recomputed from the ledger, never incremented.
type Projection struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger *zap.Logger
}

func NewProjection(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger) *Projection {
	return &Projection{db: db, cache: cache, logger: logger}
}

// Recompute rewrites the aggregate for each product inside tx. The product row is locked before
// summing so the sum sees every commit that touched the product before us. Callers must already
// hold their stock row locks; products are visited in id order.
func (p *Projection) Recompute(ctx context.Context, tx port.LedgerTx, productIDs []uuid.UUID) ([]domain.AggregateStock, error) {
	ids := append([]uuid.UUID(nil), productIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make([]domain.AggregateStock, 0, len(ids))
	for _, id := range ids {
		if err := tx.LockProduct(ctx, id); err != nil {
			return nil, errors.Wrapf(err, "lock product %s", id)
		}
		total, err := tx.SumStock(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "sum stock for %s", id)
		}
		version, err := tx.SetAggregateStock(ctx, id, total)
		if err != nil {
			return nil, errors.Wrapf(err, "set aggregate for %s", id)
		}
		out = append(out, domain.AggregateStock{ProductID: id, Total: total, Version: version})
	}
	return out, nil
}

// Publish pushes committed totals to the cache. A total that cannot be written is evicted
// instead, so readers fall back to the store rather than keep the previous value.
func (p *Projection) Publish(ctx context.Context, totals []domain.AggregateStock) {
	if p.cache == nil {
		return
	}
	for _, agg := range totals {
		err := p.cache.SetAggregateStock(ctx, agg.ProductID, agg.Total, agg.Version)
		if err == nil {
			continue
		}
		p.logger.Warn("failed to cache aggregate stock",
			zap.String("product_id", agg.ProductID.String()),
			zap.Error(err),
		)
		if err := p.cache.ClearAggregateStock(ctx, agg.ProductID); err != nil {
			p.logger.Error("failed to evict stale aggregate stock",
				zap.String("product_id", agg.ProductID.String()),
				zap.Error(err),
			)
		}
	}
}

// GetAggregateStock reads through the cache and falls back to the stored product.
func (p *Projection) GetAggregateStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	if p.cache != nil {
		total, ok, err := p.cache.GetAggregateStock(ctx, productID)
		if err != nil {
			p.logger.Warn("aggregate cache read failed", zap.String("product_id", productID.String()), zap.Error(err))
		} else if ok {
			return total, nil
		}
	}

	product, err := p.db.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	p.Publish(ctx, []domain.AggregateStock{{
		ProductID: product.ID,
		Total:     product.AggregateStock,
		Version:   product.Version,
	}})
	return product.AggregateStock, nil
}

// RebuildAll recomputes every product, one transaction per product. Returns the count rebuilt.
func (p *Projection) RebuildAll(ctx context.Context) (int, error) {
	ids, err := p.db.ListProductIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list products")
	}

	rebuilt := 0
	for _, id := range ids {
		var totals []domain.AggregateStock
		err := p.db.WithinTx(ctx, func(tx port.LedgerTx) error {
			var err error
			totals, err = p.Recompute(ctx, tx, []uuid.UUID{id})
			return err
		})
		if err != nil {
			return rebuilt, errors.Wrapf(err, "rebuild %s", id)
		}
		p.Publish(ctx, totals)
		rebuilt++
	}

	p.logger.Info("aggregate stock rebuilt", zap.Int("products", rebuilt))
	return rebuilt, nil
}
