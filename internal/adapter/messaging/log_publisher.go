package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

var _ port.EventPublisher = (*LogPublisher)(nil)

func (p *LogPublisher) Publish(_ context.Context, event domain.StockChanged) error {
	p.logger.Debug("stock changed",
		zap.String("product_id", event.ProductID.String()),
		zap.String("warehouse_id", event.WarehouseID.String()),
		zap.Int64("delta", event.Delta),
		zap.Int64("after", event.After),
		zap.Int64("aggregate_stock", event.AggregateStock),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
