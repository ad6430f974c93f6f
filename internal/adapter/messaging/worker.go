package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const publishTimeout = 5 * time.Second

// WorkerLoop publishes events until the channel is closed. A failed publish is logged and
// skipped; the ledger itself is already committed.
func WorkerLoop(id int, events <-chan domain.StockChanged, publisher port.EventPublisher, logger *zap.Logger) {
	for event := range events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish stock event",
				zap.Int("worker", id),
				zap.String("product_id", event.ProductID.String()),
				zap.String("warehouse_id", event.WarehouseID.String()),
				zap.Error(err),
			)
		}

		cancel()
	}
}
