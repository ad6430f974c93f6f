package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockChanged is emitted after commit for every stock record a mutation touched.
type StockChanged struct {
	ProductID      uuid.UUID  `json:"product_id"`
	WarehouseID    uuid.UUID  `json:"warehouse_id"`
	TransactionID  *uuid.UUID `json:"transaction_id,omitempty"`
	Delta          int64      `json:"delta"`
	Before         int64      `json:"before"`
	After          int64      `json:"after"`
	Clamped        bool       `json:"clamped"`
	AggregateStock int64      `json:"aggregate_stock"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

func (e StockChanged) Key() string {
	return e.ProductID.String()
}
