package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type StockKey struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

// Less orders keys by product then warehouse. Row locks are always taken in this order.
func (k StockKey) Less(o StockKey) bool {
	if c := bytes.Compare(k.ProductID[:], o.ProductID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.WarehouseID[:], o.WarehouseID[:]) < 0
}

type StockRecord struct {
	ProductID   uuid.UUID `db:"product_id"`
	WarehouseID uuid.UUID `db:"warehouse_id"`
	Quantity    int64     `db:"quantity"`
	Version     int       `db:"version"` // bumped on every write
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r StockRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
}

// DeltaResult describes what a single ApplyDelta call did to one record.
type DeltaResult struct {
	Key     StockKey
	Delta   int64
	Before  int64
	After   int64
	Created bool
	Clamped bool
	NoOp    bool // no record existed and delta <= 0
}

// ApplyClamped returns max(0, current+delta) and whether the floor was hit.
func ApplyClamped(current, delta int64) (int64, bool) {
	next := current + delta
	if next < 0 {
		return 0, true
	}
	return next, false
}

// ResolveDelta computes the outcome of applying delta to a record that may not exist yet.
func ResolveDelta(key StockKey, existing *StockRecord, delta int64) DeltaResult {
	res := DeltaResult{Key: key, Delta: delta}
	if existing == nil {
		if delta <= 0 {
			res.NoOp = true
			return res
		}
		res.Created = true
		res.After = delta
		return res
	}
	res.Before = existing.Quantity
	res.After, res.Clamped = ApplyClamped(existing.Quantity, delta)
	return res
}

// AggregateStock is a projection result: the product total and the product version it was written at.
type AggregateStock struct {
	ProductID uuid.UUID
	Total     int64
	Version   int
}
