package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeSale       TransactionType = "sale"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeTransfer   TransactionType = "transfer"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return true
	}
	return false
}

type Transaction struct {
	ID                     uuid.UUID         `db:"id"`
	Number                 string            `db:"number"`
	Type                   TransactionType   `db:"type"`
	Status                 TransactionStatus `db:"status"`
	ProductID              uuid.UUID         `db:"product_id"`
	Quantity               int64             `db:"quantity"`
	UnitPrice              decimal.Decimal   `db:"unit_price"`
	WarehouseID            uuid.UUID         `db:"warehouse_id"`
	SourceWarehouseID      uuid.NullUUID     `db:"source_warehouse_id"`
	DestinationWarehouseID uuid.NullUUID     `db:"destination_warehouse_id"`
	Notes                  string            `db:"notes"`
	Version                int               `db:"version"`
	CreatedAt              time.Time         `db:"created_at"`
	UpdatedAt              time.Time         `db:"updated_at"`
}

// Leg is a single signed quantity change against one stock record.
type Leg struct {
	Key   StockKey
	Delta int64
}

// Movement is the full ledger effect of one transaction. Its legs are applied as one unit.
type Movement struct {
	TransactionID uuid.UUID
	Legs          []Leg
}

// typeRule is the per-type behaviour: number prefix, quantity rule and leg layout.
type typeRule struct {
	prefix   string
	validQty func(q int64) bool
	legs     func(t Transaction, q int64) []Leg
}

func positive(q int64) bool { return q > 0 }
func nonZero(q int64) bool  { return q != 0 }

func singleLeg(sign int64) func(Transaction, int64) []Leg {
	return func(t Transaction, q int64) []Leg {
		return []Leg{{Key: StockKey{ProductID: t.ProductID, WarehouseID: t.WarehouseID}, Delta: sign * q}}
	}
}

var typeRules = map[TransactionType]typeRule{
	TransactionTypePurchase:   {prefix: "PO", validQty: positive, legs: singleLeg(1)},
	TransactionTypeSale:       {prefix: "SO", validQty: positive, legs: singleLeg(-1)},
	TransactionTypeAdjustment: {prefix: "ADJ", validQty: nonZero, legs: singleLeg(1)},
	TransactionTypeTransfer: {prefix: "TRF", validQty: positive, legs: func(t Transaction, q int64) []Leg {
		return []Leg{
			{Key: StockKey{ProductID: t.ProductID, WarehouseID: t.SourceWarehouseID.UUID}, Delta: -q},
			{Key: StockKey{ProductID: t.ProductID, WarehouseID: t.DestinationWarehouseID.UUID}, Delta: q},
		}
	}},
}

func (t TransactionType) Valid() bool {
	_, ok := typeRules[t]
	return ok
}

// NumberPrefix returns PO, SO, ADJ or TRF.
func (t TransactionType) NumberPrefix() string {
	return typeRules[t].prefix
}

// Forward is the movement applied when the transaction enters Completed.
func (t Transaction) Forward() Movement {
	return t.movement(t.Quantity)
}

// Reverse undoes Forward: the same legs with the quantity negated.
func (t Transaction) Reverse() Movement {
	return t.movement(-t.Quantity)
}

func (t Transaction) movement(q int64) Movement {
	rule, ok := typeRules[t.Type]
	if !ok {
		return Movement{TransactionID: t.ID}
	}
	return Movement{TransactionID: t.ID, Legs: rule.legs(t, q)}
}

func (t Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// SameLedgerEffect reports whether o moves exactly the stock t moves: same completion state,
// type, product, warehouses and quantity. Notes and price do not count.
func (t Transaction) SameLedgerEffect(o Transaction) bool {
	if t.IsCompleted() != o.IsCompleted() || t.Type != o.Type ||
		t.ProductID != o.ProductID || t.Quantity != o.Quantity {
		return false
	}
	a, b := t.WarehouseIDs(), o.WarehouseIDs()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WarehouseIDs lists every warehouse the transaction references.
func (t Transaction) WarehouseIDs() []uuid.UUID {
	if t.Type == TransactionTypeTransfer {
		return []uuid.UUID{t.SourceWarehouseID.UUID, t.DestinationWarehouseID.UUID}
	}
	return []uuid.UUID{t.WarehouseID}
}

// Normalize makes the warehouse fields consistent with the type: a transfer's primary
// warehouse is its source, other types carry no transfer endpoints.
func (t *Transaction) Normalize() {
	if t.Type == TransactionTypeTransfer {
		if t.SourceWarehouseID.Valid {
			t.WarehouseID = t.SourceWarehouseID.UUID
		}
		return
	}
	t.SourceWarehouseID = uuid.NullUUID{}
	t.DestinationWarehouseID = uuid.NullUUID{}
}

// Validate checks the structural rules that must hold before any ledger effect.
func (t Transaction) Validate() error {
	rule, ok := typeRules[t.Type]
	if !ok {
		return errors.Wrapf(ErrInvalidType, "type %q", t.Type)
	}
	if !t.Status.Valid() {
		return errors.Wrapf(ErrInvalidStatus, "status %q", t.Status)
	}
	if t.ProductID == uuid.Nil {
		return errors.Wrap(ErrMissingReference, "product id")
	}
	if !rule.validQty(t.Quantity) {
		return errors.Wrapf(ErrInvalidQuantity, "%s quantity %d", t.Type, t.Quantity)
	}
	if t.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	if t.Type == TransactionTypeTransfer {
		if !t.SourceWarehouseID.Valid || t.SourceWarehouseID.UUID == uuid.Nil ||
			!t.DestinationWarehouseID.Valid || t.DestinationWarehouseID.UUID == uuid.Nil {
			return errors.Wrap(ErrInvalidTransfer, "source and destination warehouses are required")
		}
		if t.SourceWarehouseID.UUID == t.DestinationWarehouseID.UUID {
			return errors.Wrap(ErrInvalidTransfer, "source and destination warehouses must differ")
		}
		return nil
	}

	if t.WarehouseID == uuid.Nil {
		return errors.Wrap(ErrMissingReference, "warehouse id")
	}
	return nil
}

type TransactionFilter struct {
	ProductID uuid.NullUUID
	Status    TransactionStatus
	Type      TransactionType
	Limit     int
}
