package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID             uuid.UUID       `db:"id"`
	SKU            string          `db:"sku"`
	Name           string          `db:"name"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	AggregateStock int64           `db:"aggregate_stock"` // written only by the projection
	Version        int             `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type Warehouse struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	Capacity  int64     `db:"capacity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
