package port

import (
	"context"

	"github.com/google/uuid"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a key so a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error

	// ReserveNumber claims a transaction number, returns false if already claimed
	ReserveNumber(ctx context.Context, number string) (bool, error)

	// GetAggregateStock returns the cached product total, ok=false on a miss
	GetAggregateStock(ctx context.Context, productID uuid.UUID) (total int64, ok bool, err error)

	// SetAggregateStock caches a product total unless a newer version is already cached
	SetAggregateStock(ctx context.Context, productID uuid.UUID, total int64, version int) error

	// ClearAggregateStock drops the cached product total so the next read goes to the store
	ClearAggregateStock(ctx context.Context, productID uuid.UUID) error
}
