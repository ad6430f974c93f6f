package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	aggregateKeyPrefix = "stock:aggregate:"
	numberKeyPrefix    = "txn-number:"
	idempotencyKeyTTL  = 24 * time.Hour
	numberKeyTTL       = 48 * time.Hour
	aggregateKeyTTL    = time.Hour
)

// setAggregateScript writes total only when version is newer than the cached one, so a slow
// writer can never overwrite a fresher total.
var setAggregateScript = redis.NewScript(`
local key = KEYS[1]
local total = ARGV[1]
local version = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key, 'total', total, 'version', version)
redis.call('EXPIRE', key, ttl)
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) ReserveNumber(ctx context.Context, number string) (bool, error) {
	return r.client.SetNX(ctx, numberKeyPrefix+number, 1, numberKeyTTL).Result()
}

func (r *RedisAdapter) GetAggregateStock(ctx context.Context, productID uuid.UUID) (int64, bool, error) {
	total, err := r.client.HGet(ctx, aggregateKeyPrefix+productID.String(), "total").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

func (r *RedisAdapter) ClearAggregateStock(ctx context.Context, productID uuid.UUID) error {
	return r.client.Del(ctx, aggregateKeyPrefix+productID.String()).Err()
}

func (r *RedisAdapter) SetAggregateStock(ctx context.Context, productID uuid.UUID, total int64, version int) error {
	key := aggregateKeyPrefix + productID.String()
	return setAggregateScript.Run(ctx, r.client, []string{key}, total, version, int(aggregateKeyTTL.Seconds())).Err()
}
