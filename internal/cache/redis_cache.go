package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posmbe/backend/internal/domain"
)

type RedisSaleReceiptCache struct {
	client *redis.Client
}

func NewRedisSaleReceiptCache(addr string, password string, db int) *RedisSaleReceiptCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSaleReceiptCache{client: client}
}

func (c *RedisSaleReceiptCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSaleReceiptCache) Close() error {
	return c.client.Close()
}

func (c *RedisSaleReceiptCache) Get(ctx context.Context, key string) (*domain.SaleReceipt, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if val == pendingMarker {
		return nil, false, ErrReceiptPending
	}

	var receipt domain.SaleReceipt
	if err := json.Unmarshal([]byte(val), &receipt); err != nil {
		return nil, false, err
	}
	return &receipt, true, nil
}

// Reserve claims the key with SETNX so concurrent submissions carrying the
// same idempotency key cannot both reach the store.
func (c *RedisSaleReceiptCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, pendingMarker, ttl).Result()
}

func (c *RedisSaleReceiptCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisSaleReceiptCache) Set(ctx context.Context, key string, value *domain.SaleReceipt, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
