package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"billease/backend/internal/domain"
)

const maxSetAttempts = 3

type RedisTransactionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTransactionCache(client redis.UniversalClient, prefix string) *RedisTransactionCache {
	if prefix == "" {
		prefix = "billease"
	}
	return &RedisTransactionCache{client: client, prefix: prefix}
}

func (c *RedisTransactionCache) key(invoiceNumber string) string {
	return c.prefix + ":tx:" + invoiceNumber
}

func (c *RedisTransactionCache) Get(ctx context.Context, invoiceNumber string) (*domain.Transaction, bool, error) {
	val, err := c.client.Get(ctx, c.key(invoiceNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tx domain.Transaction
	if err := json.Unmarshal([]byte(val), &tx); err != nil {
		return nil, false, err
	}
	return &tx, true, nil
}

func (c *RedisTransactionCache) Set(ctx context.Context, value *domain.Transaction, ttl time.Duration) error {
	if value == nil || value.InvoiceNumber == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := c.key(value.InvoiceNumber)

	for attempt := 0; attempt < maxSetAttempts; attempt++ {
		err = c.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var cached domain.Transaction
				if json.Unmarshal(raw, &cached) == nil && cached.UpdatedAt.After(value.UpdatedAt) {
					return nil
				}
			case !errors.Is(err, redis.Nil):
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (c *RedisTransactionCache) Invalidate(ctx context.Context, invoiceNumber string) error {
	return c.client.Del(ctx, c.key(invoiceNumber)).Err()
}
