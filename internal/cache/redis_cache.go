package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shopmaster/backend/internal/domain"
)

type RedisDraftCache struct {
	client *redis.Client
}

func NewRedisDraftCache(addr string, password string, db int) *RedisDraftCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDraftCache{client: client}
}

func (c *RedisDraftCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDraftCache) Close() error {
	return c.client.Close()
}

func (c *RedisDraftCache) Get(ctx context.Context, key string) (*domain.AIDraft, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var draft domain.AIDraft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		return nil, false, err
	}
	return &draft, true, nil
}

func (c *RedisDraftCache) Set(ctx context.Context, key string, value *domain.AIDraft, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
