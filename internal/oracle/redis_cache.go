package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalefund/fundgate/internal/model"
)

// RedisCache shares price feeds across server instances. Entries expire
// on their own so a dead feed cannot serve forever.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func priceKey(asset model.Asset) string {
	return fmt.Sprintf("fundgate:price:%s", asset)
}

func (c *RedisCache) Get(ctx context.Context, asset model.Asset) (*model.PriceFeed, error) {
	raw, err := c.client.Get(ctx, priceKey(asset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", asset, err)
	}
	var feed model.PriceFeed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("decode cached price for %s: %w", asset, err)
	}
	return &feed, nil
}

func (c *RedisCache) Put(ctx context.Context, feed *model.PriceFeed) error {
	raw, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("encode price for %s: %w", feed.Asset, err)
	}
	if err := c.client.Set(ctx, priceKey(feed.Asset), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", feed.Asset, err)
	}
	return nil
}
