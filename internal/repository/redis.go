package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalefund/fundgate/internal/config"
)

// NewRedisClient dials Redis and verifies the connection before
// handing the client out.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
