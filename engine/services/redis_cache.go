package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stayswap/engine/engine/matching"
)

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RedisScoreCache is a shared compatibility-cache backend for deployments
// running several engine instances. Any redis failure degrades to a cache
// miss; the score is recomputed from the store.
type RedisScoreCache struct {
	client *redis.Client
}

func NewRedisScoreCache(cfg RedisConfig) *RedisScoreCache {
	return &RedisScoreCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *RedisScoreCache) Get(ctx context.Context, key string) (*matching.Score, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("Redis cache read failed",
				slog.String("key", key),
				slog.Any("error", err))
		}
		return nil, false
	}

	var score matching.Score
	if err := json.Unmarshal(data, &score); err != nil {
		return nil, false
	}
	return &score, true
}

func (c *RedisScoreCache) Set(ctx context.Context, key string, score *matching.Score, ttl time.Duration) {
	data, err := json.Marshal(score)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Debug("Redis cache write failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}

func (c *RedisScoreCache) Close() error {
	return c.client.Close()
}
