package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
)

// Redis shares cached lookups between replicas.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis does not require the server to be up; an unreachable server just
// means every lookup misses.
func NewRedis(cfg config.CacheConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis cache unreachable, lookups will fall through")
	} else {
		log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis cache")
	}

	return &Redis{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (r *Redis) Get(ctx context.Context, code string) (string, bool) {
	longURL, err := r.client.Get(ctx, r.prefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		log.Warn().Err(err).Str("short_code", code).Msg("Cannot get cache")
		return "", false
	}
	return longURL, true
}

func (r *Redis) Set(ctx context.Context, code, longURL string) {
	if err := r.client.Set(ctx, r.prefix+code, longURL, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("short_code", code).Msg("Cannot set cache")
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
