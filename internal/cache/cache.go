// Package cache keeps short code -> long URL lookups off the database.
// Mappings never change once written, so entries need no invalidation;
// the TTL only bounds memory.
package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
)

// Cache is a best-effort lookup cache. Failures are logged and reported as
// misses; they never fail a request.
type Cache interface {
	Get(ctx context.Context, code string) (string, bool)
	Set(ctx context.Context, code, longURL string)
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg)
	case "redis":
		return NewRedis(cfg), nil
	case "none", "":
		log.Info().Msg("Cache disabled in configuration")
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool) { return "", false }
func (Nop) Set(context.Context, string, string)        {}
func (Nop) Close() error                               { return nil }
