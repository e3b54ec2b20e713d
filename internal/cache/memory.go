package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
)

// Memory is an in-process cache backed by ristretto.
type Memory struct {
	client *ristretto.Cache
	ttl    time.Duration
}

func NewMemory(cfg config.CacheConfig) (*Memory, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.Counters),
		MaxCost:     int64(cfg.MaxSizeMB) * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("max_size_mb", cfg.MaxSizeMB).
		Dur("ttl", cfg.TTL).
		Int("counters", cfg.Counters).
		Msg("Memory cache initialized")

	return &Memory{client: client, ttl: cfg.TTL}, nil
}

func (m *Memory) Get(_ context.Context, code string) (string, bool) {
	if m.client == nil {
		return "", false
	}
	v, ok := m.client.Get(code)
	if !ok {
		return "", false
	}
	longURL, ok := v.(string)
	return longURL, ok
}

// Set is asynchronous; a Get right after it may still miss.
func (m *Memory) Set(_ context.Context, code, longURL string) {
	if m.client == nil {
		return
	}
	m.client.SetWithTTL(code, longURL, int64(len(code)+len(longURL)), m.ttl)
}

func (m *Memory) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	return nil
}
