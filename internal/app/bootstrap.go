package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/PFlorov/k3s-url-shortener-app/internal/cache"
	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/db"
	"github.com/PFlorov/k3s-url-shortener-app/internal/metrics"
)

// Opener opens the database pool without requiring it to be reachable.
type Opener func(cfg config.DatabaseConfig) (*gorm.DB, error)

// SchemaRetry controls how schema initialization is retried after the
// first failure.
type SchemaRetry struct {
	Init           func(ctx context.Context, gdb *gorm.DB) error
	AttemptTimeout time.Duration
	InitialDelay   time.Duration
	MaxDelay       time.Duration
}

func DefaultSchemaRetry() SchemaRetry {
	return SchemaRetry{
		Init:           db.InitSchema,
		AttemptTimeout: 30 * time.Second,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
	}
}

// Bootstrap opens the pool, starts schema initialization and builds the
// cache and the App. A database that is down does not stop startup: the
// schema keeps being retried in the background until ctx ends.
func Bootstrap(ctx context.Context, cfg config.Config, open Opener, retry SchemaRetry) (*App, error) {
	gdb, err := open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("create cache: %w", err)
	}

	a := New(cfg, gdb, c, metrics.New())
	a.schemaReady = EnsureSchema(ctx, gdb, retry)
	return a, nil
}

// EnsureSchema runs retry.Init once inline. On failure it logs and retries
// in the background with exponential back-off. The returned channel is
// closed once the schema is in place.
func EnsureSchema(ctx context.Context, gdb *gorm.DB, retry SchemaRetry) <-chan struct{} {
	ready := make(chan struct{})

	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, retry.AttemptTimeout)
		defer cancel()
		return retry.Init(actx, gdb)
	}

	err := attempt()
	if err == nil {
		close(ready)
		return ready
	}
	log.Error().Err(err).Dur("retry_in", retry.InitialDelay).Msg("Error initializing database")

	go func() {
		delay := retry.InitialDelay
		for n := 2; ; n++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			if err := attempt(); err != nil {
				delay *= 2
				if delay > retry.MaxDelay {
					delay = retry.MaxDelay
				}
				log.Warn().Err(err).Int("attempt", n).Dur("retry_in", delay).Msg("Database schema still not initialized")
				continue
			}

			log.Info().Int("attempt", n).Msg("Database schema initialized")
			close(ready)
			return
		}
	}()
	return ready
}

// SchemaReady is closed once the schema has been initialized.
func (a *App) SchemaReady() <-chan struct{} {
	return a.schemaReady
}

// Close releases the cache and the database pool.
func (a *App) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing cache")
		}
	}
	return db.Close(a.db)
}
