package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/PFlorov/k3s-url-shortener-app/internal/cache"
	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/db"
	"github.com/PFlorov/k3s-url-shortener-app/internal/metrics"
	mid "github.com/PFlorov/k3s-url-shortener-app/internal/middleware"
	"github.com/PFlorov/k3s-url-shortener-app/internal/repositories"
	"github.com/PFlorov/k3s-url-shortener-app/internal/services"
)

type App struct {
	cfg     config.Config
	db      *gorm.DB
	cache   cache.Cache
	metrics *metrics.Metrics

	schemaReady <-chan struct{}
}

func New(cfg config.Config, gdb *gorm.DB, c cache.Cache, m *metrics.Metrics) *App {
	return &App{cfg: cfg, db: gdb, cache: c, metrics: m}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mid.RequestLogger)
	r.Use(mid.Metrics(a.metrics))
	r.Use(middleware.Recoverer)

	urlRepo := repositories.NewURLRepo(a.db)
	urlSvc := services.NewURLService(urlRepo, a.cache, a.metrics)

	var qrSvc *services.QRService
	if a.cfg.Features.QRCode {
		qr := services.NewQRService(a.cfg.Features.QRSize)
		qrSvc = &qr
	}

	ping := func(ctx context.Context) error { return db.Ping(ctx, a.db) }
	h := NewHandlers(a.cfg, urlSvc, qrSvc, ping)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		if t := a.cfg.Server.RequestTimeout; t > 0 {
			r.Use(middleware.Timeout(t))
		}
		r.Get("/", h.Index)
		r.Post("/", h.Shorten)
		r.Get("/{code}", h.Redirect)
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most Server.ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("URL shortener listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", a.cfg.Server.ShutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
