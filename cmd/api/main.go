package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/app"
	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/db"
	"github.com/PFlorov/k3s-url-shortener-app/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml or /etc/urlshrt/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

func run(cfg config.Config) error {
	logCloser := logger.Initialize(cfg.Log)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, cfg, db.OpenPostgres, app.DefaultSchemaRetry())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
