package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"campus-occupancy-backend/config"
	"campus-occupancy-backend/internal/api"
	"campus-occupancy-backend/internal/db"
	"campus-occupancy-backend/internal/ingest"
	"campus-occupancy-backend/internal/logging"
	"campus-occupancy-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("path", configPath).Msg("configuration loaded")

	appStore, err := openStore(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("data store initialized")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := store.Seed(ctx, appStore, cfg.Seed); err != nil {
		log.Fatal().Err(err).Msg("failed to seed locations")
	}

	ingestSvc := ingest.NewService(&cfg.Ingest, appStore)
	go ingestSvc.Run(ctx)

	router := api.NewRouter(appStore, api.Options{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        cfg.Server.CacheTTL,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info().Msg("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("HTTP server Shutdown")
	}

	log.Info().Msg("Server gracefully stopped")
}

func openStore(cfg *config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	gormDB, err := db.Init(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(gormDB), nil
}
