package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otobox/otobox-be/internal/api"
	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/config"
	"github.com/otobox/otobox-be/internal/database"
	"github.com/otobox/otobox-be/internal/logger"
	"github.com/otobox/otobox-be/internal/monitoring"
	"github.com/otobox/otobox-be/internal/services"
	"github.com/otobox/otobox-be/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Select the storage backend once; no per-request branching.
	var backend storage.Backend
	var routerOpts api.Options
	switch cfg.StorageBackend {
	case config.BackendLocal:
		local, err := storage.NewLocal(cfg.StorageRoot, cfg.PublicBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize local storage")
		}
		backend = local
		routerOpts.StorageRoot = cfg.StorageRoot
	case config.BackendS3:
		remote, err := storage.NewS3(context.Background(), storage.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		backend = remote
	}
	routerOpts.SecureCookies = cfg.Production

	// Set up services
	tokenService := auth.NewTokenService([]byte(cfg.JWTSecret))
	accountService := services.NewAccountService(db)
	soundService := services.NewSoundService(db, backend)

	// The sweeper only makes sense where the storage medium is scannable.
	var sweeper *monitoring.OrphanSweeper
	if cfg.StorageBackend == config.BackendLocal {
		sweeper = monitoring.NewOrphanSweeper(db, cfg.StorageRoot)
		go sweeper.Run()
	}

	// Set up router
	router := api.NewRouter(tokenService, accountService, soundService, routerOpts)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("backend", cfg.StorageBackend).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	if sweeper != nil {
		sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
