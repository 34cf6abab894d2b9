package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/api"
	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/database"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/repository"
	"github.com/leadboard/internal/service"
	"github.com/leadboard/pkg/logger"
)

func main() {
	migrateDown := flag.Bool("migrate-down", false, "roll back all migrations and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// The configured logger is not available yet
		bootLog := logger.New(config.LogConfig{Level: "info"}, "leadboard-server")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.Log, "leadboard-server")
	log.Info().Msg("Starting leadboard server...")

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}
	if *migrateDown {
		if err := db.MigrateDown(migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migrations")
		}
		log.Info().Msg("Migrations rolled back")
		return
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Result cache
	var store cache.Cache = cache.NewMemory()
	if cfg.Cache.Backend == "redis" {
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to cache")
		}
		defer rc.Close()
		store = rc
	}
	log.Info().Str("backend", cfg.Cache.Backend).Dur("ttl", cfg.Cache.TTL).Msg("Result cache ready")

	// Live event hub
	hub := events.NewHub(log)
	go hub.Run(ctx)

	repos := repository.New(db)
	services := service.NewServices(repos, store, hub, cfg, log)

	if err := services.Auth.EnsureAdmin(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap admin account")
	}

	router := api.NewRouter(services, hub, cfg, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Closes every subscriber connection
	cancel()

	log.Info().Msg("Server exited gracefully")
}
