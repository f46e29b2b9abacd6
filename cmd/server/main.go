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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stwalsh4118/daysteward/internal/config"
	"github.com/stwalsh4118/daysteward/internal/database"
	"github.com/stwalsh4118/daysteward/internal/handlers"
	"github.com/stwalsh4118/daysteward/internal/logger"
	"github.com/stwalsh4118/daysteward/internal/metrics"
	"github.com/stwalsh4118/daysteward/internal/middleware"
	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/repository"
	"github.com/stwalsh4118/daysteward/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting day steward", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"driver":      cfg.Database.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open store", err, map[string]interface{}{
			"driver": cfg.Database.Driver,
		})
	}
	defer store.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	steward := services.NewSteward(store, log,
		services.WithDisburser(services.NewLogDisburser(log)),
		services.WithMetrics(metrics.New(registry)),
	)
	settings, err := steward.Bootstrap(ctx, &models.Settings{
		Admin:          cfg.Steward.Admin,
		Beneficiary:    cfg.Steward.Beneficiary,
		LegacyToken:    cfg.Steward.LegacyTokenURL,
		TaxNumerator:   cfg.Steward.TaxNumerator,
		TaxDenominator: cfg.Steward.TaxDenominator,
		MintPrice:      cfg.Steward.MintPrice,
		MinDeposit:     cfg.Steward.MinDeposit,
	})
	if err != nil {
		log.Fatal("Failed to initialise steward settings", err, nil)
	}
	log.Info("Steward settings loaded", map[string]interface{}{
		"admin":       settings.Admin,
		"beneficiary": settings.Beneficiary,
		"tax_rate":    fmt.Sprintf("%d/%d", settings.TaxNumerator, settings.TaxDenominator),
		"legacy":      settings.LegacyToken != "",
	})

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS -> Account
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))
	router.Use(middleware.Account())

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(store, steward, cfg.Database.Driver, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Register API v1 routes
	handlers.NewStewardHandler(steward).Routes(router.Group("/api/v1"))

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return services.NewSweeper(steward, cfg.Steward.SweepInterval, log).Run(gctx)
	})

	// Graceful shutdown once a signal arrives or a component fails
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", err, map[string]interface{}{
				"timeout": shutdownTimeout.String(),
			})
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", err, nil)
		return
	}
	log.Info("Server exited", nil)
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Host,
			"port":     cfg.Port,
			"database": cfg.Name,
			"pool_min": cfg.PoolMin,
			"pool_max": cfg.PoolMax,
		})
		return repository.NewPostgresStore(db), nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("SQLite store opened", map[string]interface{}{
			"path": cfg.SQLitePath,
		})
		return repository.NewSQLiteStore(db), nil

	case config.DriverMemory:
		log.Warn("Using in-memory store; state is lost on restart", nil)
		return repository.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
