package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/cache"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/config"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/handler"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/metrics"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/repository"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/service"
	"github.com/weiawesome/wes-canvas-live/pkg/database"
	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "content-service"
	}
	cfg.Log.Pretty = cfg.Log.Pretty || cfg.Log.Level == "debug"
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.DocumentModel{}, &domain.ItemModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	documentRepo := repository.NewGormDocumentRepository(db)
	itemRepo := repository.NewGormItemRepository(db)

	// Initialize Redis cache
	contentCache, err := cache.NewRedisContentCache(cfg.Redis, cfg.Cache.Prefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer contentCache.Close()
	logger.Info().Msg("redis cache connected")

	m := metrics.New()
	opts := []service.Option{service.WithObserver(m)}

	// Initialize Kafka producer for content events
	var producer *kafka.ConfluentProducer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, writes will not be pushed to rooms")
		} else {
			opts = append(opts, service.WithProducer(producer))
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka producer created")
		}
	}

	// Initialize service
	contentService := service.NewContentService(documentRepo, itemRepo, contentCache, service.Config{
		CacheTTL:          cfg.Cache.TTL,
		ConflictTolerance: cfg.Document.ConflictTolerance,
	}, opts...)

	// Initialize auth middleware
	tokens, err := jwt.NewManager(cfg.JWT.Secret, 0, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(contentService, authMiddleware)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Register routes
	httpHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).
			Dur("conflict_tolerance", cfg.Document.ConflictTolerance).Msg("content-service starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down content-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	// Flush events for writes that already committed.
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn().Err(err).Msg("content events lost on shutdown")
		}
	}

	logger.Info().Msg("content-service stopped")
}
