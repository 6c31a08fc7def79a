package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	pkgpubsub "github.com/weiawesome/wes-canvas-live/pkg/pubsub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/config"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/handler"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/metrics"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/pubsub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/service"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting realtime-service")

	tokens, err := jwt.NewManager(cfg.JWT.Secret, 0, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}

	// Roster store
	roster, err := store.NewRedisStore(store.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create roster store")
	}
	defer roster.Close()

	// Cross-instance fan-out
	bus, err := pkgpubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
	}
	defer bus.Close()

	// Hub and metrics reference each other: the hub records into the
	// metrics, the metrics sample the hub's gauges.
	var h *hub.Hub
	m := metrics.New(gaugesFunc(func() (int, int) { return h.ClientCount(), h.RoomCount() }))
	h = hub.NewHub(cfg.WebSocket, hub.WithRecorder(m))
	go h.Run()

	svc := service.NewRealtimeService(h, roster, bus, tokens, service.Config{
		InstanceID:  cfg.Server.InstanceID,
		PresenceTTL: cfg.Presence.TTL,
	}, service.WithObserver(m))

	ctx, cancel := context.WithCancel(context.Background())

	subscriber := pubsub.NewSubscriber(bus, h, cfg.Server.InstanceID)
	go subscriber.Run(ctx)

	// Start Kafka consumer for content events
	var contentConsumer *kafka.ConfluentConsumer
	if cfg.Kafka.Enabled {
		if kc, err := kafka.NewConfluentConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc); err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka consumer, persisted changes will not be pushed")
		} else if err := kc.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start kafka consumer")
		} else {
			contentConsumer = kc
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka consumer started")
		}
	}

	// Create handlers
	wsHandler := handler.NewWSHandler(h, svc)
	httpHandler := handler.NewHTTPHandler(svc)

	// Setup routes
	router := mux.NewRouter()
	router.HandleFunc("/ws", wsHandler.HandleWebSocket)
	httpHandler.RegisterRoutes(router)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      pkglog.HTTPMiddleware(logger)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("realtime-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down realtime-service")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel() // 1. stop Kafka consumer + pubsub subscriber

		if contentConsumer != nil {
			contentConsumer.Close() // 2. wait for in-flight Kafka event
		}
		<-subscriber.Done() // 3. wait for pub/sub goroutine to exit

		h.Stop() // 4. close all WS clients, stop Hub.Run()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("realtime-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}

type gaugesFunc func() (clients, rooms int)

func (f gaugesFunc) ClientCount() int {
	c, _ := f()
	return c
}

func (f gaugesFunc) RoomCount() int {
	_, r := f()
	return r
}
