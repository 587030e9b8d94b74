package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paint-and-guess/internal/config"
	"github.com/paint-and-guess/internal/game"
	"github.com/paint-and-guess/internal/handler"
	"github.com/paint-and-guess/internal/kafka"
	"github.com/paint-and-guess/internal/postgres"
	"github.com/paint-and-guess/internal/redis"
	"github.com/paint-and-guess/internal/service"
	"github.com/paint-and-guess/internal/websocket"
	"github.com/paint-and-guess/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	loadErr := err
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", loadErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	store := redis.NewStore(redisClient, cfg.Redis.KeyPrefix, logger)
	defer store.Close()
	logger.Info("connected to Redis")

	if added, err := store.SeedWords(ctx, cfg.Game.Words); err != nil {
		logger.Warn("failed to seed word list", "error", err)
	} else if added > 0 {
		logger.Info("seeded word list", "added", added)
	}

	// Initialize PostgreSQL round history and score snapshots
	var (
		postgresRepo *postgres.Repository
		history      service.RoundHistory
		syncWorker   *worker.SyncWorker
		recorder     game.RoundRecorder = game.LogRecorder{Logger: logger}
	)
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err = postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		history = postgresRepo
		recorder = postgresRepo

		syncWorker = worker.NewSyncWorker(store, postgresRepo, &cfg.Sync, logger)

		// Recover scores into an empty Redis
		if _, err := syncWorker.SyncFromDatabase(ctx); err != nil {
			logger.Warn("failed to restore scores from database", "error", err)
		}

		if cfg.Sync.Enabled {
			if err := syncWorker.Start(ctx); err != nil {
				logger.Error("failed to start sync worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Round records go through Kafka when it is enabled
	var (
		kafkaProducer *kafka.Producer
		kafkaConsumer *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaProducer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, recording rounds directly", "error", err)
		} else {
			recorder = kafkaProducer
		}

		if kafkaProducer != nil && postgresRepo != nil {
			kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, postgresRepo, logger)
			if err != nil {
				logger.Warn("failed to create Kafka consumer, continuing without it", "error", err)
			} else if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without it", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Cross-node room broadcasts
	var (
		relay     *redis.Relay
		publisher websocket.Publisher
	)
	if cfg.Redis.RelayEnabled {
		relay = redis.NewRelay(redisClient, cfg.Redis.KeyPrefix, logger)
		publisher = relay
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(publisher, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	if relay != nil {
		go func() {
			if err := relay.Run(ctx, wsHub.DeliverRemote); err != nil {
				logger.Error("relay stopped", "error", err)
			}
		}()
		logger.Info("room relay enabled", "node", relay.NodeID())
	}

	// Initialize room manager
	rooms := game.NewManager(&cfg.Game, game.Deps{
		Store:    store,
		Recorder: recorder,
		Out:      wsHub,
		Logger:   logger,
	})
	roomsDone := make(chan struct{})
	go func() {
		defer close(roomsDone)
		rooms.Run(ctx)
	}()

	// Initialize services
	lobby := service.NewLobbyService(store, rooms, history, &cfg.Game, logger)
	httpHandler := handler.NewHandler(lobby, wsHub, rooms, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws?room=<name>")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop rooms first so running rounds are recorded
	cancel()
	<-roomsDone

	// Stop WebSocket hub
	wsHub.Stop()

	// Flush round records before the consumer goes away
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sync worker
	if syncWorker != nil {
		if err := syncWorker.Stop(); err != nil {
			logger.Error("failed to stop sync worker", "error", err)
		}
	}

	logger.Info("server stopped")
}
