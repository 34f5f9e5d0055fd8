package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ledgerops/account-service/configs"
	"github.com/ledgerops/account-service/internal/app"
	"github.com/ledgerops/account-service/internal/services"
	"github.com/ledgerops/account-service/pkg/cache"
	"github.com/ledgerops/account-service/pkg/database"
	"github.com/ledgerops/account-service/pkg/logger"
)

// main initializes and runs the account ledger service.
func main() {
	log := logger.MustNew()
	defer log.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(log)
	if err != nil {
		log.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Apply schema migrations before opening pools
	if err = database.RunMigrations(log, cfg.PrimaryDbAddr); err != nil {
		log.Fatal("failed_to_run_migrations", zap.Error(err))
	}

	// Initialize PostgreSQL database connection
	dbConfig := database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	}
	db, disconnect, err := database.New(context.Background(), log, dbConfig)
	if err != nil {
		log.Fatal("failed_to_initialize_database", zap.Error(err))
	}
	defer disconnect() // Ensure database connections are closed on shutdown

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client for the consumer's dedup fast path
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr: cfg.RedisAddr,
	})
	if err != nil {
		log.Fatal("failed_to_initialize_redis", zap.Error(err))
	}
	log.Info("Redis client initialized successfully")

	// Core services and repositories over the pgx-backed store. The command
	// surface (core.Accounts, core.Transfers) is what a transport layer in
	// front of this binary calls into.
	core := app.New(log, app.Config{
		Transfer: services.TransferConfig{
			MaxRetries:  cfg.TransferMaxRetries,
			BaseBackoff: cfg.RetryBaseBackoff,
			MaxBackoff:  cfg.MaxRetryBackoff,
		},
		Interest: services.InterestConfig{
			BatchSize: cfg.InterestBatchSize,
			Interval:  cfg.InterestInterval,
		},
	}, db)

	// Kafka producer for the outbox publisher
	bus, err := services.NewKafkaPublisher(log, ctx, services.KafkaPublisherConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaEventsTopic,
		NumPartitions: cfg.KafkaEventsPartitions,
		RetentionMs:   cfg.KafkaEventsRetention.Milliseconds(),
	})
	if err != nil {
		log.Fatal("failed_to_create_kafka_publisher", zap.Error(err))
	}
	defer bus.Close()

	// Outbox publisher background loop
	outboxPublisher := services.NewOutboxPublisher(log, services.OutboxPublisherConfig{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		PublishRate:  rate.Limit(cfg.OutboxPublishRate),
		PublishBurst: cfg.OutboxPublishBurst,
	}, db, core.OutboxRepo, bus)
	go outboxPublisher.Run(ctx)

	// Inbox-gated antifraud consumer
	antifraudConsumer := services.NewAntifraudConsumer(services.AntifraudConsumerConfig{
		Context:       ctx,
		Logger:        log,
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaClientTopic,
		DLQTopic:      cfg.KafkaDLQTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
		MaxConcurrent: cfg.ConsumerMaxConcurrent,
		MaxRetryCount: cfg.ConsumerMaxRetryCount,
		RetryBase:     cfg.RetryBaseBackoff,
		RetryMax:      cfg.MaxRetryBackoff,
		InboxCacheTTL: cfg.InboxCacheTTL,
		Runner:        db,
		AccountRepo:   core.AccountRepo,
		InboxRepo:     core.InboxRepo,
		RedisClient:   redisClient,
	})
	closeConsumer := antifraudConsumer.Start()

	// Interest accrual scheduler
	go core.Interest.Run(ctx)

	// Prometheus metrics endpoint
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info("metrics_server_listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics_server_failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	osSignal := <-sigChan
	log.Info("Received shutdown signal", zap.String("signal", osSignal.String()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel() // Trigger context cancellation for background loops
	closeConsumer()
	redisCloser()
	_ = metricsServer.Shutdown(shutdownCtx)
	log.Info("Service shutdown completed successfully")
}
