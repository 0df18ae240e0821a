/**
 * @description
 * Entry point for the taxform-service. It serves the operator and webhook
 * HTTP endpoints and runs the nightly tax form request job.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/transfa/taxform-service/internal/api"
	"github.com/transfa/taxform-service/internal/app"
	"github.com/transfa/taxform-service/internal/config"
	"github.com/transfa/taxform-service/internal/domain"
	"github.com/transfa/taxform-service/internal/metrics"
	"github.com/transfa/taxform-service/internal/store"
	"github.com/transfa/taxform-service/pkg/helloworks"
	taxrabbit "github.com/transfa/taxform-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 20
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewRepository(dbpool)

	// Without a broker every request ends as ERROR and is retried by a later pass.
	var publisher taxrabbit.Publisher = &taxrabbit.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := taxrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
		} else if cfg.IsProduction() {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	} else if cfg.IsProduction() {
		logger.Error("RABBITMQ_URL is required in production")
		os.Exit(1)
	}
	defer publisher.Close()

	var runLock app.RunLock
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; tax form run lock disabled")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		logger.Warn("redis url parse failed; tax form run lock disabled", "error", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			logger.Warn("redis ping failed; tax form run lock disabled", "error", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			runLock = app.NewRedisRunLock(redisClient, cfg.RedisLockPrefix)
			logger.Info("redis connected")
		}
	}

	workflowClient := helloworks.NewClient(helloworks.Config{
		BaseURL:            cfg.HelloWorksBaseURL,
		APIKeyID:           cfg.HelloWorksAPIKeyID,
		APIKeySecret:       cfg.HelloWorksAPIKeySecret,
		RateLimitPerSecond: cfg.HelloWorksRateLimitPerSec,
	})

	taxMetrics := metrics.New()
	service := app.NewTaxFormService(repository, workflowClient, publisher, runLock, taxMetrics, logger, app.Options{
		Thresholds: domain.Thresholds{
			General: cfg.ThresholdCents,
			Rail:    cfg.RailThresholdCents,
		},
		NotRequestedAfter:    cfg.NotRequestedRetryAfter(),
		AllowedRecipient:     cfg.AllowedRecipient(),
		WorkflowID:           cfg.HelloWorksWorkflowID,
		ParticipantID:        cfg.HelloWorksParticipantID,
		CallbackURL:          cfg.HelloWorksCallbackURL,
		NotificationExchange: cfg.NotificationExchange,
	})

	jobs := app.NewJobs(service, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.TaxFormJobSchedule)
	if err := scheduler.Start(); err != nil {
		os.Exit(1)
	}
	logger.Info("scheduler started")

	handler := api.NewHandler(service, repository, cfg.HelloWorksCallbackSecret, logger)
	router := api.NewRouter(handler, taxMetrics.Handler(), cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
