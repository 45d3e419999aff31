// cmd/orchestrator/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hellobot-orchestrator/internal/api"
	"hellobot-orchestrator/internal/common/config"
	"hellobot-orchestrator/internal/common/database"
	"hellobot-orchestrator/internal/common/logger"
	"hellobot-orchestrator/internal/common/observability"
	"hellobot-orchestrator/internal/conversation"
	"hellobot-orchestrator/internal/datasource"
	"hellobot-orchestrator/internal/models"
	"hellobot-orchestrator/internal/orchestrator"
	"hellobot-orchestrator/internal/reasoning"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting conversation orchestrator...")

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	registry, err := models.NewRegistry(cfg.Intents, cfg.Slots)
	if err != nil {
		zapLog.Fatal("intent registry invalid", zap.Error(err))
	}
	zapLog.Info("Intent registry loaded", zap.Int("intents", len(cfg.Intents)), zap.Int("slots", len(cfg.Slots)))

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Assemble components ---
	store := conversation.NewStore(redis.Client, time.Duration(cfg.Conversation.TTL)*time.Second)

	reasoner := reasoning.NewAdapter(&reasoning.Config{
		BaseURL:       cfg.Reasoning.BaseURL,
		APIKey:        cfg.Reasoning.APIKey,
		Model:         cfg.Reasoning.Model,
		Timeout:       config.GetDuration(cfg.Reasoning.Timeout),
		Temperature:   cfg.Reasoning.Temperature,
		HistoryWindow: cfg.Reasoning.HistoryWindow,
	}, registry, &reasoningLoggerAdapter{log})

	transactional := datasource.NewTransactionalStore(pg.DB)
	knowledge := datasource.NewKnowledgeStore(esClient.Client)
	router := datasource.NewRouter(&datasource.Config{
		RetryBackoff: config.GetDuration(cfg.Datasource.RetryBackoff),
		QueryTimeout: config.GetDuration(cfg.Datasource.QueryTimeout),
	}, transactional, knowledge, &datasourceLoggerAdapter{log})

	engine := orchestrator.NewEngine(store, reasoner, router, registry, &orchestratorLoggerAdapter{log})

	server := api.NewServer(engine, map[string]api.Pinger{
		"redis":         store,
		"postgres":      transactional,
		"elasticsearch": knowledge,
	}, obs, &apiLoggerAdapter{log})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped gracefully")
}

// Logger adapters for packages that have their own Logger interfaces
type reasoningLoggerAdapter struct {
	logger.Logger
}

func (a *reasoningLoggerAdapter) With(fields map[string]interface{}) reasoning.Logger {
	return &reasoningLoggerAdapter{a.Logger.With(fields)}
}

type datasourceLoggerAdapter struct {
	logger.Logger
}

func (a *datasourceLoggerAdapter) With(fields map[string]interface{}) datasource.Logger {
	return &datasourceLoggerAdapter{a.Logger.With(fields)}
}

type orchestratorLoggerAdapter struct {
	logger.Logger
}

func (a *orchestratorLoggerAdapter) With(fields map[string]interface{}) orchestrator.Logger {
	return &orchestratorLoggerAdapter{a.Logger.With(fields)}
}

type apiLoggerAdapter struct {
	logger.Logger
}

func (a *apiLoggerAdapter) With(fields map[string]interface{}) api.Logger {
	return &apiLoggerAdapter{a.Logger.With(fields)}
}
