package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/rainfall-analysis-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rainfall-analysis-service/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/rainfall-analysis-service/internal/adapter/redis"
	"github.com/couchcryptid/rainfall-analysis-service/internal/cache"
	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	catalogue, err := loadCatalogue(cfg.RegionsFile)
	if err != nil {
		logger.Error("failed to load region catalogue", "error", err)
		os.Exit(1)
	}
	logger.Info("region catalogue loaded", "regions", len(catalogue.Regions()), "file", cfg.RegionsFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional shared baseline tier (REDIS_ADDR).
	var (
		store      cache.Store
		redisStore *redisadapter.Store
	)
	if cfg.RedisAddr != "" {
		redisStore, err = redisadapter.NewStore(ctx, cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		store = redisStore
		logger.Info("shared baseline tier enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
	}
	baselines := cache.New(cfg.BaselineCacheSize, store, logger, metrics)

	// Optional report publishing (KAFKA_ENABLED).
	var (
		publisher      pipeline.Publisher
		kafkaPublisher *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		publisher = kafkaPublisher
		logger.Info("report publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReportTopic)
	} else {
		logger.Info("report publishing disabled")
	}

	analyzer, err := pipeline.New(cfg.Analysis, catalogue, baselines, publisher, logger, metrics)
	if err != nil {
		logger.Error("failed to create analyzer", "error", err)
		os.Exit(1)
	}
	if redisStore != nil {
		analyzer.AddReadinessCheck("redis", redisStore.Ping)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, analyzer, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	analyzer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func loadCatalogue(path string) (*region.Catalogue, error) {
	if path == "" {
		return region.Default()
	}
	return region.LoadFile(path)
}
