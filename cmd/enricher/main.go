// Command enricher consumes scraped news articles from Kafka, runs the
// classification and location chain against each one, and persists the
// resulting enrichment records.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/patrasense/article-enricher/internal/adapter/geocode"
	"github.com/patrasense/article-enricher/internal/adapter/httpserver"
	kafkaadapter "github.com/patrasense/article-enricher/internal/adapter/kafka"
	"github.com/patrasense/article-enricher/internal/adapter/llm"
	"github.com/patrasense/article-enricher/internal/adapter/sqlite"
	"github.com/patrasense/article-enricher/internal/classify"
	"github.com/patrasense/article-enricher/internal/config"
	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/patrasense/article-enricher/internal/observability"
	"github.com/patrasense/article-enricher/internal/pipeline"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	sensors, err := domain.LoadDirectory(cfg.SensorFile)
	if err != nil {
		logger.Error("failed to load sensor directory", "file", cfg.SensorFile, "error", err)
		os.Exit(1)
	}
	logger.Info("sensor directory loaded", "file", cfg.SensorFile, "sensors", sensors.Len())

	store, err := sqlite.Open(cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}

	geocoderClient := geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderAPIKey, cfg.GeocoderRegion,
		cfg.GeocoderTimeout, metrics, logger)
	geocoder := geocode.NewCachedGeocoder(geocoderClient, cfg.GeocoderCacheSize, metrics)

	completer := llm.NewClient(cfg.LLMURL, cfg.LLMModel, cfg.LLMAPIKey, cfg.LLMTimeout, logger)
	chain := classify.New(completer, logger, metrics)

	enricher := pipeline.NewEnricher(chain, geocoder, sensors,
		cfg.LocationPolicy, cfg.SensorTieEpsilonKm, logger)

	reader := kafkaadapter.NewReader(cfg, logger)

	// Sink publishing is feature-flagged via KAFKA_ENRICHED_TOPIC.
	var sink pipeline.SinkPublisher
	var writer *kafkaadapter.Writer
	if cfg.SinkEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sink = writer
		logger.Info("sink publishing enabled", "topic", cfg.KafkaEnrichedTopic)
	} else {
		logger.Info("sink publishing disabled")
	}

	p := pipeline.New(reader, enricher, store, sink, logger, metrics, pipeline.Options{
		BatchSize:     cfg.BatchSize,
		Workers:       cfg.EnrichWorkers,
		StoreAttempts: cfg.StoreRetryAttempts,
	})

	srv := httpserver.NewServer(cfg.HTTPAddr, p, store, sensors, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
