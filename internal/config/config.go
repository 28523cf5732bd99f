// Package config loads service settings from environment variables.
// Validation failures here are startup failures: the process must halt
// before any article is processed.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrasense/article-enricher/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers       []string
	KafkaArticlesTopic string
	KafkaEnrichedTopic string // empty disables the sink writer
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
	EnrichWorkers      int

	// LLM classifier endpoint (OpenAI-compatible chat completions).
	LLMURL     string
	LLMModel   string
	LLMAPIKey  string
	LLMTimeout time.Duration

	// Geocoding configuration.
	GeocoderURL       string
	GeocoderAPIKey    string
	GeocoderRegion    string
	GeocoderTimeout   time.Duration
	GeocoderCacheSize int
	LocationPolicy    domain.LocationPolicy

	// Sensor directory.
	SensorFile         string
	SensorTieEpsilonKm float64

	// Storage.
	SQLitePath         string
	StoreRetryAttempts int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// GetLogLevel implements observability.LoggerConfig.
func (c *Config) GetLogLevel() string { return c.LogLevel }

// GetLogFormat implements observability.LoggerConfig.
func (c *Config) GetLogFormat() string { return c.LogFormat }

// SinkEnabled reports whether enriched records are also published to Kafka.
func (c *Config) SinkEnabled() bool { return c.KafkaEnrichedTopic != "" }

// Load reads configuration from environment variables, applying defaults
// where unset and validating everything that would otherwise fail mid-run.
func Load() (*Config, error) {
	llmTimeout, err := envDuration("LLM_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}
	geoTimeout, err := envDuration("GEOCODER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	flushInterval, err := envDuration("BATCH_FLUSH_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	batchSize, err := envInt("BATCH_SIZE", 25)
	if err != nil {
		return nil, err
	}
	workers, err := envInt("ENRICH_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := envInt("GEOCODER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	retryAttempts, err := envInt("STORE_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	epsilon, err := envFloat("SENSOR_TIE_EPSILON_KM", 0.01)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaArticlesTopic: envOrDefault("KAFKA_ARTICLES_TOPIC", "scraped-articles"),
		KafkaEnrichedTopic: os.Getenv("KAFKA_ENRICHED_TOPIC"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "article-enricher"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		EnrichWorkers:      workers,

		LLMURL:     envOrDefault("LLM_URL", "http://localhost:1234/v1/chat/completions"),
		LLMModel:   envOrDefault("LLM_MODEL", "qwen2.5-14b-instruct"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMTimeout: llmTimeout,

		GeocoderURL:       envOrDefault("GEOCODER_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),
		GeocoderRegion:    envOrDefault("GEOCODER_REGION", "gr"),
		GeocoderTimeout:   geoTimeout,
		GeocoderCacheSize: cacheSize,
		LocationPolicy:    domain.LocationPolicy(envOrDefault("LOCATION_POLICY", string(domain.PolicyFirst))),

		SensorFile:         envOrDefault("SENSOR_FILE", "sensors.yaml"),
		SensorTieEpsilonKm: epsilon,

		SQLitePath:         envOrDefault("SQLITE_PATH", "enricher.db"),
		StoreRetryAttempts: retryAttempts,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaArticlesTopic == "" {
		return nil, errors.New("KAFKA_ARTICLES_TOPIC is required")
	}
	if cfg.LLMURL == "" {
		return nil, errors.New("LLM_URL is required")
	}
	if cfg.LLMModel == "" {
		return nil, errors.New("LLM_MODEL is required")
	}
	if cfg.GeocoderAPIKey == "" {
		return nil, errors.New("GEOCODER_API_KEY is required")
	}
	if cfg.SensorFile == "" {
		return nil, errors.New("SENSOR_FILE is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("BATCH_SIZE must be positive")
	}
	if cfg.EnrichWorkers <= 0 {
		return nil, errors.New("ENRICH_WORKERS must be positive")
	}
	if cfg.StoreRetryAttempts <= 0 {
		return nil, errors.New("STORE_RETRY_ATTEMPTS must be positive")
	}
	if cfg.SensorTieEpsilonKm < 0 {
		return nil, errors.New("SENSOR_TIE_EPSILON_KM must not be negative")
	}
	switch cfg.LocationPolicy {
	case domain.PolicyFirst, domain.PolicyUnion:
	default:
		return nil, fmt.Errorf("invalid LOCATION_POLICY %q (want %q or %q)",
			cfg.LocationPolicy, domain.PolicyFirst, domain.PolicyUnion)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
