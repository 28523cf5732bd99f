package config

import (
	"testing"
	"time"

	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEOCODER_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "scraped-articles", cfg.KafkaArticlesTopic)
	assert.Empty(t, cfg.KafkaEnrichedTopic)
	assert.False(t, cfg.SinkEnabled())
	assert.Equal(t, "article-enricher", cfg.KafkaGroupID)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Equal(t, 4, cfg.EnrichWorkers)
	assert.Equal(t, "http://localhost:1234/v1/chat/completions", cfg.LLMURL)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "gr", cfg.GeocoderRegion)
	assert.Equal(t, 10*time.Second, cfg.GeocoderTimeout)
	assert.Equal(t, 1000, cfg.GeocoderCacheSize)
	assert.Equal(t, domain.PolicyFirst, cfg.LocationPolicy)
	assert.Equal(t, "sensors.yaml", cfg.SensorFile)
	assert.Equal(t, 0.01, cfg.SensorTieEpsilonKm)
	assert.Equal(t, "enricher.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.StoreRetryAttempts)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_ARTICLES_TOPIC", "raw-articles")
	t.Setenv("KAFKA_ENRICHED_TOPIC", "enriched-articles")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("ENRICH_WORKERS", "8")
	t.Setenv("LLM_TIMEOUT", "90s")
	t.Setenv("GEOCODER_API_KEY", "test-key")
	t.Setenv("LOCATION_POLICY", "union")
	t.Setenv("SENSOR_TIE_EPSILON_KM", "0.05")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "raw-articles", cfg.KafkaArticlesTopic)
	assert.True(t, cfg.SinkEnabled())
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 8, cfg.EnrichWorkers)
	assert.Equal(t, 90*time.Second, cfg.LLMTimeout)
	assert.Equal(t, domain.PolicyUnion, cfg.LocationPolicy)
	assert.Equal(t, 0.05, cfg.SensorTieEpsilonKm)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing geocoder key",
			env:     map[string]string{},
			wantErr: "GEOCODER_API_KEY is required",
		},
		{
			name:    "invalid timeout",
			env:     map[string]string{"GEOCODER_API_KEY": "k", "LLM_TIMEOUT": "soon"},
			wantErr: "invalid LLM_TIMEOUT",
		},
		{
			name:    "zero batch size",
			env:     map[string]string{"GEOCODER_API_KEY": "k", "BATCH_SIZE": "0"},
			wantErr: "BATCH_SIZE must be positive",
		},
		{
			name:    "bad location policy",
			env:     map[string]string{"GEOCODER_API_KEY": "k", "LOCATION_POLICY": "nearest"},
			wantErr: "invalid LOCATION_POLICY",
		},
		{
			name:    "negative epsilon",
			env:     map[string]string{"GEOCODER_API_KEY": "k", "SENSOR_TIE_EPSILON_KM": "-1"},
			wantErr: "SENSOR_TIE_EPSILON_KM must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
