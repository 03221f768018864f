package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker = "localhost:9092"
	testBundle    = "testdata/bundle.json"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MODEL_BUNDLE_PATH", testBundle)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "parking-recommendation-requests", cfg.KafkaSourceTopic)
	assert.Equal(t, "parking-recommendations", cfg.KafkaSinkTopic)
	assert.Equal(t, "parking-recommender", cfg.KafkaGroupID)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)

	assert.Equal(t, testBundle, cfg.ModelBundlePath)
	assert.Empty(t, cfg.InferenceURL)
	assert.Equal(t, 2*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PredictTimeout)
	assert.Equal(t, 1000, cfg.PredictionCacheSize)

	assert.Equal(t, ReferenceSourceFile, cfg.ReferenceSource)
	assert.Equal(t, "data", cfg.ReferenceDir)
	assert.Empty(t, cfg.PostgresURL)
	assert.Equal(t, "membership", cfg.RegistryRouting)
	assert.Equal(t, 110, cfg.RegistryNumericThreshold)
	assert.Equal(t, 8, cfg.ResolverWorkers)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("MODEL_BUNDLE_PATH", "/models/congestion.json")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("INFERENCE_URL", "http://inference:8000")
	t.Setenv("INFERENCE_TIMEOUT", "750ms")
	t.Setenv("PREDICT_TIMEOUT", "1s")
	t.Setenv("PREDICTION_CACHE_SIZE", "64")
	t.Setenv("REFERENCE_SOURCE", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://parking:parking@db:5432/parking?sslmode=disable")
	t.Setenv("REGISTRY_ROUTING", "numeric")
	t.Setenv("REGISTRY_NUMERIC_THRESHOLD", "200")
	t.Setenv("RESOLVER_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "/models/congestion.json", cfg.ModelBundlePath)
	assert.Equal(t, "http://inference:8000", cfg.InferenceURL)
	assert.Equal(t, 750*time.Millisecond, cfg.InferenceTimeout)
	assert.Equal(t, time.Second, cfg.PredictTimeout)
	assert.Equal(t, 64, cfg.PredictionCacheSize)
	assert.Equal(t, ReferenceSourcePostgres, cfg.ReferenceSource)
	assert.Equal(t, "numeric", cfg.RegistryRouting)
	assert.Equal(t, 200, cfg.RegistryNumericThreshold)
	assert.Equal(t, 2, cfg.ResolverWorkers)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing bundle path", map[string]string{"MODEL_BUNDLE_PATH": ""}, "MODEL_BUNDLE_PATH"},
		{"invalid shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, "SHUTDOWN_TIMEOUT"},
		{"negative shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"invalid batch size", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"batch size too large", map[string]string{"BATCH_SIZE": "9999"}, "BATCH_SIZE"},
		{"invalid flush interval", map[string]string{"BATCH_FLUSH_INTERVAL": "soon"}, "BATCH_FLUSH_INTERVAL"},
		{"invalid inference timeout", map[string]string{"INFERENCE_TIMEOUT": "bad"}, "INFERENCE_TIMEOUT"},
		{"zero predict timeout", map[string]string{"PREDICT_TIMEOUT": "0s"}, "PREDICT_TIMEOUT"},
		{"invalid cache size", map[string]string{"PREDICTION_CACHE_SIZE": "-5"}, "PREDICTION_CACHE_SIZE"},
		{"invalid workers", map[string]string{"RESOLVER_WORKERS": "many"}, "RESOLVER_WORKERS"},
		{"invalid threshold", map[string]string{"REGISTRY_NUMERIC_THRESHOLD": "x"}, "REGISTRY_NUMERIC_THRESHOLD"},
		{"unknown reference source", map[string]string{"REFERENCE_SOURCE": "s3"}, "REFERENCE_SOURCE"},
		{"postgres without url", map[string]string{"REFERENCE_SOURCE": "postgres"}, "POSTGRES_URL"},
		{"unknown routing", map[string]string{"REGISTRY_ROUTING": "shape"}, "REGISTRY_ROUTING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MODEL_BUNDLE_PATH", testBundle)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
