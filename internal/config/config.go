package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Reference data sources.
const (
	ReferenceSourceFile     = "file"
	ReferenceSourcePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka batch mode.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Congestion model.
	ModelBundlePath     string
	InferenceURL        string
	InferenceTimeout    time.Duration
	PredictTimeout      time.Duration
	PredictionCacheSize int

	// Reference data.
	ReferenceSource          string
	ReferenceDir             string
	PostgresURL              string
	RegistryRouting          string
	RegistryNumericThreshold int
	ResolverWorkers          int
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is read first when present; it never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	inferenceTimeout, err := parsePositiveDuration("INFERENCE_TIMEOUT", "2s")
	if err != nil {
		return nil, err
	}

	predictTimeout, err := parsePositiveDuration("PREDICT_TIMEOUT", "500ms")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("PREDICTION_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	threshold, err := parsePositiveInt("REGISTRY_NUMERIC_THRESHOLD", 110)
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("RESOLVER_WORKERS", 8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "parking-recommendation-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "parking-recommendations"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "parking-recommender"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ModelBundlePath:     os.Getenv("MODEL_BUNDLE_PATH"),
		InferenceURL:        os.Getenv("INFERENCE_URL"),
		InferenceTimeout:    inferenceTimeout,
		PredictTimeout:      predictTimeout,
		PredictionCacheSize: cacheSize,

		ReferenceSource:          sharedcfg.EnvOrDefault("REFERENCE_SOURCE", ReferenceSourceFile),
		ReferenceDir:             sharedcfg.EnvOrDefault("REFERENCE_DIR", "data"),
		PostgresURL:              os.Getenv("POSTGRES_URL"),
		RegistryRouting:          sharedcfg.EnvOrDefault("REGISTRY_ROUTING", "membership"),
		RegistryNumericThreshold: threshold,
		ResolverWorkers:          workers,
	}

	if cfg.ModelBundlePath == "" {
		return nil, errors.New("MODEL_BUNDLE_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	switch cfg.ReferenceSource {
	case ReferenceSourceFile:
	case ReferenceSourcePostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("REFERENCE_SOURCE is postgres but POSTGRES_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid REFERENCE_SOURCE %q", cfg.ReferenceSource)
	}
	if cfg.RegistryRouting != "membership" && cfg.RegistryRouting != "numeric" {
		return nil, fmt.Errorf("invalid REGISTRY_ROUTING %q", cfg.RegistryRouting)
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
