package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/parking-recommender/internal/adapter/http"
	"github.com/couchcryptid/parking-recommender/internal/adapter/inference"
	kafkaadapter "github.com/couchcryptid/parking-recommender/internal/adapter/kafka"
	"github.com/couchcryptid/parking-recommender/internal/adapter/postgres"
	"github.com/couchcryptid/parking-recommender/internal/config"
	"github.com/couchcryptid/parking-recommender/internal/congestion"
	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/pipeline"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	"github.com/couchcryptid/parking-recommender/internal/reference"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recommender, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, recommender, recommender, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start the Kafka batch pipeline (feature-flagged via KAFKA_ENABLED).
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	pipelineDone := make(chan struct{})
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(recommender, logger, metrics)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		go func() {
			defer close(pipelineDone)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
		logger.Info("kafka pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// build loads the model bundle and reference data and wires the scoring
// engine. Any error here is fatal.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*recommend.Recommender, error) {
	bundle, err := model.LoadBundle(cfg.ModelBundlePath)
	if err != nil {
		return nil, err
	}
	logger.Info("model bundle loaded", "path", cfg.ModelBundlePath, "version", bundle.Version)

	ref, err := loadReference(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	metrics.ReferenceFacilities.WithLabelValues(string(reference.LegacyRegistry)).Set(float64(ref.Legacy.Len()))
	metrics.ReferenceFacilities.WithLabelValues(string(reference.RealtimeRegistry)).Set(float64(ref.Realtime.Len()))
	metrics.ReferenceFacilities.WithLabelValues("history").Set(float64(ref.History.Facilities()))
	logger.Info("reference data loaded",
		"source", cfg.ReferenceSource,
		"legacy", ref.Legacy.Len(),
		"realtime", ref.Realtime.Len(),
		"history_facilities", ref.History.Facilities(),
		"history_slots", ref.History.Slots(),
	)

	router, err := reference.NewRouter(cfg.RegistryRouting, cfg.RegistryNumericThreshold, ref.Realtime)
	if err != nil {
		return nil, err
	}

	var predictor model.Predictor = model.NewLinear(bundle)
	if cfg.InferenceURL != "" {
		predictor = inference.NewClient(cfg.InferenceURL, bundle.Version, cfg.InferenceTimeout, logger, metrics)
		logger.Info("remote inference enabled", "url", cfg.InferenceURL, "timeout", cfg.InferenceTimeout)
	}

	forecaster := congestion.NewCachedForecaster(
		congestion.NewModelForecaster(congestion.NewFeatureBuilder(ref.History, bundle), predictor, metrics),
		cfg.PredictionCacheSize,
		metrics,
	)
	resolver := congestion.NewResolver(router, forecaster, cfg.PredictTimeout, logger, metrics)
	return recommend.New(ref, resolver, cfg.ResolverWorkers, logger, metrics), nil
}

func loadReference(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*reference.Context, error) {
	switch cfg.ReferenceSource {
	case config.ReferenceSourcePostgres:
		src, err := postgres.Open(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return reference.Load(ctx, src)
	case config.ReferenceSourceFile:
		return reference.Load(ctx, reference.FileSource{Dir: cfg.ReferenceDir})
	default:
		return nil, fmt.Errorf("unknown reference source %q", cfg.ReferenceSource)
	}
}
