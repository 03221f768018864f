package congestion

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/observability"
)

// Forecaster predicts a facility's congestion percentage for a zero-based
// weekday and an hour.
type Forecaster interface {
	Forecast(ctx context.Context, facilityID string, weekday, hour int) (float64, error)
}

// ModelForecaster builds features from history and runs them through a predictor.
type ModelForecaster struct {
	features  *FeatureBuilder
	predictor model.Predictor
	metrics   *observability.Metrics
}

func NewModelForecaster(features *FeatureBuilder, predictor model.Predictor, metrics *observability.Metrics) *ModelForecaster {
	return &ModelForecaster{features: features, predictor: predictor, metrics: metrics}
}

func (f *ModelForecaster) Forecast(ctx context.Context, facilityID string, weekday, hour int) (float64, error) {
	v, err := f.features.Build(facilityID, weekday, hour)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	y, err := f.predictor.Predict(ctx, v)
	f.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("predict %q: %w", facilityID, err)
	}
	return y, nil
}
