package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	"github.com/google/uuid"
)

// RankedHeader asks for the ranked response envelope when set to a true value.
const RankedHeader = "ranked"

// Recommender scores a recommendation request.
type Recommender interface {
	Recommend(ctx context.Context, req domain.Request) (*recommend.Recommendation, error)
}

// RecommendationTransformer implements Transformer by scoring each request
// message and encoding the response rows as JSON.
type RecommendationTransformer struct {
	recommender Recommender
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewTransformer creates a RecommendationTransformer.
func NewTransformer(recommender Recommender, logger *slog.Logger, metrics *observability.Metrics) *RecommendationTransformer {
	return &RecommendationTransformer{
		recommender: recommender,
		logger:      logger,
		metrics:     metrics,
	}
}

// Transform parses and scores one request. Messages without a key get a
// random one so responses can still be correlated downstream.
func (t *RecommendationTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseRequest(raw.Value)
	if err != nil {
		t.metrics.Recommendations.WithLabelValues("kafka", "malformed").Inc()
		return domain.OutputEvent{}, err
	}

	rec, err := t.recommender.Recommend(ctx, req)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrMalformedRequest) {
			outcome = "malformed"
		}
		t.metrics.Recommendations.WithLabelValues("kafka", outcome).Inc()
		return domain.OutputEvent{}, fmt.Errorf("recommend: %w", err)
	}

	var body any = rec.Response()
	if ranked, _ := strconv.ParseBool(raw.Headers[RankedHeader]); ranked {
		body = rec.Ranked()
	}
	value, err := json.Marshal(body)
	if err != nil {
		t.metrics.Recommendations.WithLabelValues("kafka", "error").Inc()
		return domain.OutputEvent{}, fmt.Errorf("encode recommendation: %w", err)
	}
	t.metrics.Recommendations.WithLabelValues("kafka", "success").Inc()

	key := raw.Key
	if len(key) == 0 {
		key = []byte(uuid.NewString())
	}
	return domain.OutputEvent{
		Key:   key,
		Value: value,
		Headers: map[string]string{
			"candidates":   strconv.Itoa(len(rec.Outcomes)),
			"scenario":     string(rec.Scenario),
			"processed_at": domain.Now().Format(time.RFC3339),
		},
	}, nil
}
