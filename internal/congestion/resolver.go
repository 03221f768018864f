package congestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/reference"
)

// WorstCaseCongestion replaces a prediction that could not be made.
const WorstCaseCongestion = 100.0

// Source records where a candidate's congestion value came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// FailureReason tags why a prediction fell back to the worst case.
type FailureReason string

const (
	FailureNone        FailureReason = ""
	FailureNoHistory   FailureReason = "no_history"
	FailureNaNFeatures FailureReason = "nan_features"
	FailureModelError  FailureReason = "model_error"
	FailureTimeout     FailureReason = "timeout"
)

// Resolution is the congestion decision for one candidate.
type Resolution struct {
	CandidateID string
	FacilityID  string
	Weekday     int
	Hour        int
	Congestion  float64
	Registry    reference.Registry
	Source      Source
	Failure     FailureReason
	Err         error
}

// Resolver decides each candidate's congestion and which tariff registry applies.
type Resolver struct {
	router     reference.Router
	forecaster Forecaster
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewResolver creates a Resolver. A non-positive timeout disables the per-call deadline.
func NewResolver(router reference.Router, forecaster Forecaster, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		router:     router,
		forecaster: forecaster,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Resolve never fails: a candidate whose prediction cannot be made gets the
// worst-case congestion and a tagged failure reason.
func (r *Resolver) Resolve(ctx context.Context, c domain.Candidate) Resolution {
	res := Resolution{
		CandidateID: c.ID,
		FacilityID:  domain.NormalizeFacilityID(c.ID),
		Weekday:     c.WeekdayIndex(),
		Hour:        c.HourOfDay(),
		Registry:    reference.LegacyRegistry,
	}

	if override, ok := c.OverrideCongestion(); ok && r.router.IsRealtime(res.FacilityID) {
		res.Congestion = override
		res.Registry = reference.RealtimeRegistry
		res.Source = SourceOverride
		r.record(ctx, res)
		return res
	}

	v, err := r.forecast(ctx, res.FacilityID, res.Weekday, res.Hour)
	if err != nil {
		res.Congestion = WorstCaseCongestion
		res.Source = SourceFallback
		res.Failure = classify(err)
		res.Err = err
	} else {
		res.Congestion = v
		res.Source = SourceModel
	}
	r.record(ctx, res)
	return res
}

// forecast calls the forecaster under the per-call deadline and stops waiting
// once it passes, even if the forecaster ignores cancellation.
func (r *Resolver) forecast(ctx context.Context, facilityID string, weekday, hour int) (float64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		value float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := r.forecaster.Forecast(ctx, facilityID, weekday, hour)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Resolver) record(ctx context.Context, res Resolution) {
	r.metrics.CandidatesResolved.WithLabelValues(string(res.Source), string(res.Registry)).Inc()

	attrs := []any{
		"candidate", res.CandidateID,
		"source", string(res.Source),
		"registry", string(res.Registry),
		"congestion", res.Congestion,
		"weekday", res.Weekday,
		"hour", res.Hour,
	}
	if res.Failure == FailureNone {
		r.logger.InfoContext(ctx, "congestion resolved", attrs...)
		return
	}

	r.metrics.PredictionFailures.WithLabelValues(string(res.Failure)).Inc()
	attrs = append(attrs, "failure", string(res.Failure), "error", res.Err)
	r.logger.WarnContext(ctx, "congestion resolved", attrs...)
}

func classify(err error) FailureReason {
	switch {
	case errors.Is(err, ErrNoHistory):
		return FailureNoHistory
	case errors.Is(err, ErrNaNFeature):
		return FailureNaNFeatures
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	default:
		return FailureModelError
	}
}
