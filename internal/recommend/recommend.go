// Package recommend ties congestion resolution, tariff lookup, distance and
// scoring together into one ranking per request.
package recommend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/congestion"
	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/geo"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/reference"
	"github.com/couchcryptid/parking-recommender/internal/scoring"
	"golang.org/x/sync/errgroup"
)

// Outcome is everything resolved for one candidate before normalization.
type Outcome struct {
	Candidate  domain.Candidate
	Resolution congestion.Resolution
	Facility   reference.Facility
	Known      bool
	DistanceKM float64
	Fee        float64
}

// Recommender scores candidate lists against the shared reference data.
type Recommender struct {
	ref      *reference.Context
	resolver *congestion.Resolver
	scorer   *scoring.Scorer
	workers  int
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Recommender. workers bounds per-request parallelism; zero or
// less means one goroutine per candidate.
func New(ref *reference.Context, resolver *congestion.Resolver, workers int, logger *slog.Logger, metrics *observability.Metrics) *Recommender {
	return &Recommender{
		ref:      ref,
		resolver: resolver,
		scorer:   scoring.NewScorer(logger),
		workers:  workers,
		logger:   logger,
		metrics:  metrics,
	}
}

// Recommend scores every candidate of a request under all scenarios.
// Only a malformed request fails; per-candidate problems degrade that
// candidate's signals and are visible in its Outcome.
func (r *Recommender) Recommend(ctx context.Context, req domain.Request) (*Recommendation, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	outcomes := make([]Outcome, len(req.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, c := range req.Candidates {
		g.Go(func() error {
			outcomes[i] = r.evaluate(gctx, c, req)
			return nil
		})
	}
	_ = g.Wait() // evaluate never fails

	signals := make([]scoring.RawSignal, len(outcomes))
	for i, o := range outcomes {
		signals[i] = scoring.RawSignal{
			CandidateID:  o.Candidate.ID,
			Availability: scoring.AvailabilityScore(o.Resolution.Congestion),
			DistanceKM:   o.DistanceKM,
			Fee:          o.Fee,
			Review:       scoring.ReviewScore(o.Candidate.Review),
		}
	}

	rec := &Recommendation{
		Outcomes: outcomes,
		Table:    r.scorer.Score(signals),
		Scenario: scoring.ScenarioForFactor(req.PreferredFactor),
	}
	r.metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	return rec, nil
}

// evaluate resolves one candidate's raw signals.
func (r *Recommender) evaluate(ctx context.Context, c domain.Candidate, req domain.Request) Outcome {
	res := r.resolver.Resolve(ctx, c)
	o := Outcome{Candidate: c, Resolution: res}

	o.Facility, o.Known = r.ref.Table(res.Registry).Lookup(res.FacilityID)
	if !o.Known {
		r.metrics.UnknownFacilities.Inc()
		r.logger.DebugContext(ctx, "unknown facility",
			"candidate", c.ID,
			"registry", string(res.Registry),
		)
	}

	if lat, lon, ok := req.Origin(); ok && o.Known && o.Facility.HasLocation {
		o.DistanceKM = geo.Haversine(lat, lon, o.Facility.Lat, o.Facility.Lon)
	}
	// Unknown facilities price with the all-zero tariff.
	o.Fee = domain.CalculateFee(o.Facility.Tariff, req.DurationMinutes())
	return o
}

// CheckReadiness reports whether reference data is loaded.
func (r *Recommender) CheckReadiness(_ context.Context) error {
	if r.ref == nil || r.ref.Legacy == nil || r.ref.Realtime == nil || r.ref.History == nil {
		return errors.New("reference data not loaded")
	}
	return nil
}
