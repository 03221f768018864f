package scoring

import (
	"log/slog"
	"math"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// RawSignal is one candidate's signals before cross-candidate normalization.
type RawSignal struct {
	CandidateID string

	// Availability is the inverse of congestion, 0–100 (higher = emptier).
	Availability float64
	DistanceKM   float64
	Fee          float64

	// Review is the star rating mapped to 0–100.
	Review float64
}

// Components are a candidate's normalized per-dimension scores, each 0–100.
type Components struct {
	Availability float64 `json:"availability"`
	Distance     float64 `json:"distance"`
	Fee          float64 `json:"fee"`
	Review       float64 `json:"review"`
}

// CandidateScore holds one candidate's components and its composite score per scenario.
type CandidateScore struct {
	CandidateID string
	Components  Components
	Scores      map[Scenario]float64
}

// Entry is one candidate's composite score within a scenario.
type Entry struct {
	CandidateID string
	Score       float64
}

// ScenarioResult lists composite scores for one scenario in candidate order.
type ScenarioResult []Entry

// Table is the scored candidate set, in the order the signals were given.
type Table struct {
	Candidates []CandidateScore
}

// Result extracts the scores of one scenario.
func (t Table) Result(s Scenario) ScenarioResult {
	out := make(ScenarioResult, len(t.Candidates))
	for i, c := range t.Candidates {
		out[i] = Entry{CandidateID: c.CandidateID, Score: c.Scores[s]}
	}
	return out
}

// AvailabilityScore converts a congestion percentage into an availability score.
func AvailabilityScore(congestion float64) float64 {
	return domain.Clamp(100-congestion, 0, 100)
}

// ReviewScore maps a 0–5 star rating onto 0–100.
func ReviewScore(review float64) float64 {
	return domain.Clamp(review, 0, 5) / 5 * 100
}

// Scorer normalizes raw signals across a candidate set and applies scenario weights.
type Scorer struct {
	logger *slog.Logger
}

// NewScorer creates a Scorer that emits one debug event per candidate and scenario.
func NewScorer(logger *slog.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Score normalizes distance and fee relative to the given candidates (lower raw
// value scores higher) and computes every scenario's weighted composite.
// Composites are not re-normalized. A dimension on which all candidates tie
// contributes 0 for everyone.
func (s *Scorer) Score(signals []RawSignal) Table {
	clamped := make([]RawSignal, len(signals))
	for i, sig := range signals {
		clamped[i] = clampSignal(sig)
	}

	minFee, maxFee := bounds(clamped, func(r RawSignal) float64 { return r.Fee })
	minDist, maxDist := bounds(clamped, func(r RawSignal) float64 { return r.DistanceKM })

	scenarios := Scenarios()
	table := Table{Candidates: make([]CandidateScore, len(clamped))}
	for i, sig := range clamped {
		comp := Components{
			Availability: sig.Availability,
			Distance:     invertedMinMax(sig.DistanceKM, minDist, maxDist),
			Fee:          invertedMinMax(sig.Fee, minFee, maxFee),
			Review:       sig.Review,
		}

		scores := make(map[Scenario]float64, len(scenarios))
		for _, sc := range scenarios {
			w, _ := WeightsFor(sc)
			score := w.Congestion*comp.Availability +
				w.Distance*comp.Distance +
				w.Fee*comp.Fee +
				w.Review*comp.Review
			scores[sc] = score

			s.logger.Debug("candidate scored",
				"candidate", sig.CandidateID,
				"scenario", string(sc),
				"score", score,
				"availability", comp.Availability,
				"distance", comp.Distance,
				"fee", comp.Fee,
				"review", comp.Review,
			)
		}

		table.Candidates[i] = CandidateScore{
			CandidateID: sig.CandidateID,
			Components:  comp,
			Scores:      scores,
		}
	}
	return table
}

// clampSignal bounds every field to its documented range; NaN maps to the lower bound.
func clampSignal(r RawSignal) RawSignal {
	r.Availability = domain.Clamp(r.Availability, 0, 100)
	r.Review = domain.Clamp(r.Review, 0, 100)
	r.DistanceKM = domain.Clamp(r.DistanceKM, 0, math.MaxFloat64)
	r.Fee = domain.Clamp(r.Fee, 0, math.MaxFloat64)
	return r
}

func bounds(signals []RawSignal, field func(RawSignal) float64) (lo, hi float64) {
	if len(signals) == 0 {
		return 0, 0
	}
	lo, hi = field(signals[0]), field(signals[0])
	for _, s := range signals[1:] {
		v := field(s)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// invertedMinMax maps lo to 100 and hi to 0. Degenerate ranges score 0.
func invertedMinMax(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return (hi - v) / (hi - lo) * 100
}
