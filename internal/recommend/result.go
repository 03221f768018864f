package recommend

import (
	"math"
	"sort"

	"github.com/couchcryptid/parking-recommender/internal/scoring"
)

// Recommendation is the scored result of one request.
type Recommendation struct {
	Outcomes []Outcome
	Table    scoring.Table

	// Scenario is the one matching the request's preferred factor.
	Scenario scoring.Scenario
}

// CandidateScores is one candidate's response row: every scenario's
// composite score, rounded to two decimals.
type CandidateScores struct {
	ID                 string  `json:"p_id"`
	CongestionPriority float64 `json:"congestion_priority"`
	DistancePriority   float64 `json:"distance_priority"`
	FeePriority        float64 `json:"fee_priority"`
	ReviewPriority     float64 `json:"review_priority"`
}

// Score returns the row's score for a scenario.
func (c CandidateScores) Score(s scoring.Scenario) float64 {
	switch s {
	case scoring.DistancePriority:
		return c.DistancePriority
	case scoring.FeePriority:
		return c.FeePriority
	case scoring.ReviewPriority:
		return c.ReviewPriority
	default:
		return c.CongestionPriority
	}
}

// RankedEntry is a candidate's rounded score within one scenario.
type RankedEntry struct {
	ID    string  `json:"p_id"`
	Score float64 `json:"score"`
}

// Ranked is the response envelope for callers that ask for a preferred-factor
// ranking alongside the score rows.
type Ranked struct {
	Results  []CandidateScores `json:"results"`
	Scenario string            `json:"scenario"`
	Ranking  []string          `json:"ranking"`
}

// Ranked builds the ranked envelope for the request's preferred scenario.
func (r *Recommendation) Ranked() Ranked {
	return Ranked{
		Results:  r.Response(),
		Scenario: string(r.Scenario),
		Ranking:  r.Ranking(r.Scenario),
	}
}

// Response returns one row per candidate in request order.
func (r *Recommendation) Response() []CandidateScores {
	out := make([]CandidateScores, len(r.Table.Candidates))
	for i, c := range r.Table.Candidates {
		out[i] = CandidateScores{
			ID:                 c.CandidateID,
			CongestionPriority: Round2(c.Scores[scoring.CongestionPriority]),
			DistancePriority:   Round2(c.Scores[scoring.DistancePriority]),
			FeePriority:        Round2(c.Scores[scoring.FeePriority]),
			ReviewPriority:     Round2(c.Scores[scoring.ReviewPriority]),
		}
	}
	return out
}

// ByCandidate indexes the response rows by candidate id. When an id repeats,
// its first occurrence wins.
func (r *Recommendation) ByCandidate() map[string]CandidateScores {
	rows := r.Response()
	out := make(map[string]CandidateScores, len(rows))
	for _, row := range rows {
		if _, ok := out[row.ID]; !ok {
			out[row.ID] = row
		}
	}
	return out
}

// Results returns every scenario's rounded scores in request order.
func (r *Recommendation) Results() map[scoring.Scenario][]RankedEntry {
	out := make(map[scoring.Scenario][]RankedEntry, len(scoring.Scenarios()))
	for _, s := range scoring.Scenarios() {
		entries := make([]RankedEntry, 0, len(r.Table.Candidates))
		for _, e := range r.Table.Result(s) {
			entries = append(entries, RankedEntry{ID: e.CandidateID, Score: Round2(e.Score)})
		}
		out[s] = entries
	}
	return out
}

// Ranking orders candidate ids by a scenario's score, highest first.
// Ties keep request order.
func (r *Recommendation) Ranking(s scoring.Scenario) []string {
	entries := r.Table.Result(s)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.CandidateID
	}
	return ids
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
