// Package scoring turns heterogeneous per-candidate signals into comparable
// 0–100 scores and combines them under the named weighting scenarios.
package scoring

import (
	"fmt"
	"math"
	"strings"
)

// Scenario names one weighting profile.
type Scenario string

const (
	CongestionPriority Scenario = "congestion_priority"
	DistancePriority   Scenario = "distance_priority"
	FeePriority        Scenario = "fee_priority"
	ReviewPriority     Scenario = "review_priority"
)

// Weights is one scenario's weight tuple. Each tuple sums to 1.
type Weights struct {
	Congestion float64
	Distance   float64
	Fee        float64
	Review     float64
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Congestion + w.Distance + w.Fee + w.Review
}

// Validate checks that weights sum to 1.0 and none are negative.
func (w Weights) Validate() error {
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("weights sum to %.6f, must sum to 1.0", w.Sum())
	}
	for _, v := range []float64{w.Congestion, w.Distance, w.Fee, w.Review} {
		if v < 0 {
			return fmt.Errorf("negative weight: %f", v)
		}
	}
	return nil
}

// scenarioTable is ordered; output and iteration follow this order.
var scenarioTable = [...]struct {
	scenario Scenario
	weights  Weights
}{
	{CongestionPriority, Weights{Congestion: 0.8, Distance: 0.1, Fee: 0.05, Review: 0.05}},
	{DistancePriority, Weights{Congestion: 0.5, Distance: 0.3, Fee: 0.1, Review: 0.1}},
	{FeePriority, Weights{Congestion: 0.5, Distance: 0.1, Fee: 0.3, Review: 0.1}},
	{ReviewPriority, Weights{Congestion: 0.5, Distance: 0.1, Fee: 0.1, Review: 0.3}},
}

// Scenarios returns every scenario in display order.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarioTable))
	for i, s := range scenarioTable {
		out[i] = s.scenario
	}
	return out
}

// WeightsFor returns the weight tuple of a scenario.
func WeightsFor(s Scenario) (Weights, bool) {
	for _, entry := range scenarioTable {
		if entry.scenario == s {
			return entry.weights, true
		}
	}
	return Weights{}, false
}

// ScenarioForFactor maps a user's preferred factor to the scenario that favors it.
// Anything unrecognized, including the empty string, favors congestion.
func ScenarioForFactor(factor string) Scenario {
	switch strings.ToLower(strings.TrimSpace(factor)) {
	case "distance":
		return DistancePriority
	case "fee":
		return FeePriority
	case "rating", "review":
		return ReviewPriority
	default:
		return CongestionPriority
	}
}
