// Package congestion estimates how full a facility will be, either from a
// caller-reported reading or from the trained model fed with historical
// slot aggregates.
package congestion

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/parking-recommender/internal/model"
	"github.com/couchcryptid/parking-recommender/internal/reference"
)

var (
	// ErrNoHistory means the facility has no historical records at all.
	ErrNoHistory = errors.New("no historical records for facility")

	// ErrNaNFeature means the historical aggregates produced an undefined feature.
	ErrNaNFeature = errors.New("feature vector contains NaN")
)

// FeatureBuilder constructs model input vectors from historical aggregates.
type FeatureBuilder struct {
	history *reference.History
	bundle  *model.Bundle
}

func NewFeatureBuilder(history *reference.History, bundle *model.Bundle) *FeatureBuilder {
	return &FeatureBuilder{history: history, bundle: bundle}
}

// Raw returns the unscaled features for a slot. The exact (weekday, hour) slot
// is preferred; otherwise the facility-wide average is used.
func (b *FeatureBuilder) Raw(facilityID string, weekday, hour int) (model.Features, error) {
	agg, ok := b.history.Slot(facilityID, weekday, hour)
	if !ok {
		agg, ok = b.history.FacilityAverage(facilityID)
	}
	if !ok {
		return model.Features{}, fmt.Errorf("%w: %q", ErrNoHistory, facilityID)
	}

	f := model.Features{
		Capacity: agg.Capacity,
		Inflow:   agg.Inflow,
		Outflow:  agg.Outflow,
		Lags:     agg.Lags,
		Hour:     hour,
		Weekday:  weekday,
	}
	if f.HasNaN() {
		return model.Features{}, fmt.Errorf("%w: %q weekday=%d hour=%d", ErrNaNFeature, facilityID, weekday, hour)
	}
	return f, nil
}

// Build returns the encoded vector the model expects for a slot.
func (b *FeatureBuilder) Build(facilityID string, weekday, hour int) (model.Vector, error) {
	f, err := b.Raw(facilityID, weekday, hour)
	if err != nil {
		return model.Vector{}, err
	}
	return b.bundle.Encode(f)
}
