package domain

import "math"

// DefaultUnitMinutes is the billing unit assumed when a tariff omits it.
const DefaultUnitMinutes = 5

// Tariff is a facility's fee schedule. Numeric fields are resolved once when
// reference data is loaded; a zero Tariff describes a free facility.
type Tariff struct {
	BaseFee     float64
	BaseMinutes float64
	ExtraFee    float64
	UnitMinutes float64

	// DailyCap is nil when the facility has no daily maximum.
	DailyCap *float64
}

// CalculateFee returns the fee for parking durationMinutes at a facility.
//
// A positive DailyCap limits stays past the base period. Absent, NaN, zero,
// and negative caps never limit.
func CalculateFee(t Tariff, durationMinutes float64) float64 {
	if durationMinutes <= t.BaseMinutes {
		return t.BaseFee
	}

	unit := t.UnitMinutes
	if unit <= 0 || math.IsNaN(unit) {
		unit = DefaultUnitMinutes
	}

	over := durationMinutes - t.BaseMinutes
	units := math.Ceil(over / unit)
	total := t.BaseFee + units*t.ExtraFee

	if t.DailyCap == nil || math.IsNaN(*t.DailyCap) {
		return total
	}
	if limit := *t.DailyCap; limit > 0 {
		return math.Min(total, limit)
	}
	return total
}
