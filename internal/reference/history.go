package reference

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// LagWeeks is the number of weekly lag features carried per slot.
const LagWeeks = 3

const week = 7 * 24 * time.Hour

// OccupancyRecord is one hourly occupancy observation of a facility.
type OccupancyRecord struct {
	FacilityID string    `json:"facility_id" db:"facility_id"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	Capacity   float64   `json:"capacity" db:"capacity"`
	Inflow     float64   `json:"inflow" db:"inflow"`
	Outflow    float64   `json:"outflow" db:"outflow"`
}

// Congestion is the record's congestion percentage, clipped to 0–100.
// A record without capacity counts as empty.
func (r OccupancyRecord) Congestion() float64 {
	return SlotCongestion(r.Capacity, r.Inflow, r.Outflow)
}

// SlotCongestion computes clip((inflow - outflow) / capacity * 100, 0, 100).
func SlotCongestion(capacity, inflow, outflow float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return domain.Clamp((inflow-outflow)/capacity*100, 0, 100)
}

// Weekday returns the zero-based weekday of t with 0 = Monday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// SlotAggregate holds the averaged signals of one (facility, weekday, hour) slot,
// or of a whole facility when used as its fallback.
type SlotAggregate struct {
	Capacity float64
	Inflow   float64
	Outflow  float64

	// Lags[k] is the congestion observed k+1 weeks before, at the same weekday and hour.
	Lags [LagWeeks]float64

	Samples int
}

type slotKey struct {
	facility string
	weekday  int
	hour     int
}

// History is the read-only historical aggregate table.
type History struct {
	slots      map[slotKey]SlotAggregate
	facilities map[string]SlotAggregate
}

// Slot returns the exact (facility, weekday, hour) aggregate.
func (h *History) Slot(facilityID string, weekday, hour int) (SlotAggregate, bool) {
	agg, ok := h.slots[slotKey{domain.NormalizeFacilityID(facilityID), weekday, hour}]
	return agg, ok
}

// FacilityAverage returns the aggregate over every record of the facility.
func (h *History) FacilityAverage(facilityID string) (SlotAggregate, bool) {
	agg, ok := h.facilities[domain.NormalizeFacilityID(facilityID)]
	return agg, ok
}

// Facilities returns the number of facilities with at least one record.
func (h *History) Facilities() int { return len(h.facilities) }

// Slots returns the number of populated slots.
func (h *History) Slots() int { return len(h.slots) }

type enriched struct {
	OccupancyRecord
	lags [LagWeeks]float64
}

// BuildHistory derives slot aggregates from raw records, bucketed by UTC
// weekday and hour. Each record's k-week
// lag is the congestion of the record exactly k weeks earlier; when that record
// is absent the previous lag value in the same slot is carried forward, and a
// slot with no earlier value at all uses the record's own congestion.
func BuildHistory(records []OccupancyRecord) (*History, error) {
	byFacility := make(map[string][]OccupancyRecord)
	for i, r := range records {
		id := domain.NormalizeFacilityID(r.FacilityID)
		if id == "" {
			return nil, fmt.Errorf("%w: occupancy record %d has no facility id", domain.ErrReferenceSchema, i)
		}
		if r.ObservedAt.IsZero() {
			return nil, fmt.Errorf("%w: occupancy record %d for %q has no timestamp", domain.ErrReferenceSchema, i, id)
		}
		r.FacilityID = id
		// Slots are keyed by UTC weekday and hour.
		r.ObservedAt = r.ObservedAt.UTC()
		byFacility[id] = append(byFacility[id], r)
	}

	h := &History{
		slots:      make(map[slotKey]SlotAggregate),
		facilities: make(map[string]SlotAggregate, len(byFacility)),
	}
	for id, recs := range byFacility {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].ObservedAt.Before(recs[j].ObservedAt) })

		var all accumulator
		slots := make(map[slotKey]*accumulator)
		for _, e := range withLags(recs) {
			key := slotKey{id, Weekday(e.ObservedAt), e.ObservedAt.Hour()}
			acc, ok := slots[key]
			if !ok {
				acc = &accumulator{}
				slots[key] = acc
			}
			acc.add(e)
			all.add(e)
		}

		for key, acc := range slots {
			h.slots[key] = acc.mean()
		}
		h.facilities[id] = all.mean()
	}
	return h, nil
}

// withLags computes lag features for one facility's time-ordered records.
func withLags(recs []OccupancyRecord) []enriched {
	byInstant := make(map[int64]float64, len(recs))
	for _, r := range recs {
		byInstant[r.ObservedAt.Unix()] = r.Congestion()
	}

	type slot struct{ weekday, hour int }
	last := make(map[slot]*[LagWeeks]float64)

	out := make([]enriched, len(recs))
	for i, r := range recs {
		s := slot{Weekday(r.ObservedAt), r.ObservedAt.Hour()}
		prev := last[s]

		e := enriched{OccupancyRecord: r}
		for k := range LagWeeks {
			at := r.ObservedAt.Add(-time.Duration(k+1) * week).Unix()
			switch v, ok := byInstant[at]; {
			case ok:
				e.lags[k] = v
			case prev != nil:
				e.lags[k] = prev[k]
			default:
				e.lags[k] = r.Congestion()
			}
		}
		out[i] = e
		last[s] = &out[i].lags
	}
	return out
}

type accumulator struct {
	capacity, inflow, outflow float64
	lags                      [LagWeeks]float64
	n                         int
}

func (a *accumulator) add(e enriched) {
	a.capacity += e.Capacity
	a.inflow += e.Inflow
	a.outflow += e.Outflow
	for k := range LagWeeks {
		a.lags[k] += e.lags[k]
	}
	a.n++
}

func (a *accumulator) mean() SlotAggregate {
	n := float64(a.n)
	agg := SlotAggregate{
		Capacity: a.capacity / n,
		Inflow:   a.inflow / n,
		Outflow:  a.outflow / n,
		Samples:  a.n,
	}
	for k := range LagWeeks {
		agg.Lags[k] = a.lags[k] / n
	}
	return agg
}
