package reference

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// Registry identifies which static tariff table is authoritative for a facility.
type Registry string

const (
	LegacyRegistry   Registry = "legacy"
	RealtimeRegistry Registry = "realtime"
)

// TariffRow is a tariff record as stored by a registry. Nil fields are missing.
type TariffRow struct {
	ID          string   `json:"id" db:"id"`
	BaseFee     *float64 `json:"base_fee" db:"base_fee"`
	BaseMinutes *float64 `json:"base_minutes" db:"base_minutes"`
	ExtraFee    *float64 `json:"extra_fee" db:"extra_fee"`
	UnitMinutes *float64 `json:"unit_minutes" db:"unit_minutes"`
	DailyCap    *float64 `json:"daily_cap" db:"daily_cap"`
	Lat         *float64 `json:"lat" db:"lat"`
	Lon         *float64 `json:"lon" db:"lon"`
}

// Facility is a resolved tariff table entry.
type Facility struct {
	ID          string
	Tariff      domain.Tariff
	Lat         float64
	Lon         float64
	HasLocation bool
}

// TariffTable is an immutable, normalized-id-keyed tariff registry.
type TariffTable struct {
	registry   Registry
	facilities map[string]Facility
}

// NewTariffTable resolves raw rows into a table. Missing base fee, base minutes,
// and extra fee take the mean of the rows that have them; a missing unit
// length takes the default. The first row wins when ids collide.
func NewTariffTable(registry Registry, rows []TariffRow) (*TariffTable, error) {
	baseFee := columnMean(rows, func(r TariffRow) *float64 { return r.BaseFee })
	baseMinutes := columnMean(rows, func(r TariffRow) *float64 { return r.BaseMinutes })
	extraFee := columnMean(rows, func(r TariffRow) *float64 { return r.ExtraFee })

	t := &TariffTable{
		registry:   registry,
		facilities: make(map[string]Facility, len(rows)),
	}
	for i, row := range rows {
		id := domain.NormalizeFacilityID(row.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: %s tariff row %d has no id", domain.ErrReferenceSchema, registry, i)
		}
		if _, dup := t.facilities[id]; dup {
			continue
		}

		f := Facility{
			ID: id,
			Tariff: domain.Tariff{
				BaseFee:     valueOr(row.BaseFee, baseFee),
				BaseMinutes: valueOr(row.BaseMinutes, baseMinutes),
				ExtraFee:    valueOr(row.ExtraFee, extraFee),
				UnitMinutes: valueOr(row.UnitMinutes, domain.DefaultUnitMinutes),
				DailyCap:    row.DailyCap,
			},
		}
		if row.Lat != nil && row.Lon != nil {
			f.Lat, f.Lon, f.HasLocation = *row.Lat, *row.Lon, true
		}
		t.facilities[id] = f
	}
	return t, nil
}

// Registry reports which registry this table holds.
func (t *TariffTable) Registry() Registry { return t.registry }

// Len returns the number of facilities.
func (t *TariffTable) Len() int { return len(t.facilities) }

// IDs returns the normalized facility ids in sorted order.
func (t *TariffTable) IDs() []string {
	ids := make([]string, 0, len(t.facilities))
	for id := range t.facilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup finds a facility by id; the id is normalized first.
func (t *TariffTable) Lookup(id string) (Facility, bool) {
	f, ok := t.facilities[domain.NormalizeFacilityID(id)]
	return f, ok
}

// Contains reports whether the table holds the facility.
func (t *TariffTable) Contains(id string) bool {
	_, ok := t.Lookup(id)
	return ok
}

// columnMean averages the non-nil values of one column; an all-missing column averages to 0.
func columnMean(rows []TariffRow, field func(TariffRow) *float64) float64 {
	var sum float64
	var n int
	for _, r := range rows {
		if v := field(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
