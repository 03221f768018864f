// Package model loads the offline-trained congestion model bundle and turns
// raw feature values into the exact input vector the model was fit on.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/parking-recommender/internal/domain"
)

// Feature column names produced by the feature builder.
const (
	ColCapacity = "capacity"
	ColInflow   = "inflow"
	ColOutflow  = "outflow"
	ColLag1W    = "lag_1w"
	ColLag2W    = "lag_2w"
	ColLag3W    = "lag_3w"
	ColHour     = "hour"
	ColWeekday  = "weekday"
)

// FeatureColumns lists every constructed feature in canonical order.
var FeatureColumns = []string{ColCapacity, ColInflow, ColOutflow, ColLag1W, ColLag2W, ColLag3W, ColHour, ColWeekday}

// ErrUnknownCategory is returned when the ordinal encoder has never seen a value.
var ErrUnknownCategory = errors.New("unknown ordinal category")

// Features are the raw, unscaled model inputs for one (facility, weekday, hour).
type Features struct {
	Capacity float64
	Inflow   float64
	Outflow  float64
	Lags     [3]float64
	Hour     int
	Weekday  int
}

// Values returns the features keyed by column name.
func (f Features) Values() map[string]float64 {
	return map[string]float64{
		ColCapacity: f.Capacity,
		ColInflow:   f.Inflow,
		ColOutflow:  f.Outflow,
		ColLag1W:    f.Lags[0],
		ColLag2W:    f.Lags[1],
		ColLag3W:    f.Lags[2],
		ColHour:     float64(f.Hour),
		ColWeekday:  float64(f.Weekday),
	}
}

// HasNaN reports whether any feature is NaN.
func (f Features) HasNaN() bool {
	for _, v := range f.Values() {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Vector is an encoded model input, ordered by the bundle's fit columns.
type Vector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
}

// Scaler is a fitted standard scaler: (x - mean) / scale per column.
type Scaler struct {
	Mean  map[string]float64 `json:"mean"`
	Scale map[string]float64 `json:"scale"`
}

// Ordinal is a fitted ordinal encoder for one categorical column.
type Ordinal struct {
	Column     string    `json:"column"`
	Categories []float64 `json:"categories"`
}

// LinearModel is a fitted linear regression.
type LinearModel struct {
	Type         string             `json:"type"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// Bundle is the versioned artifact produced by offline training.
type Bundle struct {
	Version    string      `json:"version"`
	FitColumns []string    `json:"fit_columns"`
	Scaler     Scaler      `json:"scaler"`
	Ordinal    Ordinal     `json:"ordinal"`
	Model      LinearModel `json:"model"`
}

// LoadBundle reads and validates a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model bundle: %w", err)
	}
	return ParseBundle(data)
}

// ParseBundle decodes and validates a bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", domain.ErrBundleSchema, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that the bundle was fit on exactly the features this service builds.
func (b *Bundle) Validate() error {
	fit := slices.Clone(b.FitColumns)
	slices.Sort(fit)
	want := slices.Clone(FeatureColumns)
	slices.Sort(want)
	if !slices.Equal(fit, want) {
		return fmt.Errorf("%w: fit columns %v do not match constructed features %v", domain.ErrBundleSchema, b.FitColumns, FeatureColumns)
	}
	if b.Ordinal.Column != ColWeekday {
		return fmt.Errorf("%w: ordinal encoder column %q, want %q", domain.ErrBundleSchema, b.Ordinal.Column, ColWeekday)
	}
	if len(b.Ordinal.Categories) == 0 {
		return fmt.Errorf("%w: ordinal encoder has no categories", domain.ErrBundleSchema)
	}
	for _, col := range b.FitColumns {
		if col == b.Ordinal.Column {
			continue
		}
		if _, ok := b.Scaler.Mean[col]; !ok {
			return fmt.Errorf("%w: scaler has no mean for %q", domain.ErrBundleSchema, col)
		}
		if _, ok := b.Scaler.Scale[col]; !ok {
			return fmt.Errorf("%w: scaler has no scale for %q", domain.ErrBundleSchema, col)
		}
	}
	if b.Model.Type != "linear" {
		return fmt.Errorf("%w: unsupported model type %q", domain.ErrBundleSchema, b.Model.Type)
	}
	for _, col := range b.FitColumns {
		if _, ok := b.Model.Coefficients[col]; !ok {
			return fmt.Errorf("%w: model has no coefficient for %q", domain.ErrBundleSchema, col)
		}
	}
	return nil
}

// Encode orders the features by fit column, ordinal-encodes the weekday and
// standard-scales every other column. A zero scale is treated as 1.
func (b *Bundle) Encode(f Features) (Vector, error) {
	raw := f.Values()
	v := Vector{
		Columns: slices.Clone(b.FitColumns),
		Values:  make([]float64, len(b.FitColumns)),
	}
	for i, col := range b.FitColumns {
		x := raw[col]
		if col == b.Ordinal.Column {
			idx := slices.Index(b.Ordinal.Categories, x)
			if idx < 0 {
				return Vector{}, fmt.Errorf("%w: %s=%v", ErrUnknownCategory, col, x)
			}
			v.Values[i] = float64(idx)
			continue
		}
		scale := b.Scaler.Scale[col]
		if scale == 0 {
			scale = 1
		}
		v.Values[i] = (x - b.Scaler.Mean[col]) / scale
	}
	return v, nil
}
