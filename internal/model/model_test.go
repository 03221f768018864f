package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleBundle_Valid(t *testing.T) {
	require.NoError(t, SampleBundle().Validate())
}

func TestBundle_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Bundle)
	}{
		{"missing fit column", func(b *Bundle) { b.FitColumns = b.FitColumns[:len(b.FitColumns)-1] }},
		{"extra fit column", func(b *Bundle) { b.FitColumns = append(b.FitColumns, "temperature") }},
		{"renamed fit column", func(b *Bundle) { b.FitColumns[0] = "spaces" }},
		{"wrong ordinal column", func(b *Bundle) { b.Ordinal.Column = ColHour }},
		{"no categories", func(b *Bundle) { b.Ordinal.Categories = nil }},
		{"missing scaler mean", func(b *Bundle) { delete(b.Scaler.Mean, ColInflow) }},
		{"missing scaler scale", func(b *Bundle) { delete(b.Scaler.Scale, ColHour) }},
		{"unsupported model", func(b *Bundle) { b.Model.Type = "gradient_boosting" }},
		{"missing coefficient", func(b *Bundle) { delete(b.Model.Coefficients, ColWeekday) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := SampleBundle()
			tt.mutate(b)
			assert.ErrorIs(t, b.Validate(), domain.ErrBundleSchema)
		})
	}
}

func TestBundle_ValidateAcceptsAnyColumnOrder(t *testing.T) {
	b := SampleBundle()
	b.FitColumns = []string{ColWeekday, ColHour, ColLag3W, ColLag2W, ColLag1W, ColOutflow, ColInflow, ColCapacity}
	assert.NoError(t, b.Validate())
}

func TestBundle_Encode(t *testing.T) {
	b := SampleBundle()
	b.FitColumns = []string{ColHour, ColWeekday, ColCapacity, ColInflow, ColOutflow, ColLag1W, ColLag2W, ColLag3W}
	b.Scaler.Mean[ColCapacity] = 100
	b.Scaler.Scale[ColCapacity] = 50
	b.Scaler.Scale[ColHour] = 0
	b.Ordinal.Categories = []float64{6, 5, 4, 3, 2, 1, 0}

	v, err := b.Encode(Features{Capacity: 200, Inflow: 3, Outflow: 1, Lags: [3]float64{10, 20, 30}, Hour: 14, Weekday: 2})
	require.NoError(t, err)
	assert.Equal(t, b.FitColumns, v.Columns)
	assert.Equal(t, []float64{14, 4, 2, 3, 1, 10, 20, 30}, v.Values)
}

func TestBundle_EncodeUnknownCategory(t *testing.T) {
	b := SampleBundle()
	b.Ordinal.Categories = []float64{0, 1, 2}
	_, err := b.Encode(Features{Weekday: 5})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestFeatures_HasNaN(t *testing.T) {
	assert.False(t, Features{Capacity: 1}.HasNaN())
	nan := Features{}
	nan.Lags[1] = math.NaN()
	assert.True(t, nan.HasNaN())
}

func TestLinear_Predict(t *testing.T) {
	b := SampleBundle()
	p := NewLinear(b)
	v, err := b.Encode(Features{Lags: [3]float64{40, 50, 60}, Hour: 9, Weekday: 0})
	require.NoError(t, err)

	got, err := p.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*40+0.3*50+0.2*60, got, 1e-9)
}

func TestLinear_PredictErrors(t *testing.T) {
	p := NewLinear(SampleBundle())

	_, err := p.Predict(context.Background(), Vector{Columns: []string{ColHour}, Values: nil})
	assert.Error(t, err)

	_, err = p.Predict(context.Background(), Vector{Columns: []string{"unknown"}, Values: []float64{1}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Predict(ctx, Vector{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.json")
	data, err := json.Marshal(SampleBundle())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "sample-1", b.Version)

	_, err = LoadBundle(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = ParseBundle([]byte(`{"fit_columns": "capacity"}`))
	assert.ErrorIs(t, err, domain.ErrBundleSchema)
}
