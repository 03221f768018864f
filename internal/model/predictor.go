package model

import (
	"context"
	"fmt"
	"math"
)

// Predictor maps an encoded feature vector to a congestion percentage.
type Predictor interface {
	Predict(ctx context.Context, v Vector) (float64, error)
}

// Linear evaluates the bundle's linear regression in process.
type Linear struct {
	model LinearModel
}

// NewLinear creates an in-process predictor from a validated bundle.
func NewLinear(b *Bundle) *Linear {
	return &Linear{model: b.Model}
}

func (l *Linear) Predict(ctx context.Context, v Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(v.Columns) != len(v.Values) {
		return 0, fmt.Errorf("vector has %d columns and %d values", len(v.Columns), len(v.Values))
	}
	y := l.model.Intercept
	for i, col := range v.Columns {
		coef, ok := l.model.Coefficients[col]
		if !ok {
			return 0, fmt.Errorf("no coefficient for column %q", col)
		}
		y += coef * v.Values[i]
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("prediction is not finite: %v", y)
	}
	return y, nil
}
