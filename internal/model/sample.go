package model

// SampleBundle returns a small, valid bundle whose prediction is a weighted
// blend of the three lag features. It backs mock data generation and tests.
func SampleBundle() *Bundle {
	mean := make(map[string]float64)
	scale := make(map[string]float64)
	coef := make(map[string]float64)
	for _, col := range FeatureColumns {
		coef[col] = 0
		if col == ColWeekday {
			continue
		}
		mean[col] = 0
		scale[col] = 1
	}
	coef[ColLag1W] = 0.5
	coef[ColLag2W] = 0.3
	coef[ColLag3W] = 0.2

	return &Bundle{
		Version:    "sample-1",
		FitColumns: []string{ColCapacity, ColInflow, ColOutflow, ColLag1W, ColLag2W, ColLag3W, ColHour, ColWeekday},
		Scaler:     Scaler{Mean: mean, Scale: scale},
		Ordinal:    Ordinal{Column: ColWeekday, Categories: []float64{0, 1, 2, 3, 4, 5, 6}},
		Model:      LinearModel{Type: "linear", Coefficients: coef},
	}
}
