package forecast

// VariancePoint is one index of the plan/forecast/actual series with its
// deltas. Budget deltas are nil when no budget series was supplied; a zero
// there would be indistinguishable from an on-budget month.
type VariancePoint struct {
	Plan     float64 `json:"plan"`
	Forecast float64 `json:"forecast"`
	Actual   float64 `json:"actual"`

	ForecastVariancePlan float64 `json:"forecastVariancePlan"`
	ActualVariancePlan   float64 `json:"actualVariancePlan"`

	ForecastVarianceBudget *float64 `json:"forecastVarianceBudget,omitempty"`
	ActualVarianceBudget   *float64 `json:"actualVarianceBudget,omitempty"`
}

// ComputeVariance zips the parallel series index by index. The result is as
// long as the longest provided series; missing indices read as zero. budget
// may be nil, which leaves the budget deltas unset.
func ComputeVariance(plan, forecast, actual, budget []float64) []VariancePoint {
	n := len(plan)
	for _, s := range [][]float64{forecast, actual, budget} {
		if len(s) > n {
			n = len(s)
		}
	}

	points := make([]VariancePoint, n)
	for i := 0; i < n; i++ {
		p := at(plan, i)
		f := at(forecast, i)
		a := at(actual, i)

		point := VariancePoint{
			Plan:                 p,
			Forecast:             f,
			Actual:               a,
			ForecastVariancePlan: f - p,
			ActualVariancePlan:   a - p,
		}
		if budget != nil {
			b := at(budget, i)
			fv := f - b
			av := a - b
			point.ForecastVarianceBudget = &fv
			point.ActualVarianceBudget = &av
		}
		points[i] = point
	}
	return points
}

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
