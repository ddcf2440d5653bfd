package forecast

import (
	"sort"

	"presupuesto/internal/core"
)

// Bucket holds the aggregated amounts and derived variances for one month,
// or for the whole grid in Totals.Overall.
type Bucket struct {
	Planned                 float64 `json:"planned"`
	Forecast                float64 `json:"forecast"`
	Actual                  float64 `json:"actual"`
	VarianceForecast        float64 `json:"varianceForecast"`
	VarianceActual          float64 `json:"varianceActual"`
	VarianceForecastPercent float64 `json:"varianceForecastPercent"`
	VarianceActualPercent   float64 `json:"varianceActualPercent"`
}

// Totals is the aggregation result consumed by the dashboard. Every numeric
// field is always present and finite; the UI never needs defensive guards.
type Totals struct {
	Months  []int          `json:"months"`
	ByMonth map[int]Bucket `json:"byMonth"`
	Overall Bucket         `json:"overall"`
}

// ComputeTotals aggregates forecast rows into per-month buckets plus an
// overall bucket. When months is empty the month set is derived from the
// rows (distinct positive values, ascending). Supplied month lists get a
// bucket even when no row lands in them, and a row whose month is missing
// from the list still gets a bucket of its own.
func ComputeTotals(rows []core.ForecastRow, months []int) Totals {
	byMonth := make(map[int]Bucket)
	for _, m := range months {
		if m > 0 {
			byMonth[m] = Bucket{}
		}
	}

	for _, row := range rows {
		if row.Month <= 0 {
			continue
		}
		b := byMonth[row.Month]
		b.Planned += core.AmountOrZero(row.Planned)
		b.Forecast += core.AmountOrZero(row.Forecast)
		b.Actual += core.AmountOrZero(row.Actual)
		byMonth[row.Month] = b
	}

	monthList := make([]int, 0, len(byMonth))
	var overall Bucket
	for m, b := range byMonth {
		monthList = append(monthList, m)
		overall.Planned += b.Planned
		overall.Forecast += b.Forecast
		overall.Actual += b.Actual
		byMonth[m] = finalize(b)
	}
	sort.Ints(monthList)

	return Totals{
		Months:  monthList,
		ByMonth: byMonth,
		Overall: finalize(overall),
	}
}

// finalize derives variances from the accumulated amounts. Percentages are
// defined as exactly zero when there is no planned base, so callers never
// see NaN or Inf.
func finalize(b Bucket) Bucket {
	b.VarianceForecast = b.Forecast - b.Planned
	b.VarianceActual = b.Actual - b.Planned
	if b.Planned > 0 {
		b.VarianceForecastPercent = b.VarianceForecast / b.Planned * 100
		b.VarianceActualPercent = b.VarianceActual / b.Planned * 100
	} else {
		b.VarianceForecastPercent = 0
		b.VarianceActualPercent = 0
	}
	return b
}
