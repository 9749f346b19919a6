// Package aggregate derives rolling averages and two-week summaries from
// daily series. Nothing it computes is persisted.
package aggregate

import (
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

const (
	day        = 24 * time.Hour
	windowDays = 14
	weekDays   = 7
)

// DailyDataWithRollingAverage is one point of a series with its smoothed value.
type DailyDataWithRollingAverage struct {
	Date            time.Time `json:"date"`
	NewValue        int       `json:"new_value"`
	CumulativeValue int       `json:"cumulative_value"`
	Rate            float64   `json:"rate"`
	RollingAverage  float64   `json:"rolling_average"`
}

// RollingAverage spreads the cumulative change between prev and cur over the
// days between them plus one. Without a previous point it is zero. A
// decreasing cumulative value yields a negative average.
func RollingAverage(prev *storage.DailyRecord, cur storage.DailyRecord) float64 {
	if prev == nil {
		return 0
	}
	days := int(storage.Day(cur.Date).Sub(storage.Day(prev.Date)) / day)
	return float64(cur.CumulativeValue-prev.CumulativeValue) / float64(days+1)
}

// RollingAverages pairs each record of a date-ordered series with the
// rolling average against the record before it.
func RollingAverages(series []storage.DailyRecord) []DailyDataWithRollingAverage {
	out := make([]DailyDataWithRollingAverage, len(series))
	for i, r := range series {
		var prev *storage.DailyRecord
		if i > 0 {
			prev = &series[i-1]
		}
		out[i] = DailyDataWithRollingAverage{
			Date:            r.Date,
			NewValue:        r.NewValue,
			CumulativeValue: r.CumulativeValue,
			Rate:            r.Rate,
			RollingAverage:  RollingAverage(prev, r),
		}
	}
	return out
}
