package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRollingAverage_FirstElementIsZero(t *testing.T) {
	series := []storage.DailyRecord{
		{Date: date(2020, 1, 1), CumulativeValue: 1320},
		{Date: date(2020, 1, 2), CumulativeValue: 1400},
	}
	out := RollingAverages(series)
	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].RollingAverage)
	assert.Equal(t, 0.0, RollingAverage(nil, series[1]))
}

func TestRollingAverage_GapNormalised(t *testing.T) {
	prev := storage.DailyRecord{Date: date(2020, 1, 1), CumulativeValue: 1320}
	cur := storage.DailyRecord{Date: date(2020, 1, 7), CumulativeValue: 2420}

	got := RollingAverage(&prev, cur)
	assert.InDelta(t, 1100.0/7.0, got, 1e-9)
	assert.InDelta(t, 157.14, got, 0.01)
}

func TestRollingAverage_ConsecutiveDays(t *testing.T) {
	prev := storage.DailyRecord{Date: date(2020, 3, 1), CumulativeValue: 100}
	cur := storage.DailyRecord{Date: date(2020, 3, 2), CumulativeValue: 110}
	assert.Equal(t, 5.0, RollingAverage(&prev, cur))
}

func TestRollingAverage_DecreasePreservedAsNegative(t *testing.T) {
	prev := storage.DailyRecord{Date: date(2020, 3, 1), CumulativeValue: 200}
	cur := storage.DailyRecord{Date: date(2020, 3, 2), CumulativeValue: 190}
	assert.Equal(t, -5.0, RollingAverage(&prev, cur))
}

func TestRollingAverages_CarriesValues(t *testing.T) {
	series := []storage.DailyRecord{
		{Date: date(2020, 1, 1), NewValue: 5, CumulativeValue: 10, Rate: 1.5},
		{Date: date(2020, 1, 3), NewValue: 6, CumulativeValue: 16, Rate: 2.5},
	}
	out := RollingAverages(series)
	require.Len(t, out, 2)
	assert.Equal(t, date(2020, 1, 3), out[1].Date)
	assert.Equal(t, 6, out[1].NewValue)
	assert.Equal(t, 16, out[1].CumulativeValue)
	assert.Equal(t, 2.5, out[1].Rate)
	assert.Equal(t, 2.0, out[1].RollingAverage)
}

func TestWeekly_EmptySeries(t *testing.T) {
	s := Weekly(nil, date(2020, 10, 24))
	assert.Equal(t, WeekData{}, s.WeekOne)
	assert.Equal(t, WeekData{}, s.WeekTwo)
	assert.Equal(t, WeeklySummary{}, s)
}

// thirtyDays is a deterministic series starting 2020-09-01.
func thirtyDays() []storage.DailyRecord {
	rng := rand.New(rand.NewSource(20201024))
	start := date(2020, 9, 1)
	series := make([]storage.DailyRecord, 30)
	cum := 0
	for i := range series {
		n := rng.Intn(500)
		cum += n
		series[i] = storage.DailyRecord{
			AreaCode:        "E06000001",
			Date:            start.AddDate(0, 0, i),
			NewValue:        n,
			CumulativeValue: cum,
			Rate:            float64(cum) / 93.7,
		}
	}
	return series
}

func sumNew(series []storage.DailyRecord, from, to int) int {
	total := 0
	for i := from; i <= to; i++ {
		total += series[i].NewValue
	}
	return total
}

func TestWeekly_Windowing(t *testing.T) {
	series := thirtyDays()
	asOf := series[0].Date.AddDate(0, 0, 30)

	s := Weekly(series, asOf)

	assert.Equal(t, sumNew(series, 16, 22), s.WeekOne.CasesInWeek)
	assert.Equal(t, sumNew(series, 23, 29), s.WeekTwo.CasesInWeek)
	assert.Equal(t, series[22].CumulativeValue, s.WeekOne.TotalLabConfirmedCases)
	assert.Equal(t, series[29].CumulativeValue, s.WeekTwo.TotalLabConfirmedCases)
	assert.Equal(t, series[29].Rate, s.WeekTwo.TotalLabConfirmedCasesRate)

	assert.Equal(t, series[29].NewValue, s.DailyTotal)
	assert.Equal(t, series[29].CumulativeValue, s.CurrentTotal)
	assert.Equal(t, s.WeekTwo.CasesInWeek, s.WeeklyTotal)
	assert.Equal(t, s.WeekTwo.CasesInWeek-s.WeekOne.CasesInWeek, s.ChangeInTotal)
}

func TestWeekly_LiteralFixture(t *testing.T) {
	var series []storage.DailyRecord
	cum := 0
	for i := 0; i < 14; i++ {
		n := 10
		if i >= 7 {
			n = 20
		}
		cum += n
		series = append(series, storage.DailyRecord{
			Date:            date(2020, 10, 1).AddDate(0, 0, i),
			NewValue:        n,
			CumulativeValue: cum,
			Rate:            float64(cum),
		})
	}

	s := Weekly(series, date(2020, 10, 15))
	assert.Equal(t, 70, s.WeekOne.CasesInWeek)
	assert.Equal(t, 140, s.WeekTwo.CasesInWeek)
	assert.Equal(t, 70, s.ChangeInTotal)
	assert.Equal(t, 210, s.CurrentTotal)
	// Rate equals the cumulative count, so the weekly rate equals the week's cases.
	assert.InDelta(t, 140.0, s.WeeklyRate, 1e-9)
	assert.InDelta(t, 70.0, s.ChangeInRate, 1e-9)
}

func TestWeekly_FewerThanSevenPoints(t *testing.T) {
	series := []storage.DailyRecord{
		{Date: date(2020, 10, 20), NewValue: 3, CumulativeValue: 3, Rate: 1},
		{Date: date(2020, 10, 21), NewValue: 4, CumulativeValue: 7, Rate: 2},
	}
	s := Weekly(series, date(2020, 10, 22))
	assert.Equal(t, WeekData{}, s.WeekOne)
	assert.Equal(t, 7, s.WeekTwo.CasesInWeek)
	assert.Equal(t, 7, s.ChangeInTotal)
}

func TestWeekly_StaleSeriesDegradesToZero(t *testing.T) {
	series := thirtyDays()
	asOf := series[len(series)-1].Date.AddDate(0, 0, 31)

	s := Weekly(series, asOf)
	assert.Equal(t, WeeklySummary{}, s)
}

func TestWeekly_IgnoresRecordsAfterAsOf(t *testing.T) {
	series := thirtyDays()
	asOf := series[20].Date

	s := Weekly(series, asOf)
	assert.Equal(t, series[20].NewValue, s.DailyTotal)
	assert.Equal(t, sumNew(series, 14, 20), s.WeekTwo.CasesInWeek)
}
