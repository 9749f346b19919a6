package aggregate

import (
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

// WeekData summarizes one seven-day block.
type WeekData struct {
	CasesInWeek                int     `json:"cases_in_week"`
	TotalLabConfirmedCases     int     `json:"total_lab_confirmed_cases"`
	TotalLabConfirmedCasesRate float64 `json:"total_lab_confirmed_cases_rate"`
}

// WeeklySummary compares the most recent week with the week before it.
type WeeklySummary struct {
	DailyTotal    int      `json:"daily_total"`
	CurrentTotal  int      `json:"current_total"`
	WeeklyTotal   int      `json:"weekly_total"`
	ChangeInTotal int      `json:"change_in_total"`
	WeeklyRate    float64  `json:"weekly_rate"`
	ChangeInRate  float64  `json:"change_in_rate"`
	WeekOne       WeekData `json:"week_one"`
	WeekTwo       WeekData `json:"week_two"`
}

// Window returns the records of a date-ordered series that fall within the
// fourteen days ending at asOf, keeping at most the last fourteen.
func Window(series []storage.DailyRecord, asOf time.Time) []storage.DailyRecord {
	end := storage.Day(asOf)
	start := end.Add(-windowDays * day)

	var kept []storage.DailyRecord
	for _, r := range series {
		d := storage.Day(r.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) > windowDays {
		kept = kept[len(kept)-windowDays:]
	}
	return kept
}

// Weekly splits the window ending at asOf into two weeks. The last seven
// points (or fewer) form week two; the points before them form week one.
func Weekly(series []storage.DailyRecord, asOf time.Time) WeeklySummary {
	window := Window(series, asOf)

	split := len(window) - weekDays
	if split < 0 {
		split = 0
	}
	one := weekData(window[:split])
	two := weekData(window[split:])

	var s WeeklySummary
	s.WeekOne = one
	s.WeekTwo = two
	if len(window) > 0 {
		last := window[len(window)-1]
		s.DailyTotal = last.NewValue
	}
	s.CurrentTotal = two.TotalLabConfirmedCases
	s.WeeklyTotal = two.CasesInWeek
	s.ChangeInTotal = two.CasesInWeek - one.CasesInWeek
	s.WeeklyRate = weekRate(two)
	s.ChangeInRate = weekRate(two) - weekRate(one)
	return s
}

func weekData(records []storage.DailyRecord) WeekData {
	var w WeekData
	for _, r := range records {
		w.CasesInWeek += r.NewValue
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		w.TotalLabConfirmedCases = last.CumulativeValue
		w.TotalLabConfirmedCasesRate = last.Rate
	}
	return w
}

// weekRate scales the week's cases by the cumulative rate per case, giving
// the week's cases per 100,000 people.
func weekRate(w WeekData) float64 {
	if w.TotalLabConfirmedCases == 0 {
		return 0
	}
	return float64(w.CasesInWeek) * w.TotalLabConfirmedCasesRate / float64(w.TotalLabConfirmedCases)
}
