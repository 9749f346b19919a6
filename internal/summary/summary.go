// Package summary builds, sorts and searches per-area summaries.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/matthewjhunter/coviddash/internal/aggregate"
	"github.com/matthewjhunter/coviddash/internal/storage"
)

// AreaSummary is the week-over-week picture for one area.
type AreaSummary struct {
	AreaCode              string           `json:"area_code"`
	AreaName              string           `json:"area_name"`
	AreaType              storage.AreaType `json:"area_type"`
	ChangeInCases         int              `json:"change_in_cases"`
	CurrentNewCases       int              `json:"current_new_cases"`
	CurrentInfectionRate  float64          `json:"current_infection_rate"`
	ChangeInInfectionRate float64          `json:"change_in_infection_rate"`
}

// SortOption selects the field summaries are ranked by.
type SortOption int

const (
	RisingCases SortOption = iota
	RisingInfectionRate
	InfectionRate
	NewCases
)

var sortNames = map[SortOption]string{
	RisingCases:         "rising-cases",
	RisingInfectionRate: "rising-infection-rate",
	InfectionRate:       "infection-rate",
	NewCases:            "new-cases",
}

func (o SortOption) String() string {
	if s, ok := sortNames[o]; ok {
		return s
	}
	return "unknown"
}

// ParseSortOption accepts the names printed by String, case-insensitively,
// with either dashes or underscores.
func ParseSortOption(s string) (SortOption, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for o, name := range sortNames {
		if name == norm {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown sort option %q (want rising-cases, rising-infection-rate, infection-rate or new-cases)", s)
}

func (o SortOption) key(s AreaSummary) float64 {
	switch o {
	case RisingInfectionRate:
		return s.ChangeInInfectionRate
	case InfectionRate:
		return s.CurrentInfectionRate
	case NewCases:
		return float64(s.CurrentNewCases)
	default:
		return float64(s.ChangeInCases)
	}
}

// Sort returns a copy of summaries ordered descending by the field o selects.
// Equal keys keep their input order.
func Sort(summaries []AreaSummary, o SortOption) []AreaSummary {
	out := make([]AreaSummary, len(summaries))
	copy(out, summaries)
	sort.SliceStable(out, func(i, j int) bool {
		return o.key(out[i]) > o.key(out[j])
	})
	return out
}

// Summarize builds one area's summary from its date-ordered series.
func Summarize(series []storage.DailyRecord, asOf time.Time) AreaSummary {
	var s AreaSummary
	if len(series) == 0 {
		return s
	}
	last := series[len(series)-1]
	s.AreaCode = last.AreaCode
	s.AreaName = last.AreaName
	s.AreaType = last.AreaType

	w := aggregate.Weekly(series, asOf)
	s.ChangeInCases = w.ChangeInTotal
	s.CurrentNewCases = w.WeeklyTotal
	s.CurrentInfectionRate = w.WeeklyRate
	s.ChangeInInfectionRate = w.ChangeInRate
	return s
}

// BuildSummaries summarizes records that are grouped by area code and
// ordered by date within each area.
func BuildSummaries(records []storage.DailyRecord, asOf time.Time) []AreaSummary {
	var out []AreaSummary
	start := 0
	for i := 1; i <= len(records); i++ {
		if i < len(records) && records[i].AreaCode == records[start].AreaCode {
			continue
		}
		out = append(out, Summarize(records[start:i], asOf))
		start = i
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPattern turns free text into a LIKE prefix pattern with wildcards in
// the text escaped. Blank input returns false.
func SearchPattern(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return likeEscaper.Replace(text) + "%", true
}

// Searcher is the store's name-index query.
type Searcher interface {
	SearchAreasByNamePrefix(ctx context.Context, pattern string) ([]storage.Area, error)
}

// Search returns the areas whose name starts with text. Blank text returns
// an empty result without querying the store.
func Search(ctx context.Context, store Searcher, text string) ([]storage.Area, error) {
	pattern, ok := SearchPattern(text)
	if !ok {
		return []storage.Area{}, nil
	}
	areas, err := store.SearchAreasByNamePrefix(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if areas == nil {
		areas = []storage.Area{}
	}
	return areas, nil
}
