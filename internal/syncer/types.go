package syncer

import (
	"time"

	"github.com/matthewjhunter/coviddash/internal/remote"
	"github.com/matthewjhunter/coviddash/internal/storage"
)

// Outcome is the result of syncing one category.
type Outcome int

const (
	// Skipped means the category has no metadata yet and was not fetched.
	Skipped Outcome = iota
	// NotModified means upstream had nothing newer than the cursor.
	NotModified
	// Updated means records and metadata were written together.
	Updated
	// Failed means the fetch or the write failed; nothing was written.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case NotModified:
		return "not_modified"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText lets outcomes serialize as their names.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result reports what happened to one category.
type Result struct {
	Category  string
	Outcome   Outcome
	Records   int
	Freshness time.Time
	Err       error
}

func (r Result) fail(err error) Result {
	r.Outcome = Failed
	r.Err = err
	return r
}

// Report collects the results of a sync pass.
type Report struct {
	Results []Result
}

// Failed returns the results that failed.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == Failed {
			out = append(out, res)
		}
	}
	return out
}

// Updated returns the results that wrote new data.
func (r Report) Updated() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == Updated {
			out = append(out, res)
		}
	}
	return out
}

// Category is one independently synced unit of remote data.
type Category struct {
	ID      string
	Target  storage.Table
	Queries []remote.Query
}

// DefaultCategories returns the categories a full sync covers: LTLA cases,
// national deaths, the area list, the overview series, and one series per
// saved area.
func DefaultCategories(saved []storage.Area) []Category {
	cats := []Category{
		{
			ID:      storage.MetadataCases,
			Target:  storage.TableCases,
			Queries: []remote.Query{{AreaType: storage.AreaLTLA, Metric: remote.MetricCases}},
		},
		{
			ID:     storage.MetadataDeaths,
			Target: storage.TableDeaths,
			Queries: []remote.Query{
				{AreaType: storage.AreaOverview, Metric: remote.MetricDeaths},
				{AreaType: storage.AreaNation, Metric: remote.MetricDeaths},
			},
		},
		{
			ID:     storage.MetadataAreaList,
			Target: storage.TableAreas,
			Queries: []remote.Query{
				{AreaType: storage.AreaLTLA, Metric: remote.MetricNone},
				{AreaType: storage.AreaUTLA, Metric: remote.MetricNone},
				{AreaType: storage.AreaRegion, Metric: remote.MetricNone},
				{AreaType: storage.AreaNation, Metric: remote.MetricNone},
			},
		},
		AreaDataCategory(storage.Area{Code: storage.OverviewCode, Type: storage.AreaOverview}),
	}
	for _, a := range saved {
		if a.Code == storage.OverviewCode {
			continue
		}
		cats = append(cats, AreaDataCategory(a))
	}
	return cats
}

// AreaDataCategory returns the per-area series category for a.
func AreaDataCategory(a storage.Area) Category {
	return Category{
		ID:      storage.AreaDataMetadataID(a.Code),
		Target:  storage.TableAreaData,
		Queries: []remote.Query{{AreaType: a.Type, AreaCode: a.Code, Metric: remote.MetricCases}},
	}
}
