package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

// Metric selects which measurement a query asks for.
type Metric int

const (
	// MetricNone requests area identity fields only (the area list).
	MetricNone Metric = iota
	MetricCases
	MetricDeaths
)

func (m Metric) String() string {
	switch m {
	case MetricCases:
		return "cases"
	case MetricDeaths:
		return "deaths"
	default:
		return "areas"
	}
}

// Query is one filtered request against the data endpoint.
type Query struct {
	AreaType storage.AreaType
	AreaCode string // optional; empty means every area of AreaType
	Metric   Metric
}

func (q Query) String() string {
	if q.AreaCode != "" {
		return fmt.Sprintf("%s/%s/%s", q.Metric, q.AreaType, q.AreaCode)
	}
	return fmt.Sprintf("%s/%s", q.Metric, q.AreaType)
}

// metricFields names the upstream new, cumulative and rate fields.
type metricFields struct {
	New        string
	Cumulative string
	Rate       string
}

var (
	casesByPublishDate = metricFields{
		New:        "newCasesByPublishDate",
		Cumulative: "cumCasesByPublishDate",
		Rate:       "cumCasesByPublishDateRate",
	}
	casesBySpecimenDate = metricFields{
		New:        "newCasesBySpecimenDate",
		Cumulative: "cumCasesBySpecimenDate",
		Rate:       "cumCasesBySpecimenDateRate",
	}
	deathsByPublishDate = metricFields{
		New:        "newDeaths28DaysByPublishDate",
		Cumulative: "cumDeaths28DaysByPublishDate",
		Rate:       "cumDeaths28DaysByPublishDateRate",
	}
	deathsByDeathDate = metricFields{
		New:        "newDeaths28DaysByDeathDate",
		Cumulative: "cumDeaths28DaysByDeathDate",
		Rate:       "cumDeaths28DaysByDeathDateRate",
	}
)

// fields picks the metric names for the query's area type. Overview and
// nation figures are only published by publish date; finer areas use the
// specimen or death date.
func (q Query) fields() metricFields {
	national := q.AreaType == storage.AreaOverview || q.AreaType == storage.AreaNation
	switch {
	case q.Metric == MetricDeaths && national:
		return deathsByPublishDate
	case q.Metric == MetricDeaths:
		return deathsByDeathDate
	case national:
		return casesByPublishDate
	default:
		return casesBySpecimenDate
	}
}

// structure maps response keys to upstream metric names.
type structure struct {
	AreaCode        string `json:"areaCode"`
	AreaName        string `json:"areaName"`
	AreaType        string `json:"areaType"`
	Date            string `json:"date,omitempty"`
	NewValue        string `json:"newValue,omitempty"`
	CumulativeValue string `json:"cumulativeValue,omitempty"`
	Rate            string `json:"rate,omitempty"`
}

func (q Query) filters() string {
	parts := []string{"areaType=" + string(q.AreaType)}
	if q.AreaCode != "" {
		parts = append(parts, "areaCode="+q.AreaCode)
	}
	return strings.Join(parts, ";")
}

func (q Query) structure() (string, error) {
	s := structure{AreaCode: "areaCode", AreaName: "areaName", AreaType: "areaType"}
	if q.Metric != MetricNone {
		f := q.fields()
		s.Date = "date"
		s.NewValue = f.New
		s.CumulativeValue = f.Cumulative
		s.Rate = f.Rate
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// latestBy restricts the area list to one row per area.
func (q Query) latestBy() string {
	if q.Metric != MetricNone {
		return ""
	}
	return Query{AreaType: q.AreaType, Metric: MetricCases}.fields().Cumulative
}
