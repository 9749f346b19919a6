package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup has no matching row upstream or locally.
var ErrNotFound = errors.New("not found")

// Overview is the UK-wide area every other area falls back to.
const (
	OverviewCode = "K02000001"
	OverviewName = "United Kingdom"
)

// Metadata IDs for the fixed sync categories. Per-area series use
// AreaDataMetadataID.
const (
	MetadataCases    = "CASES"
	MetadataDeaths   = "DEATHS"
	MetadataAreaList = "AREA_LIST"

	areaDataPrefix = "AREA_DATA_"
)

// AreaDataMetadataID returns the metadata key for one area's series.
func AreaDataMetadataID(areaCode string) string {
	return areaDataPrefix + areaCode
}

// AreaType is a level in the geographic hierarchy, spelled the way the
// upstream API spells it.
type AreaType string

const (
	AreaOverview  AreaType = "overview"
	AreaNation    AreaType = "nation"
	AreaRegion    AreaType = "region"
	AreaNHSRegion AreaType = "nhsRegion"
	AreaUTLA      AreaType = "utla"
	AreaLTLA      AreaType = "ltla"
	AreaNHSTrust  AreaType = "nhsTrust"
	AreaMSOA      AreaType = "msoa"
	AreaLSOA      AreaType = "lsoa"
)

var areaTypes = []AreaType{
	AreaOverview, AreaNation, AreaRegion, AreaNHSRegion,
	AreaUTLA, AreaLTLA, AreaNHSTrust, AreaMSOA, AreaLSOA,
}

// ParseAreaType accepts upstream spellings case-insensitively.
func ParseAreaType(s string) (AreaType, error) {
	for _, t := range areaTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown area type %q", s)
}

// gssPrefixes maps the entity prefix of a GSS code to its area type.
var gssPrefixes = map[string]AreaType{
	"K02": AreaOverview,
	"E92": AreaNation, "S92": AreaNation, "W92": AreaNation, "N92": AreaNation,
	"E12": AreaRegion,
	"E40": AreaNHSRegion,
	"E10": AreaUTLA, "E11": AreaUTLA,
	"E06": AreaLTLA, "E07": AreaLTLA, "E08": AreaLTLA, "E09": AreaLTLA,
	"S12": AreaLTLA, "W06": AreaLTLA, "N09": AreaLTLA,
	"E02": AreaMSOA,
	"E01": AreaLSOA,
}

// InferAreaType guesses an area's type from its GSS code prefix. It is used
// when an area code is not in the local area index.
func InferAreaType(code string) (AreaType, bool) {
	if len(code) < 3 {
		return "", false
	}
	t, ok := gssPrefixes[strings.ToUpper(code[:3])]
	return t, ok
}

// Table names a daily record table.
type Table string

const (
	TableAreaData Table = "area_data"
	TableCases    Table = "cases"
	TableDeaths   Table = "deaths"

	// TableAreas is the area name index. It holds Area rows, not daily
	// records, so record operations reject it.
	TableAreas Table = "areas"
)

func (t Table) recordTable() error {
	switch t {
	case TableAreaData, TableCases, TableDeaths:
		return nil
	}
	return fmt.Errorf("%q is not a daily record table", string(t))
}

// DailyRecord is one observation for one area on one date.
type DailyRecord struct {
	AreaCode        string
	AreaName        string
	AreaType        AreaType
	Date            time.Time
	NewValue        int
	CumulativeValue int
	Rate            float64
}

// Metadata is the freshness cursor for one sync category.
type Metadata struct {
	ID            string
	LastUpdatedAt time.Time
}

// Area is one entry in the area name index.
type Area struct {
	Code string
	Name string
	Type AreaType
}

// AreaLookup maps a fine-grained code (postcode, LSOA, MSOA or LTLA) to the
// areas that contain it.
type AreaLookup struct {
	Code          string
	LSOA          string
	LSOAName      string
	MSOA          string
	MSOAName      string
	LTLA          string
	LTLAName      string
	UTLA          string
	UTLAName      string
	Region        string
	RegionName    string
	Nation        string
	NationName    string
	NHSRegion     string
	NHSRegionName string
	NHSTrust      string
	NHSTrustName  string
}

// PruneStats reports how many rows an eviction pass removed.
type PruneStats struct {
	RecordsDeleted  int64
	MetadataDeleted int64
}

const dateLayout = "2006-01-02"

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an upstream YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// FormatDay formats t as YYYY-MM-DD in UTC.
func FormatDay(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
