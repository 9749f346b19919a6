package coviddash

import (
	"errors"
	"io/fs"
	"time"

	"github.com/matthewjhunter/coviddash/internal/aggregate"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoData means the cache is empty and could be filled neither from
	// the bundled snapshot nor from the network.
	ErrNoData = errors.New("no data available")

	// ErrUnknownArea means an area code is neither in the area index nor a
	// recognisable GSS code.
	ErrUnknownArea = errors.New("unknown area")

	// ErrNotFound is returned when a postcode or area has no lookup upstream.
	ErrNotFound = storage.ErrNotFound
)

// EngineConfig configures the engine.
type EngineConfig struct {
	DBPath      string
	APIBaseURL  string
	HTTPTimeout time.Duration
	UserAgent   string
	Workers     int           // concurrent category syncs
	Debounce    time.Duration // added to each cursor before If-Modified-Since; default 1h
	Bootstrap   bool          // seed empty tables from the bundled snapshot on Start
	SnapshotFS  fs.FS         // overrides the bundled snapshot; mainly for tests
	Logger      *logrus.Logger
	Now         func() time.Time
}

// Area is an entry in the area name index.
type Area struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// AreaLookup lists the areas that contain a postcode or fine-grained area.
type AreaLookup struct {
	Code          string `json:"code"`
	LSOA          string `json:"lsoa,omitempty"`
	LSOAName      string `json:"lsoa_name,omitempty"`
	MSOA          string `json:"msoa,omitempty"`
	MSOAName      string `json:"msoa_name,omitempty"`
	LTLA          string `json:"ltla,omitempty"`
	LTLAName      string `json:"ltla_name,omitempty"`
	UTLA          string `json:"utla,omitempty"`
	UTLAName      string `json:"utla_name,omitempty"`
	Region        string `json:"region,omitempty"`
	RegionName    string `json:"region_name,omitempty"`
	Nation        string `json:"nation,omitempty"`
	NationName    string `json:"nation_name,omitempty"`
	NHSRegion     string `json:"nhs_region,omitempty"`
	NHSRegionName string `json:"nhs_region_name,omitempty"`
	NHSTrust      string `json:"nhs_trust,omitempty"`
	NHSTrustName  string `json:"nhs_trust_name,omitempty"`
}

// Derived values. They are computed on every read and never stored.
type (
	DailyPoint    = aggregate.DailyDataWithRollingAverage
	WeekData      = aggregate.WeekData
	WeeklySummary = aggregate.WeeklySummary
)

// AreaSummary ranks one area's week-over-week change.
type AreaSummary struct {
	AreaCode              string  `json:"area_code"`
	AreaName              string  `json:"area_name"`
	AreaType              string  `json:"area_type"`
	ChangeInCases         int     `json:"change_in_cases"`
	CurrentNewCases       int     `json:"current_new_cases"`
	CurrentInfectionRate  float64 `json:"current_infection_rate"`
	ChangeInInfectionRate float64 `json:"change_in_infection_rate"`
}

// SeriesSummary is a resolved series with its weekly summary.
type SeriesSummary struct {
	AreaCode     string        `json:"area_code"`
	AreaName     string        `json:"area_name"`
	AreaType     string        `json:"area_type"`
	ResolvedFrom string        `json:"resolved_from"` // own, region, nation, default or overview
	Weekly       WeeklySummary `json:"weekly"`
}

// AreaDetail is everything shown for one area: its case series (or the
// nearest containing area that has one) and its nation's deaths.
type AreaDetail struct {
	RequestedCode string         `json:"requested_code"`
	RequestedType string         `json:"requested_type"`
	AsOf          time.Time      `json:"as_of"`
	Lookup        *AreaLookup    `json:"lookup,omitempty"`
	Cases         SeriesSummary  `json:"cases"`
	Series        []DailyPoint   `json:"series"`
	Deaths        *SeriesSummary `json:"deaths,omitempty"`
}

// SyncStatus is the overall verdict of a sync pass.
type SyncStatus string

const (
	// StatusOK means every category synced or was already current.
	StatusOK SyncStatus = "ok"
	// StatusWarning means some categories failed but cached data is still usable.
	StatusWarning SyncStatus = "warning"
	// StatusFatal means categories failed and there is no data at all.
	StatusFatal SyncStatus = "fatal"
)

// CategoryResult is the outcome of syncing one category.
type CategoryResult struct {
	Category  string     `json:"category"`
	Outcome   string     `json:"outcome"`
	Records   int        `json:"records"`
	Freshness *time.Time `json:"freshness,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// SyncResult summarizes a sync pass.
type SyncResult struct {
	Status      SyncStatus       `json:"status"`
	Updated     int              `json:"updated"`
	NotModified int              `json:"not_modified"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Categories  []CategoryResult `json:"categories"`
}

// StartResult reports the startup prune and bootstrap.
type StartResult struct {
	RecordsPruned  int64    `json:"records_pruned"`
	MetadataPruned int64    `json:"metadata_pruned"`
	Seeded         []string `json:"seeded,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// PruneResult reports an eviction pass.
type PruneResult struct {
	RecordsDeleted  int64 `json:"records_deleted"`
	MetadataDeleted int64 `json:"metadata_deleted"`
}
