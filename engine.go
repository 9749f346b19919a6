package coviddash

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewjhunter/coviddash/internal/bootstrap"
	"github.com/matthewjhunter/coviddash/internal/prune"
	"github.com/matthewjhunter/coviddash/internal/remote"
	"github.com/matthewjhunter/coviddash/internal/resolve"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/matthewjhunter/coviddash/internal/summary"
	"github.com/matthewjhunter/coviddash/internal/syncer"
	"github.com/sirupsen/logrus"
)

// Engine is the public API for the sync and summary pipeline.
// It wraps the local store, the remote client and the components built on them.
type Engine struct {
	store     *storage.SQLiteStore
	syncer    *syncer.Syncer
	boot      *bootstrap.Bootstrapper
	pruner    *prune.Pruner
	cases     *resolve.Resolver
	deaths    *resolve.Resolver
	log       *logrus.Logger
	now       func() time.Time
	bootstrap bool
}

// NewEngine opens the database at cfg.DBPath and wires the pipeline. Nothing
// touches the network until Sync or a lookup is called.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.coronavirus.data.gov.uk"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SnapshotFS == nil {
		cfg.SnapshotFS = bootstrap.Bundled()
	}

	client, err := remote.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Engine{
		store: store,
		syncer: syncer.New(store, client, syncer.Options{
			Workers:  cfg.Workers,
			Debounce: cfg.Debounce,
			Logger:   cfg.Logger,
		}),
		boot:   bootstrap.New(store, cfg.SnapshotFS, cfg.Logger),
		pruner: prune.New(store, cfg.Logger),
		cases: &resolve.Resolver{Series: resolve.FirstNonEmpty(
			resolve.TableSource(store, storage.TableAreaData),
			resolve.TableSource(store, storage.TableCases),
		)},
		deaths:    &resolve.Resolver{Series: resolve.TableSource(store, storage.TableDeaths)},
		log:       cfg.Logger,
		now:       cfg.Now,
		bootstrap: cfg.Bootstrap,
	}, nil
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Start evicts unsaved areas and, if enabled, seeds empty tables from the
// bundled snapshot. Bootstrap failures are returned as warnings unless the
// cache is left with no data at all, which returns ErrNoData.
func (e *Engine) Start(ctx context.Context) (*StartResult, error) {
	result := &StartResult{}

	stats, err := e.pruner.Prune(ctx)
	if err != nil {
		return nil, err
	}
	result.RecordsPruned = stats.RecordsDeleted
	result.MetadataPruned = stats.MetadataDeleted

	var bootErr error
	if e.bootstrap {
		report := e.boot.Run(ctx)
		for _, r := range report.Results {
			if r.Seeded {
				result.Seeded = append(result.Seeded, r.Task)
			}
			if r.Err != nil {
				result.Warnings = append(result.Warnings, r.Err.Error())
			}
		}
		bootErr = report.Err()
	}

	has, err := e.store.HasData(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		if bootErr != nil {
			return result, fmt.Errorf("%w: %w", ErrNoData, bootErr)
		}
		return result, ErrNoData
	}
	return result, nil
}

// Sync brings every category up to date. Category failures never abort the
// pass; they make the status a warning when cached data exists. A pass that
// leaves the cache empty is fatal and returns ErrNoData, failures or not.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	job, err := e.syncJob(ctx)
	if err != nil {
		return nil, err
	}
	report := e.syncer.Run(ctx, job)

	result := &SyncResult{Status: StatusOK}
	for _, r := range report.Results {
		cr := CategoryResult{Category: r.Category, Outcome: r.Outcome.String(), Records: r.Records}
		if !r.Freshness.IsZero() {
			f := r.Freshness
			cr.Freshness = &f
		}
		if r.Err != nil {
			cr.Error = r.Err.Error()
		}
		switch r.Outcome {
		case syncer.Updated:
			result.Updated++
		case syncer.NotModified:
			result.NotModified++
		case syncer.Skipped:
			result.Skipped++
		case syncer.Failed:
			result.Failed++
		}
		result.Categories = append(result.Categories, cr)
	}

	has, err := e.store.HasData(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case !has:
		result.Status = StatusFatal
		e.log.WithField("failed", result.Failed).Error("sync: no data available")
		return result, ErrNoData
	case result.Failed > 0:
		result.Status = StatusWarning
		e.log.WithField("failed", result.Failed).Warn("sync: partial failure, serving cached data")
	}
	return result, nil
}

// syncJob lists the categories for this pass plus lookups for saved areas
// that have none cached yet.
func (e *Engine) syncJob(ctx context.Context) (syncer.Job, error) {
	saved, err := e.savedAreas(ctx)
	if err != nil {
		return syncer.Job{}, err
	}
	job := syncer.Job{Categories: syncer.DefaultCategories(saved)}
	for _, a := range saved {
		category, ok := lookupCategory(a.Type)
		if !ok {
			continue
		}
		l, err := e.store.AreaLookup(ctx, a.Code)
		if err != nil {
			return syncer.Job{}, err
		}
		if l == nil {
			job.Lookups = append(job.Lookups, syncer.LookupRequest{Category: category, Code: a.Code})
		}
	}
	return job, nil
}

// lookupCategory is the /v1/code category for an area type, if it has one.
func lookupCategory(t storage.AreaType) (string, bool) {
	switch t {
	case storage.AreaLTLA, storage.AreaUTLA, storage.AreaMSOA, storage.AreaLSOA:
		return string(t), true
	}
	return "", false
}

// areaType returns the type of code from the area index, falling back to
// the GSS prefix.
func (e *Engine) areaType(ctx context.Context, code string) (storage.AreaType, error) {
	a, err := e.store.GetArea(ctx, code)
	if err != nil {
		return "", err
	}
	if a != nil {
		return a.Type, nil
	}
	if t, ok := storage.InferAreaType(code); ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownArea, code)
}

// AreaDetail resolves the case series for code (falling back up the
// hierarchy when the area has no data) and summarizes it together with the
// containing nation's deaths. areaType may be empty.
func (e *Engine) AreaDetail(ctx context.Context, code, areaType string) (*AreaDetail, error) {
	code = normalizeCode(code)
	var t storage.AreaType
	var err error
	if areaType != "" {
		t, err = storage.ParseAreaType(areaType)
	} else {
		t, err = e.areaType(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	lookup, err := e.store.AreaLookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if lookup == nil {
		if category, ok := lookupCategory(t); ok {
			lookup, err = e.syncer.SyncLookup(ctx, category, code)
			if err != nil {
				e.log.WithError(err).WithField("area", code).Debug("area: lookup unavailable, using defaults")
				lookup = nil
			}
		} else if lookup, err = e.selfLookup(ctx, code, t); err != nil {
			return nil, err
		}
	}

	resolved, err := e.cases.Resolve(ctx, code, t, lookup)
	if err != nil {
		if errors.Is(err, resolve.ErrNoSeries) {
			return nil, fmt.Errorf("%w: %w", ErrNoData, err)
		}
		return nil, err
	}

	asOf := e.seriesAsOf(resolved.Series)

	detail := &AreaDetail{
		RequestedCode: code,
		RequestedType: string(t),
		AsOf:          asOf,
		Lookup:        lookupFromInternal(lookup),
		Cases:         seriesSummary(resolved, asOf),
		Series:        aggregateRolling(resolved.Series),
	}

	nation, err := e.deaths.ResolveNation(ctx, code, t, lookup)
	switch {
	case err == nil:
		s := seriesSummary(nation, e.seriesAsOf(nation.Series))
		detail.Deaths = &s
	case errors.Is(err, resolve.ErrNoSeries):
	default:
		return nil, err
	}
	return detail, nil
}

// seriesAsOf is the day after the newest record in series, or today when
// series is empty. series must be oldest first.
func (e *Engine) seriesAsOf(series []storage.DailyRecord) time.Time {
	if len(series) == 0 {
		return storage.Day(e.now())
	}
	return storage.Day(series[len(series)-1].Date).AddDate(0, 0, 1)
}

// selfLookup places areas that have no /v1/code category (regions and
// nations) in the hierarchy themselves, so their own series is tried first.
func (e *Engine) selfLookup(ctx context.Context, code string, t storage.AreaType) (*storage.AreaLookup, error) {
	switch t {
	case storage.AreaRegion, storage.AreaNHSRegion, storage.AreaNation:
	default:
		return nil, nil
	}
	var name string
	a, err := e.store.GetArea(ctx, code)
	if err != nil {
		return nil, err
	}
	if a != nil {
		name = a.Name
	}

	nation := resolve.DefaultArea(code, t)
	l := &storage.AreaLookup{Code: code, Nation: nation.Code, NationName: nation.Name}
	switch t {
	case storage.AreaRegion:
		l.Region, l.RegionName = code, name
	case storage.AreaNHSRegion:
		l.NHSRegion, l.NHSRegionName = code, name
	case storage.AreaNation:
		if l.NationName == "" {
			l.NationName = name
		}
	}
	return l, nil
}

// Search returns areas whose name starts with text.
func (e *Engine) Search(ctx context.Context, text string) ([]Area, error) {
	areas, err := summary.Search(ctx, e.store, text)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return areasFromInternal(areas), nil
}

// AreaSummaries ranks every LTLA by sortBy (rising-cases, rising-infection-rate,
// infection-rate or new-cases). A limit of zero or less returns all of them.
func (e *Engine) AreaSummaries(ctx context.Context, sortBy string, limit int) ([]AreaSummary, error) {
	opt := summary.RisingCases
	if sortBy != "" {
		var err error
		if opt, err = summary.ParseSortOption(sortBy); err != nil {
			return nil, err
		}
	}

	latest, ok, err := e.store.LatestDate(ctx, storage.TableCases, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return []AreaSummary{}, nil
	}
	asOf := latest.AddDate(0, 0, 1)

	records, err := e.store.RecordsSince(ctx, storage.TableCases, storage.AreaLTLA, asOf.AddDate(0, 0, -14))
	if err != nil {
		return nil, err
	}
	sorted := summary.Sort(summary.BuildSummaries(records, asOf), opt)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]AreaSummary, len(sorted))
	for i, s := range sorted {
		out[i] = AreaSummary{
			AreaCode:              s.AreaCode,
			AreaName:              s.AreaName,
			AreaType:              string(s.AreaType),
			ChangeInCases:         s.ChangeInCases,
			CurrentNewCases:       s.CurrentNewCases,
			CurrentInfectionRate:  s.CurrentInfectionRate,
			ChangeInInfectionRate: s.ChangeInInfectionRate,
		}
	}
	return out, nil
}

// SaveArea pins an area and seeds its series cursor at the epoch so the
// next sync fetches its full history.
func (e *Engine) SaveArea(ctx context.Context, code string) error {
	code = normalizeCode(code)
	if _, err := e.areaType(ctx, code); err != nil {
		return err
	}
	if err := e.store.SaveArea(ctx, code); err != nil {
		return err
	}

	id := storage.AreaDataMetadataID(code)
	m, err := e.store.Metadata(ctx, id)
	if err != nil {
		return err
	}
	if m != nil {
		return nil
	}
	return e.store.UpsertMetadata(ctx, storage.Metadata{ID: id, LastUpdatedAt: time.Unix(0, 0).UTC()})
}

// UnsaveArea unpins an area. Its cached series is evicted by the next Prune.
func (e *Engine) UnsaveArea(ctx context.Context, code string) error {
	return e.store.DeleteSavedArea(ctx, normalizeCode(code))
}

// SavedAreas lists pinned areas in the order they were saved.
func (e *Engine) SavedAreas(ctx context.Context) ([]Area, error) {
	saved, err := e.savedAreas(ctx)
	if err != nil {
		return nil, err
	}
	return areasFromInternal(saved), nil
}

func (e *Engine) savedAreas(ctx context.Context) ([]storage.Area, error) {
	codes, err := e.store.ListSavedAreas(ctx)
	if err != nil {
		return nil, err
	}
	areas := make([]storage.Area, 0, len(codes))
	for _, code := range codes {
		a, err := e.store.GetArea(ctx, code)
		if err != nil {
			return nil, err
		}
		if a == nil {
			t, _ := storage.InferAreaType(code)
			a = &storage.Area{Code: code, Type: t}
		}
		areas = append(areas, *a)
	}
	return areas, nil
}

// LookupPostcode returns the areas containing postcode, fetching and caching
// them on first use.
func (e *Engine) LookupPostcode(ctx context.Context, postcode string) (*AreaLookup, error) {
	postcode = strings.ToUpper(strings.Join(strings.Fields(postcode), " "))
	if postcode == "" {
		return nil, fmt.Errorf("%w: empty postcode", ErrNotFound)
	}

	l, err := e.store.AreaLookup(ctx, postcode)
	if err != nil {
		return nil, err
	}
	if l == nil {
		if l, err = e.syncer.SyncLookup(ctx, "postcode", postcode); err != nil {
			return nil, err
		}
	}
	return lookupFromInternal(l), nil
}

// Prune evicts every per-area series except the overview and saved areas.
func (e *Engine) Prune(ctx context.Context) (*PruneResult, error) {
	stats, err := e.pruner.Prune(ctx)
	if err != nil {
		return nil, err
	}
	return &PruneResult{RecordsDeleted: stats.RecordsDeleted, MetadataDeleted: stats.MetadataDeleted}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
