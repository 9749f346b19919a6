package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/matthewjhunter/coviddash/internal/remote"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is added to a category's last update time before it is
// sent upstream, so data published within the hour is not re-requested.
const DefaultDebounce = time.Hour

// Store is the subset of storage.Store the synchronizer writes through.
type Store interface {
	Metadata(ctx context.Context, id string) (*storage.Metadata, error)
	RunAtomic(ctx context.Context, fn func(tx storage.Tx) error) error
	UpsertAreaLookup(ctx context.Context, lookup storage.AreaLookup) error
}

// Source fetches upstream data.
type Source interface {
	Fetch(ctx context.Context, q remote.Query, ifModifiedSince time.Time) (*remote.FetchResult, error)
	FetchLookup(ctx context.Context, category, code string) (*storage.AreaLookup, error)
}

// Options configures a Syncer. Zero values select the defaults.
type Options struct {
	Workers  int
	Debounce time.Duration
	Logger   *logrus.Logger
}

// Syncer brings local categories up to date with the remote source.
type Syncer struct {
	store    Store
	source   Source
	workers  int
	debounce time.Duration
	log      *logrus.Logger
}

// New creates a Syncer.
func New(store Store, source Source, opts Options) *Syncer {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Syncer{
		store:    store,
		source:   source,
		workers:  opts.Workers,
		debounce: opts.Debounce,
		log:      opts.Logger,
	}
}

// PerformSync runs one conditional sync for cat. It never returns an error;
// failures are reported in the Result and leave the store untouched.
func (s *Syncer) PerformSync(ctx context.Context, cat Category) Result {
	res := Result{Category: cat.ID}

	meta, err := s.store.Metadata(ctx, cat.ID)
	if err != nil {
		return s.finish(res.fail(fmt.Errorf("read metadata: %w", err)))
	}
	if meta == nil {
		res.Outcome = Skipped
		return s.finish(res)
	}

	since := meta.LastUpdatedAt.Add(s.debounce)

	var records []storage.DailyRecord
	var freshness time.Time
	changed := false
	for _, q := range cat.Queries {
		fetched, err := s.source.Fetch(ctx, q, since)
		if err != nil {
			return s.finish(res.fail(err))
		}
		if fetched.NotModified {
			continue
		}
		changed = true
		records = append(records, fetched.Records...)
		if fetched.Freshness.After(freshness) {
			freshness = fetched.Freshness
		}
	}
	if !changed {
		res.Outcome = NotModified
		return s.finish(res)
	}

	err = s.store.RunAtomic(ctx, func(tx storage.Tx) error {
		if err := apply(ctx, tx, cat.Target, records); err != nil {
			return err
		}
		return tx.UpsertMetadata(ctx, storage.Metadata{ID: cat.ID, LastUpdatedAt: freshness})
	})
	if err != nil {
		return s.finish(res.fail(fmt.Errorf("store %s: %w", cat.ID, err)))
	}

	res.Outcome = Updated
	res.Records = len(records)
	res.Freshness = freshness
	return s.finish(res)
}

// apply writes records to target. The area index takes one row per distinct
// area code; the last record for a code wins.
func apply(ctx context.Context, tx storage.Tx, target storage.Table, records []storage.DailyRecord) error {
	if target != storage.TableAreas {
		return tx.UpsertRecords(ctx, target, records)
	}
	seen := make(map[string]int, len(records))
	var areas []storage.Area
	for _, r := range records {
		a := storage.Area{Code: r.AreaCode, Name: r.AreaName, Type: r.AreaType}
		if i, ok := seen[r.AreaCode]; ok {
			areas[i] = a
			continue
		}
		seen[r.AreaCode] = len(areas)
		areas = append(areas, a)
	}
	return tx.UpsertAreas(ctx, areas)
}

// SyncLookup fetches the hierarchy for code and caches it.
func (s *Syncer) SyncLookup(ctx context.Context, category, code string) (*storage.AreaLookup, error) {
	lookup, err := s.source.FetchLookup(ctx, category, code)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertAreaLookup(ctx, *lookup); err != nil {
		return nil, err
	}
	return lookup, nil
}

// Job is one full sync pass.
type Job struct {
	Categories []Category
	Lookups    []LookupRequest
}

// LookupRequest asks for the area hierarchy of one code.
type LookupRequest struct {
	Category string
	Code     string
}

// Run syncs every category and lookup in job on a bounded pool. Each task
// records its own Result; one failure never cancels the others.
func (s *Syncer) Run(ctx context.Context, job Job) Report {
	results := make([]Result, len(job.Categories)+len(job.Lookups))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for i, cat := range job.Categories {
		i, cat := i, cat
		g.Go(func() error {
			results[i] = s.PerformSync(ctx, cat)
			return nil
		})
	}
	for j, req := range job.Lookups {
		req := req
		i := len(job.Categories) + j
		g.Go(func() error {
			res := Result{Category: LookupID(req.Code)}
			if _, err := s.SyncLookup(ctx, req.Category, req.Code); err != nil {
				results[i] = s.finish(res.fail(err))
				return nil
			}
			res.Outcome = Updated
			res.Records = 1
			results[i] = s.finish(res)
			return nil
		})
	}
	g.Wait()

	return Report{Results: results}
}

// LookupID labels the result of a lookup sync.
func LookupID(code string) string {
	return "LOOKUP_" + code
}

func (s *Syncer) finish(res Result) Result {
	entry := s.log.WithFields(logrus.Fields{
		"category": res.Category,
		"outcome":  res.Outcome.String(),
		"records":  res.Records,
	})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("sync: category failed")
	} else {
		entry.Debug("sync: category done")
	}
	return res
}
