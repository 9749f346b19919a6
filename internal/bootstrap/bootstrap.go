// Package bootstrap seeds an empty cache from the snapshot bundled with the
// binary so the first run has something to show before any network sync.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store is the subset of storage.Store the bootstrapper needs.
type Store interface {
	CountRecords(ctx context.Context, table storage.Table, areaCode string) (int, error)
	CountAreas(ctx context.Context) (int, error)
	RunAtomic(ctx context.Context, fn func(tx storage.Tx) error) error
}

// TaskResult reports one bootstrap task.
type TaskResult struct {
	Task    string
	Seeded  bool // false when the table already had data or the task failed
	Records int
	Err     error
}

// Report collects task results.
type Report struct {
	Results []TaskResult
}

// Err returns the first task error, if any.
func (r Report) Err() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Bootstrapper seeds empty tables from a snapshot.
type Bootstrapper struct {
	store Store
	fsys  fs.FS
	log   *logrus.Logger
}

// New creates a Bootstrapper reading from fsys. Pass Bundled() for the
// embedded snapshot.
func New(store Store, fsys fs.FS, logger *logrus.Logger) *Bootstrapper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bootstrapper{store: store, fsys: fsys, log: logger}
}

type task struct {
	name  string
	count func(ctx context.Context) (int, error)
	load  func(s *Snapshot) (int, time.Time, func(ctx context.Context, tx storage.Tx) error, error)
	meta  string
}

func (b *Bootstrapper) recordTask(name string, table storage.Table, countCode, key, meta string) task {
	return task{
		name: name,
		meta: meta,
		count: func(ctx context.Context) (int, error) {
			return b.store.CountRecords(ctx, table, countCode)
		},
		load: func(s *Snapshot) (int, time.Time, func(context.Context, storage.Tx) error, error) {
			records, published, err := s.Load(key)
			if err != nil {
				return 0, time.Time{}, nil, err
			}
			return len(records), published, func(ctx context.Context, tx storage.Tx) error {
				return tx.UpsertRecords(ctx, table, records)
			}, nil
		},
	}
}

func (b *Bootstrapper) tasks() []task {
	return []task{
		b.recordTask("cases", storage.TableCases, "", FileCases, storage.MetadataCases),
		b.recordTask("deaths", storage.TableDeaths, "", FileDeaths, storage.MetadataDeaths),
		b.recordTask("overview", storage.TableAreaData, storage.OverviewCode, FileOverview,
			storage.AreaDataMetadataID(storage.OverviewCode)),
		{
			name:  "areas",
			meta:  storage.MetadataAreaList,
			count: b.store.CountAreas,
			load: func(s *Snapshot) (int, time.Time, func(context.Context, storage.Tx) error, error) {
				areas, published, err := s.Areas()
				if err != nil {
					return 0, time.Time{}, nil, err
				}
				return len(areas), published, func(ctx context.Context, tx storage.Tx) error {
					return tx.UpsertAreas(ctx, areas)
				}, nil
			},
		},
	}
}

// Run seeds every empty table concurrently. A table that already holds rows
// is left alone so live data is never replaced by the older snapshot.
func (b *Bootstrapper) Run(ctx context.Context) Report {
	tasks := b.tasks()
	results := make([]TaskResult, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			results[i] = b.run(ctx, t)
			return nil
		})
	}
	g.Wait()

	return Report{Results: results}
}

func (b *Bootstrapper) run(ctx context.Context, t task) TaskResult {
	res := TaskResult{Task: t.name}
	entry := b.log.WithField("task", t.name)

	n, err := t.count(ctx)
	if err != nil {
		res.Err = fmt.Errorf("bootstrap %s: count: %w", t.name, err)
		entry.WithError(err).Warn("bootstrap: count failed")
		return res
	}
	if n > 0 {
		entry.WithField("existing", n).Debug("bootstrap: table has data, skipping")
		return res
	}

	snap, err := OpenSnapshot(b.fsys)
	if err != nil {
		res.Err = fmt.Errorf("bootstrap %s: %w", t.name, err)
		entry.WithError(err).Warn("bootstrap: no snapshot")
		return res
	}
	count, published, write, err := t.load(snap)
	if err != nil {
		res.Err = fmt.Errorf("bootstrap %s: %w", t.name, err)
		entry.WithError(err).Warn("bootstrap: bad snapshot")
		return res
	}

	err = b.store.RunAtomic(ctx, func(tx storage.Tx) error {
		if err := write(ctx, tx); err != nil {
			return err
		}
		return tx.UpsertMetadata(ctx, storage.Metadata{ID: t.meta, LastUpdatedAt: published})
	})
	if err != nil {
		res.Err = fmt.Errorf("bootstrap %s: %w", t.name, err)
		entry.WithError(err).Warn("bootstrap: write failed")
		return res
	}

	res.Seeded = true
	res.Records = count
	entry.WithField("records", count).Info("bootstrap: seeded")
	return res
}
