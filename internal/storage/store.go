package storage

import (
	"context"
	"time"
)

// Store defines the storage interface for the local cache.
type Store interface {
	Close() error

	// Daily records
	UpsertRecords(ctx context.Context, table Table, records []DailyRecord) error
	Series(ctx context.Context, table Table, areaCode string) ([]DailyRecord, error)
	AreaSeries(ctx context.Context, areaCode string) ([]DailyRecord, error)
	RecordsSince(ctx context.Context, table Table, areaType AreaType, since time.Time) ([]DailyRecord, error)
	LatestDate(ctx context.Context, table Table, areaCode string) (time.Time, bool, error)
	CountRecords(ctx context.Context, table Table, areaCode string) (int, error)
	HasData(ctx context.Context) (bool, error)

	// Metadata
	Metadata(ctx context.Context, id string) (*Metadata, error)
	UpsertMetadata(ctx context.Context, m Metadata) error

	// Transactions
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error

	// Area index
	UpsertAreas(ctx context.Context, areas []Area) error
	GetArea(ctx context.Context, code string) (*Area, error)
	CountAreas(ctx context.Context) (int, error)
	SearchAreasByNamePrefix(ctx context.Context, pattern string) ([]Area, error)

	// Area lookups
	AreaLookup(ctx context.Context, code string) (*AreaLookup, error)
	UpsertAreaLookup(ctx context.Context, lookup AreaLookup) error

	// Saved areas
	SaveArea(ctx context.Context, areaCode string) error
	DeleteSavedArea(ctx context.Context, areaCode string) error
	ListSavedAreas(ctx context.Context) ([]string, error)
	CountSavedAreas(ctx context.Context) (int, error)

	// Eviction
	PruneAreaData(ctx context.Context, keep ...string) (PruneStats, error)
}

// Tx is the subset of writes allowed inside RunAtomic. Either every write
// made through a Tx becomes visible or none does.
type Tx interface {
	UpsertRecords(ctx context.Context, table Table, records []DailyRecord) error
	UpsertMetadata(ctx context.Context, m Metadata) error
	UpsertAreas(ctx context.Context, areas []Area) error
}

var _ Store = (*SQLiteStore)(nil)
