package prune

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
)

func TestPrune(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	for _, code := range []string{storage.OverviewCode, "E08000003", "S12000049"} {
		r := storage.DailyRecord{AreaCode: code, AreaName: code, AreaType: storage.AreaLTLA,
			Date: time.Date(2020, 10, 24, 0, 0, 0, 0, time.UTC)}
		if err := store.UpsertRecords(ctx, storage.TableAreaData, []storage.DailyRecord{r}); err != nil {
			t.Fatalf("UpsertRecords failed: %v", err)
		}
		store.UpsertMetadata(ctx, storage.Metadata{ID: storage.AreaDataMetadataID(code), LastUpdatedAt: time.Unix(0, 0)})
	}
	store.SaveArea(ctx, "S12000049")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	stats, err := New(store, logger).Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if stats.RecordsDeleted != 1 || stats.MetadataDeleted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	for code, want := range map[string]int{storage.OverviewCode: 1, "S12000049": 1, "E08000003": 0} {
		if n, _ := store.CountRecords(ctx, storage.TableAreaData, code); n != want {
			t.Errorf("%s: %d rows, want %d", code, n, want)
		}
	}
}

type failingStore struct{}

func (failingStore) PruneAreaData(context.Context, ...string) (storage.PruneStats, error) {
	return storage.PruneStats{}, errors.New("disk full")
}

func TestPrune_Error(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if _, err := New(failingStore{}, logger).Prune(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
