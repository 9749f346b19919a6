package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matthewjhunter/coviddash/internal/remote"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
)

var published = time.Date(2020, 10, 25, 16, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// upstream serves a fixed payload per filter and honours If-Modified-Since.
type upstream struct {
	lastModified time.Time
	payloads     map[string]string
	fail         map[string]bool
	requests     atomic.Int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.requests.Add(1)
	filters := r.URL.Query().Get("filters")
	if u.fail[filters] {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !u.lastModified.After(t) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Last-Modified", u.lastModified.Format(http.TimeFormat))
	data, ok := u.payloads[filters]
	if !ok {
		data = "[]"
	}
	fmt.Fprintf(w, `{"data":%s,"pagination":{"next":null}}`, data)
}

func newUpstream() *upstream {
	return &upstream{
		lastModified: published,
		payloads: map[string]string{
			"areaType=ltla": `[
				{"areaCode":"E06000001","areaName":"Hartlepool","areaType":"ltla","date":"2020-10-23","newValue":30,"cumulativeValue":1000,"rate":1070.2},
				{"areaCode":"E06000001","areaName":"Hartlepool","areaType":"ltla","date":"2020-10-24","newValue":40,"cumulativeValue":1040,"rate":1113.0}]`,
			"areaType=nation": `[
				{"areaCode":"E92000001","areaName":"England","areaType":"nation","date":"2020-10-24","newValue":150,"cumulativeValue":40000,"rate":71.1}]`,
		},
		fail: map[string]bool{},
	}
}

func newTestSyncer(t *testing.T, store Store, u *upstream) *Syncer {
	t.Helper()
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)
	client, err := remote.NewClient(srv.URL, 5*time.Second, "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return New(store, client, Options{Workers: 2, Logger: quietLogger()})
}

func seed(t *testing.T, store *storage.SQLiteStore, id string, at time.Time) {
	t.Helper()
	if err := store.UpsertMetadata(context.Background(), storage.Metadata{ID: id, LastUpdatedAt: at}); err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}
}

// dump renders every table the tests touch so two states can be compared.
func dump(t *testing.T, store *storage.SQLiteStore) string {
	t.Helper()
	ctx := context.Background()
	var b strings.Builder
	for _, table := range []storage.Table{storage.TableCases, storage.TableDeaths, storage.TableAreaData} {
		for _, code := range []string{"E06000001", "E92000001", storage.OverviewCode} {
			series, err := store.Series(ctx, table, code)
			if err != nil {
				t.Fatalf("Series failed: %v", err)
			}
			fmt.Fprintf(&b, "%s/%s: %+v\n", table, code, series)
		}
	}
	for _, id := range []string{storage.MetadataCases, storage.MetadataDeaths, storage.MetadataAreaList} {
		m, err := store.Metadata(ctx, id)
		if err != nil {
			t.Fatalf("Metadata failed: %v", err)
		}
		if m != nil {
			fmt.Fprintf(&b, "meta %s: %s\n", id, m.LastUpdatedAt.Format(time.RFC3339Nano))
		}
	}
	areas, err := store.SearchAreasByNamePrefix(ctx, "%")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	fmt.Fprintf(&b, "areas: %+v\n", areas)
	return b.String()
}

func casesCategory() Category {
	return Category{
		ID:      storage.MetadataCases,
		Target:  storage.TableCases,
		Queries: []remote.Query{{AreaType: storage.AreaLTLA, Metric: remote.MetricCases}},
	}
}

func TestPerformSync_SkippedWithoutMetadata(t *testing.T) {
	store := newTestStore(t)
	u := newUpstream()
	s := newTestSyncer(t, store, u)

	res := s.PerformSync(context.Background(), casesCategory())
	if res.Outcome != Skipped {
		t.Fatalf("outcome = %s, want skipped", res.Outcome)
	}
	if u.requests.Load() != 0 {
		t.Errorf("skipped category made %d requests", u.requests.Load())
	}
}

func TestPerformSync_UpdatesRecordsAndCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, storage.MetadataCases, time.Unix(0, 0))
	s := newTestSyncer(t, store, newUpstream())

	res := s.PerformSync(ctx, casesCategory())
	if res.Outcome != Updated {
		t.Fatalf("outcome = %s (%v), want updated", res.Outcome, res.Err)
	}
	if res.Records != 2 {
		t.Errorf("records = %d, want 2", res.Records)
	}

	series, err := store.Series(ctx, storage.TableCases, "E06000001")
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series) != 2 || series[1].CumulativeValue != 1040 {
		t.Errorf("series = %+v", series)
	}

	m, _ := store.Metadata(ctx, storage.MetadataCases)
	if m == nil || !m.LastUpdatedAt.Equal(published) {
		t.Errorf("cursor = %v, want %v", m, published)
	}
}

func TestPerformSync_NotModifiedWithinDebounce(t *testing.T) {
	store := newTestStore(t)
	// Cursor 30 minutes before publish; the 1h debounce pushes the request
	// past it, so upstream answers 304.
	seed(t, store, storage.MetadataCases, published.Add(-30*time.Minute))
	s := newTestSyncer(t, store, newUpstream())

	res := s.PerformSync(context.Background(), casesCategory())
	if res.Outcome != NotModified {
		t.Fatalf("outcome = %s (%v), want not_modified", res.Outcome, res.Err)
	}
	if n, _ := store.CountRecords(context.Background(), storage.TableCases, ""); n != 0 {
		t.Errorf("not-modified sync wrote %d rows", n)
	}
}

type failingMetadataStore struct {
	*storage.SQLiteStore
}

func (f failingMetadataStore) RunAtomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	return f.SQLiteStore.RunAtomic(ctx, func(tx storage.Tx) error {
		return fn(failingMetadataTx{tx})
	})
}

type failingMetadataTx struct {
	storage.Tx
}

func (failingMetadataTx) UpsertMetadata(context.Context, storage.Metadata) error {
	return errors.New("injected metadata failure")
}

func TestPerformSync_AtomicOnMetadataFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC)
	seed(t, store, storage.MetadataCases, old)
	prior := storage.DailyRecord{
		AreaCode: "E06000001", AreaName: "Hartlepool", AreaType: storage.AreaLTLA,
		Date: time.Date(2020, 10, 23, 0, 0, 0, 0, time.UTC), NewValue: 1, CumulativeValue: 1,
	}
	if err := store.UpsertRecords(ctx, storage.TableCases, []storage.DailyRecord{prior}); err != nil {
		t.Fatalf("UpsertRecords failed: %v", err)
	}
	before := dump(t, store)

	s := newTestSyncer(t, failingMetadataStore{store}, newUpstream())
	res := s.PerformSync(ctx, casesCategory())
	if res.Outcome != Failed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}

	if after := dump(t, store); after != before {
		t.Errorf("failed sync changed the store:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPerformSync_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, storage.MetadataCases, time.Unix(0, 0))
	seed(t, store, storage.MetadataDeaths, time.Unix(0, 0))
	seed(t, store, storage.MetadataAreaList, time.Unix(0, 0))
	s := newTestSyncer(t, store, newUpstream())

	job := Job{Categories: DefaultCategories(nil)}
	first := s.Run(ctx, job)
	if len(first.Failed()) != 0 {
		t.Fatalf("first run failed: %+v", first.Failed())
	}
	snapshot := dump(t, store)

	second := s.Run(ctx, job)
	if len(second.Updated()) != 0 {
		t.Errorf("second run updated %d categories", len(second.Updated()))
	}
	if after := dump(t, store); after != snapshot {
		t.Errorf("second sync changed the store:\nbefore:\n%s\nafter:\n%s", snapshot, after)
	}
}

func TestRun_FailureIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, storage.MetadataCases, time.Unix(0, 0))
	seed(t, store, storage.MetadataDeaths, time.Unix(0, 0))

	u := newUpstream()
	u.fail["areaType=overview"] = true
	s := newTestSyncer(t, store, u)

	report := s.Run(ctx, Job{Categories: DefaultCategories(nil)})

	byID := map[string]Outcome{}
	for _, r := range report.Results {
		byID[r.Category] = r.Outcome
	}
	if byID[storage.MetadataCases] != Updated {
		t.Errorf("CASES = %s, want updated", byID[storage.MetadataCases])
	}
	if byID[storage.MetadataDeaths] != Failed {
		t.Errorf("DEATHS = %s, want failed", byID[storage.MetadataDeaths])
	}
	if byID[storage.MetadataAreaList] != Skipped {
		t.Errorf("AREA_LIST = %s, want skipped", byID[storage.MetadataAreaList])
	}
	// The nation query succeeded but the category failed as a whole.
	if n, _ := store.CountRecords(ctx, storage.TableDeaths, ""); n != 0 {
		t.Errorf("failed category wrote %d death rows", n)
	}
}

func TestPerformSync_AreaListFillsIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, storage.MetadataAreaList, time.Unix(0, 0))
	s := newTestSyncer(t, store, newUpstream())

	cats := DefaultCategories(nil)
	var areaList Category
	for _, c := range cats {
		if c.ID == storage.MetadataAreaList {
			areaList = c
		}
	}
	res := s.PerformSync(ctx, areaList)
	if res.Outcome != Updated {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	n, err := store.CountAreas(ctx)
	if err != nil {
		t.Fatalf("CountAreas failed: %v", err)
	}
	// Hartlepool appears twice in the ltla payload but is indexed once.
	if n != 2 {
		t.Errorf("CountAreas = %d, want 2", n)
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories([]storage.Area{
		{Code: "E09000033", Type: storage.AreaLTLA},
		{Code: storage.OverviewCode, Type: storage.AreaOverview},
	})
	var ids []string
	for _, c := range cats {
		ids = append(ids, c.ID)
	}
	want := "CASES,DEATHS,AREA_LIST,AREA_DATA_K02000001,AREA_DATA_E09000033"
	if got := strings.Join(ids, ","); got != want {
		t.Errorf("ids = %s, want %s", got, want)
	}
}
