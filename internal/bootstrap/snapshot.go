package bootstrap

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"gopkg.in/yaml.v3"
)

// ErrEmptySource is returned when the bundled snapshot is missing, corrupt
// or has no rows for a table.
var ErrEmptySource = errors.New("bootstrap source is empty")

//go:embed snapshot
var bundled embed.FS

// Bundled returns the snapshot shipped with the binary.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "snapshot")
	if err != nil {
		// The directory is embedded at compile time.
		panic(err)
	}
	return sub
}

// Manifest describes the files in a snapshot.
type Manifest struct {
	PublishedAt time.Time         `yaml:"published_at"`
	Files       map[string]string `yaml:"files"`
}

// Snapshot file keys.
const (
	FileCases    = "cases"
	FileDeaths   = "deaths"
	FileOverview = "overview"
	FileAreas    = "areas"
)

type recordRow struct {
	AreaCode        string  `csv:"area_code"`
	AreaName        string  `csv:"area_name"`
	AreaType        string  `csv:"area_type"`
	Date            string  `csv:"date"`
	NewValue        int     `csv:"new_value"`
	CumulativeValue int     `csv:"cumulative_value"`
	Rate            float64 `csv:"rate"`
}

type areaRow struct {
	AreaCode string `csv:"area_code"`
	AreaName string `csv:"area_name"`
	AreaType string `csv:"area_type"`
}

// Snapshot reads a bundled data set.
type Snapshot struct {
	fsys     fs.FS
	manifest Manifest
}

// OpenSnapshot reads manifest.yaml from fsys.
func OpenSnapshot(fsys fs.FS) (*Snapshot, error) {
	data, err := fs.ReadFile(fsys, "manifest.yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptySource, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: bad manifest: %v", ErrEmptySource, err)
	}
	if m.PublishedAt.IsZero() {
		return nil, fmt.Errorf("%w: manifest has no published_at", ErrEmptySource)
	}
	return &Snapshot{fsys: fsys, manifest: m}, nil
}

// PublishedAt is when the snapshot's data was published upstream.
func (s *Snapshot) PublishedAt() time.Time {
	return s.manifest.PublishedAt
}

func (s *Snapshot) read(key string) ([]byte, error) {
	name, ok := s.manifest.Files[key]
	if !ok {
		return nil, fmt.Errorf("%w: no %s file in manifest", ErrEmptySource, key)
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptySource, err)
	}
	return data, nil
}

// Load decodes the daily records in the file for key and returns them with
// the snapshot's publish time.
func (s *Snapshot) Load(key string) ([]storage.DailyRecord, time.Time, error) {
	data, err := s.read(key)
	if err != nil {
		return nil, time.Time{}, err
	}
	var rows []recordRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %s: %v", ErrEmptySource, key, err)
	}
	if len(rows) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: %s has no rows", ErrEmptySource, key)
	}

	records := make([]storage.DailyRecord, 0, len(rows))
	for i, row := range rows {
		d, err := storage.ParseDay(row.Date)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %s row %d: %v", ErrEmptySource, key, i+1, err)
		}
		t, err := storage.ParseAreaType(row.AreaType)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %s row %d: %v", ErrEmptySource, key, i+1, err)
		}
		records = append(records, storage.DailyRecord{
			AreaCode:        row.AreaCode,
			AreaName:        row.AreaName,
			AreaType:        t,
			Date:            d,
			NewValue:        row.NewValue,
			CumulativeValue: row.CumulativeValue,
			Rate:            row.Rate,
		})
	}
	return records, s.manifest.PublishedAt, nil
}

// Areas decodes the area name index.
func (s *Snapshot) Areas() ([]storage.Area, time.Time, error) {
	data, err := s.read(FileAreas)
	if err != nil {
		return nil, time.Time{}, err
	}
	var rows []areaRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: areas: %v", ErrEmptySource, err)
	}
	if len(rows) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: areas has no rows", ErrEmptySource)
	}
	areas := make([]storage.Area, 0, len(rows))
	for i, row := range rows {
		t, err := storage.ParseAreaType(row.AreaType)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: areas row %d: %v", ErrEmptySource, i+1, err)
		}
		areas = append(areas, storage.Area{Code: row.AreaCode, Name: row.AreaName, Type: t})
	}
	return areas, s.manifest.PublishedAt, nil
}
