package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

// ErrNoSeries is returned when every candidate, including the overview, is empty.
var ErrNoSeries = errors.New("no series for area or any fallback")

// SeriesSource returns an area's date-ordered series.
type SeriesSource interface {
	AreaSeries(ctx context.Context, areaCode string) ([]storage.DailyRecord, error)
}

// SeriesFunc adapts a function to SeriesSource.
type SeriesFunc func(ctx context.Context, areaCode string) ([]storage.DailyRecord, error)

func (f SeriesFunc) AreaSeries(ctx context.Context, areaCode string) ([]storage.DailyRecord, error) {
	return f(ctx, areaCode)
}

// TableSource reads series from one record table.
func TableSource(store interface {
	Series(ctx context.Context, table storage.Table, areaCode string) ([]storage.DailyRecord, error)
}, table storage.Table) SeriesSource {
	return SeriesFunc(func(ctx context.Context, code string) ([]storage.DailyRecord, error) {
		return store.Series(ctx, table, code)
	})
}

// FirstNonEmpty tries each source in turn and returns the first non-empty series.
func FirstNonEmpty(sources ...SeriesSource) SeriesSource {
	return SeriesFunc(func(ctx context.Context, code string) ([]storage.DailyRecord, error) {
		for _, s := range sources {
			series, err := s.AreaSeries(ctx, code)
			if err != nil {
				return nil, err
			}
			if len(series) > 0 {
				return series, nil
			}
		}
		return nil, nil
	})
}

// AreaDailyData is a resolved series and the area it belongs to.
type AreaDailyData struct {
	AreaCode string                `json:"area_code"`
	AreaName string                `json:"area_name"`
	AreaType storage.AreaType      `json:"area_type"`
	Step     Step                  `json:"step"`
	Series   []storage.DailyRecord `json:"-"`
}

// Resolver walks a fallback chain against a series source.
type Resolver struct {
	Series SeriesSource
}

// Resolve returns the first non-empty series along Chain.
func (r *Resolver) Resolve(ctx context.Context, code string, areaType storage.AreaType, lookup *storage.AreaLookup) (AreaDailyData, error) {
	return r.first(ctx, Chain(code, areaType, lookup))
}

// ResolveNation returns the first non-empty series along NationChain.
func (r *Resolver) ResolveNation(ctx context.Context, code string, areaType storage.AreaType, lookup *storage.AreaLookup) (AreaDailyData, error) {
	return r.first(ctx, NationChain(code, areaType, lookup))
}

func (r *Resolver) first(ctx context.Context, candidates []Candidate) (AreaDailyData, error) {
	for _, c := range candidates {
		series, err := r.Series.AreaSeries(ctx, c.Code)
		if err != nil {
			return AreaDailyData{}, fmt.Errorf("resolve %s series for %s: %w", c.Step, c.Code, err)
		}
		if len(series) == 0 {
			continue
		}
		name := c.Name
		if name == "" {
			name = series[len(series)-1].AreaName
		}
		areaType := c.Type
		if areaType == "" {
			areaType = series[len(series)-1].AreaType
		}
		return AreaDailyData{
			AreaCode: c.Code,
			AreaName: name,
			AreaType: areaType,
			Step:     c.Step,
			Series:   series,
		}, nil
	}
	return AreaDailyData{}, ErrNoSeries
}
