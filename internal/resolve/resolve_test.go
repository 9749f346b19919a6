package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeries map[string][]storage.DailyRecord

func (f fakeSeries) AreaSeries(_ context.Context, code string) ([]storage.DailyRecord, error) {
	return f[code], nil
}

func point(code, name string) []storage.DailyRecord {
	return []storage.DailyRecord{{
		AreaCode: code, AreaName: name,
		Date: time.Date(2020, 10, 24, 0, 0, 0, 0, time.UTC), NewValue: 1, CumulativeValue: 1,
	}}
}

var westminster = &storage.AreaLookup{
	Code:       "E09000033",
	LTLA:       "E09000033",
	LTLAName:   "Westminster",
	Region:     "E12000007",
	RegionName: "London",
	Nation:     "E92000001",
	NationName: "England",
}

func codes(cs []Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Code)
	}
	return out
}

func TestChain_Order(t *testing.T) {
	got := Chain("E09000033", storage.AreaLTLA, westminster)
	assert.Equal(t, []string{"E09000033", "E12000007", "E92000001", storage.OverviewCode}, codes(got))
	assert.Equal(t, StepOwn, got[0].Step)
	assert.Equal(t, StepRegion, got[1].Step)
	assert.Equal(t, StepNation, got[2].Step)
	assert.Equal(t, StepOverview, got[3].Step)
}

func TestChain_WithoutLookupSkipsOwnArea(t *testing.T) {
	got := Chain("S12000049", storage.AreaLTLA, nil)
	assert.Equal(t, []string{"S92000003", storage.OverviewCode}, codes(got))
	assert.Equal(t, StepDefault, got[0].Step)
}

func TestDefaultArea(t *testing.T) {
	tests := []struct {
		code     string
		areaType storage.AreaType
		want     string
	}{
		{storage.OverviewCode, storage.AreaOverview, storage.OverviewCode},
		{"W92000004", storage.AreaNation, "W92000004"},
		{"E06000001", storage.AreaLTLA, "E92000001"},
		{"S12000049", storage.AreaLTLA, "S92000003"},
		{"W06000015", storage.AreaLTLA, "W92000004"},
		{"N09000003", storage.AreaLTLA, "N92000002"},
		{"X01", storage.AreaLTLA, storage.OverviewCode},
		{"", "", storage.OverviewCode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultArea(tt.code, tt.areaType).Code, "DefaultArea(%q, %q)", tt.code, tt.areaType)
	}
}

func TestResolve_Fallbacks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		data     fakeSeries
		lookup   *storage.AreaLookup
		wantCode string
		wantStep Step
		wantName string
	}{
		{
			name: "own area",
			data: fakeSeries{
				"E09000033": point("E09000033", "Westminster"),
				"E12000007": point("E12000007", "London"),
			},
			lookup:   westminster,
			wantCode: "E09000033", wantStep: StepOwn, wantName: "Westminster",
		},
		{
			name: "region before nation",
			data: fakeSeries{
				"E12000007":          point("E12000007", "London"),
				"E92000001":          point("E92000001", "England"),
				storage.OverviewCode: point(storage.OverviewCode, storage.OverviewName),
			},
			lookup:   westminster,
			wantCode: "E12000007", wantStep: StepRegion, wantName: "London",
		},
		{
			name: "nation",
			data: fakeSeries{
				"E92000001":          point("E92000001", "England"),
				storage.OverviewCode: point(storage.OverviewCode, storage.OverviewName),
			},
			lookup:   westminster,
			wantCode: "E92000001", wantStep: StepNation, wantName: "England",
		},
		{
			name: "own series ignored without lookup",
			data: fakeSeries{
				"E09000033":          point("E09000033", "Westminster"),
				"E92000001":          point("E92000001", "England"),
				storage.OverviewCode: point(storage.OverviewCode, storage.OverviewName),
			},
			wantCode: "E92000001", wantStep: StepDefault, wantName: "England",
		},
		{
			name: "overview is terminal",
			data: fakeSeries{
				storage.OverviewCode: point(storage.OverviewCode, storage.OverviewName),
			},
			lookup:   westminster,
			wantCode: storage.OverviewCode, wantStep: StepOverview, wantName: storage.OverviewName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Series: tt.data}
			got, err := r.Resolve(ctx, "E09000033", storage.AreaLTLA, tt.lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, got.AreaCode)
			assert.Equal(t, tt.wantStep, got.Step)
			assert.Equal(t, tt.wantName, got.AreaName)
			assert.NotEmpty(t, got.Series)
		})
	}
}

func TestResolve_NothingAvailable(t *testing.T) {
	r := &Resolver{Series: fakeSeries{}}
	_, err := r.Resolve(context.Background(), "E09000033", storage.AreaLTLA, westminster)
	assert.True(t, errors.Is(err, ErrNoSeries))
}

func TestResolveNation(t *testing.T) {
	r := &Resolver{Series: fakeSeries{
		"E12000007":          point("E12000007", "London"),
		"E92000001":          point("E92000001", "England"),
		storage.OverviewCode: point(storage.OverviewCode, storage.OverviewName),
	}}

	got, err := r.ResolveNation(context.Background(), "E09000033", storage.AreaLTLA, westminster)
	require.NoError(t, err)
	assert.Equal(t, "E92000001", got.AreaCode)

	got, err = r.ResolveNation(context.Background(), "S92000003", storage.AreaNation, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.OverviewCode, got.AreaCode, "Scotland has no deaths in the fixture")
}

func TestFirstNonEmpty(t *testing.T) {
	primary := fakeSeries{"A": point("A", "from primary")}
	fallback := fakeSeries{"A": point("A", "from fallback"), "B": point("B", "only fallback")}
	src := FirstNonEmpty(primary, fallback)

	a, err := src.AreaSeries(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "from primary", a[0].AreaName)

	b, err := src.AreaSeries(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "only fallback", b[0].AreaName)

	c, err := src.AreaSeries(context.Background(), "C")
	require.NoError(t, err)
	assert.Empty(t, c)
}
