package coviddash

import (
	"time"

	"github.com/matthewjhunter/coviddash/internal/aggregate"
	"github.com/matthewjhunter/coviddash/internal/resolve"
	"github.com/matthewjhunter/coviddash/internal/storage"
)

func areasFromInternal(areas []storage.Area) []Area {
	out := make([]Area, len(areas))
	for i, a := range areas {
		out[i] = Area{Code: a.Code, Name: a.Name, Type: string(a.Type)}
	}
	return out
}

func lookupFromInternal(l *storage.AreaLookup) *AreaLookup {
	if l == nil {
		return nil
	}
	return &AreaLookup{
		Code:          l.Code,
		LSOA:          l.LSOA,
		LSOAName:      l.LSOAName,
		MSOA:          l.MSOA,
		MSOAName:      l.MSOAName,
		LTLA:          l.LTLA,
		LTLAName:      l.LTLAName,
		UTLA:          l.UTLA,
		UTLAName:      l.UTLAName,
		Region:        l.Region,
		RegionName:    l.RegionName,
		Nation:        l.Nation,
		NationName:    l.NationName,
		NHSRegion:     l.NHSRegion,
		NHSRegionName: l.NHSRegionName,
		NHSTrust:      l.NHSTrust,
		NHSTrustName:  l.NHSTrustName,
	}
}

func seriesSummary(d resolve.AreaDailyData, asOf time.Time) SeriesSummary {
	return SeriesSummary{
		AreaCode:     d.AreaCode,
		AreaName:     d.AreaName,
		AreaType:     string(d.AreaType),
		ResolvedFrom: d.Step.String(),
		Weekly:       aggregate.Weekly(d.Series, asOf),
	}
}

func aggregateRolling(series []storage.DailyRecord) []DailyPoint {
	return aggregate.RollingAverages(series)
}
