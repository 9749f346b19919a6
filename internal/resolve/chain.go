// Package resolve picks the most specific non-empty series for an area by
// walking up the geographic hierarchy.
package resolve

import (
	"strings"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

// Step identifies which rung of the fallback chain produced a series.
type Step int

const (
	StepOwn Step = iota
	StepRegion
	StepNation
	StepDefault
	StepOverview
)

func (s Step) String() string {
	switch s {
	case StepOwn:
		return "own"
	case StepRegion:
		return "region"
	case StepNation:
		return "nation"
	case StepDefault:
		return "default"
	case StepOverview:
		return "overview"
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Candidate is one area to try.
type Candidate struct {
	Code string
	Name string
	Type storage.AreaType
	Step Step
}

// Nations by GSS country letter.
var nations = map[byte]storage.Area{
	'E': {Code: "E92000001", Name: "England", Type: storage.AreaNation},
	'S': {Code: "S92000003", Name: "Scotland", Type: storage.AreaNation},
	'W': {Code: "W92000004", Name: "Wales", Type: storage.AreaNation},
	'N': {Code: "N92000002", Name: "Northern Ireland", Type: storage.AreaNation},
}

var overview = storage.Area{Code: storage.OverviewCode, Name: storage.OverviewName, Type: storage.AreaOverview}

// DefaultArea maps an area to a representative area without needing a
// lookup: the overview stays the overview, a nation is its own default, and
// anything else defaults to the nation its code belongs to. Codes with an
// unknown country letter default to the overview.
func DefaultArea(code string, areaType storage.AreaType) storage.Area {
	code = strings.ToUpper(strings.TrimSpace(code))
	if areaType == storage.AreaOverview || code == storage.OverviewCode {
		return overview
	}
	if areaType == storage.AreaNation {
		for _, n := range nations {
			if n.Code == code {
				return n
			}
		}
		return storage.Area{Code: code, Type: storage.AreaNation}
	}
	if code == "" {
		return overview
	}
	if n, ok := nations[code[0]]; ok {
		return n
	}
	return overview
}

// Chain lists the candidates for code in the order they must be tried: the
// area itself (only when a lookup is present), its region, its nation, the
// default area, then the overview. A code already listed is not repeated.
// The overview is always last.
func Chain(code string, areaType storage.AreaType, lookup *storage.AreaLookup) []Candidate {
	var out []Candidate
	seen := map[string]bool{}
	add := func(c Candidate) {
		if c.Code == "" || seen[c.Code] {
			return
		}
		seen[c.Code] = true
		out = append(out, c)
	}

	if lookup != nil {
		add(Candidate{Code: code, Type: areaType, Step: StepOwn})
		add(Candidate{Code: lookup.Region, Name: lookup.RegionName, Type: storage.AreaRegion, Step: StepRegion})
		add(Candidate{Code: lookup.Nation, Name: lookup.NationName, Type: storage.AreaNation, Step: StepNation})
	}
	d := DefaultArea(code, areaType)
	add(Candidate{Code: d.Code, Name: d.Name, Type: d.Type, Step: StepDefault})
	add(Candidate{Code: overview.Code, Name: overview.Name, Type: overview.Type, Step: StepOverview})
	return out
}

// NationChain lists the candidates for national data such as deaths: the
// nation from the lookup (or the area itself if it is a nation), the
// default nation, then the overview.
func NationChain(code string, areaType storage.AreaType, lookup *storage.AreaLookup) []Candidate {
	var out []Candidate
	seen := map[string]bool{}
	add := func(c Candidate) {
		if c.Code == "" || seen[c.Code] {
			return
		}
		seen[c.Code] = true
		out = append(out, c)
	}

	if areaType == storage.AreaNation {
		d := DefaultArea(code, areaType)
		add(Candidate{Code: d.Code, Name: d.Name, Type: storage.AreaNation, Step: StepOwn})
	}
	if lookup != nil {
		add(Candidate{Code: lookup.Nation, Name: lookup.NationName, Type: storage.AreaNation, Step: StepNation})
	}
	d := DefaultArea(code, areaType)
	add(Candidate{Code: d.Code, Name: d.Name, Type: d.Type, Step: StepDefault})
	add(Candidate{Code: overview.Code, Name: overview.Name, Type: overview.Type, Step: StepOverview})
	return out
}
