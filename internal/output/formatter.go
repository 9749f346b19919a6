package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matthewjhunter/coviddash"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, text or human)", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputSyncResult outputs the result of a sync pass
func (f *Formatter) OutputSyncResult(result *coviddash.SyncResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "status=%s\n", result.Status)
		fmt.Fprintf(f.out, "updated=%d\n", result.Updated)
		fmt.Fprintf(f.out, "not_modified=%d\n", result.NotModified)
		fmt.Fprintf(f.out, "skipped=%d\n", result.Skipped)
		fmt.Fprintf(f.out, "failed=%d\n", result.Failed)
		for _, c := range result.Categories {
			fmt.Fprintf(f.out, "category=%s\toutcome=%s\trecords=%d\tfreshness=%s\terror=%s\n",
				c.Category, c.Outcome, c.Records, formatTime(c.Freshness), c.Error)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Sync %s: %d updated, %d current, %d skipped, %d failed\n",
			result.Status, result.Updated, result.NotModified, result.Skipped, result.Failed)
		for _, c := range result.Categories {
			switch {
			case c.Error != "":
				fmt.Fprintf(f.out, "  ✗ %s: %s\n", c.Category, c.Error)
			case c.Outcome == "updated":
				fmt.Fprintf(f.out, "  ✓ %s: %d records", c.Category, c.Records)
				if c.Freshness != nil {
					fmt.Fprintf(f.out, " (as of %s)", c.Freshness.Format("2006-01-02 15:04"))
				}
				fmt.Fprintln(f.out)
			default:
				fmt.Fprintf(f.out, "  - %s: %s\n", c.Category, c.Outcome)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStartResult outputs what the startup prune and bootstrap did
func (f *Formatter) OutputStartResult(result *coviddash.StartResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "records_pruned=%d\n", result.RecordsPruned)
		fmt.Fprintf(f.out, "metadata_pruned=%d\n", result.MetadataPruned)
		fmt.Fprintf(f.out, "seeded=%s\n", strings.Join(result.Seeded, ","))
		for _, w := range result.Warnings {
			fmt.Fprintf(f.out, "warning=%s\n", w)
		}
		return nil
	case FormatHuman:
		if len(result.Seeded) == 0 {
			fmt.Fprintln(f.out, "Cache already populated")
		} else {
			fmt.Fprintf(f.out, "Seeded from snapshot: %s\n", strings.Join(result.Seeded, ", "))
		}
		if result.RecordsPruned > 0 {
			fmt.Fprintf(f.out, "Pruned %d cached records\n", result.RecordsPruned)
		}
		for _, w := range result.Warnings {
			f.Warning("%s", w)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputAreaDetail outputs one area's weekly summary and recent series
func (f *Formatter) OutputAreaDetail(d *coviddash.AreaDetail) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(d)
	case FormatText:
		fmt.Fprintf(f.out, "requested=%s\ttype=%s\tas_of=%s\n", d.RequestedCode, d.RequestedType, formatDay(d.AsOf))
		writeSeriesText(f.out, "cases", d.Cases)
		if d.Deaths != nil {
			writeSeriesText(f.out, "deaths", *d.Deaths)
		}
		for _, p := range d.Series {
			fmt.Fprintf(f.out, "date=%s\tnew=%d\tcumulative=%d\trate=%.1f\trolling=%.1f\n",
				formatDay(p.Date), p.NewValue, p.CumulativeValue, p.Rate, p.RollingAverage)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s (%s) as of %s\n", d.RequestedCode, d.RequestedType, formatDay(d.AsOf))
		if d.Lookup != nil && d.Lookup.LTLAName != "" {
			fmt.Fprintf(f.out, "Local authority: %s, %s\n", d.Lookup.LTLAName, d.Lookup.RegionName)
		}
		fmt.Fprintln(f.out)
		writeSeriesHuman(f.out, "Cases", d.Cases)
		if d.Deaths != nil {
			fmt.Fprintln(f.out)
			writeSeriesHuman(f.out, "Deaths", *d.Deaths)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func writeSeriesText(w io.Writer, label string, s coviddash.SeriesSummary) {
	fmt.Fprintf(w, "%s_area=%s\t%s_from=%s\t%s_week=%d\t%s_change=%d\t%s_rate=%.1f\n",
		label, s.AreaCode, label, s.ResolvedFrom, label, s.Weekly.WeeklyTotal,
		label, s.Weekly.ChangeInTotal, label, s.Weekly.WeeklyRate)
}

func writeSeriesHuman(w io.Writer, label string, s coviddash.SeriesSummary) {
	name := s.AreaName
	if name == "" {
		name = s.AreaCode
	}
	fmt.Fprintf(w, "%s in %s", label, name)
	if s.ResolvedFrom != "own" {
		fmt.Fprintf(w, " (no local data, showing %s)", s.ResolvedFrom)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Last 7 days: %d (%s on the week before)\n", s.Weekly.WeeklyTotal, signed(s.Weekly.ChangeInTotal))
	fmt.Fprintf(w, "  Rate per 100k: %.1f\n", s.Weekly.WeeklyRate)
}

// OutputAreas outputs search results or saved areas
func (f *Formatter) OutputAreas(areas []coviddash.Area) error {
	switch f.format {
	case FormatJSON:
		if areas == nil {
			areas = []coviddash.Area{}
		}
		return json.NewEncoder(f.out).Encode(areas)
	case FormatText:
		for _, a := range areas {
			fmt.Fprintf(f.out, "code=%s\tname=%s\ttype=%s\n", a.Code, a.Name, a.Type)
		}
		return nil
	case FormatHuman:
		if len(areas) == 0 {
			fmt.Fprintln(f.out, "No areas")
			return nil
		}
		for _, a := range areas {
			fmt.Fprintf(f.out, "%-10s %-5s %s\n", a.Code, a.Type, a.Name)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputSummaries outputs ranked area summaries
func (f *Formatter) OutputSummaries(summaries []coviddash.AreaSummary) error {
	switch f.format {
	case FormatJSON:
		if summaries == nil {
			summaries = []coviddash.AreaSummary{}
		}
		return json.NewEncoder(f.out).Encode(summaries)
	case FormatText:
		for _, s := range summaries {
			fmt.Fprintf(f.out, "code=%s\tname=%s\tnew=%d\tchange=%d\trate=%.1f\trate_change=%.1f\n",
				s.AreaCode, s.AreaName, s.CurrentNewCases, s.ChangeInCases,
				s.CurrentInfectionRate, s.ChangeInInfectionRate)
		}
		return nil
	case FormatHuman:
		if len(summaries) == 0 {
			fmt.Fprintln(f.out, "No area data cached; run sync first")
			return nil
		}
		fmt.Fprintf(f.out, "%-3s %-28s %8s %8s %9s %9s\n", "#", "Area", "Cases", "Change", "Rate", "Change")
		for i, s := range summaries {
			fmt.Fprintf(f.out, "%-3d %-28s %8d %8s %9.1f %9s\n",
				i+1, truncate(s.AreaName, 25), s.CurrentNewCases, signed(s.ChangeInCases),
				s.CurrentInfectionRate, fmt.Sprintf("%+.1f", s.ChangeInInfectionRate))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputLookup outputs the areas containing a postcode
func (f *Formatter) OutputLookup(l *coviddash.AreaLookup) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(l)
	case FormatText:
		fmt.Fprintf(f.out, "code=%s\n", l.Code)
		for _, row := range lookupRows(l) {
			fmt.Fprintf(f.out, "%s=%s\t%s\n", row[0], row[1], row[2])
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s\n", l.Code)
		for _, row := range lookupRows(l) {
			fmt.Fprintf(f.out, "  %-11s %-10s %s\n", row[0], row[1], row[2])
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func lookupRows(l *coviddash.AreaLookup) [][3]string {
	all := [][3]string{
		{"lsoa", l.LSOA, l.LSOAName},
		{"msoa", l.MSOA, l.MSOAName},
		{"ltla", l.LTLA, l.LTLAName},
		{"utla", l.UTLA, l.UTLAName},
		{"region", l.Region, l.RegionName},
		{"nation", l.Nation, l.NationName},
		{"nhs_region", l.NHSRegion, l.NHSRegionName},
		{"nhs_trust", l.NHSTrust, l.NHSTrustName},
	}
	var rows [][3]string
	for _, r := range all {
		if r[1] != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

// OutputPrune outputs an eviction pass
func (f *Formatter) OutputPrune(result *coviddash.PruneResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "records_deleted=%d\n", result.RecordsDeleted)
		fmt.Fprintf(f.out, "metadata_deleted=%d\n", result.MetadataDeleted)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Pruned %d records and %d sync cursors\n", result.RecordsDeleted, result.MetadataDeleted)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func signed(n int) string {
	return fmt.Sprintf("%+d", n)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
