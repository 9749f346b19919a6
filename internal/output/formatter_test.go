package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/coviddash"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, " Text ": FormatText, "HUMAN": FormatHuman} {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOutputSyncResult_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	fresh := time.Date(2020, 10, 25, 16, 0, 0, 0, time.UTC)
	result := &coviddash.SyncResult{
		Status:  coviddash.StatusWarning,
		Updated: 1,
		Failed:  1,
		Categories: []coviddash.CategoryResult{
			{Category: "CASES", Outcome: "updated", Records: 380, Freshness: &fresh},
			{Category: "DEATHS", Outcome: "failed", Error: "status 500"},
		},
	}

	if err := f.OutputSyncResult(result); err != nil {
		t.Fatalf("OutputSyncResult failed: %v", err)
	}

	var decoded coviddash.SyncResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded.Status != coviddash.StatusWarning {
		t.Errorf("Status = %s, want warning", decoded.Status)
	}
	if len(decoded.Categories) != 2 || decoded.Categories[1].Error != "status 500" {
		t.Errorf("Categories = %+v", decoded.Categories)
	}
	if decoded.Categories[0].Freshness == nil || !decoded.Categories[0].Freshness.Equal(fresh) {
		t.Errorf("Freshness = %v, want %v", decoded.Categories[0].Freshness, fresh)
	}
}

func TestOutputSyncResult_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	result := &coviddash.SyncResult{Status: coviddash.StatusOK, NotModified: 4}
	if err := f.OutputSyncResult(result); err != nil {
		t.Fatalf("OutputSyncResult failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"status=ok", "not_modified=4", "failed=0"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in output: %s", want, got)
		}
	}
}

func TestOutputSyncResult_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	result := &coviddash.SyncResult{
		Status: coviddash.StatusWarning,
		Failed: 1,
		Categories: []coviddash.CategoryResult{
			{Category: "DEATHS", Outcome: "failed", Error: "status 500"},
			{Category: "CASES", Outcome: "not_modified"},
		},
	}
	if err := f.OutputSyncResult(result); err != nil {
		t.Fatalf("OutputSyncResult failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Sync warning") {
		t.Errorf("missing status line: %s", got)
	}
	if !strings.Contains(got, "DEATHS: status 500") {
		t.Errorf("missing failure detail: %s", got)
	}
}

func TestOutputStartResult_HumanWarningsToStderr(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	result := &coviddash.StartResult{Seeded: []string{"cases", "areas"}, Warnings: []string{"deaths: bad row"}}
	if err := f.OutputStartResult(result); err != nil {
		t.Fatalf("OutputStartResult failed: %v", err)
	}
	if !strings.Contains(out.String(), "Seeded from snapshot: cases, areas") {
		t.Errorf("stdout = %q", out.String())
	}
	if !strings.Contains(errBuf.String(), "Warning: deaths: bad row") {
		t.Errorf("stderr = %q", errBuf.String())
	}
}

func testDetail() *coviddash.AreaDetail {
	return &coviddash.AreaDetail{
		RequestedCode: "S12000049",
		RequestedType: "ltla",
		AsOf:          time.Date(2020, 10, 25, 0, 0, 0, 0, time.UTC),
		Cases: coviddash.SeriesSummary{
			AreaCode:     "K02000001",
			AreaName:     "United Kingdom",
			AreaType:     "overview",
			ResolvedFrom: "overview",
			Weekly:       coviddash.WeeklySummary{WeeklyTotal: 150000, ChangeInTotal: -1200, WeeklyRate: 224.1},
		},
		Series: []coviddash.DailyPoint{
			{Date: time.Date(2020, 10, 24, 0, 0, 0, 0, time.UTC), NewValue: 30941, CumulativeValue: 1388037, Rate: 2078, RollingAverage: 15470.5},
		},
		Deaths: &coviddash.SeriesSummary{AreaCode: "S92000003", AreaName: "Scotland", ResolvedFrom: "default"},
	}
}

func TestOutputAreaDetail_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	if err := f.OutputAreaDetail(testDetail()); err != nil {
		t.Fatalf("OutputAreaDetail failed: %v", err)
	}

	var decoded coviddash.AreaDetail
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded.Cases.ResolvedFrom != "overview" {
		t.Errorf("ResolvedFrom = %q", decoded.Cases.ResolvedFrom)
	}
	if len(decoded.Series) != 1 || decoded.Series[0].RollingAverage != 15470.5 {
		t.Errorf("Series = %+v", decoded.Series)
	}
	if decoded.Deaths == nil || decoded.Deaths.AreaCode != "S92000003" {
		t.Errorf("Deaths = %+v", decoded.Deaths)
	}
}

func TestOutputAreaDetail_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputAreaDetail(testDetail()); err != nil {
		t.Fatalf("OutputAreaDetail failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"S12000049 (ltla) as of 2020-10-25",
		"Cases in United Kingdom (no local data, showing overview)",
		"Last 7 days: 150000 (-1200 on the week before)",
		"Deaths in Scotland",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in output:\n%s", want, got)
		}
	}
}

func TestOutputAreas_Empty(t *testing.T) {
	var out, errBuf bytes.Buffer

	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)
	if err := f.OutputAreas(nil); err != nil {
		t.Fatalf("OutputAreas failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("JSON output = %q, want []", out.String())
	}

	out.Reset()
	f = NewFormatterWithWriters(FormatHuman, &out, &errBuf)
	if err := f.OutputAreas(nil); err != nil {
		t.Fatalf("OutputAreas failed: %v", err)
	}
	if !strings.Contains(out.String(), "No areas") {
		t.Errorf("human output = %q", out.String())
	}
}

func TestOutputSummaries_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	summaries := []coviddash.AreaSummary{
		{AreaCode: "E08000003", AreaName: "Manchester", CurrentNewCases: 2900, ChangeInCases: -300, CurrentInfectionRate: 524.3},
	}
	if err := f.OutputSummaries(summaries); err != nil {
		t.Fatalf("OutputSummaries failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "code=E08000003\tname=Manchester\tnew=2900\tchange=-300\trate=524.3") {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestOutputLookup_SkipsEmptyLevels(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	l := &coviddash.AreaLookup{Code: "SW1A 1AA", LTLA: "E09000033", LTLAName: "Westminster", Nation: "E92000001", NationName: "England"}
	if err := f.OutputLookup(l); err != nil {
		t.Fatalf("OutputLookup failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "ltla=E09000033\tWestminster") {
		t.Errorf("missing ltla line: %q", got)
	}
	if strings.Contains(got, "msoa=") {
		t.Errorf("empty msoa level printed: %q", got)
	}
}

func TestOutputPrune_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputPrune(&coviddash.PruneResult{RecordsDeleted: 56, MetadataDeleted: 2}); err != nil {
		t.Fatalf("OutputPrune failed: %v", err)
	}
	if !strings.Contains(out.String(), "Pruned 56 records and 2 sync cursors") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUnknownFormat(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(Format("xml"), &out, &errBuf)
	if err := f.OutputPrune(&coviddash.PruneResult{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWarning(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Warning("something went %s", "wrong")

	got := errBuf.String()
	if !strings.Contains(got, "Warning: something went wrong") {
		t.Errorf("expected warning on stderr, got: %q", got)
	}
	if out.Len() != 0 {
		t.Errorf("expected no stdout output, got: %q", out.String())
	}
}

func TestError(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Error("failed: %d", 42)

	got := errBuf.String()
	if !strings.Contains(got, "failed: 42") {
		t.Errorf("expected error on stderr, got: %q", got)
	}
	if out.Len() != 0 {
		t.Errorf("expected no stdout output, got: %q", out.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"over length", "hello world", 5, "hello..."},
		{"with whitespace", "  hello  ", 10, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
