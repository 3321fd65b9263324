package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

var base = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func sampleSessions() []scan.Session {
	inside := scan.Session{
		SessionID: scan.NewSessionID("T1", base), TagID: "T1",
		GuestType: scan.GuestDay, AdultCount: 2, ChildCount: 1, EntryTime: base,
	}
	left := scan.Session{
		SessionID: scan.NewSessionID("T2", base), TagID: "T2",
		GuestType: scan.GuestHotel, AdultCount: 1, EntryTime: base,
	}.Closed(base.Add(95 * time.Minute))
	return []scan.Session{inside, left}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"default format (table)", Config{}, "*display.tableFormatter"},
		{"table format", Config{Format: FormatTable}, "*display.tableFormatter"},
		{"json format", Config{Format: FormatJSON}, "*display.jsonFormatter"},
		{"simple format", Config{Format: FormatSimple}, "*display.simpleFormatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := fmt.Sprintf("%T", New(tt.config))
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	if f, ok := ParseFormat(""); !ok || f != FormatTable {
		t.Errorf("ParseFormat(\"\") = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("ParseFormat(xml) accepted")
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{30 * time.Second, "1m"},
		{42 * time.Minute, "42m"},
		{95 * time.Minute, "1h35m"},
		{26 * time.Hour, "26h00m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableFormatter_FormatSessions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Location: time.UTC})
	if err := f.FormatSessions(&buf, sampleSessions()); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Sessions", "Tag", "T1", "daggast", "inside", "T2", "1h35m", "2026-07-01 10:35:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Compact: true})
	if err := f.FormatQueue(&buf, nil); err != nil {
		t.Fatalf("FormatQueue() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("output = %q, want No data", buf.String())
	}
}

func TestTableFormatter_FormatQueue(t *testing.T) {
	t.Parallel()

	op := scan.NewCheckout("T1-1", base, base)
	op.Attempts = 3

	var buf bytes.Buffer
	if err := New(Config{Location: time.UTC}).FormatQueue(&buf, []scan.Operation{op}); err != nil {
		t.Fatalf("FormatQueue() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"update", "T1-1", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_FormatStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	status := syncer.Status{State: syncer.StateError, Pending: 2, LastError: "remote down"}
	if err := New(Config{}).FormatStatus(&buf, status); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"error", "2", "remote down", "Last Sync"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_FormatStats(t *testing.T) {
	t.Parallel()

	st := stats.Summarize(sampleSessions(), base.Add(2*time.Hour))

	var buf bytes.Buffer
	if err := New(Config{}).FormatStats(&buf, st); err != nil {
		t.Fatalf("FormatStats() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Visitor Statistics", "Sessions", "Type hotelgast", "Average Stay", "1h35m"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_FormatGroupedStats(t *testing.T) {
	t.Parallel()

	grouped := stats.GroupBy(sampleSessions(), stats.DimGuestType, base)

	var buf bytes.Buffer
	f := New(Config{})
	if err := f.FormatGroupedStats(&buf, grouped, []string{"Type"}); err != nil {
		t.Fatalf("FormatGroupedStats() error = %v", err)
	}
	out := buf.String()
	if strings.Index(out, "daggast") > strings.Index(out, "hotelgast") {
		t.Errorf("groups not sorted:\n%s", out)
	}

	if err := f.FormatGroupedStats(&buf, grouped, nil); err == nil {
		t.Error("FormatGroupedStats() without dimensions succeeded")
	}
}

func TestTableFormatter_FormatTagState(t *testing.T) {
	t.Parallel()

	sessions := sampleSessions()
	state := kiosk.TagState{TagID: "T2", RecentCheckout: &sessions[1]}

	var buf bytes.Buffer
	if err := New(Config{}).FormatTagState(&buf, state); err != nil {
		t.Fatalf("FormatTagState() error = %v", err)
	}
	if !strings.Contains(buf.String(), "left recently") {
		t.Errorf("output missing state:\n%s", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	t.Parallel()

	f := New(Config{Format: FormatJSON, Compact: true})

	var buf bytes.Buffer
	if err := f.FormatSessions(&buf, sampleSessions()); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d sessions, want 2", len(decoded))
	}
	if decoded[0]["exitTime"] != nil {
		t.Errorf("active session exitTime = %v, want null", decoded[0]["exitTime"])
	}

	buf.Reset()
	if err := f.FormatQueue(&buf, nil); err != nil {
		t.Fatalf("FormatQueue() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty queue = %q, want []", buf.String())
	}

	buf.Reset()
	if err := f.FormatStatus(&buf, syncer.Status{State: syncer.StateIdle}); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"state":"idle"`) {
		t.Errorf("status = %s", buf.String())
	}
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	f := New(Config{Format: FormatSimple, Location: time.UTC})

	var buf bytes.Buffer
	if err := f.FormatSessions(&buf, sampleSessions()); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "T1 daggast 2+1 inside since") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "after 1h35m") {
		t.Errorf("line 1 = %q", lines[1])
	}

	buf.Reset()
	if err := f.FormatTagState(&buf, kiosk.TagState{TagID: "T9"}); err != nil {
		t.Fatalf("FormatTagState() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "T9 not inside" {
		t.Errorf("tag state = %q", buf.String())
	}
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := ExportXLSX(&buf, sampleSessions(), base.Add(2*time.Hour), time.UTC); err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != SheetSessions || sheets[1] != SheetSummary {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(SheetSessions)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][1] != "Tag" || rows[1][1] != "T1" || rows[2][1] != "T2" {
		t.Errorf("unexpected tags: %v", rows)
	}
	if rows[2][7] != "95" {
		t.Errorf("stay = %q, want 95", rows[2][7])
	}

	summary, err := f.GetRows(SheetSummary)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	found := false
	for _, row := range summary {
		if len(row) == 2 && row[0] == "Inside" && row[1] == "1" {
			found = true
		}
	}
	if !found {
		t.Errorf("summary missing Inside=1: %v", summary)
	}
}
