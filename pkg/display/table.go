package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatSessions implements Formatter.FormatSessions.
func (f *tableFormatter) FormatSessions(w io.Writer, sessions []scan.Session) error {
	if err := writeHeader(w, "Sessions", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		rows[i] = f.sessionRow(s)
	}
	return f.writeTable(w, []string{"Tag", "Type", "Adults", "Children", "Entry", "Exit", "Stay", "Session ID"}, rows)
}

func (f *tableFormatter) sessionRow(s scan.Session) []string {
	stay := "inside"
	if !s.Active() {
		stay = formatDuration(s.ExitTime.Sub(s.EntryTime))
	}
	return []string{
		s.TagID,
		string(s.GuestType),
		strconv.Itoa(s.AdultCount),
		strconv.Itoa(s.ChildCount),
		formatTime(&s.EntryTime, f.config.Location),
		formatTime(s.ExitTime, f.config.Location),
		stay,
		s.SessionID,
	}
}

// FormatTagState implements Formatter.FormatTagState.
func (f *tableFormatter) FormatTagState(w io.Writer, state kiosk.TagState) error {
	if err := writeHeader(w, "Tag "+state.TagID, f.config.Compact); err != nil {
		return err
	}

	header := []string{"State", "Type", "Adults", "Children", "Entry", "Exit", "Stay", "Session ID"}
	var rows [][]string
	if state.Active != nil {
		rows = append(rows, append([]string{"inside"}, f.sessionRow(*state.Active)[1:]...))
	}
	if state.RecentCheckout != nil {
		rows = append(rows, append([]string{"left recently"}, f.sessionRow(*state.RecentCheckout)[1:]...))
	}
	return f.writeTable(w, header, rows)
}

// FormatQueue implements Formatter.FormatQueue.
func (f *tableFormatter) FormatQueue(w io.Writer, ops []scan.Operation) error {
	if err := writeHeader(w, "Pending Operations", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, len(ops))
	for i, op := range ops {
		rows[i] = []string{
			fmt.Sprintf("#%d", i+1),
			string(op.Kind),
			op.SessionID,
			formatTime(&op.EnqueuedAt, f.config.Location),
			strconv.Itoa(op.Attempts),
		}
	}
	return f.writeTable(w, []string{"#", "Kind", "Session ID", "Queued", "Attempts"}, rows)
}

// FormatStatus implements Formatter.FormatStatus.
func (f *tableFormatter) FormatStatus(w io.Writer, status syncer.Status) error {
	if err := writeHeader(w, "Sync Status", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"State", string(status.State)},
		{"Pending", strconv.Itoa(status.Pending)},
		{"Last Sync", formatTime(&status.LastSync, f.config.Location)},
	}
	if status.LastError != "" {
		rows = append(rows, []string{"Last Error", status.LastError})
	}
	return f.writeTable(w, []string{"Field", "Value"}, rows)
}

// FormatStats implements Formatter.FormatStats.
func (f *tableFormatter) FormatStats(w io.Writer, st stats.Statistics) error {
	if err := writeHeader(w, "Visitor Statistics", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Sessions", strconv.Itoa(st.Count)},
		{"Closed", strconv.Itoa(st.Closed)},
		{"Inside", strconv.Itoa(st.Inside)},
		{"Adults", strconv.Itoa(st.Adults)},
		{"Children", strconv.Itoa(st.Children)},
		{"Adults Inside", strconv.Itoa(st.AdultsInside)},
		{"Children Inside", strconv.Itoa(st.ChildrenInside)},
	}
	for _, g := range scan.GuestTypes {
		rows = append(rows, []string{"Type " + string(g), strconv.Itoa(st.ByGuestType[g])})
	}
	rows = append(rows,
		[]string{"Average Stay", formatDuration(st.AvgDuration)},
		[]string{"Shortest Stay", formatDuration(st.MinDuration)},
		[]string{"Longest Stay", formatDuration(st.MaxDuration)},
		[]string{"Median Stay", formatDuration(st.P50Duration)},
		[]string{"P95 Stay", formatDuration(st.P95Duration)},
	)
	if !st.FirstEntry.IsZero() {
		rows = append(rows,
			[]string{"First Entry", formatTime(&st.FirstEntry, f.config.Location)},
			[]string{"Last Exit", formatTime(&st.LastExit, f.config.Location)},
		)
	}
	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *tableFormatter) FormatGroupedStats(w io.Writer, grouped map[string]stats.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}
	if err := writeHeader(w, "Grouped Statistics", f.config.Compact); err != nil {
		return err
	}

	header := append(append([]string{}, dimensions...), "Sessions", "Adults", "Children", "Inside", "Avg Stay")

	rows := make([][]string, 0, len(grouped))
	for _, key := range sortedKeys(grouped) {
		st := grouped[key]
		row := make([]string, len(header))
		for i, part := range strings.Split(key, "|") {
			if i < len(dimensions) {
				row[i] = part
			}
		}
		n := len(dimensions)
		row[n] = strconv.Itoa(st.Count)
		row[n+1] = strconv.Itoa(st.Adults)
		row[n+2] = strconv.Itoa(st.Children)
		row[n+3] = strconv.Itoa(st.Inside)
		row[n+4] = formatDuration(st.AvgDuration)
		rows = append(rows, row)
	}
	return f.writeTable(w, header, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(gap)
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
			continue
		}
		fmt.Fprintf(&b, "%-*s", widths[i], cell)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
