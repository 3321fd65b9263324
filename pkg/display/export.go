package display

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
)

// Sheet names written by ExportXLSX.
const (
	SheetSessions = "Sessions"
	SheetSummary  = "Summary"
)

var sessionColumns = []any{
	"Session ID", "Tag", "Guest Type", "Adults", "Children", "Entry", "Exit", "Stay (min)",
}

// ExportXLSX writes a workbook with one row per session and a summary
// sheet computed at now.
func ExportXLSX(w io.Writer, sessions []scan.Session, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSessions); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSessionSheet(f, sessions, loc); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, stats.Summarize(sessions, now), now, loc); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSessionSheet(f *excelize.File, sessions []scan.Session, loc *time.Location) error {
	if err := f.SetSheetRow(SheetSessions, "A1", &sessionColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, s := range sessions {
		exit, stay := "", ""
		if !s.Active() {
			exit = s.ExitTime.In(loc).Format(timeLayout)
			stay = fmt.Sprintf("%.0f", s.ExitTime.Sub(s.EntryTime).Minutes())
		}
		row := []any{
			s.SessionID,
			s.TagID,
			string(s.GuestType),
			s.AdultCount,
			s.ChildCount,
			s.EntryTime.In(loc).Format(timeLayout),
			exit,
			stay,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSessions, cell, &row); err != nil {
			return fmt.Errorf("failed to write session %s: %w", s.SessionID, err)
		}
	}

	if err := f.SetColWidth(SheetSessions, "A", "A", 32); err != nil {
		return err
	}
	return f.SetColWidth(SheetSessions, "F", "G", 20)
}

func writeSummarySheet(f *excelize.File, st stats.Statistics, now time.Time, loc *time.Location) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Generated", now.In(loc).Format(timeLayout)},
		{"Sessions", st.Count},
		{"Closed", st.Closed},
		{"Inside", st.Inside},
		{"Adults", st.Adults},
		{"Children", st.Children},
		{"Adults Inside", st.AdultsInside},
		{"Children Inside", st.ChildrenInside},
	}
	for _, g := range scan.GuestTypes {
		rows = append(rows, []any{"Type " + string(g), st.ByGuestType[g]})
	}
	rows = append(rows,
		[]any{"Average Stay (min)", int(st.AvgDuration.Round(time.Minute).Minutes())},
		[]any{"Median Stay (min)", int(st.P50Duration.Round(time.Minute).Minutes())},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return f.SetColWidth(SheetSummary, "A", "A", 22)
}
