package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/0xmhha/gastmeting/pkg/display"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// exportCommand writes the local session history to a file.
type exportCommand struct {
	format string
	output string
	date   string
	opts   globalOptions
}

func parseExportArgs(opts globalOptions, args []string) (*exportCommand, error) {
	fs := newFlagSet("export", opts.out)
	format := fs.String("format", "xlsx", "export format (xlsx, csv, json)")
	output := fs.String("output", "", "output file (default: stdout)")
	date := fs.String("date", "", "only sessions entered on this date (YYYY-MM-DD)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch *format {
	case "xlsx", "csv", "json":
	default:
		return nil, fmt.Errorf("invalid export format: %s", *format)
	}
	if *date != "" {
		if _, err := time.Parse(time.DateOnly, *date); err != nil {
			return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", *date)
		}
	}

	return &exportCommand{format: *format, output: *output, date: *date, opts: opts}, nil
}

// Execute runs the export command.
func (c *exportCommand) Execute() error {
	if c.format == "xlsx" && c.output == "" && isTerminal(c.opts.out) {
		return fmt.Errorf("refusing to write a workbook to a terminal, use -output")
	}

	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.store.Sessions()
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}
	sessions = c.filter(sortedByEntry(sessions))

	w := a.out
	if c.output != "" {
		if err := os.MkdirAll(filepath.Dir(c.output), 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(c.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // closed explicitly below on success
		w = f

		if err := c.write(w, sessions, time.Now()); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d session(s) to %s\n", len(sessions), c.output)
		return nil
	}

	return c.write(w, sessions, time.Now())
}

func (c *exportCommand) filter(sessions []scan.Session) []scan.Session {
	if c.date == "" {
		return sessions
	}
	var out []scan.Session
	for _, s := range sessions {
		if s.EntryTime.Local().Format(time.DateOnly) == c.date {
			out = append(out, s)
		}
	}
	return out
}

func (c *exportCommand) write(w io.Writer, sessions []scan.Session, now time.Time) error {
	switch c.format {
	case "csv":
		return writeCSV(w, sessions)
	case "json":
		return writeJSON(w, sessions)
	default:
		return display.ExportXLSX(w, sessions, now, time.Local)
	}
}

// writeJSON writes sessions as an indented JSON array.
func writeJSON(w io.Writer, sessions []scan.Session) error {
	if sessions == nil {
		sessions = []scan.Session{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sessions)
}

// writeCSV writes one row per session with RFC 3339 timestamps.
func writeCSV(w io.Writer, sessions []scan.Session) error {
	cw := csv.NewWriter(w)

	header := []string{"session_id", "tag_id", "guest_type", "adults", "children", "entry_time", "exit_time", "stay_minutes"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range sessions {
		exit, stay := "", ""
		if !s.Active() {
			exit = s.ExitTime.Format(time.RFC3339)
			stay = strconv.Itoa(int(s.ExitTime.Sub(s.EntryTime).Minutes()))
		}
		row := []string{
			s.SessionID,
			s.TagID,
			string(s.GuestType),
			strconv.Itoa(s.AdultCount),
			strconv.Itoa(s.ChildCount),
			s.EntryTime.Format(time.RFC3339),
			exit,
			stay,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
