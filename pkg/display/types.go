// Package display renders sessions, the pending queue, sync status and
// statistics for the terminal, and exports them as XLSX workbooks.
//
// It supports multiple output formats (table, JSON, simple text).
package display

import (
	"io"
	"time"

	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays data in aligned columns.
	FormatTable Format = "table"

	// FormatJSON displays data as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays one line per item.
	FormatSimple Format = "simple"
)

// Formatter formats kiosk data.
type Formatter interface {
	// FormatSessions lists sessions in the given order.
	FormatSessions(w io.Writer, sessions []scan.Session) error

	// FormatTagState shows what is known about one tag.
	FormatTagState(w io.Writer, state kiosk.TagState) error

	// FormatQueue lists pending operations.
	FormatQueue(w io.Writer, ops []scan.Operation) error

	// FormatStatus shows the sync engine status.
	FormatStatus(w io.Writer, status syncer.Status) error

	// FormatStats formats overall statistics.
	FormatStats(w io.Writer, st stats.Statistics) error

	// FormatGroupedStats formats statistics per group. Keys are split on
	// "|" into one column per dimension.
	FormatGroupedStats(w io.Writer, grouped map[string]stats.Statistics, dimensions []string) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// Compact enables compact output (less whitespace).
	Compact bool

	// Location is used to print timestamps. Default: time.Local.
	Location *time.Location
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatSimple:
		return Format(s), true
	case "":
		return FormatTable, true
	}
	return "", false
}
