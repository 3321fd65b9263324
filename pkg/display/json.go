package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *jsonFormatter) FormatSessions(w io.Writer, sessions []scan.Session) error {
	if sessions == nil {
		sessions = []scan.Session{}
	}
	return f.encode(w, sessions)
}

// FormatTagState implements Formatter.FormatTagState.
func (f *jsonFormatter) FormatTagState(w io.Writer, state kiosk.TagState) error {
	return f.encode(w, state)
}

// FormatQueue implements Formatter.FormatQueue.
func (f *jsonFormatter) FormatQueue(w io.Writer, ops []scan.Operation) error {
	if ops == nil {
		ops = []scan.Operation{}
	}
	return f.encode(w, ops)
}

// FormatStatus implements Formatter.FormatStatus.
func (f *jsonFormatter) FormatStatus(w io.Writer, status syncer.Status) error {
	return f.encode(w, status)
}

// FormatStats implements Formatter.FormatStats.
func (f *jsonFormatter) FormatStats(w io.Writer, st stats.Statistics) error {
	return f.encode(w, st)
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *jsonFormatter) FormatGroupedStats(w io.Writer, grouped map[string]stats.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}
	return f.encode(w, grouped)
}
