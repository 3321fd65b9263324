package display

import (
	"fmt"
	"io"

	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

func (f *simpleFormatter) sessionLine(s scan.Session) string {
	state := "inside since " + formatTime(&s.EntryTime, f.config.Location)
	if !s.Active() {
		state = fmt.Sprintf("left %s after %s",
			formatTime(s.ExitTime, f.config.Location),
			formatDuration(s.ExitTime.Sub(s.EntryTime)))
	}
	return fmt.Sprintf("%s %s %d+%d %s", s.TagID, s.GuestType, s.AdultCount, s.ChildCount, state)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *simpleFormatter) FormatSessions(w io.Writer, sessions []scan.Session) error {
	for _, s := range sessions {
		if _, err := fmt.Fprintln(w, f.sessionLine(s)); err != nil {
			return err
		}
	}
	return nil
}

// FormatTagState implements Formatter.FormatTagState.
func (f *simpleFormatter) FormatTagState(w io.Writer, state kiosk.TagState) error {
	switch {
	case state.Active != nil:
		_, err := fmt.Fprintln(w, f.sessionLine(*state.Active))
		return err
	case state.RecentCheckout != nil:
		_, err := fmt.Fprintln(w, f.sessionLine(*state.RecentCheckout))
		return err
	}
	_, err := fmt.Fprintf(w, "%s not inside\n", state.TagID)
	return err
}

// FormatQueue implements Formatter.FormatQueue.
func (f *simpleFormatter) FormatQueue(w io.Writer, ops []scan.Operation) error {
	for _, op := range ops {
		if _, err := fmt.Fprintln(w, op.String()); err != nil {
			return err
		}
	}
	return nil
}

// FormatStatus implements Formatter.FormatStatus.
func (f *simpleFormatter) FormatStatus(w io.Writer, status syncer.Status) error {
	line := fmt.Sprintf("%s | pending: %d | last sync: %s",
		status.State, status.Pending, formatTime(&status.LastSync, f.config.Location))
	if status.LastError != "" {
		line += " | error: " + status.LastError
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// FormatStats implements Formatter.FormatStats.
func (f *simpleFormatter) FormatStats(w io.Writer, st stats.Statistics) error {
	_, err := fmt.Fprintf(w, "Sessions: %d | Inside: %d (%d guests) | Guests: %d | Avg stay: %s\n",
		st.Count,
		st.Inside,
		st.GuestsInside(),
		st.Guests(),
		formatDuration(st.AvgDuration))
	return err
}

// FormatGroupedStats implements Formatter.FormatGroupedStats.
func (f *simpleFormatter) FormatGroupedStats(w io.Writer, grouped map[string]stats.Statistics, dimensions []string) error {
	if err := validateDimensions(dimensions); err != nil {
		return err
	}
	for _, key := range sortedKeys(grouped) {
		st := grouped[key]
		if _, err := fmt.Fprintf(w, "%s: %d sessions, %d guests (avg stay: %s)\n",
			key, st.Count, st.Guests(), formatDuration(st.AvgDuration)); err != nil {
			return err
		}
	}
	return nil
}
