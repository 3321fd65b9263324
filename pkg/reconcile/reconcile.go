// Package reconcile merges remote and local session sets and enforces the
// single-active-session-per-tag rule.
//
// All functions are pure: they never read the clock and never mutate their
// input slices. Callers pass the current time explicitly.
package reconcile

import (
	"sort"
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Result is the outcome of Dedupe.
type Result struct {
	// Sessions is the input with forced closures applied in place.
	Sessions []scan.Session

	// Closed lists the sessions that were force-closed, in output order.
	Closed []scan.Session
}

// Merge combines the remote and local session sets, keyed by session id.
//
// Rules per id present on both sides:
//   - local closed: local wins, its exit time is kept;
//   - local active, remote closed: the remote checkout is adopted;
//   - both active: the newer entry time wins, ties keep local.
//
// Ids present on one side only pass through unchanged. The output lists
// local records first in local order, then remote-only records in remote
// order.
func Merge(remote, local []scan.Session) []scan.Session {
	remoteByID := make(map[string]scan.Session, len(remote))
	for _, r := range remote {
		remoteByID[r.SessionID] = r
	}

	out := make([]scan.Session, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(local))

	for _, l := range local {
		seen[l.SessionID] = true
		r, ok := remoteByID[l.SessionID]
		if !ok {
			out = append(out, l.Clone())
			continue
		}
		out = append(out, mergeOne(r, l))
	}

	for _, r := range remote {
		if seen[r.SessionID] {
			continue
		}
		seen[r.SessionID] = true
		out = append(out, remoteByID[r.SessionID].Clone())
	}
	return out
}

func mergeOne(remote, local scan.Session) scan.Session {
	switch {
	case !local.Active():
		return local.Clone()
	case !remote.Active():
		return local.Closed(*remote.ExitTime)
	case remote.EntryTime.After(local.EntryTime):
		return remote.Clone()
	default:
		return local.Clone()
	}
}

// Dedupe force-closes all but the most recent active session of every tag.
//
// The most recent session has the latest entry time; on equal entry times
// the greater session id wins. Closed sessions get exit time
// max(now, entry time). Output keeps the input order.
//
// Dedupe is idempotent: applying it to its own output changes nothing and
// reports no closures.
func Dedupe(sessions []scan.Session, now time.Time) Result {
	active := make(map[string][]int)
	for i, s := range sessions {
		if s.Active() {
			active[s.TagID] = append(active[s.TagID], i)
		}
	}

	closeIdx := make(map[int]bool)
	for _, idx := range active {
		if len(idx) < 2 {
			continue
		}
		keep := idx[0]
		for _, i := range idx[1:] {
			if MoreRecent(sessions[i], sessions[keep]) {
				keep = i
			}
		}
		for _, i := range idx {
			if i != keep {
				closeIdx[i] = true
			}
		}
	}

	res := Result{Sessions: make([]scan.Session, len(sessions))}
	for i, s := range sessions {
		if closeIdx[i] {
			c := ForceClose(s, now)
			res.Sessions[i] = c
			res.Closed = append(res.Closed, c)
			continue
		}
		res.Sessions[i] = s.Clone()
	}
	return res
}

// MoreRecent reports whether a was opened after b.
func MoreRecent(a, b scan.Session) bool {
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.After(b.EntryTime)
	}
	return a.SessionID > b.SessionID
}

// ForceClose closes s at now, or at its entry time if now is earlier.
// A closed session is returned unchanged.
func ForceClose(s scan.Session, now time.Time) scan.Session {
	exit := now
	if exit.Before(s.EntryTime) {
		exit = s.EntryTime
	}
	return s.Closed(exit)
}

// ActiveFor returns the active sessions of tagID, most recent first.
func ActiveFor(sessions []scan.Session, tagID string) []scan.Session {
	var out []scan.Session
	for _, s := range sessions {
		if s.TagID == tagID && s.Active() {
			out = append(out, s.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return MoreRecent(out[i], out[j]) })
	return out
}

// LastClosedFor returns the session of tagID with the latest exit time,
// or nil if the tag has no closed session.
func LastClosedFor(sessions []scan.Session, tagID string) *scan.Session {
	var last *scan.Session
	for _, s := range sessions {
		if s.TagID != tagID || s.Active() {
			continue
		}
		if last == nil || s.ExitTime.After(*last.ExitTime) {
			c := s.Clone()
			last = &c
		}
	}
	return last
}
