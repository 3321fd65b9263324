package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func active(tag string, entry time.Time) scan.Session {
	return scan.Session{
		SessionID:  scan.NewSessionID(tag, entry),
		TagID:      tag,
		GuestType:  scan.GuestDay,
		AdultCount: 2,
		ChildCount: 1,
		EntryTime:  entry,
	}
}

func closed(tag string, entry, exit time.Time) scan.Session {
	return active(tag, entry).Closed(exit)
}

func byID(sessions []scan.Session) map[string]scan.Session {
	m := make(map[string]scan.Session, len(sessions))
	for _, s := range sessions {
		m[s.SessionID] = s
	}
	return m
}

func TestMerge_LocalClosedBeatsRemoteActive(t *testing.T) {
	exit := t0.Add(time.Hour)
	local := []scan.Session{closed("T1", t0, exit)}
	remote := []scan.Session{active("T1", t0)}

	out := Merge(remote, local)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].ExitTime)
	assert.True(t, out[0].ExitTime.Equal(exit))
}

func TestMerge_LocalClosedKeepsItsExitTime(t *testing.T) {
	localExit := t0.Add(time.Hour)
	remoteExit := t0.Add(2 * time.Hour)

	out := Merge(
		[]scan.Session{closed("T1", t0, remoteExit)},
		[]scan.Session{closed("T1", t0, localExit)},
	)

	require.Len(t, out, 1)
	assert.True(t, out[0].ExitTime.Equal(localExit))
}

func TestMerge_AdoptsRemoteCheckout(t *testing.T) {
	exit := t0.Add(45 * time.Minute)
	local := active("T1", t0)
	local.AdultCount = 3

	out := Merge([]scan.Session{closed("T1", t0, exit)}, []scan.Session{local})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].ExitTime)
	assert.True(t, out[0].ExitTime.Equal(exit))
	assert.Equal(t, 3, out[0].AdultCount, "local fields are kept when adopting a remote checkout")
}

func TestMerge_BothActive(t *testing.T) {
	t.Run("local newer wins", func(t *testing.T) {
		l := active("T1", t0)
		l.EntryTime = t0.Add(time.Minute)
		r := active("T1", t0)
		r.AdultCount = 9

		out := Merge([]scan.Session{r}, []scan.Session{l})
		require.Len(t, out, 1)
		assert.Equal(t, 2, out[0].AdultCount)
	})

	t.Run("remote newer wins", func(t *testing.T) {
		l := active("T1", t0)
		r := active("T1", t0)
		r.EntryTime = t0.Add(time.Minute)
		r.AdultCount = 9

		out := Merge([]scan.Session{r}, []scan.Session{l})
		require.Len(t, out, 1)
		assert.Equal(t, 9, out[0].AdultCount)
	})

	t.Run("tie keeps local", func(t *testing.T) {
		l := active("T1", t0)
		r := active("T1", t0)
		r.AdultCount = 9

		out := Merge([]scan.Session{r}, []scan.Session{l})
		assert.Equal(t, 2, out[0].AdultCount)
	})
}

func TestMerge_OneSidedPassThrough(t *testing.T) {
	localOnly := active("L", t0)
	remoteOnly := closed("R", t0, t0.Add(time.Hour))

	out := Merge([]scan.Session{remoteOnly}, []scan.Session{localOnly})

	require.Len(t, out, 2)
	assert.Equal(t, localOnly.SessionID, out[0].SessionID, "local records come first")
	assert.Equal(t, remoteOnly.SessionID, out[1].SessionID)
	assert.True(t, out[0].Active())
	assert.False(t, out[1].Active())
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	out := Merge(nil, []scan.Session{active("T1", t0)})
	assert.Len(t, out, 1)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	l := active("T1", t0)
	local := []scan.Session{l}
	_ = Merge([]scan.Session{closed("T1", t0, t0.Add(time.Hour))}, local)
	assert.True(t, local[0].Active())
}

func TestDedupe_KeepsNewest(t *testing.T) {
	now := t0.Add(2 * time.Hour)
	older := active("T1", t0)
	newer := active("T1", t0.Add(time.Hour))
	other := active("T2", t0)

	res := Dedupe([]scan.Session{older, other, newer}, now)

	require.Len(t, res.Sessions, 3)
	assert.False(t, res.Sessions[0].Active())
	assert.True(t, res.Sessions[0].ExitTime.Equal(now))
	assert.True(t, res.Sessions[1].Active())
	assert.True(t, res.Sessions[2].Active())

	require.Len(t, res.Closed, 1)
	assert.Equal(t, older.SessionID, res.Closed[0].SessionID)
}

func TestDedupe_TieBreakOnSessionID(t *testing.T) {
	a := active("T1", t0)
	a.SessionID = "T1-a"
	b := active("T1", t0)
	b.SessionID = "T1-b"

	res := Dedupe([]scan.Session{b, a}, t0.Add(time.Minute))

	m := byID(res.Sessions)
	assert.True(t, m["T1-b"].Active(), "greater session id counts as most recent")
	assert.False(t, m["T1-a"].Active())
}

func TestDedupe_ExitNeverBeforeEntry(t *testing.T) {
	future := t0.Add(time.Hour)
	a := active("T1", future)
	b := active("T1", future.Add(time.Minute))

	res := Dedupe([]scan.Session{a, b}, t0)

	require.Len(t, res.Closed, 1)
	assert.True(t, res.Closed[0].ExitTime.Equal(future))
	assert.NoError(t, res.Closed[0].Validate())
}

func TestDedupe_IgnoresClosedSessions(t *testing.T) {
	c := closed("T1", t0, t0.Add(time.Minute))
	a := active("T1", t0.Add(time.Hour))

	res := Dedupe([]scan.Session{c, a}, t0.Add(2*time.Hour))

	assert.Empty(t, res.Closed)
	assert.True(t, res.Sessions[1].Active())
}

func TestForceClose(t *testing.T) {
	s := active("T1", t0)
	c := ForceClose(s, t0.Add(time.Minute))
	require.NotNil(t, c.ExitTime)
	assert.True(t, c.ExitTime.Equal(t0.Add(time.Minute)))

	again := ForceClose(c, t0.Add(time.Hour))
	assert.True(t, again.ExitTime.Equal(t0.Add(time.Minute)))
}

func TestActiveFor(t *testing.T) {
	a := active("T1", t0)
	b := active("T1", t0.Add(time.Hour))
	c := closed("T1", t0, t0.Add(time.Minute))
	d := active("T2", t0)

	got := ActiveFor([]scan.Session{a, c, d, b}, "T1")

	require.Len(t, got, 2)
	assert.Equal(t, b.SessionID, got[0].SessionID)
	assert.Equal(t, a.SessionID, got[1].SessionID)
	assert.Empty(t, ActiveFor(nil, "T1"))
}

func TestLastClosedFor(t *testing.T) {
	first := closed("T1", t0, t0.Add(time.Minute))
	second := closed("T1", t0.Add(time.Hour), t0.Add(2*time.Hour))

	got := LastClosedFor([]scan.Session{second, first, active("T1", t0)}, "T1")
	require.NotNil(t, got)
	assert.Equal(t, second.SessionID, got.SessionID)

	assert.Nil(t, LastClosedFor([]scan.Session{active("T1", t0)}, "T1"))
}
