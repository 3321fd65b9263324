package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func session(tag string, entry time.Time) scan.Session {
	return scan.Session{
		SessionID:  scan.NewSessionID(tag, entry),
		TagID:      tag,
		GuestType:  scan.GuestDay,
		AdultCount: 1,
		EntryTime:  entry,
	}
}

func setup(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "scans.json")
	st, err := New(path, logger.Noop())
	require.NoError(t, err)
	return st, path
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	st, _ := setup(t)
	list, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	st, path := setup(t)
	s := session("T1", t0)

	_, err := st.CreateSession(ctx, s)
	require.NoError(t, err)
	_, err = st.CreateSession(ctx, s)
	assert.ErrorIs(t, err, scan.ErrConflict)

	active, err := st.FindActiveByTag(ctx, "T1")
	require.NoError(t, err)
	require.NotNil(t, active)

	exit := t0.Add(time.Hour)
	_, err = st.UpdateSession(ctx, s.SessionID, scan.Patch{ExitTime: &exit})
	require.NoError(t, err)

	reopened, err := New(path, logger.Noop())
	require.NoError(t, err)
	list, err := reopened.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ExitTime)
	assert.True(t, list[0].ExitTime.Equal(exit))

	require.NoError(t, st.DeleteSession(ctx, s.SessionID))
	assert.ErrorIs(t, st.DeleteSession(ctx, s.SessionID), scan.ErrNotFound)
	_, err = st.UpdateSession(ctx, s.SessionID, scan.Patch{ExitTime: &exit})
	assert.ErrorIs(t, err, scan.ErrNotFound)
}

func TestStore_NonArrayFileIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	st, path := setup(t)
	original := []byte(`{"data":[{"sessionId":"A-1"}],"note":"admin export"}`)
	require.NoError(t, os.WriteFile(path, original, 0600))

	list, err := st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = st.CreateSession(ctx, session("T1", t0))
	assert.ErrorIs(t, err, scan.ErrMalformedPayload)
	assert.ErrorIs(t, st.DeleteSession(ctx, "A-1"), scan.ErrMalformedPayload)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestStore_WriteKeepsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	st, path := setup(t)
	doc := `[
  {"sessionId":"A-1","tagId":"A","guestType":"daggast","adultCount":1,"childCount":0,"entryTime":"2026-07-01T09:00:00Z","exitTime":null},
  {"sessionId":"B-1","tagId":"B","guestType":"vip","adultCount":1,"childCount":0,"entryTime":"2026-07-01T09:00:00Z","exitTime":null}
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	_, err := st.CreateSession(ctx, session("C", t0))
	require.NoError(t, err)
	exit := t0.Add(time.Hour)
	_, err = st.UpdateSession(ctx, "A-1", scan.Patch{ExitTime: &exit})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)

	ids := make(map[string]any)
	for _, r := range records {
		ids[r["sessionId"].(string)] = r["guestType"]
	}
	assert.Equal(t, "vip", ids["B-1"], "undecodable record written back unchanged")
	assert.Contains(t, ids, "A-1")
	assert.Contains(t, ids, session("C", t0).SessionID)

	list, err := st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_ReadsScansEnvelope(t *testing.T) {
	st, path := setup(t)
	doc := `{"scans":[{"sessionId":"T1-1","tagId":"T1","guestType":"hotelgast","adultCount":2,"childCount":0,"entryTime":"2026-07-01T09:00:00Z","exitTime":null}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	list, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scan.GuestHotel, list[0].GuestType)
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	st, path := setup(t)
	_, err := st.CreateSession(context.Background(), session("T1", t0))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scans.json", entries[0].Name())
}

func TestStore_Ping(t *testing.T) {
	st, path := setup(t)
	assert.NoError(t, st.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(filepath.Dir(path)))
	assert.ErrorIs(t, st.Ping(context.Background()), scan.ErrRemote)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}
