package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/gastmeting/pkg/config"
	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/netstatus"
	"github.com/0xmhha/gastmeting/pkg/nfc"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/remote/filestore"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/store"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

var testOpts = globalOptions{configPath: "/test/config.yaml", out: &bytes.Buffer{}}

// TestParseCheckinArgs tests checkin command flag parsing.
func TestParseCheckinArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      checkinCommand
		wantError bool
	}{
		{
			name: "tag only",
			args: []string{"T1"},
			want: checkinCommand{tagID: "T1", adults: -1, children: -1},
		},
		{
			name: "full visit",
			args: []string{"-type", "hotelgast", "-adults", "2", "-children", "3", "-sync", "T1"},
			want: checkinCommand{tagID: "T1", guestType: scan.GuestHotel, adults: 2, children: 3, sync: true},
		},
		{
			name:      "unknown guest type",
			args:      []string{"-type", "vip", "T1"},
			wantError: true,
		},
		{
			name:      "missing tag",
			args:      []string{"-adults", "1"},
			wantError: true,
		},
		{
			name:      "two tags",
			args:      []string{"T1", "T2"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCheckinArgs(testOpts, tt.args)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got.tagID != tt.want.tagID || got.guestType != tt.want.guestType ||
				got.adults != tt.want.adults || got.children != tt.want.children ||
				got.sync != tt.want.sync {
				t.Errorf("parseCheckinArgs() = %+v, want %+v", *got, tt.want)
			}
			if got.opts.configPath != testOpts.configPath {
				t.Errorf("configPath = %q, want %q", got.opts.configPath, testOpts.configPath)
			}
		})
	}
}

func TestParseSessionsArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantError bool
	}{
		{"defaults", nil, false},
		{"all filters", []string{"-active", "-tag", "T1", "-date", "2026-07-01", "-limit", "5", "-format", "json"}, false},
		{"bad date", []string{"-date", "01-07-2026"}, true},
		{"negative limit", []string{"-limit", "-1"}, true},
		{"unknown flag", []string{"-bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSessionsArgs(testOpts, tt.args)
			if (err != nil) != tt.wantError {
				t.Errorf("parseSessionsArgs() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestSessionsCommand_Filter(t *testing.T) {
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	newer := scan.Session{SessionID: "T1-2", TagID: "T1", EntryTime: day.Add(time.Hour)}
	older := scan.Session{SessionID: "T1-1", TagID: "T1", EntryTime: day}.Closed(day.Add(30 * time.Minute))
	other := scan.Session{SessionID: "T2-1", TagID: "T2", EntryTime: day.AddDate(0, 0, -1)}
	all := []scan.Session{newer, older, other}

	tests := []struct {
		name string
		cmd  sessionsCommand
		want []string
	}{
		{"no filter", sessionsCommand{}, []string{"T1-2", "T1-1", "T2-1"}},
		{"active", sessionsCommand{active: true}, []string{"T1-2", "T2-1"}},
		{"tag", sessionsCommand{tagID: "T2"}, []string{"T2-1"}},
		{"date", sessionsCommand{date: "2026-07-01"}, []string{"T1-2", "T1-1"}},
		{"limit", sessionsCommand{limit: 1}, []string{"T1-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range tt.cmd.filter(all) {
				got = append(got, s.SessionID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParseStatsArgs tests stats dimension parsing.
func TestParseStatsArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      []string
		wantError bool
	}{
		{"no grouping", nil, nil, false},
		{"single dimension", []string{"-group-by", "type"}, []string{"type"}, false},
		{"multiple with spaces", []string{"-group-by", "date, type"}, []string{"date", "type"}, false},
		{"invalid dimension", []string{"-group-by", "model"}, nil, true},
		{"invalid date", []string{"-date", "yesterday"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStatsArgs(testOpts, tt.args)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assert.Equal(t, tt.want, got.groupBy)
		})
	}
}

func TestStatsCommand_AggregateFiltersDate(t *testing.T) {
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	sessions := []scan.Session{
		{SessionID: "a", TagID: "T1", GuestType: scan.GuestDay, AdultCount: 2, EntryTime: day},
		{SessionID: "b", TagID: "T2", GuestType: scan.GuestPool, AdultCount: 1, EntryTime: day.AddDate(0, 0, 1)},
	}

	cmd := &statsCommand{date: "2026-07-01"}
	st := cmd.aggregate(sessions, nil, day.Add(time.Hour)).Stats()

	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 2, st.Adults)
}

func TestParseExportArgs(t *testing.T) {
	cmd, err := parseExportArgs(testOpts, nil)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", cmd.format)

	_, err = parseExportArgs(testOpts, []string{"-format", "pdf"})
	assert.Error(t, err)

	_, err = parseExportArgs(testOpts, []string{"-date", "2026-13-01"})
	assert.Error(t, err)
}

func TestParseRunArgs(t *testing.T) {
	cmd, err := parseRunArgs(testOpts, []string{"-source", "spool", "-children", "2"})
	require.NoError(t, err)

	cfg := config.Default()
	cmd.applyDefaults(cfg)

	assert.Equal(t, config.SourceSpool, cmd.source)
	assert.Equal(t, cfg.NFC.SpoolDir, cmd.spoolDir)
	assert.Equal(t, scan.GuestType(cfg.Kiosk.DefaultGuestType), cmd.visit.GuestType)
	assert.Equal(t, cfg.Kiosk.DefaultAdults, cmd.visit.Adults)
	assert.Equal(t, 2, cmd.visit.Children)

	_, err = parseRunArgs(testOpts, []string{"-source", "bluetooth"})
	assert.Error(t, err)
}

// TestCommandRouting tests that commands are dispatched to parsers.
func TestCommandRouting(t *testing.T) {
	commands := []string{"run", "checkin", "checkout", "lookup", "inspect", "sessions", "queue", "sync", "status", "stats", "export"}
	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			args := []string{}
			switch name {
			case "checkin", "checkout", "lookup", "inspect":
				args = []string{"T1"}
			}
			cmd, err := parseCommand(testOpts, name, args)
			require.NoError(t, err)
			assert.NotNil(t, cmd)
		})
	}

	_, err := parseCommand(testOpts, "dance", nil)
	assert.ErrorContains(t, err, "unknown command")

	cmd, err := parseCommand(testOpts, "checkin", nil)
	assert.Error(t, err)
	assert.Nil(t, cmd)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), 1},
		{scan.E(scan.ErrInvalid, "checkin", "T1", nil), 2},
		{fmt.Errorf("checkout failed: %w", scan.E(scan.ErrNotFound, "checkout", "T1", nil)), 3},
		{scan.E(scan.ErrConflict, "create", "T1-1", nil), 4},
		{scan.E(scan.ErrStoreUnavailable, "open", "", nil), 5},
		{scan.E(scan.ErrRemote, "list", "", nil), 6},
		{scan.E(scan.ErrMalformedPayload, "load", "sessions.json", nil), 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

// TestVersionFlag tests the -version flag.
func TestVersionFlag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run([]string{"-version"}, &buf))
	assert.Equal(t, "gastmeting dev\n", buf.String())
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run(nil, &buf))
	assert.Contains(t, buf.String(), "Commands:")

	buf.Reset()
	require.NoError(t, run([]string{"help"}, &buf))
	assert.Contains(t, buf.String(), "gastmeting [flags] <command>")

	assert.Error(t, run([]string{"dance"}, &buf))
}

func TestMaskURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://kiosk:s3cret@db:5432/gast", "postgres://kiosk:********@db:5432/gast"},
		{"redis://:pw@cache:6379/0", "redis://:********@cache:6379/0"},
		{"redis://cache:6379/0", "redis://cache:6379/0"},
		{"host=db user=kiosk", "host=db user=kiosk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskURL(tt.in), tt.in)
	}
}

func TestTapLine(t *testing.T) {
	entry := time.Date(2026, 7, 1, 9, 0, 0, 0, time.Local)
	active := scan.Session{TagID: "T1", GuestType: scan.GuestDay, AdultCount: 2, ChildCount: 1, EntryTime: entry}
	closed := active.Closed(entry.Add(95 * time.Minute))

	assert.Equal(t, "Welcome T1 (daggast, 2+1)", tapLine(kiosk.TapResult{Action: kiosk.ActionCheckIn, Session: active}))
	assert.Equal(t, "Goodbye T1, stay 1h35m0s", tapLine(kiosk.TapResult{Action: kiosk.ActionCheckOut, Session: closed}))
	assert.Equal(t, "T1 already checked out at 10:35", tapLine(kiosk.TapResult{Action: kiosk.ActionRecentCheckout, Session: closed}))
	assert.Equal(t, "T1 tap already registered", tapLine(kiosk.TapResult{Action: kiosk.ActionDuplicate, Session: active}))
}

func TestWriteCSV(t *testing.T) {
	entry := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	sessions := []scan.Session{
		{SessionID: "T1-1", TagID: "T1", GuestType: scan.GuestHotel, AdultCount: 1, EntryTime: entry},
		scan.Session{SessionID: "T2-1", TagID: "T2", GuestType: scan.GuestPool, ChildCount: 2, EntryTime: entry}.Closed(entry.Add(45 * time.Minute)),
	}

	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, sessions))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "session_id,tag_id"))
	assert.Equal(t, "T1-1,T1,hotelgast,1,0,2026-07-01T09:00:00Z,,", lines[1])
	assert.Equal(t, "T2-1,T2,zwembadgast,0,2,2026-07-01T09:00:00Z,2026-07-01T09:45:00Z,45", lines[2])
}

func TestLazyRemote(t *testing.T) {
	ctx := context.Background()
	calls := 0
	backing := remote.NewMemory()
	lazy := newLazyRemote(func(ctx context.Context) (remote.Store, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return backing, nil
	})

	err := lazy.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote store unavailable")

	require.NoError(t, lazy.Ping(ctx))
	sess := scan.Session{SessionID: "T1-1", TagID: "T1", GuestType: scan.GuestDay, AdultCount: 1, EntryTime: time.Now()}
	_, err = lazy.CreateSession(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "connected store is reused")

	found, err := lazy.FindActiveByTag(ctx, "T1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "T1-1", found.SessionID)

	require.NoError(t, lazy.Close())
	require.NoError(t, lazy.Close())
}

func TestKioskLoop_Taps(t *testing.T) {
	st := store.NewMemory()
	engine := syncer.New(syncer.Config{Interval: time.Hour}, st, remote.NewMemory(), netstatus.NewStatic(false), nil)
	defer engine.Close() //nolint:errcheck

	// Each reading of the clock is 10s later, so the taps are not
	// repeated reads of one tap.
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.Local)
	tick := func() time.Time {
		now = now.Add(10 * time.Second)
		return now
	}
	svc := kiosk.New(kiosk.Config{Now: tick}, st, engine, nil)
	src := nfc.NewLineSource(strings.NewReader("T1\n\nT1\nT1\n"), nil, nil)
	require.NoError(t, src.Start(context.Background()))
	defer src.Close() //nolint:errcheck

	var out bytes.Buffer
	loop := &kioskLoop{
		service:     svc,
		engine:      engine,
		source:      src,
		transitions: make(chan netstatus.Transition),
		visit:       kiosk.Visit{GuestType: scan.GuestPool, Adults: 1, Children: 2},
		out:         &out,
		logger:      logger.Noop(),
	}
	require.NoError(t, loop.serve(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Welcome T1 (zwembadgast, 1+2)")
	assert.Contains(t, text, "Goodbye T1")
	assert.Contains(t, text, "T1 already checked out")

	sessions, err := st.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Active())

	ops, err := st.Queue()
	require.NoError(t, err)
	assert.Len(t, ops, 2, "create and checkout queued")
}

func TestKioskLoop_StopsOnCancel(t *testing.T) {
	st := store.NewMemory()
	engine := syncer.New(syncer.Config{Interval: time.Hour}, st, remote.NewMemory(), nil, nil)
	defer engine.Close() //nolint:errcheck

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	src := nfc.NewLineSource(r, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))

	transitions := make(chan netstatus.Transition, 1)
	transitions <- netstatus.Transition{Online: true, Time: time.Now()}

	var out bytes.Buffer
	loop := &kioskLoop{
		service:     kiosk.New(kiosk.Config{}, st, engine, nil),
		engine:      engine,
		source:      src,
		transitions: transitions,
		out:         &out,
		logger:      logger.Noop(),
	}

	done := make(chan error, 1)
	go func() { done <- loop.serve(ctx) }()

	require.Eventually(t, func() bool { return len(transitions) == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.Contains(t, out.String(), "Stopping kiosk")
	require.NoError(t, src.Close())
}

// writeTestConfig writes a config using a bolt store and a file backend
// under dir.
func writeTestConfig(t *testing.T, dir string) (cfgPath, remotePath string) {
	t.Helper()
	for _, key := range []string{config.EnvDB, config.EnvStorageEngine, config.EnvBackend,
		config.EnvRemoteURL, config.EnvSigningKey, config.EnvLogLevel} {
		t.Setenv(key, "")
	}

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "kiosk.db")
	cfg.Remote.Backend = config.BackendFile
	cfg.Remote.File.Path = filepath.Join(dir, "remote", "sessions.json")
	cfg.Logging.Output = filepath.Join(dir, "gastmeting.log")

	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(cfg, cfgPath))
	return cfgPath, cfg.Remote.File.Path
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath, remotePath := writeTestConfig(t, dir)

	exec := func(args ...string) string {
		t.Helper()
		var buf bytes.Buffer
		err := run(append([]string{"-config", cfgPath}, args...), &buf)
		require.NoError(t, err, "gastmeting %v: %s", args, buf.String())
		return buf.String()
	}

	out := exec("checkin", "-type", "zwembadgast", "-adults", "2", "-children", "1", "-sync", "T1")
	assert.Contains(t, out, "Checked in T1 (zwembadgast, 2 adults, 1 children)")
	assert.Contains(t, out, "Pushed 1, failed 0, dropped 0")

	rs, err := filestore.New(remotePath, nil)
	require.NoError(t, err)
	remoteSessions, err := rs.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, remoteSessions, 1)
	assert.True(t, remoteSessions[0].Active())

	out = exec("lookup", "-format", "simple", "T1")
	assert.Contains(t, out, "T1 zwembadgast 2+1 inside since")

	out = exec("checkout", "T1")
	assert.Contains(t, out, "Checked out T1")

	out = exec("queue", "-format", "json", "-compact")
	var ops []scan.Operation
	require.NoError(t, json.Unmarshal([]byte(out), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, scan.KindUpdate, ops[0].Kind)

	out = exec("sync")
	assert.Contains(t, out, "Pushed 1")
	assert.Contains(t, out, "pending: 0")

	remoteSessions, err = rs.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, remoteSessions, 1)
	assert.False(t, remoteSessions[0].Active(), "checkout reached the remote store")

	out = exec("sessions", "-format", "json")
	var sessions []scan.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].ExitTime)

	out = exec("stats", "-format", "simple")
	assert.Contains(t, out, "Sessions: 1")

	out = exec("status", "-format", "simple")
	assert.Contains(t, out, "idle | pending: 0")

	csvPath := filepath.Join(dir, "export", "visits.csv")
	exec("export", "-format", "csv", "-output", csvPath)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestCommands_CheckoutUnknownTag(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, t.TempDir())

	var buf bytes.Buffer
	err := run([]string{"-config", cfgPath, "checkout", "T404"}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not checked in")
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _ := writeTestConfig(t, dir)

	var buf bytes.Buffer
	cmd := &configCommand{opts: globalOptions{configPath: cfgPath, out: &buf}, in: strings.NewReader("n\n")}

	require.NoError(t, cmd.Execute([]string{"show", "-format", "json"}))
	var shown config.Config
	require.NoError(t, json.Unmarshal(buf.Bytes(), &shown))
	assert.Equal(t, config.BackendFile, shown.Remote.Backend)

	buf.Reset()
	require.NoError(t, cmd.Execute([]string{"reset", "-output", cfgPath}))
	assert.Contains(t, buf.String(), "Reset cancelled")

	buf.Reset()
	require.NoError(t, cmd.Execute([]string{"reset", "-force", "-output", cfgPath}))
	assert.Contains(t, buf.String(), "Configuration reset to defaults")

	reloaded, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, reloaded.Remote.Backend)

	assert.Error(t, cmd.Execute([]string{"frobnicate"}))
}
