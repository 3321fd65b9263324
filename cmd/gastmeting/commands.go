package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/0xmhha/gastmeting/pkg/display"
	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/netstatus"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/stats"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if out != nil {
		fs.SetOutput(out)
	}
	return fs
}

// syncAfter runs one cycle against the configured remote store.
func (a *app) syncAfter(ctx context.Context) (syncer.Result, syncer.Status, error) {
	rs, err := newRemote(ctx, a.cfg, a.log)
	if err != nil {
		return syncer.Result{}, syncer.Status{}, fmt.Errorf("failed to connect remote store: %w", err)
	}
	defer func() {
		if err := rs.Close(); err != nil {
			a.log.Error("failed to close remote store", "error", err)
		}
	}()

	mon := netstatus.NewMonitor(rs, monitorConfig(a.cfg), logger.Named(a.log, "netstatus"))
	mon.Check(ctx)

	engine := a.engine(rs, mon)
	defer engine.Close() //nolint:errcheck // engine was never started

	res, err := engine.SyncNow(ctx)
	return res, engine.Status(), err
}

// printSyncResult writes a one-line cycle summary.
func printSyncResult(w io.Writer, res syncer.Result) {
	if res.Offline {
		fmt.Fprintln(w, "Remote store unreachable, changes stay queued")
		return
	}
	fmt.Fprintf(w, "Pushed %d, failed %d, dropped %d", res.Pushed, res.Failed, res.Dropped)
	if res.Closed > 0 {
		fmt.Fprintf(w, ", closed %d duplicate session(s)", res.Closed)
	}
	if !res.Pulled {
		fmt.Fprint(w, ", pull skipped")
	}
	fmt.Fprintln(w)
}

// checkinCommand opens a session for a tag.
type checkinCommand struct {
	tagID     string
	guestType scan.GuestType
	adults    int
	children  int
	sync      bool
	opts      globalOptions
}

func parseCheckinArgs(opts globalOptions, args []string) (*checkinCommand, error) {
	fs := newFlagSet("checkin", opts.out)
	guestType := fs.String("type", "", "guest type (hotelgast, daggast, zwembadgast); default from config")
	adults := fs.Int("adults", -1, "number of adults; default from config")
	children := fs.Int("children", -1, "number of children; default from config")
	doSync := fs.Bool("sync", false, "sync with the remote store afterwards")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: gastmeting checkin [flags] <tag>")
	}

	cmd := &checkinCommand{
		tagID:    fs.Arg(0),
		adults:   *adults,
		children: *children,
		sync:     *doSync,
		opts:     opts,
	}
	if *guestType != "" {
		gt, err := scan.ParseGuestType(*guestType)
		if err != nil {
			return nil, err
		}
		cmd.guestType = gt
	}
	return cmd, nil
}

// Execute runs the checkin command.
func (c *checkinCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	visit := defaultVisit(a.cfg)
	if c.guestType != "" {
		visit.GuestType = c.guestType
	}
	if c.adults >= 0 {
		visit.Adults = c.adults
	}
	if c.children >= 0 {
		visit.Children = c.children
	}

	s, err := a.service(nil).CheckIn(c.tagID, visit.GuestType, visit.Adults, visit.Children)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Checked in %s (%s, %d adults, %d children)\n", s.TagID, s.GuestType, s.AdultCount, s.ChildCount)

	if !c.sync {
		return nil
	}
	return runSync(a)
}

// checkoutCommand closes the active session of a tag.
type checkoutCommand struct {
	tagID string
	sync  bool
	opts  globalOptions
}

func parseCheckoutArgs(opts globalOptions, args []string) (*checkoutCommand, error) {
	fs := newFlagSet("checkout", opts.out)
	doSync := fs.Bool("sync", false, "sync with the remote store afterwards")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: gastmeting checkout [flags] <tag>")
	}
	return &checkoutCommand{tagID: fs.Arg(0), sync: *doSync, opts: opts}, nil
}

// Execute runs the checkout command.
func (c *checkoutCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.service(nil).CheckOut(c.tagID)
	if errors.Is(err, scan.ErrNotFound) {
		return fmt.Errorf("tag %s is not checked in", strings.TrimSpace(c.tagID))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Checked out %s after %s\n", s.TagID, s.ExitTime.Sub(s.EntryTime).Round(time.Minute))

	if !c.sync {
		return nil
	}
	return runSync(a)
}

// runSync runs one cycle and prints its outcome.
func runSync(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(a.cfg))
	defer cancel()

	res, _, err := a.syncAfter(ctx)
	printSyncResult(a.out, res)
	return err
}

// lookupCommand shows what the kiosk knows about a tag.
type lookupCommand struct {
	tagID   string
	format  string
	compact bool
	opts    globalOptions
}

func parseLookupArgs(opts globalOptions, args []string) (*lookupCommand, error) {
	fs := newFlagSet("lookup", opts.out)
	format := fs.String("format", "", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: gastmeting lookup [flags] <tag>")
	}
	return &lookupCommand{tagID: fs.Arg(0), format: *format, compact: *compact, opts: opts}, nil
}

// Execute runs the lookup command.
func (c *lookupCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.formatter(c.format, c.compact)
	if err != nil {
		return err
	}

	state, err := a.service(nil).Inspect(c.tagID)
	if err != nil {
		return err
	}
	return f.FormatTagState(a.out, state)
}

// sessionsCommand lists locally cached sessions.
type sessionsCommand struct {
	active  bool
	tagID   string
	date    string
	limit   int
	format  string
	compact bool
	opts    globalOptions
}

func parseSessionsArgs(opts globalOptions, args []string) (*sessionsCommand, error) {
	fs := newFlagSet("sessions", opts.out)
	active := fs.Bool("active", false, "only sessions still inside")
	tagID := fs.String("tag", "", "filter by tag")
	date := fs.String("date", "", "filter by entry date (YYYY-MM-DD)")
	limit := fs.Int("limit", 0, "show at most N sessions")
	format := fs.String("format", "", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *date != "" {
		if _, err := time.Parse(time.DateOnly, *date); err != nil {
			return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", *date)
		}
	}
	if *limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0")
	}

	return &sessionsCommand{
		active:  *active,
		tagID:   strings.TrimSpace(*tagID),
		date:    *date,
		limit:   *limit,
		format:  *format,
		compact: *compact,
		opts:    opts,
	}, nil
}

// filter keeps the sessions matching the command's flags. The input is
// expected most recent first.
func (c *sessionsCommand) filter(sessions []scan.Session) []scan.Session {
	var out []scan.Session
	for _, s := range sessions {
		if c.active && !s.Active() {
			continue
		}
		if c.tagID != "" && s.TagID != c.tagID {
			continue
		}
		if c.date != "" && s.EntryTime.Local().Format(time.DateOnly) != c.date {
			continue
		}
		out = append(out, s)
		if c.limit > 0 && len(out) == c.limit {
			break
		}
	}
	return out
}

// Execute runs the sessions command.
func (c *sessionsCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.formatter(c.format, c.compact)
	if err != nil {
		return err
	}

	sessions, err := a.service(nil).Sessions()
	if err != nil {
		return err
	}
	return f.FormatSessions(a.out, c.filter(sessions))
}

// queueCommand lists pending operations.
type queueCommand struct {
	format  string
	compact bool
	opts    globalOptions
}

func parseQueueArgs(opts globalOptions, args []string) (*queueCommand, error) {
	fs := newFlagSet("queue", opts.out)
	format := fs.String("format", "", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &queueCommand{format: *format, compact: *compact, opts: opts}, nil
}

// Execute runs the queue command.
func (c *queueCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.formatter(c.format, c.compact)
	if err != nil {
		return err
	}

	ops, err := a.store.Queue()
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	return f.FormatQueue(a.out, ops)
}

// syncCommand runs one sync cycle.
type syncCommand struct {
	timeout time.Duration
	opts    globalOptions
}

func parseSyncArgs(opts globalOptions, args []string) (*syncCommand, error) {
	fs := newFlagSet("sync", opts.out)
	timeout := fs.Duration("timeout", 0, "overall deadline (e.g. 30s); default derived from config")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0")
	}
	return &syncCommand{timeout: *timeout, opts: opts}, nil
}

// Execute runs the sync command.
func (c *syncCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := c.timeout
	if timeout == 0 {
		timeout = commandTimeout(a.cfg)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, status, err := a.syncAfter(ctx)
	printSyncResult(a.out, res)
	if ferr := display.New(display.Config{Format: display.FormatSimple}).FormatStatus(a.out, status); ferr != nil {
		return ferr
	}
	return err
}

// statusCommand reports queue length and remote reachability.
type statusCommand struct {
	format  string
	compact bool
	opts    globalOptions
}

func parseStatusArgs(opts globalOptions, args []string) (*statusCommand, error) {
	fs := newFlagSet("status", opts.out)
	format := fs.String("format", "", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &statusCommand{format: *format, compact: *compact, opts: opts}, nil
}

// Execute runs the status command.
func (c *statusCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.formatter(c.format, c.compact)
	if err != nil {
		return err
	}

	pending, err := a.store.PendingCount()
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	status := syncer.Status{State: syncer.StateIdle, Pending: pending}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Network.CheckTimeout+time.Second)
	defer cancel()

	rs, err := newRemote(ctx, a.cfg, a.log)
	if err != nil {
		status.State = syncer.StateOffline
		status.LastError = err.Error()
		return f.FormatStatus(a.out, status)
	}
	defer rs.Close() //nolint:errcheck // read-only use

	if !netstatus.NewMonitor(rs, monitorConfig(a.cfg), a.log).Check(ctx) {
		status.State = syncer.StateOffline
	}
	return f.FormatStatus(a.out, status)
}

// statsCommand displays visitor statistics.
type statsCommand struct {
	groupBy []string
	date    string
	format  string
	compact bool
	opts    globalOptions
}

func parseStatsArgs(opts globalOptions, args []string) (*statsCommand, error) {
	fs := newFlagSet("stats", opts.out)
	groupBy := fs.String("group-by", "", "group by dimensions (comma-separated: date,hour,type,tag)")
	date := fs.String("date", "", "only sessions entered on this date (YYYY-MM-DD)")
	format := fs.String("format", "", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var dimensions []string
	if *groupBy != "" {
		dimensions = strings.Split(*groupBy, ",")
		for i, dim := range dimensions {
			dimensions[i] = strings.TrimSpace(dim)
		}
	}
	if *date != "" {
		if _, err := time.Parse(time.DateOnly, *date); err != nil {
			return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", *date)
		}
	}

	cmd := &statsCommand{
		groupBy: dimensions,
		date:    *date,
		format:  *format,
		compact: *compact,
		opts:    opts,
	}
	if _, err := cmd.parseDimensions(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// parseDimensions converts dimension strings to types.
func (c *statsCommand) parseDimensions() ([]stats.Dimension, error) {
	dimensions := make([]stats.Dimension, 0, len(c.groupBy))
	for _, name := range c.groupBy {
		dim, ok := stats.ParseDimension(name)
		if !ok {
			return nil, fmt.Errorf("invalid dimension: %s", name)
		}
		dimensions = append(dimensions, dim)
	}
	return dimensions, nil
}

// Execute runs the stats command.
func (c *statsCommand) Execute() error {
	a, err := openApp(c.opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.formatter(c.format, c.compact)
	if err != nil {
		return err
	}

	sessions, err := a.store.Sessions()
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}

	dimensions, err := c.parseDimensions()
	if err != nil {
		return err
	}

	agg := c.aggregate(sessions, dimensions, time.Now())
	if len(dimensions) > 0 {
		return f.FormatGroupedStats(a.out, agg.GroupedStats(), c.groupBy)
	}
	return f.FormatStats(a.out, agg.Stats())
}

// aggregate feeds the sessions matching -date into a new aggregator.
func (c *statsCommand) aggregate(sessions []scan.Session, dimensions []stats.Dimension, now time.Time) stats.Aggregator {
	agg := stats.New(stats.Config{GroupBy: dimensions, At: now})
	for _, s := range sessions {
		if c.date != "" && s.EntryTime.Local().Format(time.DateOnly) != c.date {
			continue
		}
		agg.Add(s)
	}
	return agg
}

// sortedByEntry returns sessions oldest first, which reads naturally in
// exported sheets.
func sortedByEntry(sessions []scan.Session) []scan.Session {
	out := append([]scan.Session(nil), sessions...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
