package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xmhha/gastmeting/pkg/config"
	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/netstatus"
	"github.com/0xmhha/gastmeting/pkg/nfc"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/store"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// runCommand runs the kiosk: NFC reads in, sessions and sync out.
type runCommand struct {
	source   string
	spoolDir string
	visit    kiosk.Visit
	opts     globalOptions
}

func parseRunArgs(opts globalOptions, args []string) (*runCommand, error) {
	fs := newFlagSet("run", opts.out)
	source := fs.String("source", "", "tag source (stdin, spool); default from config")
	spoolDir := fs.String("spool-dir", "", "spool directory for the spool source")
	guestType := fs.String("type", "", "guest type recorded on check-in; default from config")
	adults := fs.Int("adults", -1, "adults recorded on check-in; default from config")
	children := fs.Int("children", -1, "children recorded on check-in; default from config")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch *source {
	case "", config.SourceStdin, config.SourceSpool:
	default:
		return nil, fmt.Errorf("invalid source: %s", *source)
	}

	cmd := &runCommand{
		source:   *source,
		spoolDir: *spoolDir,
		visit:    kiosk.Visit{Adults: *adults, Children: *children},
		opts:     opts,
	}
	if *guestType != "" {
		gt, err := scan.ParseGuestType(*guestType)
		if err != nil {
			return nil, err
		}
		cmd.visit.GuestType = gt
	}
	return cmd, nil
}

// applyDefaults fills unset flags from cfg.
func (c *runCommand) applyDefaults(cfg *config.Config) {
	def := defaultVisit(cfg)
	if c.visit.GuestType == "" {
		c.visit.GuestType = def.GuestType
	}
	if c.visit.Adults < 0 {
		c.visit.Adults = def.Adults
	}
	if c.visit.Children < 0 {
		c.visit.Children = def.Children
	}
	if c.source == "" {
		c.source = cfg.NFC.Source
	}
	if c.spoolDir == "" {
		c.spoolDir = cfg.NFC.SpoolDir
	}
}

// Execute runs the kiosk until interrupted or the tag input ends.
func (c *runCommand) Execute() error {
	cfg, log, err := loadConfig(c.opts)
	if err != nil {
		return err
	}
	c.applyDefaults(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, durable := store.OpenOrMemory(storeConfig(cfg), logger.Named(log, "store"))
	if !durable {
		log.Warn("running without durable storage, sessions are lost on restart")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to close local store", "error", err)
		}
	}()

	rs := newLazyRemote(func(ctx context.Context) (remote.Store, error) {
		return newRemote(ctx, cfg, log)
	})
	defer func() {
		if err := rs.Close(); err != nil {
			log.Error("failed to close remote store", "error", err)
		}
	}()

	mon := netstatus.NewMonitor(rs, monitorConfig(cfg), logger.Named(log, "netstatus"))
	engine := syncer.New(syncConfig(cfg), st, rs, mon, logger.Named(log, "sync"))
	defer engine.Close() //nolint:errcheck // shutdown path
	svc := kiosk.New(kioskConfig(cfg), st, engine, logger.Named(log, "kiosk"))

	src, err := c.newSource(log)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // shutdown path

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start network monitor: %w", err)
	}
	defer stopQuietly(log, "network monitor", mon.Stop)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer stopQuietly(log, "kiosk service", svc.Stop)

	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("failed to start tag source: %w", err)
	}

	loop := &kioskLoop{
		service:     svc,
		engine:      engine,
		source:      src,
		transitions: mon.Transitions(),
		visit:       c.visit,
		out:         c.opts.out,
		logger:      log,
	}
	return loop.serve(ctx)
}

func (c *runCommand) newSource(log logger.Logger) (nfc.Source, error) {
	log = logger.Named(log, "nfc")
	if c.source == config.SourceSpool {
		src, err := nfc.NewSpoolSource(nfc.SpoolConfig{Dir: c.spoolDir}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create spool source: %w", err)
		}
		return src, nil
	}
	return nfc.NewLineSource(os.Stdin, c.opts.out, log), nil
}

// stopQuietly calls stop during shutdown. A component already stopped by
// context cancellation is not an error.
func stopQuietly(log logger.Logger, name string, stop func() error) {
	err := stop()
	switch {
	case err == nil,
		errors.Is(err, netstatus.ErrNotRunning),
		errors.Is(err, syncer.ErrNotRunning),
		errors.Is(err, kiosk.ErrNotStarted):
		return
	}
	log.Error("failed to stop "+name, "error", err)
}

// kioskLoop dispatches tag reads to the service and reacts to network
// transitions and engine updates.
type kioskLoop struct {
	service     *kiosk.Service
	engine      syncer.Engine
	source      nfc.Source
	transitions <-chan netstatus.Transition
	visit       kiosk.Visit
	out         io.Writer
	logger      logger.Logger
}

// serve runs until ctx is cancelled or the source closes its reads.
func (l *kioskLoop) serve(ctx context.Context) error {
	updates, unsubscribe := l.engine.Subscribe()
	defer unsubscribe()

	reads := l.source.Reads()
	readErrs := l.source.Errors()

	fmt.Fprintln(l.out, "Kiosk ready - tap a wristband (Ctrl+C to stop)")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.out, "\nStopping kiosk...")
			return nil

		case t := <-l.transitions:
			if t.Online {
				l.engine.NetworkRestored()
			}

		case r, ok := <-reads:
			if !ok {
				l.logger.Info("tag input closed")
				return nil
			}
			l.handleRead(r)

		case err, ok := <-readErrs:
			if !ok {
				readErrs = nil
				continue
			}
			if errors.Is(err, nfc.ErrEmptyRead) {
				l.logger.Debug("ignored empty read")
				continue
			}
			l.logger.Warn("tag read failed", "error", err)

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.Dropped != nil {
				fmt.Fprintf(l.out, "! gave up syncing %s for session %s: %v\n", u.Dropped.Kind, u.Dropped.SessionID, u.Err)
			}
		}
	}
}

func (l *kioskLoop) handleRead(r nfc.Read) {
	res, err := l.service.Tap(r.TagID, l.visit)
	if err != nil {
		l.logger.Error("tap failed", "tag", r.TagID, "error", err)
		fmt.Fprintf(l.out, "! %s: %v\n", r.TagID, err)
		return
	}
	fmt.Fprintln(l.out, tapLine(res))
}

// tapLine is the one-line message shown to the guest after a tap.
func tapLine(res kiosk.TapResult) string {
	s := res.Session
	switch res.Action {
	case kiosk.ActionCheckIn:
		return fmt.Sprintf("Welcome %s (%s, %d+%d)", s.TagID, s.GuestType, s.AdultCount, s.ChildCount)
	case kiosk.ActionCheckOut:
		return fmt.Sprintf("Goodbye %s, stay %s", s.TagID, stay(s))
	case kiosk.ActionDuplicate:
		return fmt.Sprintf("%s tap already registered", s.TagID)
	case kiosk.ActionRecentCheckout:
		return fmt.Sprintf("%s already checked out at %s", s.TagID, s.ExitTime.Local().Format("15:04"))
	}
	return fmt.Sprintf("%s: %s", s.TagID, res.Action)
}

func stay(s scan.Session) time.Duration {
	if s.ExitTime == nil {
		return 0
	}
	return s.ExitTime.Sub(s.EntryTime).Round(time.Minute)
}
