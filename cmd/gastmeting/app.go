package main

import (
	"fmt"
	"io"
	"time"

	"github.com/0xmhha/gastmeting/pkg/config"
	"github.com/0xmhha/gastmeting/pkg/display"
	"github.com/0xmhha/gastmeting/pkg/kiosk"
	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/netstatus"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/store"
	"github.com/0xmhha/gastmeting/pkg/syncer"
)

// globalOptions holds flags accepted before the command name.
type globalOptions struct {
	configPath string
	out        io.Writer
}

// app bundles the components shared by the one-shot commands.
type app struct {
	cfg   *config.Config
	log   logger.Logger
	store store.Store
	out   io.Writer
}

// loadConfig loads configuration and builds the logger.
func loadConfig(opts globalOptions) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewLoader(opts.configPath).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}

// openApp loads configuration and opens the local store.
//
// One-shot commands need the durable store; unlike the kiosk loop they do
// not fall back to memory, since nothing they wrote would survive.
func openApp(opts globalOptions) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(storeConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store (is the kiosk running?): %w", err)
	}

	return &app{cfg: cfg, log: log, store: st, out: opts.out}, nil
}

// Close releases the local store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close local store", "error", err)
	}
}

// formatter returns a display formatter. An empty format uses the
// configured default.
func (a *app) formatter(format string, compact bool) (display.Formatter, error) {
	if format == "" {
		format = a.cfg.Display.Format
	}
	f, ok := display.ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("invalid format: %s", format)
	}
	return display.New(display.Config{Format: f, Compact: compact}), nil
}

// service returns a kiosk service over the local store. engine may be nil.
func (a *app) service(engine kiosk.Syncer) *kiosk.Service {
	return kiosk.New(kioskConfig(a.cfg), a.store, engine, logger.Named(a.log, "kiosk"))
}

// engine returns a sync engine for the configured remote store.
func (a *app) engine(rs remote.Store, conn syncer.Connectivity) syncer.Engine {
	return syncer.New(syncConfig(a.cfg), a.store, rs, conn, logger.Named(a.log, "sync"))
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Engine:  cfg.Storage.Engine,
		Path:    cfg.Storage.Path,
		Timeout: cfg.Storage.Timeout,
	}
}

func kioskConfig(cfg *config.Config) kiosk.Config {
	return kiosk.Config{
		RecentCheckoutWindow: cfg.Kiosk.RecentCheckoutWindow,
		DuplicateTapWindow:   cfg.Kiosk.DuplicateTapWindow,
	}
}

// defaultVisit is the visit recorded when a tap or a bare checkin opens a
// session.
func defaultVisit(cfg *config.Config) kiosk.Visit {
	return kiosk.Visit{
		GuestType: scan.GuestType(cfg.Kiosk.DefaultGuestType),
		Adults:    cfg.Kiosk.DefaultAdults,
		Children:  cfg.Kiosk.DefaultChildren,
	}
}

func syncConfig(cfg *config.Config) syncer.Config {
	return syncer.Config{
		Interval:      cfg.Sync.Interval,
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		MaxAttempts:   cfg.Sync.MaxAttempts,
	}
}

func monitorConfig(cfg *config.Config) netstatus.Config {
	return netstatus.Config{
		Interval: cfg.Network.CheckInterval,
		Timeout:  cfg.Network.CheckTimeout,
	}
}

// commandTimeout bounds a one-shot command that talks to the remote store.
func commandTimeout(cfg *config.Config) time.Duration {
	return cfg.Network.CheckTimeout + 3*cfg.Sync.RemoteTimeout
}
