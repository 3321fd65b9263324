package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/reconcile"
	"github.com/0xmhha/gastmeting/pkg/scan"
	"github.com/0xmhha/gastmeting/pkg/store"
)

const maxCount = 1000

// Service is the scan session service.
type Service struct {
	config Config
	store  store.Store
	syncer Syncer
	logger logger.Logger

	// mu serializes taps; it does not guard against the sync engine.
	mu      sync.Mutex
	started bool
}

// New creates a check-in/check-out service.
//
// Parameters:
//   - cfg: Service configuration; zero fields take their defaults
//   - st: Local store that receives every mutation first
//   - engine: Sync engine triggered after each mutation, or nil to only queue
//   - log: Logger instance
//
// Returns:
//   - Configured Service
func New(cfg Config, st store.Store, engine Syncer, log logger.Logger) *Service {
	if cfg.RecentCheckoutWindow <= 0 {
		cfg.RecentCheckoutWindow = 5 * time.Minute
	}
	if cfg.DuplicateTapWindow <= 0 {
		cfg.DuplicateTapWindow = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Service{config: cfg, store: st, syncer: engine, logger: log}
}

// Start starts the sync engine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.syncer != nil {
		if err := s.syncer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync engine: %w", err)
		}
	}
	s.started = true
	s.logger.Info("kiosk service started")
	return nil
}

// Stop stops the sync engine.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	if s.syncer != nil {
		if err := s.syncer.Stop(); err != nil {
			return fmt.Errorf("failed to stop sync engine: %w", err)
		}
	}
	s.logger.Info("kiosk service stopped")
	return nil
}

// LookupActive returns the most recent active session of tagID, or nil.
//
// If the tag has several active sessions the older ones are closed and the
// closures queued before returning.
func (s *Service) LookupActive(tagID string) (*scan.Session, error) {
	tagID, err := normalizeTag("lookup", tagID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.activeFor(tagID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	if len(active) > 1 {
		if err := s.closeAll(active[1:], s.config.Now()); err != nil {
			return nil, err
		}
		s.trigger("duplicate closed")
	}
	found := active[0]
	return &found, nil
}

// CheckIn opens a new session for tagID. Any session still open for the tag
// is closed first.
func (s *Service) CheckIn(tagID string, guestType scan.GuestType, adults, children int) (scan.Session, error) {
	tagID, err := normalizeTag("checkin", tagID)
	if err != nil {
		return scan.Session{}, err
	}
	if err := validateVisit(tagID, guestType, adults, children); err != nil {
		return scan.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.Now()

	active, err := s.activeFor(tagID)
	if err != nil {
		return scan.Session{}, err
	}
	if err := s.closeAll(active, now); err != nil {
		return scan.Session{}, err
	}

	entry, err := s.freeEntryTime(tagID, now)
	if err != nil {
		return scan.Session{}, err
	}

	sess := scan.Session{
		SessionID:  scan.NewSessionID(tagID, entry),
		TagID:      tagID,
		GuestType:  guestType,
		AdultCount: adults,
		ChildCount: children,
		EntryTime:  entry,
	}
	if err := sess.Validate(); err != nil {
		return scan.Session{}, err
	}

	if err := s.store.PutSession(sess); err != nil {
		return scan.Session{}, scan.E(scan.ErrStoreUnavailable, "checkin", tagID, err)
	}
	if err := s.store.Enqueue(scan.NewCreate(sess, now)); err != nil {
		return scan.Session{}, scan.E(scan.ErrStoreUnavailable, "checkin", tagID, err)
	}

	s.logger.Info("guest checked in",
		"tag_id", tagID,
		"session_id", sess.SessionID,
		"guest_type", guestType,
		"adults", adults,
		"children", children)

	s.trigger("checkin")
	return sess, nil
}

// CheckOut closes the active session of tagID.
//
// Returns an error matching scan.ErrNotFound, with nothing written, if the
// tag has no active session.
func (s *Service) CheckOut(tagID string) (scan.Session, error) {
	tagID, err := normalizeTag("checkout", tagID)
	if err != nil {
		return scan.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.activeFor(tagID)
	if err != nil {
		return scan.Session{}, err
	}
	if len(active) == 0 {
		return scan.Session{}, scan.E(scan.ErrNotFound, "checkout", tagID, nil)
	}

	now := s.config.Now()
	if err := s.closeAll(active[1:], now); err != nil {
		return scan.Session{}, err
	}

	closed := reconcile.ForceClose(active[0], now)
	if err := s.persistClosure(closed, now); err != nil {
		return scan.Session{}, scan.E(scan.ErrStoreUnavailable, "checkout", tagID, err)
	}

	s.logger.Info("guest checked out",
		"tag_id", tagID,
		"session_id", closed.SessionID,
		"duration", closed.ExitTime.Sub(closed.EntryTime))

	s.trigger("checkout")
	return closed, nil
}

// Inspect reports the active session of tagID and any checkout within the
// recent-checkout window.
func (s *Service) Inspect(tagID string) (TagState, error) {
	active, err := s.LookupActive(tagID)
	if err != nil {
		return TagState{}, err
	}
	tagID = strings.TrimSpace(tagID)
	state := TagState{TagID: tagID, Active: active}

	sessions, err := s.store.Sessions()
	if err != nil {
		return TagState{}, scan.E(scan.ErrStoreUnavailable, "inspect", tagID, err)
	}
	if last := reconcile.LastClosedFor(sessions, tagID); last != nil {
		if s.config.Now().Sub(*last.ExitTime) <= s.config.RecentCheckoutWindow {
			state.RecentCheckout = last
		}
	}
	return state, nil
}

// Tap handles one wristband read: it checks the tag out if it is inside and
// checks it in with v otherwise. A tag checked out within the
// recent-checkout window is reported and left alone.
//
// Readers often report one tap several times. A read within the duplicate
// tap window of the tag's last check-in or checkout changes nothing and
// returns ActionDuplicate.
func (s *Service) Tap(tagID string, v Visit) (TapResult, error) {
	state, err := s.Inspect(tagID)
	if err != nil {
		return TapResult{}, err
	}
	now := s.config.Now()

	switch {
	case state.Active != nil && now.Sub(state.Active.EntryTime) < s.config.DuplicateTapWindow:
		s.logger.Debug("repeated read after check-in, ignoring tap",
			"tag_id", state.TagID,
			"session_id", state.Active.SessionID)
		return TapResult{Action: ActionDuplicate, Session: *state.Active}, nil

	case state.RecentCheckout != nil && now.Sub(*state.RecentCheckout.ExitTime) < s.config.DuplicateTapWindow:
		s.logger.Debug("repeated read after checkout, ignoring tap",
			"tag_id", state.TagID,
			"session_id", state.RecentCheckout.SessionID)
		return TapResult{Action: ActionDuplicate, Session: *state.RecentCheckout}, nil

	case state.Active != nil:
		sess, err := s.CheckOut(tagID)
		if errors.Is(err, scan.ErrNotFound) {
			// Closed by a concurrent pull between Inspect and CheckOut.
			return TapResult{}, err
		}
		return TapResult{Action: ActionCheckOut, Session: sess}, err

	case state.RecentCheckout != nil:
		s.logger.Info("tag checked out recently, ignoring tap",
			"tag_id", state.TagID,
			"session_id", state.RecentCheckout.SessionID)
		return TapResult{Action: ActionRecentCheckout, Session: *state.RecentCheckout}, nil

	default:
		sess, err := s.CheckIn(tagID, v.GuestType, v.Adults, v.Children)
		return TapResult{Action: ActionCheckIn, Session: sess}, err
	}
}

// Sessions returns all local sessions, most recent entry first.
func (s *Service) Sessions() ([]scan.Session, error) {
	sessions, err := s.store.Sessions()
	if err != nil {
		return nil, scan.E(scan.ErrStoreUnavailable, "sessions", "", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return reconcile.MoreRecent(sessions[i], sessions[j])
	})
	return sessions, nil
}

func (s *Service) activeFor(tagID string) ([]scan.Session, error) {
	sessions, err := s.store.Sessions()
	if err != nil {
		return nil, scan.E(scan.ErrStoreUnavailable, "lookup", tagID, err)
	}
	return reconcile.ActiveFor(sessions, tagID), nil
}

// closeAll force-closes sessions at now and queues the closures.
func (s *Service) closeAll(sessions []scan.Session, now time.Time) error {
	for _, sess := range sessions {
		closed := reconcile.ForceClose(sess, now)
		if err := s.persistClosure(closed, now); err != nil {
			return scan.E(scan.ErrStoreUnavailable, "close duplicate", sess.SessionID, err)
		}
		s.logger.Warn("closed duplicate active session",
			"tag_id", closed.TagID,
			"session_id", closed.SessionID,
			"exit_time", closed.ExitTime)
	}
	return nil
}

func (s *Service) persistClosure(closed scan.Session, now time.Time) error {
	if err := s.store.PutSession(closed); err != nil {
		return err
	}
	return s.store.Enqueue(scan.NewCheckout(closed.SessionID, *closed.ExitTime, now))
}

// freeEntryTime returns now, moved forward by a nanosecond at a time until
// the resulting session id is unused.
func (s *Service) freeEntryTime(tagID string, now time.Time) (time.Time, error) {
	entry := now
	for {
		_, err := s.store.Session(scan.NewSessionID(tagID, entry))
		if errors.Is(err, store.ErrNotFound) {
			return entry, nil
		}
		if err != nil {
			return time.Time{}, scan.E(scan.ErrStoreUnavailable, "checkin", tagID, err)
		}
		entry = entry.Add(time.Nanosecond)
	}
}

func (s *Service) trigger(reason string) {
	if s.syncer != nil {
		s.syncer.Trigger(reason)
	}
}

func normalizeTag(op, tagID string) (string, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return "", scan.E(scan.ErrInvalid, op, "", errors.New("empty tag id"))
	}
	return tagID, nil
}

func validateVisit(tagID string, guestType scan.GuestType, adults, children int) error {
	if !guestType.Valid() {
		return scan.E(scan.ErrInvalid, "checkin", tagID, fmt.Errorf("unknown guest type %q", guestType))
	}
	if adults < 0 || children < 0 || adults > maxCount || children > maxCount {
		return scan.E(scan.ErrInvalid, "checkin", tagID, fmt.Errorf("guest counts out of range: %d adults, %d children", adults, children))
	}
	return nil
}
