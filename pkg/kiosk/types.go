// Package kiosk turns wristband taps into check-ins and check-outs.
//
// Every mutation is written to the local store and queued for the remote
// store before the call returns; the sync engine is then nudged without
// waiting for it. The service never blocks on the network.
//
// Example usage:
//
//	svc := kiosk.New(kiosk.Config{}, st, engine, log)
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop()
//
//	s, err := svc.CheckIn("04A1B2C3", scan.GuestDay, 2, 1)
//	...
//	s, err = svc.CheckOut("04A1B2C3")
//	if errors.Is(err, scan.ErrNotFound) {
//	    // ask the guest to tap again
//	}
package kiosk

import (
	"context"
	"errors"
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("kiosk service already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("kiosk service not started")
)

// Syncer is the part of the sync engine driven by the service.
type Syncer interface {
	Start(ctx context.Context) error
	Stop() error
	Trigger(reason string)
}

// Config contains service settings.
type Config struct {
	// RecentCheckoutWindow is how long after a checkout Inspect and Tap
	// still report it. Default: 5m.
	RecentCheckoutWindow time.Duration

	// DuplicateTapWindow is how long after a check-in or checkout further
	// taps of the same tag are treated as repeated reads of one tap.
	// Default: 2s.
	DuplicateTapWindow time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// TagState is what the kiosk knows about one tag.
type TagState struct {
	TagID string `json:"tagId"`

	// Active is the open session, if any.
	Active *scan.Session `json:"active,omitempty"`

	// RecentCheckout is the last session closed within the recent-checkout
	// window, if any.
	RecentCheckout *scan.Session `json:"recentCheckout,omitempty"`
}

// Visit holds the check-in details used when a tap opens a session.
type Visit struct {
	GuestType scan.GuestType
	Adults    int
	Children  int
}

// Action is what Tap did.
type Action string

const (
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"

	// ActionRecentCheckout means the tag was checked out moments ago and
	// nothing was written.
	ActionRecentCheckout Action = "recent-checkout"

	// ActionDuplicate means the read repeated a tap handled moments ago
	// and nothing was written.
	ActionDuplicate Action = "duplicate"
)

// TapResult is the outcome of Tap.
type TapResult struct {
	Action  Action       `json:"action"`
	Session scan.Session `json:"session"`
}
