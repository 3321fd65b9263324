// Package scan defines the kiosk's data model: guest sessions, the partial
// updates applied to them and the pending operations queued for the remote
// store.
//
// A Session is opened when a wristband is tapped for check-in and closed
// when it is tapped again for check-out. A closed session is never reopened.
//
// Example usage:
//
//	now := time.Now()
//	s := scan.Session{
//	    SessionID:  scan.NewSessionID("04A1B2C3", now),
//	    TagID:      "04A1B2C3",
//	    GuestType:  scan.GuestDay,
//	    AdultCount: 2,
//	    ChildCount: 1,
//	    EntryTime:  now,
//	}
//	if err := s.Validate(); err != nil {
//	    return err
//	}
//	op := scan.NewCreate(s, now)
package scan

import (
	"strconv"
	"time"
)

// GuestType classifies the visitor.
type GuestType string

const (
	// GuestHotel is a hotel guest.
	GuestHotel GuestType = "hotelgast"

	// GuestDay is a day visitor.
	GuestDay GuestType = "daggast"

	// GuestPool is a pool-only visitor.
	GuestPool GuestType = "zwembadgast"
)

// GuestTypes lists all guest types in display order.
var GuestTypes = []GuestType{GuestHotel, GuestDay, GuestPool}

// Session is one visit of one wristband.
type Session struct {
	// SessionID is the tag id joined with the creation time. Immutable.
	SessionID string `json:"sessionId" validate:"required"`

	// TagID is the serial number read from the NFC wristband.
	TagID string `json:"tagId" validate:"required"`

	GuestType  GuestType `json:"guestType" validate:"required,oneof=hotelgast daggast zwembadgast"`
	AdultCount int       `json:"adultCount" validate:"min=0,max=1000"`
	ChildCount int       `json:"childCount" validate:"min=0,max=1000"`

	// EntryTime is set at check-in and never changes.
	EntryTime time.Time `json:"entryTime" validate:"required"`

	// ExitTime is nil while the guest is inside.
	ExitTime *time.Time `json:"exitTime"`
}

// Patch is a partial update of a Session. Nil fields are left unchanged.
//
// A patch can set ExitTime but never clear it.
type Patch struct {
	ExitTime   *time.Time `json:"exitTime,omitempty"`
	GuestType  *GuestType `json:"guestType,omitempty"`
	AdultCount *int       `json:"adultCount,omitempty"`
	ChildCount *int       `json:"childCount,omitempty"`
}

// Kind is the type of a pending operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Operation is a local mutation not yet confirmed by the remote store.
type Operation struct {
	// ID is unique per operation: session id, enqueue time and a random suffix.
	ID string `json:"operationId"`

	Kind      Kind   `json:"kind"`
	SessionID string `json:"targetSessionId"`

	// Session is the full record for create operations.
	Session *Session `json:"session,omitempty"`

	// Patch holds the changed fields for update operations.
	Patch *Patch `json:"patch,omitempty"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attemptCount"`
}

// NewSessionID builds the id of a session created for tagID at t.
func NewSessionID(tagID string, t time.Time) string {
	return tagID + "-" + strconv.FormatInt(t.UnixNano(), 10)
}
