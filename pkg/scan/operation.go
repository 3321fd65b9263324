package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCreate returns a create operation carrying a copy of s.
func NewCreate(s Session, now time.Time) Operation {
	c := s.Clone()
	return Operation{
		ID:         newOperationID(s.SessionID, now),
		Kind:       KindCreate,
		SessionID:  s.SessionID,
		Session:    &c,
		EnqueuedAt: now,
	}
}

// NewUpdate returns an update operation applying p to sessionID.
func NewUpdate(sessionID string, p Patch, now time.Time) Operation {
	return Operation{
		ID:         newOperationID(sessionID, now),
		Kind:       KindUpdate,
		SessionID:  sessionID,
		Patch:      &p,
		EnqueuedAt: now,
	}
}

// NewCheckout is NewUpdate with only the exit time set.
func NewCheckout(sessionID string, exit time.Time, now time.Time) Operation {
	return NewUpdate(sessionID, Patch{ExitTime: &exit}, now)
}

// NewDelete returns a delete operation for sessionID.
func NewDelete(sessionID string, now time.Time) Operation {
	return Operation{
		ID:         newOperationID(sessionID, now),
		Kind:       KindDelete,
		SessionID:  sessionID,
		EnqueuedAt: now,
	}
}

// newOperationID joins the session id, the enqueue time and a random
// suffix so that two operations queued in the same nanosecond stay distinct.
func newOperationID(sessionID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%d:%s", sessionID, now.UnixNano(), suffix)
}

// Validate checks that op is well formed for its kind.
func (op Operation) Validate() error {
	if op.ID == "" || op.SessionID == "" {
		return E(ErrInvalid, "validate operation", op.ID, fmt.Errorf("missing id"))
	}
	switch op.Kind {
	case KindCreate:
		if op.Session == nil {
			return E(ErrInvalid, "validate operation", op.ID, fmt.Errorf("create without session"))
		}
		if op.Session.SessionID != op.SessionID {
			return E(ErrInvalid, "validate operation", op.ID, fmt.Errorf("session id mismatch"))
		}
		return op.Session.Validate()
	case KindUpdate:
		if op.Patch == nil || op.Patch.Empty() {
			return E(ErrInvalid, "validate operation", op.ID, fmt.Errorf("update without changes"))
		}
	case KindDelete:
	default:
		return E(ErrInvalid, "validate operation", op.ID, fmt.Errorf("unknown kind %q", op.Kind))
	}
	return nil
}

func (op Operation) String() string {
	return fmt.Sprintf("%s %s (attempt %d)", op.Kind, op.SessionID, op.Attempts)
}
