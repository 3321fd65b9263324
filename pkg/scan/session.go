package scan

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Active reports whether the guest is still inside.
func (s Session) Active() bool {
	return s.ExitTime == nil
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	if s.ExitTime != nil {
		t := *s.ExitTime
		s.ExitTime = &t
	}
	return s
}

// Closed returns a copy of s with its exit time set to at.
// An already closed session is returned unchanged.
func (s Session) Closed(at time.Time) Session {
	c := s.Clone()
	if c.ExitTime == nil {
		c.ExitTime = &at
	}
	return c
}

// Apply returns s with the non-nil fields of p applied.
//
// ExitTime is only taken from p while s is active; a closed session keeps
// its original exit time.
func (p Patch) Apply(s Session) Session {
	out := s.Clone()
	if p.ExitTime != nil && out.ExitTime == nil {
		t := *p.ExitTime
		out.ExitTime = &t
	}
	if p.GuestType != nil {
		out.GuestType = *p.GuestType
	}
	if p.AdultCount != nil {
		out.AdultCount = *p.AdultCount
	}
	if p.ChildCount != nil {
		out.ChildCount = *p.ChildCount
	}
	return out
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.ExitTime == nil && p.GuestType == nil && p.AdultCount == nil && p.ChildCount == nil
}

// Validate checks field constraints and that the exit is not before the entry.
//
// Returns an *Error of kind ErrInvalid describing the first problems found.
func (s Session) Validate() error {
	if err := validatorInstance().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return E(ErrInvalid, "validate", s.SessionID, errors.New(strings.Join(fields, ", ")))
		}
		return E(ErrInvalid, "validate", s.SessionID, err)
	}
	if s.EntryTime.IsZero() {
		return E(ErrInvalid, "validate", s.SessionID, errors.New("entryTime missing"))
	}
	if s.ExitTime != nil && s.ExitTime.Before(s.EntryTime) {
		return E(ErrInvalid, "validate", s.SessionID, errors.New("exitTime before entryTime"))
	}
	return nil
}

// ParseGuestType normalizes user input into a GuestType.
//
// Accepts the canonical names and the English aliases hotel, day and pool.
func ParseGuestType(s string) (GuestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(GuestHotel), "hotel":
		return GuestHotel, nil
	case string(GuestDay), "day":
		return GuestDay, nil
	case string(GuestPool), "pool", "zwembad":
		return GuestPool, nil
	}
	return "", E(ErrInvalid, "parse guest type", "", fmt.Errorf("unknown guest type %q", s))
}

// Valid reports whether g is one of the known guest types.
func (g GuestType) Valid() bool {
	for _, known := range GuestTypes {
		if g == known {
			return true
		}
	}
	return false
}

func (g GuestType) String() string {
	return string(g)
}
