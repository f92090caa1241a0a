package lock

import (
	"fmt"
	"strings"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
)

// State is the recorded position of the lock.
type State int

const (
	Unlocked State = iota
	Locked
)

// ParseState parses "locked" or "unlocked", ignoring case and surrounding space.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unlocked":
		return Unlocked, nil
	case "locked":
		return Locked, nil
	}
	return Unlocked, fmt.Errorf("%w: lock state %q, use 'locked' or 'unlocked'", dlerrors.ErrConfiguration, s)
}

// Reverse returns the opposite state. Applying it twice yields the original.
func (s State) Reverse() State {
	if s == Locked {
		return Unlocked
	}
	return Locked
}

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s != Unlocked && s != Locked {
		return nil, fmt.Errorf("lock: invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
