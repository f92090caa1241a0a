package lock

import "fmt"

// Action is what the actuator performs.
type Action int

const (
	Lock Action = iota
	Unlock
)

func (a Action) String() string {
	switch a {
	case Lock:
		return "lock"
	case Unlock:
		return "unlock"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Target returns the state the lock is in once the action completes.
func (a Action) Target() State {
	if a == Lock {
		return Locked
	}
	return Unlocked
}

// ToAction maps the current state and an instruction to the action needed
// to honour it. The boolean is false when the instruction is a no-op.
func ToAction(s State, in Instruction) (Action, bool) {
	switch s {
	case Unlocked:
		switch in.Kind {
		case KindEnsureLocked, KindReverse:
			return Lock, true
		}
	case Locked:
		switch in.Kind {
		case KindEnsureUnlocked, KindReverse:
			return Unlock, true
		}
	}
	return 0, false
}
