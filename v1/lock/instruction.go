package lock

import (
	"fmt"

	"github.com/google/uuid"
)

// Source tags where an instruction came from.
type Source int

const (
	Button Source = iota
	API
	AutoSensor
)

func (s Source) String() string {
	switch s {
	case Button:
		return "button"
	case API:
		return "api"
	case AutoSensor:
		return "auto_sensor"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Kind is the instruction variant.
type Kind int

const (
	// Filler occupies queue capacity and has no other effect. It is the
	// zero Kind so a zero Instruction is never mistaken for a real one.
	KindFiller Kind = iota
	KindEnsureLocked
	KindEnsureUnlocked
	KindReverse
)

func (k Kind) String() string {
	switch k {
	case KindFiller:
		return "filler"
	case KindEnsureLocked:
		return "ensure_locked"
	case KindEnsureUnlocked:
		return "ensure_unlocked"
	case KindReverse:
		return "reverse"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Instruction is a request to move the lock. It is consumed exactly once
// by the coordinator or rejected at submission.
type Instruction struct {
	Kind   Kind
	Source Source
	// ID correlates log lines and events; it carries no semantics.
	ID string
}

// Filler is the queue sentinel.
var Filler = Instruction{Kind: KindFiller}

func newInstruction(k Kind, src Source) Instruction {
	return Instruction{Kind: k, Source: src, ID: uuid.NewString()}
}

// EnsureLocked returns an instruction that locks unless already locked.
func EnsureLocked(src Source) Instruction { return newInstruction(KindEnsureLocked, src) }

// EnsureUnlocked returns an instruction that unlocks unless already unlocked.
func EnsureUnlocked(src Source) Instruction { return newInstruction(KindEnsureUnlocked, src) }

// ReverseOf returns an instruction that flips the lock whatever its state.
func ReverseOf(src Source) Instruction { return newInstruction(KindReverse, src) }

// IsFiller reports whether in is the queue sentinel.
func (in Instruction) IsFiller() bool { return in.Kind == KindFiller }

func (in Instruction) String() string {
	if in.IsFiller() {
		return "filler"
	}
	return fmt.Sprintf("%s(%s)", in.Kind, in.Source)
}
