package actuator

import (
	"fmt"

	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// Direction is the motor's rotation.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// DirectionOf maps an action to the rotation that performs it.
func DirectionOf(a lock.Action) Direction {
	if a == lock.Lock {
		return CounterClockwise
	}
	return Clockwise
}

var (
	ccwSequence = [4]uint8{0b0001, 0b0010, 0b0100, 0b1000}
	cwSequence  = [4]uint8{0b1000, 0b0100, 0b0010, 0b0001}
)

// Sequence returns the phase table for d. Bit i drives phase pin i.
func Sequence(d Direction) [4]uint8 {
	if d == Clockwise {
		return cwSequence
	}
	return ccwSequence
}

// Stepper drives the four phase outputs of a unipolar stepper.
type Stepper struct {
	phases [4]hal.OutputPin
}

// NewStepper claims the four phase pins and de-energizes them.
func NewStepper(p hal.Provider, pins [4]hal.PinID) (*Stepper, error) {
	s := &Stepper{}
	for i, id := range pins {
		out, err := p.Output(id)
		if err != nil {
			return nil, fmt.Errorf("actuator: phase %d: %w", i, err)
		}
		s.phases[i] = out
	}
	if err := s.Release(); err != nil {
		return nil, err
	}
	return s, nil
}

// Assert writes pattern across the phase pins.
func (s *Stepper) Assert(pattern uint8) error {
	for i, pin := range s.phases {
		if err := hal.Set(pin, pattern&(1<<i) != 0); err != nil {
			return fmt.Errorf("actuator: phase %d: %w", i, err)
		}
	}
	return nil
}

// Release de-energizes every phase.
func (s *Stepper) Release() error {
	return s.Assert(0)
}
