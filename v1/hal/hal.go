// Package hal is the digital I/O boundary. Pins are obtained from a Provider
// by their BCM number; the core never touches registers directly.
//
// Three providers ship with the package: Stub (fixed logic levels, no-op
// writes) for desktop runs, Sim (recorded writes, scripted inputs) for tests,
// and Periph for real GPIO through periph.io.
package hal

import "fmt"

// PinID identifies a GPIO pin by its BCM number.
type PinID int

func (p PinID) String() string { return fmt.Sprintf("GPIO%d", int(p)) }

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// OutputPin drives a digital output.
type OutputPin interface {
	SetHigh() error
	SetLow() error
}

// InputPin samples a digital input.
type InputPin interface {
	IsHigh() bool
	IsLow() bool
}

// Provider hands out pins by identifier.
type Provider interface {
	Output(id PinID) (OutputPin, error)
	Input(id PinID, pull Pull) (InputPin, error)
}

// Set drives pin high when high is true and low otherwise.
func Set(pin OutputPin, high bool) error {
	if high {
		return pin.SetHigh()
	}
	return pin.SetLow()
}
