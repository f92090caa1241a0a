package actuator

import (
	"errors"
	"fmt"

	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// IndicatorPins names the indicator LEDs.
type IndicatorPins struct {
	Ready hal.PinID
	Busy  hal.PinID
	// State is lit while the lock is, or is moving to, locked.
	State hal.PinID
}

// Indicator drives the status LEDs.
type Indicator struct {
	ready, busy, state hal.OutputPin
}

// NewIndicator claims the LED pins and shows the idle pattern for initial.
func NewIndicator(p hal.Provider, pins IndicatorPins, initial lock.State) (*Indicator, error) {
	var ind Indicator
	var err error
	if ind.ready, err = p.Output(pins.Ready); err != nil {
		return nil, fmt.Errorf("actuator: ready led: %w", err)
	}
	if ind.busy, err = p.Output(pins.Busy); err != nil {
		return nil, fmt.Errorf("actuator: busy led: %w", err)
	}
	if ind.state, err = p.Output(pins.State); err != nil {
		return nil, fmt.Errorf("actuator: state led: %w", err)
	}
	if err := ind.Moving(initial); err != nil {
		return nil, err
	}
	if err := ind.Idle(); err != nil {
		return nil, err
	}
	return &ind, nil
}

// Moving shows the busy pattern and the target state.
func (ind *Indicator) Moving(target lock.State) error {
	return errors.Join(
		ind.ready.SetLow(),
		ind.busy.SetHigh(),
		hal.Set(ind.state, target == lock.Locked),
	)
}

// Idle shows the ready pattern.
func (ind *Indicator) Idle() error {
	return errors.Join(ind.busy.SetLow(), ind.ready.SetHigh())
}
