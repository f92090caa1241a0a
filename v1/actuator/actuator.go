package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mirkobrombin/go-doorlock/v1/clock"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// Pins groups every output the actuator claims.
type Pins struct {
	Indicator IndicatorPins
	Phases    [4]hal.PinID
}

// DefaultPins is the wiring of the reference build (BCM numbering).
func DefaultPins() Pins {
	return Pins{
		Indicator: IndicatorPins{Ready: 17, Busy: 22, State: 27},
		Phases:    [4]hal.PinID{23, 24, 18, 4},
	}
}

// Actuator moves the lock.
type Actuator struct {
	profile   Profile
	indicator *Indicator
	motor     *Stepper
	clock     clock.Clock
	logger    *slog.Logger
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithClock replaces the clock used for step delays.
func WithClock(c clock.Clock) Option {
	return func(a *Actuator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Actuator) { a.logger = l }
}

// New validates profile and claims the pins. initial seeds the state LED.
func New(p hal.Provider, pins Pins, profile Profile, initial lock.State, opts ...Option) (*Actuator, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	a := &Actuator{profile: profile, clock: clock.Real{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	var err error
	if a.indicator, err = NewIndicator(p, pins.Indicator, initial); err != nil {
		return nil, err
	}
	if a.motor, err = NewStepper(p, pins.Phases); err != nil {
		return nil, err
	}
	return a, nil
}

// Profile returns the validated timing profile.
func (a *Actuator) Profile() Profile { return a.profile }

// Act runs the full motion for action. The step sequence runs to completion
// even if ctx is cancelled; only hardware errors abort it, wrapped in
// ErrActuation.
func (a *Actuator) Act(ctx context.Context, action lock.Action) error {
	dir := DirectionOf(action)
	seq := Sequence(dir)
	a.logger.Info("actuating", "action", action, "direction", dir, "steps", a.profile.Steps)

	if err := a.indicator.Moving(action.Target()); err != nil {
		return fmt.Errorf("%w: indicator: %w", dlerrors.ErrActuation, err)
	}
	steady := context.WithoutCancel(ctx)
	for step := 0; step < a.profile.Steps; step++ {
		if err := a.motor.Assert(seq[step%len(seq)]); err != nil {
			_ = a.motor.Release()
			return fmt.Errorf("%w: step %d: %w", dlerrors.ErrActuation, step, err)
		}
		_ = a.clock.Sleep(steady, a.profile.Delay(step))
	}
	if err := errors.Join(a.motor.Release(), a.indicator.Idle()); err != nil {
		return fmt.Errorf("%w: release: %w", dlerrors.ErrActuation, err)
	}
	a.logger.Info("actuation done", "action", action)
	return nil
}
