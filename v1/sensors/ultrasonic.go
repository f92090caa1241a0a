package sensors

import (
	"context"
	"fmt"
	"time"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
)

// UltrasonicConfig describes a trigger/echo ranging module.
type UltrasonicConfig struct {
	Trigger      hal.PinID
	Echo         hal.PinID
	TriggerPulse time.Duration
	// EchoTimeout bounds both the wait for the rising edge and the width of
	// the echo pulse.
	EchoTimeout time.Duration
}

// DefaultUltrasonicConfig returns the reference wiring: trigger on GPIO16,
// echo on GPIO20.
func DefaultUltrasonicConfig() UltrasonicConfig {
	return UltrasonicConfig{
		Trigger:      16,
		Echo:         20,
		TriggerPulse: 10 * time.Microsecond,
		EchoTimeout:  100 * time.Millisecond,
	}
}

// Validate checks the timings.
func (c UltrasonicConfig) Validate() error {
	if c.TriggerPulse <= 0 || c.EchoTimeout <= 0 {
		return fmt.Errorf("%w: ranging pulse and echo timeout must be positive", dlerrors.ErrConfiguration)
	}
	return nil
}

// Ranger measures a distance.
type Ranger interface {
	Read(ctx context.Context) (Distance, error)
}

// Ultrasonic implements Ranger by timing the echo pulse of the module.
// Edges are timed on the monotonic wall clock: the echo is a few
// milliseconds wide and is busy-polled.
type Ultrasonic struct {
	cfg     UltrasonicConfig
	trigger hal.OutputPin
	echo    hal.InputPin
}

// NewUltrasonic claims the trigger and echo pins and drives the trigger low.
func NewUltrasonic(p hal.Provider, cfg UltrasonicConfig) (*Ultrasonic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	trig, err := p.Output(cfg.Trigger)
	if err != nil {
		return nil, fmt.Errorf("sensors: trigger %s: %w", cfg.Trigger, err)
	}
	if err := trig.SetLow(); err != nil {
		return nil, fmt.Errorf("sensors: trigger %s: %w", cfg.Trigger, err)
	}
	echo, err := p.Input(cfg.Echo, hal.PullNone)
	if err != nil {
		return nil, fmt.Errorf("sensors: echo %s: %w", cfg.Echo, err)
	}
	return &Ultrasonic{cfg: cfg, trigger: trig, echo: echo}, nil
}

// Read fires one trigger pulse and times the echo. It returns
// ErrRangingTimeout when either edge fails to arrive within EchoTimeout, so
// a call never blocks much longer than twice that bound.
func (u *Ultrasonic) Read(ctx context.Context) (Distance, error) {
	if err := u.pulse(); err != nil {
		return 0, err
	}
	width, err := u.measure(ctx)
	if err != nil {
		return 0, err
	}
	return DistanceFromEcho(width), nil
}

func (u *Ultrasonic) pulse() error {
	if err := u.trigger.SetHigh(); err != nil {
		return fmt.Errorf("sensors: trigger: %w", err)
	}
	time.Sleep(u.cfg.TriggerPulse)
	if err := u.trigger.SetLow(); err != nil {
		return fmt.Errorf("sensors: trigger: %w", err)
	}
	return nil
}

func (u *Ultrasonic) measure(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	for u.echo.IsLow() {
		if time.Since(start) > u.cfg.EchoTimeout {
			return 0, fmt.Errorf("%w: no echo within %s", dlerrors.ErrRangingTimeout, u.cfg.EchoTimeout)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	rise := time.Now()
	for u.echo.IsHigh() {
		if time.Since(rise) > u.cfg.EchoTimeout {
			return 0, fmt.Errorf("%w: echo still high after %s", dlerrors.ErrRangingTimeout, u.cfg.EchoTimeout)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return time.Since(rise), nil
}
