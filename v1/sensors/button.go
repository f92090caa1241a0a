package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
)

// ButtonConfig describes the push button input.
type ButtonConfig struct {
	Pin hal.PinID
	// ActiveLow means the button pulls the line to ground when pressed;
	// the internal pull-up is enabled.
	ActiveLow    bool
	PollInterval time.Duration
	Debounce     time.Duration
}

// DefaultButtonConfig returns the reference wiring: GPIO21 with pull-up,
// sampled every 100ms and confirmed after 50ms.
func DefaultButtonConfig() ButtonConfig {
	return ButtonConfig{
		Pin:          21,
		ActiveLow:    true,
		PollInterval: 100 * time.Millisecond,
		Debounce:     50 * time.Millisecond,
	}
}

// Validate checks the timings.
func (c ButtonConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: button poll interval must be positive", dlerrors.ErrConfiguration)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: button debounce must not be negative", dlerrors.ErrConfiguration)
	}
	return nil
}

// Button turns debounced presses into Reverse instructions.
type Button struct {
	cfg ButtonConfig
	pin hal.InputPin
	sub arbiter.Submitter
	options
}

// NewButton claims the button input.
func NewButton(p hal.Provider, cfg ButtonConfig, sub arbiter.Submitter, opts ...Option) (*Button, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pull := hal.PullDown
	if cfg.ActiveLow {
		pull = hal.PullUp
	}
	pin, err := p.Input(cfg.Pin, pull)
	if err != nil {
		return nil, fmt.Errorf("sensors: button %s: %w", cfg.Pin, err)
	}
	return &Button{cfg: cfg, pin: pin, sub: sub, options: newOptions(opts)}, nil
}

func (b *Button) asserted() bool {
	if b.cfg.ActiveLow {
		return b.pin.IsLow()
	}
	return b.pin.IsHigh()
}

// Pressed samples the button twice, Debounce apart, and reports whether it
// was asserted both times.
func (b *Button) Pressed(ctx context.Context) (bool, error) {
	if !b.asserted() {
		return false, nil
	}
	if err := b.clock.Sleep(ctx, b.cfg.Debounce); err != nil {
		return false, err
	}
	return b.asserted(), nil
}

// Run polls the button until ctx is done. A held button is not waited on:
// it keeps producing presses, which the arbiter rejects while the lock moves.
func (b *Button) Run(ctx context.Context) error {
	b.logger.Info("button monitor started", "pin", b.cfg.Pin, "active_low", b.cfg.ActiveLow)
	for {
		pressed, err := b.Pressed(ctx)
		if err != nil {
			return err
		}
		if pressed {
			metrics.ButtonPressesTotal.Inc()
			b.submit(ctx)
		}
		if err := b.clock.Sleep(ctx, b.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (b *Button) submit(ctx context.Context) {
	in := lock.ReverseOf(lock.Button)
	err := b.sub.Submit(ctx, in)
	switch {
	case err == nil:
		b.logger.Info("button press submitted", "id", in.ID)
	case errors.Is(err, dlerrors.ErrBusy):
		b.logger.Info("button press dropped, lock in use", "id", in.ID)
	default:
		b.logger.Warn("button press not submitted", "error", err, "id", in.ID)
	}
}
