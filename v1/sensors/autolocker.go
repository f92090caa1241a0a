package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
)

// AutoLockerConfig tunes the proximity loop.
type AutoLockerConfig struct {
	Policy   PolicyConfig
	Interval time.Duration
	// Cooldown is slept after an auto-lock submission, before the policy
	// is reset.
	Cooldown time.Duration
}

// DefaultAutoLockerConfig returns a 1s interval and a 5s cooldown.
func DefaultAutoLockerConfig() AutoLockerConfig {
	return AutoLockerConfig{
		Policy:   DefaultPolicyConfig(),
		Interval: time.Second,
		Cooldown: 5 * time.Second,
	}
}

// Validate checks the loop timings and the policy.
func (c AutoLockerConfig) Validate() error {
	if c.Interval <= 0 || c.Cooldown < 0 {
		return fmt.Errorf("%w: auto-lock interval must be positive and cooldown not negative", dlerrors.ErrConfiguration)
	}
	return c.Policy.Validate()
}

// AutoLocker submits EnsureLocked once the door has been closed long enough.
type AutoLocker struct {
	cfg    AutoLockerConfig
	ranger Ranger
	sub    arbiter.Submitter
	options
}

// NewAutoLocker returns an AutoLocker reading from r.
func NewAutoLocker(r Ranger, cfg AutoLockerConfig, sub arbiter.Submitter, opts ...Option) (*AutoLocker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AutoLocker{cfg: cfg, ranger: r, sub: sub, options: newOptions(opts)}, nil
}

// Run samples the ranger every Interval until ctx is done. Ranging
// timeouts are logged and skipped.
func (a *AutoLocker) Run(ctx context.Context) error {
	policy := NewPolicy(a.cfg.Policy, a.clock.Now())
	a.logger.Info("auto-locker started",
		"threshold_cm", a.cfg.Policy.ThresholdCM, "after", a.cfg.Policy.AutoLockAfter)
	for {
		d, err := a.ranger.Read(ctx)
		switch {
		case err == nil:
			if policy.Observe(a.clock.Now(), d) {
				a.submit(ctx, d)
				if err := a.clock.Sleep(ctx, a.cfg.Cooldown); err != nil {
					return err
				}
				policy.Reset(a.clock.Now())
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, dlerrors.ErrRangingTimeout):
			metrics.RangingTimeoutsTotal.Inc()
			a.logger.Warn("distance reading failed", "error", err)
		default:
			a.logger.Warn("distance reading failed", "error", err)
		}
		if err := a.clock.Sleep(ctx, a.cfg.Interval); err != nil {
			return err
		}
	}
}

func (a *AutoLocker) submit(ctx context.Context, d Distance) {
	in := lock.EnsureLocked(lock.AutoSensor)
	err := a.sub.Submit(ctx, in)
	switch {
	case err == nil:
		metrics.AutoLocksTotal.Inc()
		a.logger.Info("auto-lock submitted", "distance", d.String(), "id", in.ID)
	case errors.Is(err, dlerrors.ErrBusy):
		a.logger.Info("auto-lock dropped, lock in use", "id", in.ID)
	default:
		a.logger.Warn("auto-lock not submitted", "error", err, "id", in.ID)
	}
}
