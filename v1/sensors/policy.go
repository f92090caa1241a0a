package sensors

import (
	"fmt"
	"time"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
)

// PolicyConfig tunes the proximity auto-lock.
type PolicyConfig struct {
	// ThresholdCM is the whole-centimetre reading below which the door
	// counts as closed.
	ThresholdCM int64
	// AutoLockAfter is how long the door must stay closed before locking.
	AutoLockAfter time.Duration
	// Tolerance is how many far readings are absorbed before the dwell
	// timer restarts.
	Tolerance int
}

// DefaultPolicyConfig returns 6cm, 60s and a tolerance of 3.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{ThresholdCM: 6, AutoLockAfter: 60 * time.Second, Tolerance: 3}
}

// Validate checks the policy bounds.
func (c PolicyConfig) Validate() error {
	if c.ThresholdCM <= 0 || c.AutoLockAfter < 0 || c.Tolerance < 0 {
		return fmt.Errorf("%w: proximity policy %+v", dlerrors.ErrConfiguration, c)
	}
	return nil
}

// Policy decides when a run of close readings becomes an auto-lock. It
// holds no clock: callers pass the time of every observation.
type Policy struct {
	cfg        PolicyConfig
	dwellStart time.Time
	errs       int
}

// NewPolicy returns a Policy whose dwell timer starts at now.
func NewPolicy(cfg PolicyConfig, now time.Time) *Policy {
	return &Policy{cfg: cfg, dwellStart: now}
}

// Observe records a reading taken at now and reports whether an auto-lock
// is due. Far readings are counted; once more than Tolerance have been
// seen the dwell timer restarts.
func (p *Policy) Observe(now time.Time, d Distance) bool {
	if d.CM() < p.cfg.ThresholdCM {
		return now.Sub(p.dwellStart) >= p.cfg.AutoLockAfter
	}
	p.errs++
	if p.errs > p.cfg.Tolerance {
		p.dwellStart = now
		p.errs = 0
	}
	return false
}

// Reset restarts the dwell timer at now and clears the far-reading count.
func (p *Policy) Reset(now time.Time) {
	p.dwellStart = now
	p.errs = 0
}
