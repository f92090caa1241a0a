package actuator

import (
	"fmt"
	"time"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
)

// Profile is the step timing of one actuation.
type Profile struct {
	Steps       int
	BaseDelay   time.Duration
	TargetDelay time.Duration
	// Accel is how much shorter each step gets, moving away from either end.
	Accel time.Duration
}

// DefaultProfile matches the lock mechanism the controller was built for.
func DefaultProfile() Profile {
	return Profile{
		Steps:       60,
		BaseDelay:   40 * time.Millisecond,
		TargetDelay: 30 * time.Millisecond,
		Accel:       time.Millisecond,
	}
}

// Validate rejects profiles the motor must never run with.
func (p Profile) Validate() error {
	switch {
	case p.Steps <= 0:
		return fmt.Errorf("%w: steps must be positive, got %d", dlerrors.ErrConfiguration, p.Steps)
	case p.TargetDelay <= 0:
		return fmt.Errorf("%w: target delay must be positive, got %v", dlerrors.ErrConfiguration, p.TargetDelay)
	case p.BaseDelay < p.TargetDelay:
		return fmt.Errorf("%w: base delay %v below target delay %v", dlerrors.ErrConfiguration, p.BaseDelay, p.TargetDelay)
	case p.Accel < 0:
		return fmt.Errorf("%w: acceleration must not be negative, got %v", dlerrors.ErrConfiguration, p.Accel)
	}
	return nil
}

// Delay returns the hold time after step: slow at both ends, never below
// TargetDelay in the middle. The profile must be valid.
func (p Profile) Delay(step int) time.Duration {
	offset := min(step, p.Steps-1-step)
	if offset < 0 {
		offset = 0
	}
	d := p.BaseDelay - time.Duration(offset)*p.Accel
	return max(d, p.TargetDelay)
}

// Total is the sum of all step delays.
func (p Profile) Total() time.Duration {
	var total time.Duration
	for i := 0; i < p.Steps; i++ {
		total += p.Delay(i)
	}
	return total
}
