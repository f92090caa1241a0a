package sensors

import (
	"log/slog"

	"github.com/mirkobrombin/go-doorlock/v1/clock"
)

type options struct {
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a sensor loop.
type Option func(*options)

// WithClock replaces the clock used for loop intervals and the policy.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{clock: clock.Real{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
