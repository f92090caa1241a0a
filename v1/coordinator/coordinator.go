// Package coordinator runs the single consumer of the arbiter. It owns the
// authoritative lock state, applies the state machine to each instruction,
// drives the actuator and commits the new state only after the motion has
// completed.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
	"github.com/mirkobrombin/go-doorlock/v1/statestore"
)

const tracerName = "github.com/mirkobrombin/go-doorlock/v1/coordinator"

// Actuator performs a physical action to completion.
type Actuator interface {
	Act(ctx context.Context, action lock.Action) error
}

// Coordinator is the only writer of the lock state.
type Coordinator struct {
	arb *arbiter.Arbiter
	act Actuator

	mu       sync.Mutex
	state    lock.State
	snapshot atomic.Int32

	store    statestore.Store
	notifier lock.Notifier
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore persists every committed state.
func WithStore(s statestore.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithNotifier receives committed and no-op events.
func WithNotifier(n lock.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithTracerProvider sets the tracer provider used for actuation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New returns a Coordinator starting from initial, which must match the
// physical lock: nothing verifies it electrically.
func New(arb *arbiter.Arbiter, act Actuator, initial lock.State, opts ...Option) *Coordinator {
	c := &Coordinator{
		arb:    arb,
		act:    act,
		state:  initial,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publishState(initial)
	return c
}

// State returns the last committed state. It does not wait for an
// actuation in progress.
func (c *Coordinator) State() lock.State {
	return lock.State(c.snapshot.Load())
}

// Busy reports whether an instruction is in flight.
func (c *Coordinator) Busy() bool {
	return c.arb.Busy()
}

// Run consumes instructions until ctx is done or an actuation fails. An
// actuation failure is fatal: the state is left uncommitted, the arbiter
// stays busy and the error is returned for the process to exit on. When Run
// returns the arbiter is stopped, so producers blocked in Submit return.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.arb.Stop()
	c.logger.Info("coordinator started", "state", c.State())
	in, err := c.arb.Next(ctx)
	for {
		if err != nil {
			return err
		}
		if err := c.process(ctx, in); err != nil {
			c.logger.Error("doorlock: actuation failed, refusing further instructions",
				"error", err, "instruction", in.String(), "id", in.ID)
			return err
		}
		next, pending := c.arb.Finish(ctx)
		c.logger.Debug("lock use completed", "id", in.ID)
		if pending {
			in = next
			continue
		}
		in, err = c.arb.Next(ctx)
	}
}

func (c *Coordinator) process(ctx context.Context, in lock.Instruction) error {
	c.logger.Info("received lock instruction", "instruction", in.String(), "id", in.ID)
	ev, err := c.apply(ctx, in)
	if err != nil {
		return err
	}
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, ev); err != nil {
			c.logger.Warn("doorlock: event not delivered", "error", err, "id", in.ID)
		}
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, in lock.Instruction) (lock.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	action, ok := lock.ToAction(c.state, in)
	if !ok {
		c.logger.Info("no change to lock state needed", "state", c.state, "instruction", in.String())
		metrics.NoopTotal.Inc()
		ev := lock.NewEvent(lock.EventNoop, in, time.Now())
		ev.State = c.state.String()
		return ev, nil
	}

	ctx, span := c.tracer.Start(ctx, "doorlock.actuate", trace.WithAttributes(
		attribute.String("doorlock.instruction", in.Kind.String()),
		attribute.String("doorlock.source", in.Source.String()),
		attribute.String("doorlock.action", action.String()),
		attribute.String("doorlock.id", in.ID),
	))
	defer span.End()

	start := time.Now()
	if err := c.act.Act(ctx, action); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "actuation failed")
		return lock.Event{}, fmt.Errorf("coordinator: %s: %w", action, err)
	}
	metrics.ActuationSeconds.Observe(time.Since(start).Seconds())
	metrics.ActuationsTotal.WithLabelValues(action.String()).Inc()

	c.state = c.state.Reverse()
	c.publishState(c.state)
	span.SetAttributes(attribute.String("doorlock.state", c.state.String()))
	c.logger.Info("lock state committed", "state", c.state, "action", action, "id", in.ID)

	if c.store != nil {
		if err := c.store.Save(context.WithoutCancel(ctx), c.state); err != nil {
			c.logger.Warn("doorlock: committed state not persisted", "error", err, "state", c.state)
		}
	}

	ev := lock.NewEvent(lock.EventCommitted, in, time.Now())
	ev.Action = action.String()
	ev.State = c.state.String()
	return ev, nil
}

func (c *Coordinator) publishState(s lock.State) {
	c.snapshot.Store(int32(s))
	if s == lock.Locked {
		metrics.StateGauge.Set(1)
	} else {
		metrics.StateGauge.Set(0)
	}
}
