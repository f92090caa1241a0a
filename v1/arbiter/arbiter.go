package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
)

const defaultFillerWait = time.Second

// Submitter is the only handle producers hold.
type Submitter interface {
	// Submit returns nil once the instruction is accepted, or ErrBusy.
	Submit(ctx context.Context, in lock.Instruction) error
}

// Arbiter implements Submitter and the consumer side used by the coordinator.
type Arbiter struct {
	guard      *Guard
	queue      chan lock.Instruction
	fillerWait time.Duration
	notifier   lock.Notifier
	logger     *slog.Logger

	stopped  chan struct{}
	stopOnce sync.Once
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) { a.logger = l }
}

// WithNotifier receives a busy event for every rejected submission.
func WithNotifier(n lock.Notifier) Option {
	return func(a *Arbiter) { a.notifier = n }
}

// WithFillerWait bounds how long Finish waits for the filler a submission owes.
func WithFillerWait(d time.Duration) Option {
	return func(a *Arbiter) { a.fillerWait = d }
}

// New returns an idle Arbiter.
func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		guard:      NewGuard(),
		queue:      make(chan lock.Instruction, 1),
		fillerWait: defaultFillerWait,
		logger:     slog.Default(),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit offers in for processing. It never retries: if the guard is taken
// or the queue is occupied it returns ErrBusy at once. After an accepted
// enqueue it blocks until the coordinator has dequeued in, which is when
// the trailing filler fits.
func (a *Arbiter) Submit(ctx context.Context, in lock.Instruction) error {
	if in.IsFiller() {
		return fmt.Errorf("%w: %s", dlerrors.ErrInvalidInstruction, in)
	}
	if a.isStopped() {
		return dlerrors.ErrStopped
	}
	if !a.guard.TryLock() {
		a.rejected(ctx, in)
		return dlerrors.ErrBusy
	}
	select {
	case a.queue <- in:
	default:
		a.guard.Release()
		metrics.QueueViolationsTotal.Inc()
		a.logger.Error("doorlock: queue occupied while guard was free",
			"error", dlerrors.ErrQueueProtocol, "instruction", in.String(), "id", in.ID)
		a.rejected(ctx, in)
		return dlerrors.ErrBusy
	}
	metrics.AcceptedTotal.WithLabelValues(in.Source.String()).Inc()
	a.logger.Debug("instruction accepted", "instruction", in.String(), "id", in.ID)
	// The coordinator waits for this filler before releasing the guard, so
	// the send must happen even if ctx is done, unless no coordinator is
	// left to make room for it.
	select {
	case a.queue <- lock.Filler:
		return nil
	case <-a.stopped:
		return a.withdraw(in)
	}
}

// withdraw takes in back out of the queue of a stopped arbiter. If the
// coordinator dequeued it before stopping, the submission stands.
func (a *Arbiter) withdraw(in lock.Instruction) error {
	select {
	case queued := <-a.queue:
		if queued.ID != in.ID {
			a.violation("unexpected entry withdrawn from stopped queue", queued)
		}
		a.guard.Release()
		a.logger.Info("instruction withdrawn, coordinator stopped", "instruction", in.String(), "id", in.ID)
		return dlerrors.ErrStopped
	default:
		return nil
	}
}

// Stop marks the consumer side as gone. Pending and later submissions
// return ErrStopped instead of waiting for a dequeue. The guard is left as
// it is, so an arbiter stopped mid-cycle stays busy.
func (a *Arbiter) Stop() {
	a.stopOnce.Do(func() { close(a.stopped) })
}

func (a *Arbiter) isStopped() bool {
	select {
	case <-a.stopped:
		return true
	default:
		return false
	}
}

func (a *Arbiter) rejected(ctx context.Context, in lock.Instruction) {
	metrics.BusyTotal.WithLabelValues(in.Source.String()).Inc()
	a.logger.Info("instruction dropped, lock in use", "instruction", in.String(), "id", in.ID)
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, lock.NewEvent(lock.EventBusy, in, time.Now())); err != nil {
		a.logger.Warn("doorlock: busy event not delivered", "error", err)
	}
}

// Next blocks until a real instruction is available. Stray fillers are
// discarded. It returns only on a dequeue or when ctx is done.
func (a *Arbiter) Next(ctx context.Context) (lock.Instruction, error) {
	for {
		select {
		case <-ctx.Done():
			return lock.Instruction{}, ctx.Err()
		case in := <-a.queue:
			if in.IsFiller() {
				a.logger.Debug("discarding stray filler")
				continue
			}
			return in, nil
		}
	}
}

// Finish ends the cycle of the instruction last returned by Next: it takes
// the filler the submission owes, drains any residue and releases the guard,
// leaving the queue empty. If a real instruction is found where a filler
// belongs, the guard stays held and the instruction is returned so the
// coordinator processes it next instead of losing it.
func (a *Arbiter) Finish(ctx context.Context) (lock.Instruction, bool) {
	var pending lock.Instruction
	found := false
	take := func(in lock.Instruction) {
		if in.IsFiller() {
			return
		}
		a.violation("real instruction where filler expected", in)
		if found {
			a.logger.Error("doorlock: dropping instruction, one is already pending",
				"instruction", in.String(), "id", in.ID)
			return
		}
		pending, found = in, true
	}

	t := time.NewTimer(a.fillerWait)
	select {
	case in := <-a.queue:
		take(in)
	case <-t.C:
		a.violation("expected filler, queue stayed empty", lock.Instruction{})
	case <-ctx.Done():
	}
	t.Stop()

	for drained := false; !drained; {
		select {
		case in := <-a.queue:
			take(in)
		default:
			drained = true
		}
	}
	if !found {
		a.guard.Release()
	}
	return pending, found
}

func (a *Arbiter) violation(msg string, in lock.Instruction) {
	metrics.QueueViolationsTotal.Inc()
	a.logger.Error("doorlock: "+msg, "error", dlerrors.ErrQueueProtocol, "instruction", in.String(), "id", in.ID)
}

// Busy reports whether an instruction is in flight.
func (a *Arbiter) Busy() bool {
	return a.guard.Held()
}

// Len returns the number of queued entries, fillers included.
func (a *Arbiter) Len() int {
	return len(a.queue)
}
