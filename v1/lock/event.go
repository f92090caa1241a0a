package lock

import (
	"context"
	"errors"
	"time"
)

// EventType classifies a lock event.
type EventType string

const (
	EventCommitted EventType = "committed"
	EventNoop      EventType = "noop"
	EventBusy      EventType = "busy"
)

// Event describes the outcome of one instruction.
type Event struct {
	Type        EventType `json:"type"`
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	Source      string    `json:"source"`
	Action      string    `json:"action,omitempty"`
	// State is the committed state after the event; empty for busy events.
	State string    `json:"state,omitempty"`
	At    time.Time `json:"at"`
}

// NewEvent fills the instruction fields of an event.
func NewEvent(t EventType, in Instruction, at time.Time) Event {
	return Event{
		Type:        t,
		ID:          in.ID,
		Instruction: in.Kind.String(),
		Source:      in.Source.String(),
		At:          at.UTC(),
	}
}

// Notifier receives lock events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Notifiers fans an event out to every notifier.
type Notifiers []Notifier

// Notify implements Notifier.
func (ns Notifiers) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
