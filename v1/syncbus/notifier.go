package syncbus

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// DefaultSubject is the subject, channel or topic lock events go to.
const DefaultSubject = "doorlock.events"

var tracer = otel.Tracer("github.com/mirkobrombin/go-doorlock/v1/syncbus")

// Notifier publishes lock events as JSON on a Bus.
type Notifier struct {
	bus     Bus
	subject string
}

// NewNotifier returns a Notifier for bus. An empty subject means
// DefaultSubject.
func NewNotifier(bus Bus, subject string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{bus: bus, subject: subject}
}

// Notify implements lock.Notifier.
func (n *Notifier) Notify(ctx context.Context, ev lock.Event) error {
	ctx, span := tracer.Start(ctx, "syncbus.publish", trace.WithAttributes(
		attribute.String("syncbus.subject", n.subject),
		attribute.String("doorlock.event", string(ev.Type)),
		attribute.String("doorlock.id", ev.ID),
	))
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := n.bus.Publish(ctx, n.subject, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}
