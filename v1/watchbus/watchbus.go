// Package watchbus streams lock events to local watchers: browsers on the
// status page, API clients holding an SSE or WebSocket connection.
package watchbus

import (
	"context"
	"encoding/json"

	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// LockTopic is the topic lock events are published on.
const LockTopic = "lock"

// WatchBus provides a simple message bus for streaming events.
// Clients can publish messages to a topic and watch for updates.
type WatchBus interface {
	// Publish sends the given data to all watchers of topic.
	Publish(ctx context.Context, topic string, data []byte) error
	// Watch subscribes to messages for topic. Returned channel receives
	// message payloads until the context is canceled or Unwatch is called.
	Watch(ctx context.Context, topic string) (chan []byte, error)
	// Unwatch stops delivering messages for topic to ch.
	Unwatch(ctx context.Context, topic string, ch chan []byte) error
}

// Notifier publishes lock events as JSON on a WatchBus topic.
type Notifier struct {
	bus   WatchBus
	topic string
}

// NewNotifier returns a Notifier for bus. An empty topic means LockTopic.
func NewNotifier(bus WatchBus, topic string) *Notifier {
	if topic == "" {
		topic = LockTopic
	}
	return &Notifier{bus: bus, topic: topic}
}

// Notify implements lock.Notifier.
func (n *Notifier) Notify(ctx context.Context, ev lock.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.bus.Publish(ctx, n.topic, data)
}
