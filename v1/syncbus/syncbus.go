// Package syncbus publishes lock events to other processes: a home
// automation hub, an audit consumer, another controller's dashboard.
// Delivery is best effort; a failing broker never blocks the lock.
//
// The controller only publishes. Subscribe and Unsubscribe exist so a
// consumer, or a test, can check what reached a subject; nothing in the
// lock's own path reads from the bus.
package syncbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus provides a simple pub/sub mechanism for lock events. Producers in
// this module call Publish only.
type Bus interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Subscribe(ctx context.Context, subject string) (chan []byte, error)
	Unsubscribe(ctx context.Context, subject string, ch chan []byte) error
}

// Metrics exposes counters for published and delivered messages.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// InMemoryBus is a local implementation of Bus mainly for testing.
type InMemoryBus struct {
	mu        sync.Mutex
	subs      map[string][]chan []byte
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]chan []byte)}
}

// Publish implements Bus.Publish.
func (b *InMemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.published.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[subject] {
		select {
		case ch <- payload:
			b.delivered.Add(1)
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *InMemoryBus) Subscribe(ctx context.Context, subject string) (chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), subject, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, subject string, ch chan []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[subject] = removeChan(b.subs[subject], ch)
	if len(b.subs[subject]) == 0 {
		delete(b.subs, subject)
	}
	return nil
}

// Metrics returns the published and delivered counts.
func (b *InMemoryBus) Metrics() Metrics {
	return Metrics{Published: b.published.Load(), Delivered: b.delivered.Load()}
}

const subscriberBuffer = 16

// removeChan drops ch from chans and closes it if it was present.
func removeChan(chans []chan []byte, ch chan []byte) []chan []byte {
	for i, c := range chans {
		if c == ch {
			chans[i] = chans[len(chans)-1]
			close(c)
			return chans[:len(chans)-1]
		}
	}
	return chans
}

// fanOut delivers payload to every channel without blocking and returns
// how many accepted it.
func fanOut(chans []chan []byte, payload []byte) uint64 {
	var n uint64
	for _, ch := range chans {
		select {
		case ch <- payload:
			n++
		default:
		}
	}
	return n
}
