package watchbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

func TestInMemoryWatchBus(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, err := bus.Watch(ctx, "foo")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := bus.Publish(ctx, "foo", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, "bar", []byte("other")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-ch:
		if string(msg) != "hello" {
			t.Fatalf("unexpected %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	if err := bus.Unwatch(ctx, "foo", ch); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unwatch")
	}
	if err := bus.Unwatch(ctx, "foo", ch); err != nil {
		t.Fatalf("second unwatch: %v", err)
	}
}

func TestInMemoryWatchBusSlowWatcher(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, err := bus.Watch(ctx, "foo")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	for i := 0; i < watcherBuffer*2; i++ {
		if err := bus.Publish(ctx, "foo", []byte("x")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if len(ch) != watcherBuffer {
		t.Fatalf("expected %d buffered events, got %d", watcherBuffer, len(ch))
	}
}

func TestInMemoryWatchBusContextCancel(t *testing.T) {
	bus := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := bus.Watch(ctx, "foo"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	for i := 0; i < 100 && bus.Watchers("foo") != 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if bus.Watchers("foo") != 0 {
		t.Fatal("expected watcher removed after cancel")
	}
	if _, err := bus.Watch(ctx, "foo"); err == nil {
		t.Fatal("expected error watching with a cancelled context")
	}
}

func TestNotifierPublishesJSON(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, err := bus.Watch(ctx, LockTopic)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	in := lock.EnsureLocked(lock.API)
	ev := lock.NewEvent(lock.EventCommitted, in, time.Now())
	ev.Action, ev.State = "lock", "locked"
	if err := NewNotifier(bus, "").Notify(ctx, ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	var got lock.Event
	select {
	case msg := <-ch:
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	if got.Type != lock.EventCommitted || got.ID != in.ID || got.Source != "api" || got.State != "locked" {
		t.Fatalf("unexpected event %+v", got)
	}
}
