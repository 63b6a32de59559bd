package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	b.Publish(Event{Kind: "store.chat_updated", Payload: int64(7)})

	select {
	case evt := <-ch:
		if evt.Kind != "store.chat_updated" {
			t.Errorf("got kind %q, want store.chat_updated", evt.Kind)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("file.", 10)
	defer unsub()

	b.Publish(Event{Kind: "store.message_updated"})
	b.Publish(Event{Kind: "file.updated"})

	select {
	case evt := <-ch:
		if evt.Kind != "file.updated" {
			t.Errorf("got kind %q, want file.updated", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	unsub()

	b.Publish(Event{Kind: "store.chat_updated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}
