package events

import (
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe("u1")
	s2 := b.Subscribe("u1")
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(s1)
	b.Unsubscribe(s1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Count())
	}
	if _, ok := <-s1.C; ok {
		t.Fatal("expected closed channel")
	}

	b.Unsubscribe(s2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestPublishFiltersByUser(t *testing.T) {
	b := NewBroadcaster()
	mine := b.Subscribe("u1")
	other := b.Subscribe("u2")
	defer b.Unsubscribe(mine)
	defer b.Unsubscribe(other)

	b.Notifier("u1", "files-1")("/docs/")

	select {
	case ev := <-mine.C:
		if ev.Type != EventChanged || ev.Path != "/docs/" || ev.WidgetID != "files-1" {
			t.Errorf("unexpected event %+v", ev)
		}
		if ev.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-other.C:
		t.Fatalf("u2 received u1's event %+v", ev)
	default:
	}
}

func TestPublishDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("u1")
	defer b.Unsubscribe(sub)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventChanged, UID: "u1", Path: "/"})
	}
	if len(sub.C) != cap(sub.C) {
		t.Fatalf("expected full buffer, got %d/%d", len(sub.C), cap(sub.C))
	}
}

func TestMarshalEventHidesUID(t *testing.T) {
	data, err := MarshalEvent(Event{Type: EventChanged, UID: "secret-uid", Path: "/a/", Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-uid") {
		t.Fatalf("uid leaked: %s", data)
	}
	if !strings.Contains(string(data), `"path":"/a/"`) {
		t.Fatalf("unexpected json: %s", data)
	}
}
