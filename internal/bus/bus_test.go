package bus

import (
	"testing"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New(nil)
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	set := zones.NewSet()
	set["A"] = &zones.Zone{P1: geometry.Point{X: 1, Y: 1}, P2: geometry.Point{X: 2, Y: 2}}
	b.Publish(Event{Platform: "plat1", Zones: set})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Platform != "plat1" || ev.Zones["A"] == nil {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("subscriber did not receive the event")
		}
	}
}

func TestPublishWithoutPayloadMeansRefetch(t *testing.T) {
	b := New(nil)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(Event{Platform: "plat2"})
	ev := <-ch
	if ev.Zones != nil {
		t.Fatalf("expected nil zones (refetch hint), got %v", ev.Zones)
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New(nil)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Fill the buffer and keep publishing; Publish must never block.
	for i := 0; i < 32; i++ {
		b.Publish(Event{Platform: "plat1"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer should be full, have %d", len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Fatalf("channel should be closed after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.SubscriberCount())
	}

	// Publishing with no subscribers is a no-op.
	b.Publish(Event{Platform: "plat1"})
}
