package sse

import (
	"strings"
	"testing"
	"time"
)

func recvWithin(t *testing.T, ch chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for event")
		}
		return msg
	case <-time.After(d):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	b.Publish(Event{Type: EventAssetCreated, Data: map[string]string{"id": "a1"}})

	for _, ch := range []chan []byte{ch1, ch2} {
		msg := string(recvWithin(t, ch, time.Second))
		if !strings.HasPrefix(msg, "event: asset.created\n") {
			t.Fatalf("frame = %q", msg)
		}
		if !strings.Contains(msg, `data: {"id":"a1"}`) {
			t.Fatalf("frame payload = %q", msg)
		}
		if !strings.HasSuffix(msg, "\n\n") {
			t.Fatalf("frame not terminated with blank line: %q", msg)
		}
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()

	if got := b.ClientCount(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if got := b.ClientCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	b.Unsubscribe(ch1)
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("count after unsubscribe = %d, want 1", got)
	}
	b.Unsubscribe(ch2)
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("count after both gone = %d, want 0", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got message")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestCloseShutsDownClients(t *testing.T) {
	b := NewBroker(time.Millisecond)
	ch := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client channel not closed on broker close")
	}

	// post-close calls are safe no-ops
	b.Publish(Event{Type: EventJobStatus, Data: "x"})
	b.PublishPlaybackState("p1", "x")
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("count after close = %d", got)
	}
	late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribe after close returned open channel")
	}
	b.Close() // idempotent
}

func TestPlaybackStateThrottled(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe()

	b.PublishPlaybackState("p1", map[string]int{"current_frame": 1})
	first := string(recvWithin(t, ch, time.Second))
	if !strings.HasPrefix(first, "event: playback.state\n") {
		t.Fatalf("frame = %q", first)
	}

	// within the throttle window: dropped
	b.PublishPlaybackState("p1", map[string]int{"current_frame": 2})
	select {
	case msg := <-ch:
		t.Fatalf("throttled event delivered: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// a different project has its own window
	b.PublishPlaybackState("p2", map[string]int{"current_frame": 1})
	other := string(recvWithin(t, ch, time.Second))
	if !strings.Contains(other, "playback.state") {
		t.Fatalf("frame = %q", other)
	}
}

func TestPlaybackStateAfterWindow(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()

	b.PublishPlaybackState("p1", map[string]int{"current_frame": 1})
	recvWithin(t, ch, time.Second)

	time.Sleep(20 * time.Millisecond)
	b.PublishPlaybackState("p1", map[string]int{"current_frame": 2})
	msg := string(recvWithin(t, ch, time.Second))
	if !strings.Contains(msg, `"current_frame":2`) {
		t.Fatalf("frame = %q", msg)
	}
}

func TestSlowClientDoesNotBlockBroker(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()

	slow := b.Subscribe() // never drained
	fast := b.Subscribe()

	// overflow the slow client's buffer
	for i := 0; i < 200; i++ {
		b.Publish(Event{Type: EventJobStatus, Data: i})
	}

	// the fast client still receives; the broker loop never deadlocked
	recvWithin(t, fast, time.Second)
	if got := b.ClientCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	b.Unsubscribe(slow)
}
