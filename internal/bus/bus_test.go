package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"wagate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	b.Publish(domain.Event{Type: domain.EventReady, BotNumber: "5511"})

	select {
	case ev := <-b.Subscribe():
		if ev.Type != domain.EventReady || ev.BotNumber != "5511" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.At.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PreservesOrder(t *testing.T) {
	b := New(8, testLogger())
	defer b.Close()

	types := []domain.EventType{domain.EventQR, domain.EventReady, domain.EventDisconnected}
	for _, typ := range types {
		b.Publish(domain.Event{Type: typ})
	}
	for i, want := range types {
		if got := (<-b.Subscribe()).Type; got != want {
			t.Fatalf("event %d: got %s, want %s", i, got, want)
		}
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
	b.Publish(domain.Event{Type: domain.EventQR})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New(1, testLogger())
	b.timeout = 20 * time.Millisecond
	defer b.Close()

	b.Publish(domain.Event{Type: domain.EventQR})
	start := time.Now()
	b.Publish(domain.Event{Type: domain.EventReady})
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected publish to wait before dropping")
	}

	if got := (<-b.Subscribe()).Type; got != domain.EventQR {
		t.Fatalf("expected first event to survive, got %s", got)
	}
	select {
	case ev := <-b.Subscribe():
		t.Fatalf("expected dropped event, got %+v", ev)
	default:
	}
}
