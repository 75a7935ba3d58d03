package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/sei"
)

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var collected []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events so far", len(collected))
		}
	}
}

func TestProgressStreamEmitsProgressThenDone(t *testing.T) {
	fake := newFakeSEI(0, 60)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	events := collectEvents(t, service.ProgressStream(context.Background(), "tok", "123", "110000001"))
	if len(events) < 2 {
		t.Fatalf("got %d events, want progress frames plus done", len(events))
	}

	last := events[len(events)-1]
	if last.Type != StreamDone {
		t.Fatalf("final event is %q, want done", last.Type)
	}
	if last.Envelope == nil || len(last.Envelope.Andamentos) != 60 {
		t.Fatalf("done event envelope: %+v", last.Envelope)
	}
	if last.Envelope.Info.Parcial {
		t.Error("streamed envelope marked partial")
	}

	previousLoaded := 0
	for _, event := range events[:len(events)-1] {
		if event.Type != StreamProgress {
			t.Fatalf("unexpected %q event before done", event.Type)
		}
		if event.Loaded < previousLoaded {
			t.Errorf("progress went backwards: %d after %d", event.Loaded, previousLoaded)
		}
		if event.Total != 60 {
			t.Errorf("progress event total = %d, want 60", event.Total)
		}
		previousLoaded = event.Loaded
	}

	var cached Envelope
	if err := cache.GetJSON(context.Background(), store, cache.ProgressKey("123", "110000001"), &cached); err != nil {
		t.Fatalf("completed stream did not cache the envelope: %v", err)
	}
}

func TestProgressStreamCacheHitEmitsDoneOnly(t *testing.T) {
	fake := newFakeSEI(0, 60)
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	seeded := progressEnvelope("456", []sei.Andamento{{Descricao: "concluido"}}, 1, false)
	if err := cache.SetJSON(context.Background(), store, cache.ProgressKey("456", "110000001"), seeded, time.Hour); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	events := collectEvents(t, service.ProgressStream(context.Background(), "tok", "456", "110000001"))
	if len(events) != 1 || events[0].Type != StreamDone {
		t.Fatalf("cache hit produced %+v, want a single done event", events)
	}
	if fake.eventCalls != 0 {
		t.Errorf("cache hit made %d upstream calls", fake.eventCalls)
	}
}

func TestProgressStreamDiscoveryFailureEmitsError(t *testing.T) {
	fake := newFakeSEI(0, 60)
	fake.pageFailures[1] = 100
	store := cache.NewMemory()
	service := newTestService(fake, store, nil)

	events := collectEvents(t, service.ProgressStream(context.Background(), "tok", "789", "110000001"))
	if len(events) != 1 || events[0].Type != StreamError {
		t.Fatalf("got %+v, want a single error event", events)
	}
	if events[0].Message == "" {
		t.Error("error event has no message")
	}
}
