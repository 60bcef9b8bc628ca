package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBusBuffersAndFlushes(t *testing.T) {
	bus := NewBus(BusWithSubscriberCapacity(4))
	first := Event{ID: "evt-1", Name: EventWorkspaceInitialized}
	second := Event{ID: "evt-2", Name: EventWorkspaceInitialized}
	bus.Route(first)
	bus.Route(second)
	sub := bus.Subscribe(EventWorkspaceInitialized)
	defer sub.Close()
	if got := <-sub.Events; got.ID != first.ID {
		t.Fatalf("expected first buffered event, got %s", got.ID)
	}
	if got := <-sub.Events; got.ID != second.ID {
		t.Fatalf("expected second buffered event, got %s", got.ID)
	}
}

func TestBusWildcardReceivesEverything(t *testing.T) {
	bus := NewBus()
	all := bus.Subscribe(Wildcard)
	defer all.Close()
	named := bus.Subscribe(EventAgentsActivated)
	defer named.Close()
	if err := bus.Emit(context.Background(), Event{Name: EventAgentsActivated}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := bus.Emit(context.Background(), Event{Name: EventModeCompleted}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := <-named.Events; got.Name != EventAgentsActivated {
		t.Fatalf("named subscriber got %s", got.Name)
	}
	select {
	case got := <-named.Events:
		t.Fatalf("named subscriber should not see %s", got.Name)
	default:
	}
	for _, want := range []string{EventAgentsActivated, EventModeCompleted} {
		if got := <-all.Events; got.Name != want {
			t.Fatalf("wildcard got %s, want %s", got.Name, want)
		}
	}
}

func TestBusDedupeByEventID(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventAgentsActivated)
	defer sub.Close()
	event := Event{ID: "evt-1", Name: EventAgentsActivated}
	bus.Route(event)
	bus.Route(event)
	select {
	case got := <-sub.Events:
		if got.ID != event.ID {
			t.Fatalf("unexpected event: %s", got.ID)
		}
	default:
		t.Fatalf("expected first delivery")
	}
	select {
	case <-sub.Events:
		t.Fatalf("duplicate event delivered")
	default:
	}
}

func TestBusKeepsCriticalEventOnOverflow(t *testing.T) {
	bus := NewBus(BusWithSubscriberCapacity(1))
	sub := bus.Subscribe(Wildcard)
	defer sub.Close()
	bus.Route(Event{ID: "evt-1", Name: EventAgentsActivated})
	bus.Route(Event{ID: "evt-2", Name: EventModeFailed})
	if got := <-sub.Events; got.ID != "evt-2" {
		t.Fatalf("expected critical event to replace oldest, got %s", got.ID)
	}
	bus.Route(Event{ID: "evt-3", Name: EventModeCompleted})
	bus.Route(Event{ID: "evt-4", Name: EventAgentsActivated})
	if got := <-sub.Events; got.ID != "evt-3" {
		t.Fatalf("expected critical event to survive, got %s", got.ID)
	}
}

func TestBusOverflowPreservesOrder(t *testing.T) {
	bus := NewBus(BusWithSubscriberCapacity(3))
	sub := bus.Subscribe(Wildcard)
	defer sub.Close()
	bus.Route(Event{ID: "evt-1", Name: EventModeCompleted})
	bus.Route(Event{ID: "evt-2", Name: EventAgentsActivated})
	bus.Route(Event{ID: "evt-3", Name: EventWorkspaceInitialized})
	bus.Route(Event{ID: "evt-4", Name: EventAgentsActivated})
	bus.Route(Event{ID: "evt-5", Name: EventModeFailed})
	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, (<-sub.Events).ID)
	}
	if diff := cmp.Diff([]string{"evt-2", "evt-3", "evt-5"}, got); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitNormalizesAndValidates(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventModeCompleted)
	defer sub.Close()
	if err := bus.Emit(context.Background(), Event{Name: "  " + EventModeCompleted + " "}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := <-sub.Events
	if got.ID == "" || got.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp defaults, got %+v", got)
	}
	if err := bus.Emit(context.Background(), Event{}); err == nil {
		t.Fatalf("expected missing name error")
	}
	if err := bus.Emit(context.Background(), Event{Name: Wildcard}); err == nil {
		t.Fatalf("expected wildcard name error")
	}
}

func TestEmitHonorsContextAndClose(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Emit(ctx, Event{Name: EventModeCompleted}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	sub := bus.Subscribe(EventModeCompleted)
	bus.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected subscription channel closed")
	}
	if err := bus.Emit(context.Background(), Event{Name: EventModeCompleted}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	late := bus.Subscribe(EventModeCompleted)
	if _, ok := <-late.Events; ok {
		t.Fatalf("subscriptions after close should be closed")
	}
}

func TestNewStampsEvent(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.FixedZone("X", 3600))
	evt := New(EventAgentsActivated, map[string]int{"n": 1}, now)
	if evt.ID == "" || !evt.Timestamp.Equal(now) || evt.Timestamp.Location() != time.UTC {
		t.Fatalf("unexpected event %+v", evt)
	}
	if got := Timestamp(now); got != "2026-10-19T11:00:00Z" {
		t.Fatalf("Timestamp = %s", got)
	}
}

func TestEmitterFunc(t *testing.T) {
	var got string
	emitter := EmitterFunc(func(_ context.Context, e Event) error {
		got = e.Name
		return nil
	})
	if err := emitter.Emit(context.Background(), Event{Name: "x"}); err != nil || got != "x" {
		t.Fatalf("emitter func not invoked: %v %q", err, got)
	}
	var nilFunc EmitterFunc
	if err := nilFunc.Emit(context.Background(), Event{}); err != nil {
		t.Fatalf("nil emitter func should be a no-op")
	}
}
