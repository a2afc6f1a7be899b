package events

import (
	"testing"
	"time"

	"github.com/99souls/presentmon/internal/telemetry/metrics"
	"github.com/stretchr/testify/require"
)

func TestBusBasicPublishSubscribe(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub, err := bus.Subscribe(10)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	ev := Event{Category: CategoryRing, Type: "ring_torn_down"}
	require.NoError(t, bus.Publish(ev))

	select {
	case got := <-sub.C():
		require.Equal(t, ev.Type, got.Type)
		require.Equal(t, ev.Category, got.Category)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusDropBehavior(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub, err := bus.Subscribe(1)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	for i := 0; i < 5; i++ {
		_ = bus.Publish(Event{Category: CategoryQuery, Type: "skew_step"})
	}
	stats := bus.Stats()
	require.NotZero(t, stats.Published)
	require.NotZero(t, stats.Dropped)
}

func TestMultipleSubscribersIndependentDrops(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub1, err := bus.Subscribe(2)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(2)
	require.NoError(t, err)
	defer func() { _ = sub1.Close() }()
	defer func() { _ = sub2.Close() }()

	for i := 0; i < 3; i++ {
		_ = bus.Publish(Event{Category: CategoryConfig, Type: "reload"})
	}

	stats := bus.Stats()
	require.Len(t, stats.PerSubscriberDrops, 2)
}

func TestPublishRequiresCategory(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	err := bus.Publish(Event{Type: "no_category"})
	require.Error(t, err)
}

// TestSubscribeFilteredOnlyDeliversMatchingCategories checks that a
// subscriber narrowed to query diagnostics does not receive control-pipe
// events.
func TestSubscribeFilteredOnlyDeliversMatchingCategories(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub, err := bus.SubscribeFiltered(10, CategoryQuery)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, bus.Publish(Event{Category: CategoryControlPipe, Type: "stream_started"}))
	require.NoError(t, bus.Publish(Event{Category: CategoryQuery, Type: "clock_skew_step"}))

	select {
	case got := <-sub.C():
		require.Equal(t, CategoryQuery, got.Category)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for filtered event")
	}

	select {
	case got := <-sub.C():
		t.Fatalf("unexpected second event delivered: %+v", got)
	default:
	}
}

func TestSubscribeFilteredWithNoCategoriesIsUnfiltered(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub, err := bus.SubscribeFiltered(10)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, bus.Publish(Event{Category: CategoryControlPipe, Type: "stream_started"}))
	select {
	case got := <-sub.C():
		require.Equal(t, CategoryControlPipe, got.Category)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}
