package service

import (
	"testing"

	"github.com/99souls/presentmon/internal/query"
	"github.com/99souls/presentmon/internal/ringregistry"
	"github.com/99souls/presentmon/internal/shm"
	"github.com/99souls/presentmon/internal/telemetry/events"
	"github.com/99souls/presentmon/internal/telemetry/metrics"
	"github.com/stretchr/testify/require"
)

func freshRingDir(t *testing.T) {
	t.Helper()
	shm.Dir = t.TempDir()
}

// TestStreamHandlerRoundTrip matches spec.md §8 scenario 4 ("Start/Stop
// round-trip"): StartStream hands back a usable segment name and registers
// a reader; StopStream tears the ring down once the last client detaches.
func TestStreamHandlerRoundTrip(t *testing.T) {
	freshRingDir(t)

	registry := ringregistry.New(ringregistry.Config{MaxEntries: 8, TicksPerSecond: 1_000_000_000}, func(pid uint32) string {
		return "service-test-roundtrip"
	})
	readers := query.NewReaderSet()
	bus := events.NewBus(metrics.NewNoopProvider())
	sub, err := bus.Subscribe(4)
	require.NoError(t, err)
	defer sub.Close()

	h := NewStreamHandler(registry, readers, nil, bus)

	segment, err := h.StartStream(42, 7)
	require.NoError(t, err)
	require.NotEmpty(t, segment)

	_, ok := readers.Reader(42)
	require.True(t, ok)
	require.Equal(t, 1, registry.RefCount(42))

	select {
	case ev := <-sub.C():
		require.Equal(t, "stream_started", ev.Type)
	default:
		t.Fatal("expected a stream_started event")
	}

	require.NoError(t, h.StopStream(42, 7))
	require.Equal(t, 0, registry.RefCount(42))
	_, ok = readers.Reader(42)
	require.False(t, ok)
}

func TestStreamHandlerSharedAcrossClients(t *testing.T) {
	freshRingDir(t)

	registry := ringregistry.New(ringregistry.Config{MaxEntries: 8, TicksPerSecond: 1_000_000_000}, func(pid uint32) string {
		return "service-test-shared"
	})
	readers := query.NewReaderSet()
	h := NewStreamHandler(registry, readers, nil, nil)

	_, err := h.StartStream(10, 1)
	require.NoError(t, err)
	_, err = h.StartStream(10, 2)
	require.NoError(t, err)
	require.Equal(t, 2, registry.RefCount(10))

	require.NoError(t, h.StopStream(10, 1))
	_, ok := readers.Reader(10)
	require.True(t, ok, "reader stays open while a second client remains attached")

	require.NoError(t, h.StopStream(10, 2))
	_, ok = readers.Reader(10)
	require.False(t, ok)
}
