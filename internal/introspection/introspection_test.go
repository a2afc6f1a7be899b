package introspection

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/presentmon/internal/shm"
	"github.com/99souls/presentmon/pkg/pmapi"
	"github.com/stretchr/testify/require"
)

func freshSegmentName(t *testing.T) string {
	t.Helper()
	shm.Dir = t.TempDir()
	return "test-introspection"
}

func TestPublishAndOpenRoundTrip(t *testing.T) {
	name := freshSegmentName(t)
	pub, err := NewPublisher(name)
	require.NoError(t, err)
	defer pub.Close()

	root := BuildDefaultRoot()
	require.NoError(t, pub.Publish(root))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := Open(ctx, name)
	require.NoError(t, err)
	require.Len(t, got.Metrics, len(root.Metrics))
	require.Len(t, got.Enums, len(root.Enums))
}

// TestGPUFanSpeedAdvertisesFiveArraySlots guards against the catalog
// telling clients only index 0 is valid while the query engine's
// gpuBitForFanIndex accepts 0-4 (spec.md §4.2's catalog is supposed to be
// a client's complete self-description of what it can register).
func TestGPUFanSpeedAdvertisesFiveArraySlots(t *testing.T) {
	root := BuildDefaultRoot()
	for _, m := range root.Metrics {
		if m.ID != pmapi.MetricGPUFanSpeed {
			continue
		}
		require.Len(t, m.DeviceMetricInfo, 1)
		require.Equal(t, uint32(5), m.DeviceMetricInfo[0].ArraySize)
		return
	}
	t.Fatal("GPUFanSpeed metric not found in default catalog")
}

func TestCloneIdempotenceAndTightness(t *testing.T) {
	root := BuildDefaultRoot()

	probeTotal := root.Probe()
	cloned1, bumpTotal1 := root.Clone()
	cloned2, bumpTotal2 := root.Clone()

	require.Equal(t, probeTotal, bumpTotal1)
	require.Equal(t, bumpTotal1, bumpTotal2)
	require.NotSame(t, cloned1, cloned2)
	require.Equal(t, len(cloned1.Metrics.Items), len(cloned2.Metrics.Items))
	require.Equal(t, len(cloned1.Enums.Items), len(cloned2.Enums.Items))
}

func TestOpenFailsWithoutPublisher(t *testing.T) {
	name := freshSegmentName(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Open(ctx, name)
	require.Error(t, err)
}

func TestReadinessRaceReaderBlocksUntilPost(t *testing.T) {
	name := freshSegmentName(t)
	pub, err := NewPublisher(name)
	require.NoError(t, err)
	defer pub.Close()

	segment, err := shm.OpenSegment(name)
	require.NoError(t, err)
	defer segment.Close()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := Open(ctx, name)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("reader returned before the catalog was published")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pub.Publish(BuildDefaultRoot()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never unblocked after publish")
	}
}
