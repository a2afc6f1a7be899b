package query

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/99souls/presentmon/internal/introspection"
	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/internal/shm"
	"github.com/99souls/presentmon/internal/telemetry/events"
	"github.com/99souls/presentmon/internal/telemetry/metrics"
	"github.com/99souls/presentmon/pkg/pmapi"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the clock-skew-smoothing scenario
// deterministically (spec.md §8 "Clock-skew adaptation").
type fakeClock struct{ qpc uint64 }

func (c *fakeClock) NowQPC() uint64 { return c.qpc }

func freshRingDir(t *testing.T) {
	t.Helper()
	shm.Dir = t.TempDir()
}

// writeFrames pushes n presented frames on one swap chain spaced
// intervalTicks apart in present-start time, all at ticksPerSecond
// resolution, ending at the given last present-start qpc.
func writeFrames(t *testing.T, name string, n int, intervalTicks, lastStartQPC, ticksPerSecond uint64) *ring.Writer {
	t.Helper()
	w, err := ring.NewWriter(name, uint64(n+1), ticksPerSecond)
	require.NoError(t, err)
	start := lastStartQPC - uint64(n-1)*intervalTicks
	for i := 0; i < n; i++ {
		presentStart := start + uint64(i)*intervalTicks
		w.Push(ring.FrameRecord{
			SwapChainAddress: 0xCAFE,
			PresentStartQPC:  presentStart,
			PresentStopQPC:   presentStart + intervalTicks/4,
			GPUDurationQPC:   intervalTicks / 8,
			ScreenTimeQPC:    presentStart + intervalTicks/2,
			FinalState:       ring.FinalStatePresented,
		})
	}
	return w
}

func TestRegisterRejectsStaticMetric(t *testing.T) {
	catalog := introspection.BuildDefaultRoot()
	engine := NewEngine(catalog, NewReaderSet(), nil)
	_, err := engine.Register([]Element{{Metric: pmapi.MetricProcessName, Stat: pmapi.StatAvg}}, 1, 100, 0)
	require.Error(t, err)
}

func TestRegisterRejectsInvalidFanIndex(t *testing.T) {
	catalog := introspection.BuildDefaultRoot()
	engine := NewEngine(catalog, NewReaderSet(), nil)
	_, err := engine.Register([]Element{{Metric: pmapi.MetricGPUFanSpeed, Stat: pmapi.StatAvg, ArrayIndex: 9}}, 1, 100, 0)
	require.Error(t, err)
}

func TestRegisterAssignsPackedOffsets(t *testing.T) {
	catalog := introspection.BuildDefaultRoot()
	engine := NewEngine(catalog, NewReaderSet(), nil)
	h, err := engine.Register([]Element{
		{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatAvg},
		{Metric: pmapi.MetricDisplayedFPS, Stat: pmapi.StatAvg},
	}, 1, 100, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), h.Elements[0].ByteOffset)
	require.Equal(t, uint64(8), h.Elements[1].ByteOffset)
	require.True(t, h.AccumFPSData)
	require.Equal(t, uint64(16), h.RowSize())
}

func TestPollAbsentProcessReturnsZeroSwapChains(t *testing.T) {
	catalog := introspection.BuildDefaultRoot()
	engine := NewEngine(catalog, NewReaderSet(), &fakeClock{qpc: 1_000_000})
	h, err := engine.Register([]Element{{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatAvg}}, 1, 100, 0)
	require.NoError(t, err)

	blob := make([]byte, 8)
	n, addrs, err := engine.Poll(h, blob, 4)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, addrs)
}

// TestPollFrameTimeAverage matches spec.md §8 scenario 5 ("Dynamic query
// window"): ten presented frames 16.6 ms apart, window=100ms, offset=0
// should yield frame-time AVG ~16.6ms and displayed-FPS AVG ~60.
func TestPollFrameTimeAverage(t *testing.T) {
	freshRingDir(t)
	const ticksPerSecond = 1_000_000_000
	intervalTicks := uint64(16_600_000) // 16.6ms in ns-resolution ticks
	lastStart := uint64(1_000_000_000_000)
	w := writeFrames(t, "query-test-frametime", 10, intervalTicks, lastStart, ticksPerSecond)
	defer w.Close()

	reader, err := ring.OpenReader(w.Name())
	require.NoError(t, err)
	defer reader.Close()

	readers := NewReaderSet()
	readers.Put(42, reader)

	catalog := introspection.BuildDefaultRoot()
	clock := &fakeClock{qpc: lastStart + intervalTicks/2}
	engine := NewEngine(catalog, readers, clock)

	h, err := engine.Register([]Element{
		{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatAvg},
		{Metric: pmapi.MetricDisplayedFPS, Stat: pmapi.StatAvg},
	}, 42, 100, 0)
	require.NoError(t, err)

	blob := make([]byte, int(h.RowSize()))
	n, addrs, err := engine.Poll(h, blob, 4)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []uint64{0xCAFE}, addrs)

	frameTimeMs := math.Float64frombits(binary.LittleEndian.Uint64(blob[0:8]))
	fps := math.Float64frombits(binary.LittleEndian.Uint64(blob[8:16]))
	require.InDelta(t, 16.6, frameTimeMs, 0.1)
	require.InDelta(t, 60.0, fps, 1.0)
}

func TestPollRespectsSwapChainCapacity(t *testing.T) {
	freshRingDir(t)
	const ticksPerSecond = 1_000_000_000
	w, err := ring.NewWriter("query-test-capacity", 16, ticksPerSecond)
	require.NoError(t, err)
	defer w.Close()

	base := uint64(1_000_000_000_000)
	for i := 0; i < 8; i++ {
		w.Push(ring.FrameRecord{
			SwapChainAddress: uint64(i % 3),
			PresentStartQPC:  base + uint64(i)*16_600_000,
			PresentStopQPC:   base + uint64(i)*16_600_000 + 1_000_000,
			FinalState:       ring.FinalStatePresented,
		})
	}

	reader, err := ring.OpenReader(w.Name())
	require.NoError(t, err)
	defer reader.Close()

	readers := NewReaderSet()
	readers.Put(7, reader)

	catalog := introspection.BuildDefaultRoot()
	clock := &fakeClock{qpc: base + 7*16_600_000 + 8_000_000}
	engine := NewEngine(catalog, readers, clock)

	h, err := engine.Register([]Element{{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatRaw}}, 7, 200, 0)
	require.NoError(t, err)

	blob := make([]byte, int(h.RowSize())*2)
	n, addrs, err := engine.Poll(h, blob, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, addrs, 2)
}

// TestPollBlobTooSmallReportsErrMoreData matches spec.md §7's transient
// I/O error stratum: a caller-sized blob that can't hold every row is an
// errors.Is-comparable ErrMoreData, not a fatal failure.
func TestPollBlobTooSmallReportsErrMoreData(t *testing.T) {
	freshRingDir(t)
	const ticksPerSecond = 1_000_000_000
	w, err := ring.NewWriter("query-test-more-data", 16, ticksPerSecond)
	require.NoError(t, err)
	defer w.Close()

	base := uint64(1_000_000_000_000)
	for i := 0; i < 8; i++ {
		w.Push(ring.FrameRecord{
			SwapChainAddress: uint64(i % 3),
			PresentStartQPC:  base + uint64(i)*16_600_000,
			PresentStopQPC:   base + uint64(i)*16_600_000 + 1_000_000,
			FinalState:       ring.FinalStatePresented,
		})
	}

	reader, err := ring.OpenReader(w.Name())
	require.NoError(t, err)
	defer reader.Close()

	readers := NewReaderSet()
	readers.Put(7, reader)

	catalog := introspection.BuildDefaultRoot()
	clock := &fakeClock{qpc: base + 7*16_600_000 + 8_000_000}
	engine := NewEngine(catalog, readers, clock)

	h, err := engine.Register([]Element{{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatRaw}}, 7, 200, 0)
	require.NoError(t, err)

	blob := make([]byte, int(h.RowSize())) // room for only 1 of 3 swap chains
	_, _, err = engine.Poll(h, blob, 3)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMoreData)
}

func TestClockSkewStepChangeAdopted(t *testing.T) {
	h := &Handle{}
	adjusted1, changed1 := h.adjustedQPC(1_000_000_000, 999_000_000, 0)
	require.Equal(t, uint64(1_000_000_000-1_000_000), adjusted1)
	require.Equal(t, uint64(1_000_000), h.frameDataDelta)
	require.False(t, changed1)

	// small change: delta stays put
	_, changed2 := h.adjustedQPC(2_000_000_000, 1_999_500_000, 0)
	require.Equal(t, uint64(1_000_000), h.frameDataDelta)
	require.False(t, changed2)

	// step change beyond threshold: delta is replaced
	_, changed3 := h.adjustedQPC(3_000_000_000, 2_900_000_000, 0)
	require.Equal(t, uint64(100_000_000), h.frameDataDelta)
	require.True(t, changed3)
}

func TestComputeStatEmptyYieldsZero(t *testing.T) {
	require.Equal(t, 0.0, computeStat(nil, pmapi.StatAvg))
	require.Equal(t, 0.0, computeStat(nil, pmapi.StatRaw))
}

func TestComputeStatRawIsMostRecent(t *testing.T) {
	require.Equal(t, 5.0, computeStat([]float64{5, 4, 3}, pmapi.StatRaw))
}

func TestComputeStatPercentile(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.InDelta(t, 10.0, computeStat(samples, pmapi.StatPercentile99), 0.1)
	require.InDelta(t, 5.5, computeStat(samples, pmapi.StatAvg), 0.01)
}

func TestReaderSetPutAndRemove(t *testing.T) {
	freshRingDir(t)
	w, err := ring.NewWriter("query-test-readerset", 4, 1)
	require.NoError(t, err)
	defer w.Close()
	reader, err := ring.OpenReader(w.Name())
	require.NoError(t, err)

	set := NewReaderSet()
	set.Put(1, reader)
	got, ok := set.Reader(1)
	require.True(t, ok)
	require.Same(t, reader, got)

	require.NoError(t, set.Remove(1))
	_, ok = set.Reader(1)
	require.False(t, ok)
}

// TestPollPublishesSkewStepEvent matches spec.md §8 scenario 6 ("Skew
// step"): a poll whose client-clock delta jumps by more than the 50M-tick
// threshold publishes a clock_skew_step diagnostic event.
func TestPollPublishesSkewStepEvent(t *testing.T) {
	freshRingDir(t)
	const ticksPerSecond = 1_000_000_000
	lastStart := uint64(1_000_000_000_000)
	w := writeFrames(t, "query-test-skew-event", 5, 16_600_000, lastStart, ticksPerSecond)
	defer w.Close()

	reader, err := ring.OpenReader(w.Name())
	require.NoError(t, err)
	defer reader.Close()

	readers := NewReaderSet()
	readers.Put(99, reader)

	catalog := introspection.BuildDefaultRoot()
	// Start half a frame past the newest frame so the first poll stores a
	// non-zero delta; a stored delta of zero means "not yet observed".
	clock := &fakeClock{qpc: lastStart + 8_300_000}
	engine := NewEngine(catalog, readers, clock)
	bus := events.NewBus(metrics.NewNoopProvider())
	engine.WithEvents(bus)
	sub, err := bus.Subscribe(4)
	require.NoError(t, err)
	defer sub.Close()

	h, err := engine.Register([]Element{{Metric: pmapi.MetricFrameTime, Stat: pmapi.StatAvg}}, 99, 100, 0)
	require.NoError(t, err)
	blob := make([]byte, int(h.RowSize()))

	_, _, err = engine.Poll(h, blob, 4)
	require.NoError(t, err)

	clock.qpc += 200_000_000 // jump far beyond the 50M-tick threshold
	_, _, err = engine.Poll(h, blob, 4)
	require.NoError(t, err)

	select {
	case ev := <-sub.C():
		require.Equal(t, events.CategoryQuery, ev.Category)
		require.Equal(t, "clock_skew_step", ev.Type)
	default:
		t.Fatal("expected a clock_skew_step event to be published")
	}
}

func TestGpuBitForFanIndexRejectsOutOfRange(t *testing.T) {
	_, err := gpuBitForFanIndex(5)
	require.Error(t, err)
	require.Contains(t, fmt.Sprint(err), "invalid fan speed")
}
