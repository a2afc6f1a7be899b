package query

import (
	"fmt"
	"sync"

	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/pkg/pmapi"
)

// Element is one (metric, statistic) tuple a query reports, after
// registration has assigned its packed byte-offset (spec.md §4.4
// "Registration").
type Element struct {
	Metric     pmapi.Metric
	Stat       pmapi.Stat
	DeviceID   uint32
	ArrayIndex uint32
	ByteOffset uint64
	ByteSize   uint64
}

// fpsFamily is the metric set that drives the FPS accumulation flag
// (spec.md §4.4 "an FPS accumulation flag (for frame-time/FPS/GPU-busy/
// CPU-busy/CPU-wait/display-busy family)").
var fpsFamily = map[pmapi.Metric]bool{
	pmapi.MetricPresentedFPS: true,
	pmapi.MetricDisplayedFPS: true,
	pmapi.MetricFrameTime:    true,
	pmapi.MetricGPUBusy:      true,
	pmapi.MetricCPUBusy:      true,
	pmapi.MetricCPUWait:      true,
	pmapi.MetricDisplayBusy:  true,
}

var validStats = map[pmapi.Stat]bool{
	pmapi.StatAvg: true, pmapi.StatPercentile99: true, pmapi.StatPercentile95: true,
	pmapi.StatPercentile90: true, pmapi.StatMax: true, pmapi.StatMin: true, pmapi.StatRaw: true,
}

// Handle is a registered dynamic query: immutable apart from the rolling
// clock-skew delta (spec.md §3 "Dynamic Query Handle").
type Handle struct {
	ProcessID      uint32
	WindowSizeMs   float64
	MetricOffsetMs float64
	Elements       []Element

	// CompiledMetrics records which statistics were requested per metric,
	// mirroring the original's compiledMetrics map built during
	// registration.
	CompiledMetrics map[pmapi.Metric][]pmapi.Stat

	AccumFPSData bool
	AccumGPUBits ring.TelemetryCapability

	mu             sync.Mutex
	frameDataDelta uint64 // 0 means "not yet observed" (spec.md §4.4 step 5)
}

// RowSize is the total byte width of one swap-chain's output row: the sum
// of every element's byte size (spec.md §4.4 step 9).
func (h *Handle) RowSize() uint64 {
	var size uint64
	for _, e := range h.Elements {
		size += e.ByteSize
	}
	return size
}

func gpuBitForFanIndex(idx uint32) (ring.TelemetryCapability, error) {
	switch idx {
	case 0:
		return ring.CapFanSpeed0, nil
	case 1:
		return ring.CapFanSpeed1, nil
	case 2:
		return ring.CapFanSpeed2, nil
	case 3:
		return ring.CapFanSpeed3, nil
	case 4:
		return ring.CapFanSpeed4, nil
	default:
		return 0, fmt.Errorf("query: invalid fan speed array index %d", idx)
	}
}
