package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/99souls/presentmon/internal/introspection"
	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/internal/telemetry/events"
	"github.com/99souls/presentmon/pkg/pmapi"
)

// skewThreshold is kClientFrameDeltaQPCThreshold from ConcreteMiddleware.cpp
// (spec.md §4.4 step 5, §8 "Clock-skew adaptation": "more than 50 000 000
// ticks between polls").
const skewThreshold uint64 = 50_000_000

// ErrMoreData is the transient-I/O stratum error for a Poll call whose
// caller-supplied blob is too small to hold every populated row: the
// caller's fixed allocation didn't keep pace with the swap chains
// currently present, the Windows PresentMon API's ERROR_MORE_DATA
// condition. Callers compare with errors.Is and retry with a larger blob,
// they do not treat it as fatal.
var ErrMoreData = errors.New("query: output blob too small")

// ReaderLookup resolves a process id to its open ring reader. The service
// wires this to its ringregistry; tests provide a map-backed fake.
type ReaderLookup interface {
	Reader(pid uint32) (*ring.Reader, bool)
}

// Engine registers and polls dynamic queries against a catalog and a set
// of per-process rings (spec.md §4.4).
type Engine struct {
	catalog *introspection.Root
	readers ReaderLookup
	clock   Clock
	bus     events.Bus
}

// NewEngine constructs an Engine. clock may be nil, defaulting to the
// system clock.
func NewEngine(catalog *introspection.Root, readers ReaderLookup, clock Clock) *Engine {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Engine{catalog: catalog, readers: readers, clock: clock}
}

// WithEvents attaches a diagnostics bus that Poll publishes clock-skew
// step-change events to (package events' documented "query" producer).
func (e *Engine) WithEvents(bus events.Bus) *Engine {
	e.bus = bus
	return e
}

// Register validates each requested element against the catalog and
// builds a Handle (spec.md §4.4 "Registration").
func (e *Engine) Register(elements []Element, processID uint32, windowSizeMs, metricOffsetMs float64) (*Handle, error) {
	h := &Handle{
		ProcessID:       processID,
		WindowSizeMs:    windowSizeMs,
		MetricOffsetMs:  metricOffsetMs,
		CompiledMetrics: map[pmapi.Metric][]pmapi.Stat{},
	}

	var offset uint64
	for i, qe := range elements {
		metric, ok := e.catalog.FindMetric(qe.Metric)
		if !ok {
			return nil, fmt.Errorf("query: element %d: unknown metric %s", i, qe.Metric)
		}
		if metric.Type != pmapi.MetricTypeDynamic {
			return nil, fmt.Errorf("query: element %d: metric %s is not dynamic", i, qe.Metric)
		}
		if !validStats[qe.Stat] {
			return nil, fmt.Errorf("query: element %d: invalid stat %d", i, qe.Stat)
		}
		if metric.TypeInfo.Type == pmapi.DataTypeString {
			return nil, fmt.Errorf("query: element %d: string outputs are prohibited in dynamic queries", i)
		}

		if fpsFamily[qe.Metric] {
			h.AccumFPSData = true
		}
		switch qe.Metric {
		case pmapi.MetricGPUPower:
			h.AccumGPUBits |= ring.CapGPUPower
		case pmapi.MetricGPUTemperature:
			h.AccumGPUBits |= ring.CapGPUTemperature
		case pmapi.MetricCPUUtilization:
			h.AccumGPUBits |= ring.CapCPUUtilization
		case pmapi.MetricGPUFanSpeed:
			bit, err := gpuBitForFanIndex(qe.ArrayIndex)
			if err != nil {
				return nil, fmt.Errorf("query: element %d: %w", i, err)
			}
			h.AccumGPUBits |= bit
		}

		qe.ByteOffset = offset
		qe.ByteSize = 8
		offset += qe.ByteSize
		h.Elements = append(h.Elements, qe)
		h.CompiledMetrics[qe.Metric] = append(h.CompiledMetrics[qe.Metric], qe.Stat)
	}
	return h, nil
}

func msToTicks(ms float64, ticksPerSecond uint64) uint64 {
	if ms <= 0 {
		return 0
	}
	return uint64(ms / 1000 * float64(ticksPerSecond))
}

func ticksToMs(ticks uint64, ticksPerSecond uint64) float64 {
	if ticksPerSecond == 0 {
		return 0
	}
	return float64(ticks) / (float64(ticksPerSecond) / 1000)
}

// adjustedQPC implements GetAdjustedQpc from ConcreteMiddleware.cpp,
// maintaining the handle's smoothed clock-skew delta (spec.md §4.4 step 5).
func (h *Handle) adjustedQPC(clientQPC, frameQPC, offsetTicks uint64) (adjusted uint64, stepChanged bool) {
	currentDelta := clientQPC - frameQPC

	h.mu.Lock()
	if h.frameDataDelta == 0 {
		h.frameDataDelta = currentDelta
	} else if absDeltaDiff(h.frameDataDelta, currentDelta) > skewThreshold {
		h.frameDataDelta = currentDelta
		stepChanged = true
	}
	delta := h.frameDataDelta
	h.mu.Unlock()

	return clientQPC - (delta + offsetTicks), stepChanged
}

func absDeltaDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Poll implements the nine-step polling procedure (spec.md §4.4
// "Polling"). blob must be at least capacity*h.RowSize() bytes; rows are
// written in swap-chain insertion order and swapChainAddrs[i] names the
// chain backing row i. numSwapChains is the number of rows actually
// populated (≤ capacity).
func (e *Engine) Poll(h *Handle, blob []byte, capacity int) (numSwapChains int, swapChainAddrs []uint64, err error) {
	if capacity == 0 {
		return 0, nil, nil
	}

	reader, ok := e.readers.Reader(h.ProcessID)
	if !ok {
		return 0, nil, nil
	}
	if !reader.ProcessActive() {
		return 0, nil, nil
	}

	clientQPC := e.clock.NowQPC()

	latestIdx, ok := reader.GetLatestFrameIndex()
	if !ok {
		return 0, nil, nil
	}
	frame := reader.ReadAt(latestIdx)
	idx := latestIdx

	ticksPerSecond := reader.TicksPerSecond()
	offsetTicks := msToTicks(h.MetricOffsetMs, ticksPerSecond)
	adjustedQPC, stepChanged := h.adjustedQPC(clientQPC, frame.PresentStartQPC, offsetTicks)
	if stepChanged && e.bus != nil {
		_ = e.bus.Publish(events.Event{
			Category: events.CategoryQuery,
			Type:     "clock_skew_step",
			Severity: "warn",
			Labels:   map[string]string{"process_id": fmt.Sprint(h.ProcessID)},
		})
	}

	windowMs := h.WindowSizeMs
	if adjustedQPC > frame.PresentStartQPC {
		overshootMs := ticksToMs(adjustedQPC-frame.PresentStartQPC, ticksPerSecond)
		windowMs -= overshootMs
		if windowMs <= 0 {
			return 0, nil, nil
		}
	} else {
		for frame.PresentStartQPC > adjustedQPC {
			nextIdx, okDec := reader.DecrementIndex(idx)
			if !okDec {
				break
			}
			idx = nextIdx
			frame = reader.ReadAt(idx)
		}
	}

	endQPC := uint64(0)
	windowTicks := msToTicks(windowMs, ticksPerSecond)
	if adjustedQPC > windowTicks {
		endQPC = adjustedQPC - windowTicks
	}

	chains := map[uint64]*swapChainData{}
	var order []uint64

	for frame.PresentStartQPC > endQPC {
		chain, seen := chains[frame.SwapChainAddress]
		if !seen {
			chain = &swapChainData{}
			chains[frame.SwapChainAddress] = chain
			order = append(order, frame.SwapChainAddress)
		}
		chain.observe(frame, ticksPerSecond)

		nextIdx, okDec := reader.DecrementIndex(idx)
		if !okDec {
			break
		}
		idx = nextIdx
		frame = reader.ReadAt(idx)
	}

	if len(order) > capacity {
		order = order[:capacity]
	}

	rowSize := int(h.RowSize())
	for row, addr := range order {
		chain := chains[addr]
		base := row * rowSize
		for _, el := range h.Elements {
			values := chain.vectorFor(el.Metric, el.ArrayIndex)
			result := computeStat(values, el.Stat)
			offset := base + int(el.ByteOffset)
			if offset+8 > len(blob) {
				return 0, nil, fmt.Errorf("query: poll %d swap-chains: %w", len(order), ErrMoreData)
			}
			binary.LittleEndian.PutUint64(blob[offset:offset+8], math.Float64bits(result))
		}
	}

	return len(order), order, nil
}
