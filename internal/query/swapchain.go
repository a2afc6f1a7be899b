package query

import (
	"github.com/99souls/presentmon/internal/ring"
	"github.com/99souls/presentmon/pkg/pmapi"
)

// fanSpeedCaps indexes TelemetryCapability bits by fan array index.
var fanSpeedCaps = [5]ring.TelemetryCapability{
	ring.CapFanSpeed0, ring.CapFanSpeed1, ring.CapFanSpeed2, ring.CapFanSpeed3, ring.CapFanSpeed4,
}

// swapChainData is the per-swap-chain rolling window accumulated during
// one aggregate walk (spec.md §4.4 step 7), grounded directly on
// ConcreteMiddleware.cpp's fps_swap_chain_data. Sample vectors are ordered
// newest-first, since the walk appends while stepping backward in time
// from the most recent frame.
type swapChainData struct {
	// "first" fields track the most-recently-processed frame for this
	// chain; each new frame becomes the "first" and the previous "first"
	// becomes the "next" values used to derive the interval below it.
	presentStart0      uint64
	presentStop0       uint64
	gpuDuration0       uint64
	displayed0         bool
	display0ScreenTime uint64
	display1ScreenTime uint64
	displayCount       uint32
	numPresents        uint32

	FrameTimesMs  []float64
	CPUBusyMs     []float64
	CPUWaitMs     []float64
	GPUBusyMs     []float64
	DisplayBusyMs []float64
	Dropped       []float64
	DisplayedFPS  []float64
	PresentedFPS  []float64

	GPUPowerW      []float64
	GPUTempC       []float64
	CPUUtilPercent []float64
	FanSpeedRPM    [5][]float64
}

// observe folds one frame (walked in backward/newest-first order) into
// the chain's rolling window (spec.md §4.4 step 7).
func (c *swapChainData) observe(frame ring.FrameRecord, ticksPerSecond uint64) {
	nextPresentStart := c.presentStart0
	nextPresentStop := c.presentStop0
	nextGPUDuration := c.gpuDuration0

	c.displayed0 = frame.FinalState == ring.FinalStatePresented
	c.presentStart0 = frame.PresentStartQPC
	c.presentStop0 = frame.PresentStopQPC
	c.gpuDuration0 = frame.GPUDurationQPC
	c.numPresents++

	if c.displayed0 {
		c.display1ScreenTime = c.display0ScreenTime
		c.display0ScreenTime = frame.ScreenTimeQPC
		c.displayCount++
	}

	if frame.Telemetry.Has(ring.CapGPUPower) {
		c.GPUPowerW = append(c.GPUPowerW, frame.Telemetry.GPUPowerWatts)
	}
	if frame.Telemetry.Has(ring.CapGPUTemperature) {
		c.GPUTempC = append(c.GPUTempC, frame.Telemetry.GPUTempCelsius)
	}
	if frame.Telemetry.Has(ring.CapCPUUtilization) {
		c.CPUUtilPercent = append(c.CPUUtilPercent, frame.Telemetry.CPUUtilPercent)
	}
	for i, cap := range fanSpeedCaps {
		if frame.Telemetry.Has(cap) {
			c.FanSpeedRPM[i] = append(c.FanSpeedRPM[i], frame.Telemetry.FanSpeedRPM[i])
		}
	}

	if c.numPresents <= 1 {
		return
	}

	cpuStart := frame.PresentStopQPC
	cpuBusy := nextPresentStart - cpuStart
	cpuWait := nextPresentStop - nextPresentStart
	gpuBusy := nextGPUDuration
	displayBusy := c.display1ScreenTime - c.display0ScreenTime

	frameTimeMs := ticksToMs(cpuBusy+cpuWait, ticksPerSecond)
	gpuBusyMs := ticksToMs(gpuBusy, ticksPerSecond)
	displayBusyMs := ticksToMs(displayBusy, ticksPerSecond)
	cpuBusyMs := ticksToMs(cpuBusy, ticksPerSecond)
	cpuWaitMs := ticksToMs(cpuWait, ticksPerSecond)

	c.FrameTimesMs = append(c.FrameTimesMs, frameTimeMs)
	c.GPUBusyMs = append(c.GPUBusyMs, gpuBusyMs)
	c.CPUBusyMs = append(c.CPUBusyMs, cpuBusyMs)
	c.CPUWaitMs = append(c.CPUWaitMs, cpuWaitMs)
	c.DisplayBusyMs = append(c.DisplayBusyMs, displayBusyMs)

	dropped := 0.0
	if !c.displayed0 {
		dropped = 1.0
	}
	c.Dropped = append(c.Dropped, dropped)

	if frameTimeMs > 0 {
		c.PresentedFPS = append(c.PresentedFPS, 1000/frameTimeMs)
	}
	if c.displayed0 && c.displayCount >= 2 && displayBusy > 0 {
		c.DisplayedFPS = append(c.DisplayedFPS, 1000/displayBusyMs)
	}
}

// vectorFor selects the sample vector implied by an element's metric
// (spec.md §4.4 step 8 "select the per-chain vector implied by the
// metric"). Metrics with no windowed representation yield nil, which
// computeStat treats as the empty-input zero sentinel.
func (c *swapChainData) vectorFor(metric pmapi.Metric, arrayIndex uint32) []float64 {
	switch metric {
	case pmapi.MetricFrameTime:
		return c.FrameTimesMs
	case pmapi.MetricCPUBusy:
		return c.CPUBusyMs
	case pmapi.MetricCPUWait:
		return c.CPUWaitMs
	case pmapi.MetricGPUBusy:
		return c.GPUBusyMs
	case pmapi.MetricDisplayBusy:
		return c.DisplayBusyMs
	case pmapi.MetricDroppedFrames:
		return c.Dropped
	case pmapi.MetricDisplayedFPS:
		return c.DisplayedFPS
	case pmapi.MetricPresentedFPS:
		return c.PresentedFPS
	case pmapi.MetricGPUPower:
		return c.GPUPowerW
	case pmapi.MetricGPUTemperature:
		return c.GPUTempC
	case pmapi.MetricCPUUtilization:
		return c.CPUUtilPercent
	case pmapi.MetricGPUFanSpeed:
		if int(arrayIndex) < len(c.FanSpeedRPM) {
			return c.FanSpeedRPM[arrayIndex]
		}
		return nil
	default:
		return nil
	}
}
