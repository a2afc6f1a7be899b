// Package ring implements the per-process frame ring (spec.md §3 "Frame
// Record", "Ring Header"; §4.3 "Ring write/read discipline"): a
// single-producer/single-consumer circular buffer of fixed-size frame
// records living in a named shared-memory segment.
package ring

import "github.com/99souls/presentmon/pkg/pmapi"

// FinalState is the frame's terminal disposition.
type FinalState int32

const (
	FinalStatePresented FinalState = iota
	FinalStateDropped
	FinalStateDiscarded
)

// TelemetryCapability bits gate which fields of TelemetryPayload are
// populated for a given frame, since not every device on every machine
// reports every quantity (spec.md §3 "gated by a capability bitset").
type TelemetryCapability uint32

const (
	CapGPUPower TelemetryCapability = 1 << iota
	CapGPUTemperature
	CapFanSpeed0
	CapFanSpeed1
	CapFanSpeed2
	CapFanSpeed3
	CapFanSpeed4
	CapCPUUtilization
)

// TelemetryPayload carries per-device power/fan/clock samples, present
// only when the corresponding TelemetryCapability bit is set.
type TelemetryPayload struct {
	Capabilities   TelemetryCapability
	GPUPowerWatts  float64
	GPUTempCelsius float64
	FanSpeedRPM    [5]float64
	CPUUtilPercent float64
}

// Has reports whether cap is present in this payload.
func (p TelemetryPayload) Has(cap TelemetryCapability) bool {
	return p.Capabilities&cap != 0
}

// FrameRecord is the fixed-size struct written by the service producer
// exactly once per present event (spec.md §3 "Frame Record").
type FrameRecord struct {
	SwapChainAddress uint64
	PresentStartQPC  uint64
	PresentStopQPC   uint64
	GPUDurationQPC   uint64
	ScreenTimeQPC    uint64
	SyncInterval     int32
	PresentMode      pmapi.PresentMode
	SupportsTearing  bool
	FinalState       FinalState
	Telemetry        TelemetryPayload
}
