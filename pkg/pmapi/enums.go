// Package pmapi mirrors the stable C ABI the service exposes to client
// processes (spec.md §6): the enumerations, the PM_INTROSPECTION_* structs,
// and the four entry points. It is grounded directly on
// IntelPresentMon/PresentMonAPI2/source/PresentMonAPI.h from the original
// implementation (original_source/), translated to idiomatic Go constants
// and structs rather than cgo-exported types, since no cgo boundary is
// built here — the ABI shape is preserved for documentation and for any
// future binding layer, which is explicitly out of scope (spec.md §1).
package pmapi

// Status is PM_STATUS.
type Status int32

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSessionNotOpen
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusSessionNotOpen:
		return "SESSION_NOT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Metric is PM_METRIC: the set of measurable quantities the catalog can
// describe. The original ships five; the core's dynamic query engine
// (spec.md §4.4) needs the full frame/display/GPU-busy family plus the
// static process/adapter metrics it validates against, so the set is
// supplemented here from spec.md §4.4's named derived intervals.
type Metric int32

const (
	MetricDisplayedFPS Metric = iota
	MetricPresentedFPS
	MetricFrameTime
	MetricCPUBusy
	MetricCPUWait
	MetricGPUBusy
	MetricGPUPower
	MetricCPUUtilization
	MetricDisplayBusy
	MetricDroppedFrames
	MetricGPUFanSpeed
	MetricGPUTemperature
	MetricProcessName
	MetricSwapChainAddress
)

func (m Metric) String() string {
	switch m {
	case MetricDisplayedFPS:
		return "DISPLAYED_FPS"
	case MetricPresentedFPS:
		return "PRESENTED_FPS"
	case MetricFrameTime:
		return "FRAME_TIME"
	case MetricCPUBusy:
		return "CPU_BUSY"
	case MetricCPUWait:
		return "CPU_WAIT"
	case MetricGPUBusy:
		return "GPU_BUSY"
	case MetricGPUPower:
		return "GPU_POWER"
	case MetricCPUUtilization:
		return "CPU_UTILIZATION"
	case MetricDisplayBusy:
		return "DISPLAY_BUSY"
	case MetricDroppedFrames:
		return "DROPPED_FRAMES"
	case MetricGPUFanSpeed:
		return "GPU_FAN_SPEED"
	case MetricGPUTemperature:
		return "GPU_TEMPERATURE"
	case MetricProcessName:
		return "PROCESS_NAME"
	case MetricSwapChainAddress:
		return "SWAP_CHAIN_ADDRESS"
	default:
		return "UNKNOWN"
	}
}

// MetricType distinguishes metrics the query engine computes from a time
// window (Dynamic) from metrics that describe the system once (Static).
// Referenced directly by spec.md §4.4 ("the metric's type must be
// dynamic") and grounded on ConcreteMiddleware.cpp's
// PM_METRIC_TYPE_DYNAMIC check.
type MetricType int32

const (
	MetricTypeStatic MetricType = iota
	MetricTypeDynamic
)

// DeviceVendor is PM_GPU_VENDOR, renamed PM_DEVICE_VENDOR per the device
// model supplement (original_source notes a broader device taxonomy than
// GPUs alone; see DeviceType below).
type DeviceVendor int32

const (
	DeviceVendorIntel DeviceVendor = iota
	DeviceVendorNVIDIA
	DeviceVendorAMD
	DeviceVendorUnknown
)

func (v DeviceVendor) String() string {
	switch v {
	case DeviceVendorIntel:
		return "INTEL"
	case DeviceVendorNVIDIA:
		return "NVIDIA"
	case DeviceVendorAMD:
		return "AMD"
	default:
		return "UNKNOWN"
	}
}

// DeviceType is PM_DEVICE_TYPE, supplemented from the original's device
// registration surface (graphics adapters and the independent CPU package
// telemetry source).
type DeviceType int32

const (
	DeviceTypeGraphicsAdapter DeviceType = iota
	DeviceTypeCPU
	DeviceTypeUnknown
)

// MetricAvailability is PM_METRIC_AVAILABILITY: whether a (device, metric)
// pairing is currently backed by live data.
type MetricAvailability int32

const (
	MetricAvailable MetricAvailability = iota
	MetricUnavailable
)

// PresentMode is PM_PRESENT_MODE.
type PresentMode int32

const (
	PresentModeHardwareLegacyFlip PresentMode = iota
	PresentModeHardwareLegacyCopyToFrontBuffer
	PresentModeHardwareIndependentFlip
	PresentModeComposedFlip
	PresentModeHardwareComposedIndependentFlip
	PresentModeComposedCopyWithGPUGDI
	PresentModeComposedCopyWithCPUGDI
	PresentModeUnknown
)

// PSUType is PM_PSU_TYPE.
type PSUType int32

const (
	PSUTypeNone PSUType = iota
	PSUTypePCIe
	PSUType6Pin
	PSUType8Pin
)

// Unit is PM_UNIT.
type Unit int32

const (
	UnitDimensionless Unit = iota
	UnitBoolean
	UnitFPS
	UnitMilliseconds
	UnitPercent
	UnitWatts
	UnitSyncInterval
	UnitVolts
	UnitMegahertz
	UnitCelsius
	UnitRPM
	UnitBPS
	UnitBytes
)

// Stat is PM_STAT: the statistics the dynamic query engine can compute
// over a metric's windowed sample vector (spec.md §4.4 step 8).
type Stat int32

const (
	StatAvg Stat = iota
	StatPercentile99
	StatPercentile95
	StatPercentile90
	StatMax
	StatMin
	StatRaw
)

func (s Stat) String() string {
	switch s {
	case StatAvg:
		return "AVG"
	case StatPercentile99:
		return "P99"
	case StatPercentile95:
		return "P95"
	case StatPercentile90:
		return "P90"
	case StatMax:
		return "MAX"
	case StatMin:
		return "MIN"
	case StatRaw:
		return "RAW"
	default:
		return "UNKNOWN"
	}
}

// DataType is PM_DATA_TYPE.
type DataType int32

const (
	DataTypeDouble DataType = iota
	DataTypeInt32
	DataTypeUint32
	DataTypeEnum
	DataTypeString
)

// GraphicsRuntime is PM_GRAPHICS_RUNTIME.
type GraphicsRuntime int32

const (
	GraphicsRuntimeUnknown GraphicsRuntime = iota
	GraphicsRuntimeDXGI
	GraphicsRuntimeD3D9
)

// EnumID is PM_ENUM: identifies which of the above enumerations a given
// IntrospectionEnum node describes, so the catalog can self-describe its
// own enum set.
type EnumID int32

const (
	EnumIDStatus EnumID = iota
	EnumIDMetric
	EnumIDDeviceVendor
	EnumIDDeviceType
	EnumIDPresentMode
	EnumIDPSUType
	EnumIDUnit
	EnumIDStat
	EnumIDDataType
	EnumIDGraphicsRuntime
	EnumIDMetricAvailability
)
