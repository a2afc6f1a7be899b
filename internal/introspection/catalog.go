package introspection

import "github.com/99souls/presentmon/pkg/pmapi"

// BuildDefaultRoot populates a Root the way the service does at startup:
// every enumeration the pmapi package exports, the full dynamic metric
// family the query engine computes over (spec.md §4.4), and two placeholder
// devices (a graphics adapter with id 0 and a CPU with id 1) so metrics have
// (device-id, availability, array-size) triples to reference. Real device
// enumeration (vendor power-library loaders) is out of scope (spec.md §1);
// callers may append additional devices to root.Devices before publishing.
func BuildDefaultRoot() *Root {
	root := &Root{}
	populateEnums(root)
	populateDevices(root)
	populateMetrics(root)
	return root
}

func populateDevices(root *Root) {
	root.Devices = append(root.Devices, Device{
		ID: 0, Type: pmapi.DeviceTypeGraphicsAdapter, Vendor: pmapi.DeviceVendorUnknown, Name: "default-adapter",
	})
	root.Devices = append(root.Devices, Device{
		ID: 1, Type: pmapi.DeviceTypeCPU, Vendor: pmapi.DeviceVendorUnknown, Name: "default-cpu",
	})
}

// dynamicMetric describes one frame/display/GPU-derived metric the query
// engine can compute (spec.md §4.4's "FPS accumulation" and "GPU
// telemetry" families).
var dynamicMetrics = []struct {
	id   pmapi.Metric
	unit pmapi.Unit
}{
	{pmapi.MetricDisplayedFPS, pmapi.UnitFPS},
	{pmapi.MetricPresentedFPS, pmapi.UnitFPS},
	{pmapi.MetricFrameTime, pmapi.UnitMilliseconds},
	{pmapi.MetricCPUBusy, pmapi.UnitMilliseconds},
	{pmapi.MetricCPUWait, pmapi.UnitMilliseconds},
	{pmapi.MetricGPUBusy, pmapi.UnitMilliseconds},
	{pmapi.MetricDisplayBusy, pmapi.UnitMilliseconds},
	{pmapi.MetricDroppedFrames, pmapi.UnitDimensionless},
	{pmapi.MetricGPUPower, pmapi.UnitWatts},
	{pmapi.MetricGPUFanSpeed, pmapi.UnitRPM},
	{pmapi.MetricGPUTemperature, pmapi.UnitCelsius},
	{pmapi.MetricCPUUtilization, pmapi.UnitPercent},
}

var allStats = []pmapi.Stat{
	pmapi.StatAvg, pmapi.StatPercentile99, pmapi.StatPercentile95,
	pmapi.StatPercentile90, pmapi.StatMax, pmapi.StatMin, pmapi.StatRaw,
}

// gpuFanCount is the number of per-fan array slots the query engine
// accepts (query.gpuBitForFanIndex / ring.CapFanSpeed0..4): GPUFanSpeed's
// catalog entry must advertise this array size or a client reading the
// catalog would believe index 0 is the only valid one.
const gpuFanCount = 5

func populateMetrics(root *Root) {
	singleValued := []DeviceMetricInfo{
		{DeviceID: 0, Availability: pmapi.MetricAvailable, ArraySize: 1},
	}
	fanArray := []DeviceMetricInfo{
		{DeviceID: 0, Availability: pmapi.MetricAvailable, ArraySize: gpuFanCount},
	}
	for _, m := range dynamicMetrics {
		deviceInfo := singleValued
		if m.id == pmapi.MetricGPUFanSpeed {
			deviceInfo = fanArray
		}
		root.Metrics = append(root.Metrics, Metric{
			ID:               m.id,
			Type:             pmapi.MetricTypeDynamic,
			Unit:             m.unit,
			TypeInfo:         DataTypeInfo{Type: pmapi.DataTypeDouble, EnumID: pmapi.EnumIDStatus},
			Stats:            allStats,
			DeviceMetricInfo: deviceInfo,
		})
	}

	root.Metrics = append(root.Metrics, Metric{
		ID:       pmapi.MetricProcessName,
		Type:     pmapi.MetricTypeStatic,
		Unit:     pmapi.UnitDimensionless,
		TypeInfo: DataTypeInfo{Type: pmapi.DataTypeString, EnumID: pmapi.EnumIDStatus},
	})
	root.Metrics = append(root.Metrics, Metric{
		ID:       pmapi.MetricSwapChainAddress,
		Type:     pmapi.MetricTypeStatic,
		Unit:     pmapi.UnitDimensionless,
		TypeInfo: DataTypeInfo{Type: pmapi.DataTypeUint32, EnumID: pmapi.EnumIDStatus},
	})
}

func populateEnums(root *Root) {
	root.Enums = append(root.Enums,
		statusEnum(), metricEnum(), deviceVendorEnum(), deviceTypeEnum(),
		presentModeEnum(), psuTypeEnum(), unitEnum(), statEnum(),
		dataTypeEnum(), graphicsRuntimeEnum(), metricAvailabilityEnum(),
	)
}

func statusEnum() Enum {
	return Enum{ID: pmapi.EnumIDStatus, Symbol: "PM_STATUS", Description: "API call result status", Keys: []EnumKey{
		{Value: int32(pmapi.StatusSuccess), Symbol: "PM_STATUS_SUCCESS", Name: "Success", ShortName: "OK"},
		{Value: int32(pmapi.StatusFailure), Symbol: "PM_STATUS_FAILURE", Name: "Failure", ShortName: "FAIL"},
		{Value: int32(pmapi.StatusSessionNotOpen), Symbol: "PM_STATUS_SESSION_NOT_OPEN", Name: "Session Not Open", ShortName: "NOSESSION"},
	}}
}

func metricEnum() Enum {
	e := Enum{ID: pmapi.EnumIDMetric, Symbol: "PM_METRIC", Description: "Measurable quantity"}
	for _, m := range dynamicMetrics {
		e.Keys = append(e.Keys, EnumKey{Value: int32(m.id), Symbol: m.id.String(), Name: m.id.String()})
	}
	e.Keys = append(e.Keys,
		EnumKey{Value: int32(pmapi.MetricProcessName), Symbol: "PM_METRIC_PROCESS_NAME", Name: "Process Name"},
		EnumKey{Value: int32(pmapi.MetricSwapChainAddress), Symbol: "PM_METRIC_SWAP_CHAIN_ADDRESS", Name: "Swap Chain Address"},
	)
	return e
}

func deviceVendorEnum() Enum {
	return Enum{ID: pmapi.EnumIDDeviceVendor, Symbol: "PM_DEVICE_VENDOR", Description: "Graphics device vendor", Keys: []EnumKey{
		{Value: int32(pmapi.DeviceVendorIntel), Symbol: "PM_DEVICE_VENDOR_INTEL", Name: "Intel"},
		{Value: int32(pmapi.DeviceVendorNVIDIA), Symbol: "PM_DEVICE_VENDOR_NVIDIA", Name: "NVIDIA"},
		{Value: int32(pmapi.DeviceVendorAMD), Symbol: "PM_DEVICE_VENDOR_AMD", Name: "AMD"},
		{Value: int32(pmapi.DeviceVendorUnknown), Symbol: "PM_DEVICE_VENDOR_UNKNOWN", Name: "Unknown"},
	}}
}

func deviceTypeEnum() Enum {
	return Enum{ID: pmapi.EnumIDDeviceType, Symbol: "PM_DEVICE_TYPE", Description: "Device category", Keys: []EnumKey{
		{Value: int32(pmapi.DeviceTypeGraphicsAdapter), Symbol: "PM_DEVICE_TYPE_GRAPHICS_ADAPTER", Name: "Graphics Adapter"},
		{Value: int32(pmapi.DeviceTypeCPU), Symbol: "PM_DEVICE_TYPE_CPU", Name: "CPU Package"},
		{Value: int32(pmapi.DeviceTypeUnknown), Symbol: "PM_DEVICE_TYPE_UNKNOWN", Name: "Unknown"},
	}}
}

func presentModeEnum() Enum {
	names := []string{
		"HARDWARE_LEGACY_FLIP", "HARDWARE_LEGACY_COPY_TO_FRONT_BUFFER",
		"HARDWARE_INDEPENDENT_FLIP", "COMPOSED_FLIP",
		"HARDWARE_COMPOSED_INDEPENDENT_FLIP", "COMPOSED_COPY_WITH_GPU_GDI",
		"COMPOSED_COPY_WITH_CPU_GDI", "UNKNOWN",
	}
	e := Enum{ID: pmapi.EnumIDPresentMode, Symbol: "PM_PRESENT_MODE", Description: "Swap chain present mode"}
	for i, n := range names {
		e.Keys = append(e.Keys, EnumKey{Value: int32(i), Symbol: "PM_PRESENT_MODE_" + n, Name: n})
	}
	return e
}

func psuTypeEnum() Enum {
	return Enum{ID: pmapi.EnumIDPSUType, Symbol: "PM_PSU_TYPE", Description: "Power supply connector", Keys: []EnumKey{
		{Value: int32(pmapi.PSUTypeNone), Symbol: "PM_PSU_TYPE_NONE", Name: "None"},
		{Value: int32(pmapi.PSUTypePCIe), Symbol: "PM_PSU_TYPE_PCIE", Name: "PCIe"},
		{Value: int32(pmapi.PSUType6Pin), Symbol: "PM_PSU_TYPE_6PIN", Name: "6-Pin"},
		{Value: int32(pmapi.PSUType8Pin), Symbol: "PM_PSU_TYPE_8PIN", Name: "8-Pin"},
	}}
}

func unitEnum() Enum {
	names := []string{
		"DIMENSIONLESS", "BOOLEAN", "FPS", "MILLISECONDS", "PERCENT", "WATTS",
		"SYNC_INTERVAL", "VOLTS", "MEGAHERTZ", "CELSIUS", "RPM", "BPS", "BYTES",
	}
	e := Enum{ID: pmapi.EnumIDUnit, Symbol: "PM_UNIT", Description: "Measurement unit"}
	for i, n := range names {
		e.Keys = append(e.Keys, EnumKey{Value: int32(i), Symbol: "PM_UNIT_" + n, Name: n})
	}
	return e
}

func statEnum() Enum {
	e := Enum{ID: pmapi.EnumIDStat, Symbol: "PM_STAT", Description: "Statistic computed over a windowed sample"}
	for _, s := range allStats {
		e.Keys = append(e.Keys, EnumKey{Value: int32(s), Symbol: "PM_STAT_" + s.String(), Name: s.String()})
	}
	return e
}

func dataTypeEnum() Enum {
	return Enum{ID: pmapi.EnumIDDataType, Symbol: "PM_DATA_TYPE", Description: "Scalar wire type", Keys: []EnumKey{
		{Value: int32(pmapi.DataTypeDouble), Symbol: "PM_DATA_TYPE_DOUBLE", Name: "Double"},
		{Value: int32(pmapi.DataTypeInt32), Symbol: "PM_DATA_TYPE_INT32", Name: "Int32"},
		{Value: int32(pmapi.DataTypeUint32), Symbol: "PM_DATA_TYPE_UINT32", Name: "Uint32"},
		{Value: int32(pmapi.DataTypeEnum), Symbol: "PM_DATA_TYPE_ENUM", Name: "Enum"},
		{Value: int32(pmapi.DataTypeString), Symbol: "PM_DATA_TYPE_STRING", Name: "String"},
	}}
}

func graphicsRuntimeEnum() Enum {
	return Enum{ID: pmapi.EnumIDGraphicsRuntime, Symbol: "PM_GRAPHICS_RUNTIME", Description: "Graphics API runtime", Keys: []EnumKey{
		{Value: int32(pmapi.GraphicsRuntimeUnknown), Symbol: "PM_GRAPHICS_RUNTIME_UNKNOWN", Name: "Unknown"},
		{Value: int32(pmapi.GraphicsRuntimeDXGI), Symbol: "PM_GRAPHICS_RUNTIME_DXGI", Name: "DXGI"},
		{Value: int32(pmapi.GraphicsRuntimeD3D9), Symbol: "PM_GRAPHICS_RUNTIME_D3D9", Name: "D3D9"},
	}}
}

func metricAvailabilityEnum() Enum {
	return Enum{ID: pmapi.EnumIDMetricAvailability, Symbol: "PM_METRIC_AVAILABILITY", Description: "Whether a device/metric pairing is live", Keys: []EnumKey{
		{Value: int32(pmapi.MetricAvailable), Symbol: "PM_METRIC_AVAILABILITY_AVAILABLE", Name: "Available"},
		{Value: int32(pmapi.MetricUnavailable), Symbol: "PM_METRIC_AVAILABILITY_UNAVAILABLE", Name: "Unavailable"},
	}}
}
