// Package introspection builds the self-describing catalog of metrics,
// enumerations, and devices (spec.md §4.2) and publishes it inside a named
// shared-memory segment for clients to clone into the stable pmapi tree.
//
// The original keeps the catalog as a live, pointer-based tree built
// in-place inside the shared-memory segment using an interprocess
// allocator with offset pointers, so every process mapping the segment can
// walk the same structure directly. Go has no portable cross-process
// pointer, so the catalog here is built once as ordinary heap values,
// gob-encoded, and written into the mmap'd segment as an opaque byte blob
// (spec.md §9's "segment-backed vector and string type" substitution); a
// client decodes the blob back into the same tree shape before running the
// two-pass clone into the pmapi ABI structs. The readiness semaphore and
// shared/exclusive mutex still gate access exactly as specified.
package introspection

import "github.com/99souls/presentmon/pkg/pmapi"

// EnumKey is the in-process representation of PM_INTROSPECTION_ENUM_KEY's
// source node.
type EnumKey struct {
	Value       int32
	Symbol      string
	Name        string
	ShortName   string
	Description string
}

// Enum is the in-process representation backing PM_INTROSPECTION_ENUM.
type Enum struct {
	ID          pmapi.EnumID
	Symbol      string
	Description string
	Keys        []EnumKey
}

// Device is the in-process representation backing PM_INTROSPECTION_DEVICE.
type Device struct {
	ID     uint32
	Type   pmapi.DeviceType
	Vendor pmapi.DeviceVendor
	Name   string
}

// DeviceMetricInfo is the in-process representation backing
// PM_INTROSPECTION_DEVICE_METRIC_INFO.
type DeviceMetricInfo struct {
	DeviceID     uint32
	Availability pmapi.MetricAvailability
	ArraySize    uint32
}

// DataTypeInfo is the in-process representation backing
// PM_INTROSPECTION_DATA_TYPE_INFO.
type DataTypeInfo struct {
	Type   pmapi.DataType
	EnumID pmapi.EnumID
}

// Metric is the in-process representation backing PM_INTROSPECTION_METRIC.
type Metric struct {
	ID               pmapi.Metric
	Type             pmapi.MetricType
	Unit             pmapi.Unit
	TypeInfo         DataTypeInfo
	Stats            []pmapi.Stat
	DeviceMetricInfo []DeviceMetricInfo
}

// Root is the in-process representation backing PM_INTROSPECTION_ROOT: the
// tree built once by the service and cloned by every client.
type Root struct {
	Metrics []Metric
	Enums   []Enum
	Devices []Device
}

// FindMetric looks up a metric by id. Used by the dynamic query engine to
// validate elements at registration (spec.md §4.4).
func (r *Root) FindMetric(id pmapi.Metric) (*Metric, bool) {
	for i := range r.Metrics {
		if r.Metrics[i].ID == id {
			return &r.Metrics[i], true
		}
	}
	return nil, false
}

// FindEnum looks up an enum descriptor by id.
func (r *Root) FindEnum(id pmapi.EnumID) (*Enum, bool) {
	for i := range r.Enums {
		if r.Enums[i].ID == id {
			return &r.Enums[i], true
		}
	}
	return nil, false
}
