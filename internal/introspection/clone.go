package introspection

import (
	"unsafe"

	"github.com/99souls/presentmon/pkg/pmapi"
)

// cloneString implements IntrospectionString's ApiClone: allocate a node,
// materializing it only if the allocator says to (spec.md §4.2 "Probe
// pass... without writing memory", "Block pass... constructing ABI
// structs").
func cloneString(a Allocator, s string) *pmapi.IntrospectionString {
	if !a.track(sizeOfString(s)) {
		return nil
	}
	return &pmapi.IntrospectionString{Data: s}
}

func cloneEnumKey(a Allocator, k *EnumKey) *pmapi.EnumKey {
	symbol := cloneString(a, k.Symbol)
	name := cloneString(a, k.Name)
	shortName := cloneString(a, k.ShortName)
	description := cloneString(a, k.Description)
	if !a.track(unsafe.Sizeof(pmapi.EnumKey{})) {
		return nil
	}
	return &pmapi.EnumKey{
		Value: k.Value, Symbol: symbol, Name: name,
		ShortName: shortName, Description: description,
	}
}

func cloneEnum(a Allocator, e *Enum) *pmapi.Enum {
	symbol := cloneString(a, e.Symbol)
	description := cloneString(a, e.Description)
	keys := &pmapi.ObjArray[pmapi.EnumKey]{}
	for i := range e.Keys {
		if k := cloneEnumKey(a, &e.Keys[i]); k != nil {
			keys.Items = append(keys.Items, k)
		}
	}
	if !a.track(unsafe.Sizeof(pmapi.Enum{})) {
		return nil
	}
	return &pmapi.Enum{ID: e.ID, Symbol: symbol, Description: description, Keys: keys}
}

func cloneDevice(a Allocator, d *Device) *pmapi.Device {
	name := cloneString(a, d.Name)
	if !a.track(unsafe.Sizeof(pmapi.Device{})) {
		return nil
	}
	return &pmapi.Device{ID: d.ID, Type: d.Type, Vendor: d.Vendor, Name: name}
}

func cloneDataTypeInfo(a Allocator, t *DataTypeInfo) *pmapi.DataTypeInfo {
	if !a.track(unsafe.Sizeof(pmapi.DataTypeInfo{})) {
		return nil
	}
	return &pmapi.DataTypeInfo{Type: t.Type, EnumID: t.EnumID}
}

func cloneMetric(a Allocator, m *Metric) *pmapi.IntrospectionMetric {
	typeInfo := cloneDataTypeInfo(a, &m.TypeInfo)
	stats := &pmapi.ObjArray[pmapi.StatInfo]{}
	for _, s := range m.Stats {
		if !a.track(unsafe.Sizeof(pmapi.StatInfo{})) {
			continue
		}
		stat := s
		stats.Items = append(stats.Items, &pmapi.StatInfo{Stat: stat})
	}
	deviceInfo := &pmapi.ObjArray[pmapi.DeviceMetricInfo]{}
	for _, d := range m.DeviceMetricInfo {
		if !a.track(unsafe.Sizeof(pmapi.DeviceMetricInfo{})) {
			continue
		}
		deviceInfo.Items = append(deviceInfo.Items, &pmapi.DeviceMetricInfo{
			DeviceID: d.DeviceID, Availability: d.Availability, ArraySize: d.ArraySize,
		})
	}
	if !a.track(unsafe.Sizeof(pmapi.IntrospectionMetric{})) {
		return nil
	}
	return &pmapi.IntrospectionMetric{
		ID: m.ID, Type: m.Type, Unit: m.Unit,
		TypeInfo: typeInfo, StatInfo: stats, DeviceMetricInfo: deviceInfo,
	}
}

// Clone deep-clones the root into the pmapi ABI tree by running the clone
// code once through a BumpAllocator; the probe pass is the separate Probe
// method. Returns the cloned root and the bump pass's
// total byte count, which callers compare against a separate probe pass
// for the clone-tightness property (spec.md §8 property 5).
func (r *Root) Clone() (*pmapi.Root, uintptr) {
	bump := &BumpAllocator{}
	root := r.cloneWith(bump)
	return root, bump.Total
}

// Probe runs the probe pass alone, for callers that want the byte total
// without materializing anything (e.g. pre-sizing a transfer buffer).
func (r *Root) Probe() uintptr {
	probe := &ProbeAllocator{}
	r.cloneWith(probe)
	return probe.Total
}

func (r *Root) cloneWith(a Allocator) *pmapi.Root {
	metrics := &pmapi.ObjArray[pmapi.IntrospectionMetric]{}
	for i := range r.Metrics {
		if m := cloneMetric(a, &r.Metrics[i]); m != nil {
			metrics.Items = append(metrics.Items, m)
		}
	}
	enums := &pmapi.ObjArray[pmapi.Enum]{}
	for i := range r.Enums {
		if e := cloneEnum(a, &r.Enums[i]); e != nil {
			enums.Items = append(enums.Items, e)
		}
	}
	devices := &pmapi.ObjArray[pmapi.Device]{}
	for i := range r.Devices {
		if d := cloneDevice(a, &r.Devices[i]); d != nil {
			devices.Items = append(devices.Items, d)
		}
	}
	if !a.track(unsafe.Sizeof(pmapi.Root{})) {
		return nil
	}
	return &pmapi.Root{Metrics: metrics, Enums: enums, Devices: devices}
}
