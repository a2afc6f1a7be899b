package pmapi

// The structs below mirror PM_INTROSPECTION_STRING / _OBJARRAY / _ENUM_KEY /
// _ENUM / _DATA_TYPE_INFO / _METRIC / _DEVICE / _DEVICE_METRIC_INFO / _ROOT
// from PresentMonAPI.h and IntrospectionTransfer.h. Pointer fields are typed
// Go pointers rather than unsafe.Pointer/void** because there is no cgo
// boundary crossing these fields in this build, so C-compatible void*
// layout is not required. The clone code (internal/introspection) builds
// each node as its own Go allocation; the nodes do not share one contiguous
// block, and its allocators only count the bytes such a block would take.

// IntrospectionString is PM_INTROSPECTION_STRING.
type IntrospectionString struct {
	Data string
}

// IntrospectionObjArray is PM_INTROSPECTION_OBJARRAY, specialized per
// element type at the Go level via ObjArray[T] below; this struct documents
// the ABI shape.
type IntrospectionObjArray struct {
	Size uint64
}

// ObjArray is the typed, Go-idiomatic stand-in for
// PM_INTROSPECTION_OBJARRAY{size_t size, void** pData}: a slice of
// pointers to cloned children.
type ObjArray[T any] struct {
	Items []*T
}

func (a *ObjArray[T]) Size() int { return len(a.Items) }

// EnumKey is PM_INTROSPECTION_ENUM_KEY.
type EnumKey struct {
	EnumID      EnumID
	Value       int32
	Symbol      *IntrospectionString
	Name        *IntrospectionString
	ShortName   *IntrospectionString
	Description *IntrospectionString
}

// Enum is PM_INTROSPECTION_ENUM.
type Enum struct {
	ID          EnumID
	Symbol      *IntrospectionString
	Description *IntrospectionString
	Keys        *ObjArray[EnumKey]
}

// DataTypeInfo is PM_INTROSPECTION_DATA_TYPE_INFO.
type DataTypeInfo struct {
	Type   DataType
	EnumID EnumID
}

// StatInfo is PM_INTROSPECTION_STAT_INFO.
type StatInfo struct {
	Stat Stat
}

// DeviceMetricInfo is PM_INTROSPECTION_DEVICE_METRIC_INFO.
type DeviceMetricInfo struct {
	DeviceID     uint32
	Availability MetricAvailability
	ArraySize    uint32
}

// IntrospectionMetric is PM_INTROSPECTION_METRIC.
type IntrospectionMetric struct {
	ID               Metric
	Type             MetricType
	Unit             Unit
	TypeInfo         *DataTypeInfo
	StatInfo         *ObjArray[StatInfo]
	DeviceMetricInfo *ObjArray[DeviceMetricInfo]
}

// Device is PM_INTROSPECTION_DEVICE.
type Device struct {
	ID     uint32
	Type   DeviceType
	Vendor DeviceVendor
	Name   *IntrospectionString
}

// Root is PM_INTROSPECTION_ROOT: the cloned tree handed back to
// pmEnumerateInterface. Its nodes are separate Go allocations, reclaimed by
// the garbage collector once the tree is no longer referenced.
type Root struct {
	Metrics *ObjArray[IntrospectionMetric]
	Enums   *ObjArray[Enum]
	Devices *ObjArray[Device]
}
