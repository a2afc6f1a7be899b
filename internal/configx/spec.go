package configx

// ServiceConfigSpec is one partial configuration layer. Every field is a
// pointer so "this layer has no opinion" and "this layer sets the zero
// value" are distinguishable — the same distinction the teacher's section
// pointers (GlobalConfigSection, CrawlingConfigSection, ...) exist to make,
// collapsed here onto scalar fields since ServiceConfig has no sections.
type ServiceConfigSpec struct {
	IntrospectionSegmentName *string `yaml:"introspection_segment_name,omitempty"`
	ControlPipePath          *string `yaml:"control_pipe_path,omitempty"`
	RingMaxEntries           *uint64 `yaml:"ring_max_entries,omitempty"`
	RingTicksPerSecond       *uint64 `yaml:"ring_ticks_per_second,omitempty"`
	MetricsAddr              *string `yaml:"metrics_addr,omitempty"`
	LogLevel                 *string `yaml:"log_level,omitempty"`
	HotReload                *bool   `yaml:"hot_reload,omitempty"`
}
