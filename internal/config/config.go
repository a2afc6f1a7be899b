// Package config is the service's configuration surface: the flat
// settings a single service instance runs with (segment/pipe names, ring
// sizing, telemetry toggles), loaded from YAML and hot-reloadable the way
// the teacher's runtime config layer does (engine/internal/runtime,
// engine/configx).
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration is the fatal stratum error for a configuration the
// service cannot start with: unparsable YAML or a value Validate rejects
// (spec.md §7). Callers compare with errors.Is rather than matching error
// text.
var ErrConfiguration = errors.New("config: invalid configuration")

// ServiceConfig is the flat, validated configuration a running service
// instance holds (spec.md §4's named defaults: segment name, control pipe
// path, ring sizing).
type ServiceConfig struct {
	// IntrospectionSegmentName is the shared-memory segment the catalog is
	// published into (spec.md §4.2).
	IntrospectionSegmentName string `yaml:"introspection_segment_name"`

	// ControlPipePath is the Unix domain socket path clients dial for
	// START_STREAM/STOP_STREAM (spec.md §4.3).
	ControlPipePath string `yaml:"control_pipe_path"`

	// RingMaxEntries is the per-process frame ring capacity (spec.md §3
	// "Frame Record" / "Ring Header").
	RingMaxEntries uint64 `yaml:"ring_max_entries"`

	// RingTicksPerSecond is the QPC-equivalent frequency stamped into
	// every ring this service produces.
	RingTicksPerSecond uint64 `yaml:"ring_ticks_per_second"`

	// MetricsAddr is the address the Prometheus /metrics endpoint binds.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the log channel's slog.Handler threshold.
	LogLevel string `yaml:"log_level"`

	// HotReload enables the fsnotify-driven config-file watch.
	HotReload bool `yaml:"hot_reload"`
}

// Default returns the configuration a freshly installed service starts
// with.
func Default() ServiceConfig {
	return ServiceConfig{
		IntrospectionSegmentName: "presentmon-2-bip-shm",
		ControlPipePath:          "/tmp/presentmon/control.sock",
		RingMaxEntries:           2048,
		RingTicksPerSecond:       1_000_000_000,
		MetricsAddr:              ":9090",
		LogLevel:                 "info",
		HotReload:                false,
	}
}

// Validate rejects configurations the service cannot run with.
func (c ServiceConfig) Validate() error {
	if c.IntrospectionSegmentName == "" {
		return fmt.Errorf("%w: introspection_segment_name must not be empty", ErrConfiguration)
	}
	if c.ControlPipePath == "" {
		return fmt.Errorf("%w: control_pipe_path must not be empty", ErrConfiguration)
	}
	if c.RingMaxEntries == 0 {
		return fmt.Errorf("%w: ring_max_entries must be positive", ErrConfiguration)
	}
	if c.RingTicksPerSecond == 0 {
		return fmt.Errorf("%w: ring_ticks_per_second must be positive", ErrConfiguration)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrConfiguration, c.LogLevel)
	}
	return nil
}

// Load parses YAML bytes over Default and validates the result, mirroring
// UnifiedBusinessConfig's apply-defaults-then-validate pattern
// (engine/config/unified_config.go).
func Load(data []byte) (ServiceConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("%w: parse yaml: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

// Marshal renders cfg back to YAML, used by tests asserting round-trip
// fidelity.
func (c ServiceConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Equal reports whether two configs would cause equivalent service
// behavior, used by the watcher to suppress no-op reload notifications.
func (c ServiceConfig) Equal(other ServiceConfig) bool {
	return c == other
}

// debounceInterval coalesces the double-write events some editors and
// container filesystems emit for a single logical save.
const debounceInterval = 50 * time.Millisecond
