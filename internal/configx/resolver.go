package configx

import (
	"fmt"
	"os"
	"strconv"

	"github.com/99souls/presentmon/internal/config"
	"gopkg.in/yaml.v3"
)

// Resolver merges ServiceConfigSpec layers into a validated
// config.ServiceConfig, the way the teacher's Resolver.Resolve merges
// EngineConfigSpec layers (engine/configx's resolver.go) — except there
// are no nested sections here to merge field-by-field, so applyLayer is a
// single flat "if set, override" pass rather than a mergeGlobal/
// mergeCrawling/... family.
type Resolver struct{}

// NewResolver constructs a Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve overlays layerSpecs (indexed by layer constant) onto
// config.Default() in LayerPrecedenceOrder and validates the result. A
// nil entry for a layer means that layer has no opinion.
func (r *Resolver) Resolve(layerSpecs map[int]*ServiceConfigSpec) (config.ServiceConfig, error) {
	cfg := config.Default()
	for _, layer := range LayerPrecedenceOrder() {
		spec := layerSpecs[layer]
		if spec == nil {
			continue
		}
		applyLayer(&cfg, spec)
	}
	if err := cfg.Validate(); err != nil {
		return config.ServiceConfig{}, err
	}
	return cfg, nil
}

// applyLayer overlays src onto dst in place.
func applyLayer(dst *config.ServiceConfig, src *ServiceConfigSpec) {
	if src.IntrospectionSegmentName != nil {
		dst.IntrospectionSegmentName = *src.IntrospectionSegmentName
	}
	if src.ControlPipePath != nil {
		dst.ControlPipePath = *src.ControlPipePath
	}
	if src.RingMaxEntries != nil {
		dst.RingMaxEntries = *src.RingMaxEntries
	}
	if src.RingTicksPerSecond != nil {
		dst.RingTicksPerSecond = *src.RingTicksPerSecond
	}
	if src.MetricsAddr != nil {
		dst.MetricsAddr = *src.MetricsAddr
	}
	if src.LogLevel != nil {
		dst.LogLevel = *src.LogLevel
	}
	if src.HotReload != nil {
		dst.HotReload = *src.HotReload
	}
}

// FromYAML parses data into a file layer. Unlike config.Load, unset
// fields stay nil (no opinion) rather than falling back to defaults —
// that fallback is the Resolver's job, applied once across every layer.
func FromYAML(data []byte) (*ServiceConfigSpec, error) {
	spec := &ServiceConfigSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("%w: parse yaml layer: %v", config.ErrConfiguration, err)
	}
	return spec, nil
}

// envPrefix namespaces every variable this layer reads, so an unrelated
// PATH or HOME in the caller's environment can never be mistaken for a
// configuration override.
const envPrefix = "PRESENTMON_"

// FromEnviron builds the environment layer from environ (typically
// os.Environ()). There is no ready third-party environment-binding
// library in the pack to ground this on (the teacher's configx layers
// only ever came from files and programmatic overlays); splitting environ
// on '=' and parsing values with strconv is the one piece of this package
// built on the standard library rather than an adapted teacher pattern.
func FromEnviron(environ []string) *ServiceConfigSpec {
	lookup := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				lookup[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	spec := &ServiceConfigSpec{}
	if v, ok := lookup[envPrefix+"INTROSPECTION_SEGMENT_NAME"]; ok {
		spec.IntrospectionSegmentName = &v
	}
	if v, ok := lookup[envPrefix+"CONTROL_PIPE_PATH"]; ok {
		spec.ControlPipePath = &v
	}
	if v, ok := lookup[envPrefix+"RING_MAX_ENTRIES"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			spec.RingMaxEntries = &n
		}
	}
	if v, ok := lookup[envPrefix+"RING_TICKS_PER_SECOND"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			spec.RingTicksPerSecond = &n
		}
	}
	if v, ok := lookup[envPrefix+"METRICS_ADDR"]; ok {
		spec.MetricsAddr = &v
	}
	if v, ok := lookup[envPrefix+"LOG_LEVEL"]; ok {
		spec.LogLevel = &v
	}
	if v, ok := lookup[envPrefix+"HOT_RELOAD"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			spec.HotReload = &b
		}
	}
	return spec
}

// Load is the convenience entry point a cmd/ main uses: default layer (via
// Resolve's implicit config.Default()) overlaid with an optional file at
// path and the process environment, in that precedence order. path may be
// empty, in which case only defaults and environment apply.
func Load(path string, environ []string) (config.ServiceConfig, error) {
	layers := map[int]*ServiceConfigSpec{
		LayerEnvironment: FromEnviron(environ),
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config.ServiceConfig{}, fmt.Errorf("%w: read %q: %v", config.ErrConfiguration, path, err)
		}
		fileLayer, err := FromYAML(data)
		if err != nil {
			return config.ServiceConfig{}, err
		}
		layers[LayerFile] = fileLayer
	}
	return NewResolver().Resolve(layers)
}
