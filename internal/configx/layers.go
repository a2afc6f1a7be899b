// Package configx layers partial configuration fragments (defaults, a file,
// the environment) into a single validated config.ServiceConfig, the way
// the teacher's engine/configx merges EngineConfigSpec layers by
// precedence. Where the teacher's spec is a tree of optional sections, ours
// is flat: config.ServiceConfig has no nested sections to merge field-by-
// field, so a layer here is a struct of pointer scalars and the merge is a
// single pass of "if set, override" rather than the teacher's per-section
// mergeGlobal/mergeCrawling/... family.
package configx

// Layer precedence order: later layers override earlier ones.
const (
	LayerDefault = iota
	LayerFile
	LayerEnvironment
)

var layerNames = map[int]string{
	LayerDefault:     "default",
	LayerFile:        "file",
	LayerEnvironment: "environment",
}

// LayerName returns the human-readable name for a layer constant.
func LayerName(layer int) string {
	if name, ok := layerNames[layer]; ok {
		return name
	}
	return "unknown"
}

// LayerPrecedenceOrder returns the merge order from lowest to highest
// priority.
func LayerPrecedenceOrder() []int {
	return []int{LayerDefault, LayerFile, LayerEnvironment}
}
