package adapter

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ConfigDiff is the structured result of comparing two descriptors (spec
// §3 ConfigDiff). An empty diff (both sets empty) means unchanged.
type ConfigDiff struct {
	TopLevelKeys []string          // e.g. "model", "inference_provider"
	NestedPaths  []string          // dotted paths under config.*, e.g. "config.confidence_threshold"
	OldValues    map[string]string // human-readable old value per changed key, top-level and nested
	NewValues    map[string]string
}

// IsEmpty reports whether nothing changed between the two descriptors.
func (d *ConfigDiff) IsEmpty() bool {
	return d == nil || (len(d.TopLevelKeys) == 0 && len(d.NestedPaths) == 0)
}

// Has reports whether the given top-level key changed.
func (d *ConfigDiff) Has(key string) bool {
	for _, k := range d.TopLevelKeys {
		if k == key {
			return true
		}
	}
	return false
}

// OnlyNestedConfigChanged reports whether every changed path is a nested
// config.* path, i.e. no top-level field changed. This is the condition
// under which Reload must not touch any provider/datasource cache (spec
// §4.C5 "only nested config.* -> No cache invalidation").
func (d *ConfigDiff) OnlyNestedConfigChanged() bool {
	return len(d.TopLevelKeys) == 0 && len(d.NestedPaths) > 0
}

var topLevelFields = []string{
	"enabled", "model", "inference_provider", "embedding_provider",
	"reranker_provider", "vision_provider", "datasource_ref", "type",
}

func topLevelValue(d *Descriptor, field string) interface{} {
	switch field {
	case "enabled":
		return d.Enabled
	case "model":
		return d.Model
	case "inference_provider":
		return d.InferenceProvider
	case "embedding_provider":
		return d.EmbeddingProvider
	case "reranker_provider":
		return d.RerankerProvider
	case "vision_provider":
		return d.VisionProvider
	case "datasource_ref":
		return d.DatasourceRef
	case "type":
		return d.Type
	default:
		return nil
	}
}

// Diff compares old and new descriptors for the same adapter name, field by
// field, returning a deterministic, sorted ConfigDiff.
func Diff(old, new *Descriptor) *ConfigDiff {
	diff := &ConfigDiff{OldValues: map[string]string{}, NewValues: map[string]string{}}

	if old == nil || new == nil {
		return diff
	}

	for _, field := range topLevelFields {
		oldVal := topLevelValue(old, field)
		newVal := topLevelValue(new, field)
		if !reflect.DeepEqual(oldVal, newVal) {
			diff.TopLevelKeys = append(diff.TopLevelKeys, field)
			diff.OldValues[field] = fmt.Sprint(oldVal)
			diff.NewValues[field] = fmt.Sprint(newVal)
		}
	}
	sort.Strings(diff.TopLevelKeys)

	compareNested("config", old.Config, new.Config, diff)
	sort.Strings(diff.NestedPaths)

	return diff
}

// compareNested walks old and new generically, recording every differing
// dotted path. Presence on only one side counts as a change. Lists are
// compared wholesale: any element difference records a change on the list's
// own path, not per-element.
func compareNested(prefix string, old, new map[string]interface{}, diff *ConfigDiff) {
	keys := unionKeys(old, new)
	for _, key := range keys {
		path := prefix + "." + key
		oldVal, oldOK := old[key]
		newVal, newOK := new[key]

		switch {
		case oldOK && !newOK:
			diff.NestedPaths = append(diff.NestedPaths, path)
			diff.OldValues[path] = fmt.Sprint(normalizeScalar(oldVal))
			diff.NewValues[path] = "<absent>"
		case !oldOK && newOK:
			diff.NestedPaths = append(diff.NestedPaths, path)
			diff.OldValues[path] = "<absent>"
			diff.NewValues[path] = fmt.Sprint(normalizeScalar(newVal))
		default:
			oldMap, oldIsMap := oldVal.(map[string]interface{})
			newMap, newIsMap := newVal.(map[string]interface{})
			if oldIsMap && newIsMap {
				compareNested(path, oldMap, newMap, diff)
				continue
			}
			if !scalarsEqual(oldVal, newVal) {
				diff.NestedPaths = append(diff.NestedPaths, path)
				diff.OldValues[path] = fmt.Sprint(normalizeScalar(oldVal))
				diff.NewValues[path] = fmt.Sprint(normalizeScalar(newVal))
			}
		}
	}
}

func unionKeys(old, new map[string]interface{}) []string {
	seen := make(map[string]bool, len(old)+len(new))
	keys := make([]string, 0, len(old)+len(new))
	for k := range old {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range new {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// scalarsEqual compares two leaf values after normalization, so a
// round-tripped YAML value that differs only in surrounding whitespace
// (e.g. "warning " vs "warning") or in int-vs-float form (e.g. 3 vs 3.0) is
// not reported as changed (spec §9 open question, resolved in SPEC_FULL.md:
// normalize before comparing). A numeric string is not re-parsed, so "0.3"
// and 0.3 still compare as different.
func scalarsEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalizeScalar(a), normalizeScalar(b))
}

func normalizeScalar(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}

// Action classifies what Reload should do for one adapter name, given its
// descriptor in the old and new catalogs (spec §4.C4 Classify).
type Action string

const (
	ActionAdd      Action = "add"
	ActionRemove   Action = "remove"
	ActionNoChange Action = "no_change"
	ActionDisable  Action = "disable"
	ActionEnable   Action = "enable"
	ActionUpdate   Action = "update"
)

// Classify decides the reload action for a single adapter name.
func Classify(old, new *Descriptor) Action {
	switch {
	case old == nil && new != nil:
		return ActionAdd
	case old != nil && new == nil:
		return ActionRemove
	case old.Enabled && !new.Enabled:
		return ActionDisable
	case !old.Enabled && new.Enabled:
		return ActionEnable
	}

	diff := Diff(old, new)
	if diff.IsEmpty() {
		return ActionNoChange
	}
	return ActionUpdate
}

// ChangeSummary renders the diff into the exact log-contract form the spec
// requires: "config changes for '<name>': key1: old→new, key2: ...".
func (d *ConfigDiff) ChangeSummary(name string) string {
	paths := append(append([]string{}, d.TopLevelKeys...), d.NestedPaths...)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s→%s", p, d.OldValues[p], d.NewValues[p]))
	}
	return fmt.Sprintf("config changes for '%s': %s", name, strings.Join(parts, ", "))
}
