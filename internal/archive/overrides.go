package archive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseOverrides decodes an overrides JSON object. Dotted keys address nested
// objects, so {"model.input_field": "x"} equals {"model": {"input_field": "x"}}.
// An empty string yields an empty overlay.
func ParseOverrides(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("overrides must be a JSON object: %w", err)
	}
	return Unflatten(raw)
}

// Unflatten expands dotted keys into nested objects. Keys are applied in sorted
// order, so a prefix such as "model" is always seen before "model.x". A dotted
// key that would descend into a non-object value is an error.
func Unflatten(flat map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]any{}
	for _, k := range keys {
		v := flat[k]
		if m, ok := v.(map[string]any); ok {
			nested, err := Unflatten(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			v = nested
		}
		parts := strings.Split(k, ".")
		cur := out
		for i, p := range parts[:len(parts)-1] {
			existing, set := cur[p]
			if !set {
				next := map[string]any{}
				cur[p] = next
				cur = next
				continue
			}
			next, ok := existing.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("override %q conflicts with non-object value at %q", k, strings.Join(parts[:i+1], "."))
			}
			cur = next
		}
		last := parts[len(parts)-1]
		if existing, ok := cur[last].(map[string]any); ok {
			if vm, ok := v.(map[string]any); ok {
				cur[last] = Merge(existing, vm)
				continue
			}
		}
		cur[last] = v
	}
	return out, nil
}

// Merge returns base with overlay applied. Nested objects merge recursively,
// every other overlay value replaces the base value. Neither input is modified.
func Merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		bm, bok := out[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			out[k] = Merge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}
