// Package sanitize provides post-prediction transforms applied before a
// result is returned to the client.
package sanitize

import "modelserve/pkg/types"

// Sanitizer transforms a prediction result. It must not modify its argument.
type Sanitizer func(any) any

// DropKeys removes the given top-level keys from object results. Other values
// pass through untouched. Returns nil when keys is empty.
func DropKeys(keys ...string) Sanitizer {
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return func(v any) any {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(types.JSONDict, len(m))
		for k, val := range m {
			if _, skip := drop[k]; !skip {
				out[k] = val
			}
		}
		return out
	}
}

// KeepKeys keeps only the given top-level keys of object results. Other values
// pass through untouched. Returns nil when keys is empty.
func KeepKeys(keys ...string) Sanitizer {
	if len(keys) == 0 {
		return nil
	}
	return func(v any) any {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(types.JSONDict, len(keys))
		for _, k := range keys {
			if val, ok := m[k]; ok {
				out[k] = val
			}
		}
		return out
	}
}

// Chain applies sanitizers in order, skipping nil entries. Returns nil when
// nothing is left to apply.
func Chain(ss ...Sanitizer) Sanitizer {
	var live []Sanitizer
	for _, s := range ss {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(v any) any {
		for _, s := range live {
			v = s(v)
		}
		return v
	}
}
