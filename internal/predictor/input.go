package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"modelserve/pkg/types"
)

// Float64s reads a numeric vector from input[field]. The value may be a JSON
// array of numbers (or numeric strings) or a single string of numbers
// separated by commas and/or whitespace, which is what the HTML form sends.
func Float64s(input types.JSONDict, field string) ([]float64, error) {
	v, ok := input[field]
	if !ok {
		return nil, inputErrorf(field, "missing")
	}
	switch t := v.(type) {
	case []any:
		out := make([]float64, len(t))
		for i, e := range t {
			f, err := toFloat(e)
			if err != nil {
				return nil, inputErrorf(field, "element %d: %v", i, err)
			}
			out[i] = f
		}
		return out, nil
	case string:
		parts := strings.FieldsFunc(t, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
		out := make([]float64, len(parts))
		for i, p := range parts {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil || !finite(f) {
				return nil, inputErrorf(field, "element %d: %q is not a finite number", i, p)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, inputErrorf(field, "expected an array of numbers or a string, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number (%T)", v)
	}
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, fmt.Errorf("%v is not finite", f)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// String reads a string field, with def when missing.
func String(section map[string]any, key, def string) string {
	if s, ok := section[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Ints reads an integer list (for example a tensor shape) from a config section.
func Ints(section map[string]any, key string) ([]int, bool) {
	raw, ok := section[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, len(raw))
	for i, e := range raw {
		f, err := toFloat(e)
		if err != nil || f != float64(int(f)) {
			return nil, false
		}
		out[i] = int(f)
	}
	return out, true
}
