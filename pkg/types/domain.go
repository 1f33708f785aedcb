package types

// JSONDict is a decoded JSON object. Values are whatever encoding/json produces
// for untyped targets: nil, bool, json.Number (or float64), string, []any, map[string]any.
type JSONDict = map[string]any
